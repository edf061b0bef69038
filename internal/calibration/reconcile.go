// Package calibration applies rig definition files to a session: scale
// definitions become scalebars between existing markers, and reference
// coordinates become marker reference positions. Markers are never created
// here; a label that does not match a detected marker is reported and
// skipped.
package calibration

import (
	"fmt"
	"iter"

	"github.com/reefmodel/reefscale/internal/monitoring"
	"github.com/reefmodel/reefscale/internal/scaledef"
	"github.com/reefmodel/reefscale/internal/session"
	"github.com/sirupsen/logrus"
)

// UnresolvedLabel is a non-fatal warning: a definition names a marker the
// session does not have.
type UnresolvedLabel struct {
	Label string
	Line  int
	// Pair is the scalebar label the constraint would have produced; empty
	// for reference points.
	Pair string
}

func (u UnresolvedLabel) String() string {
	if u.Pair != "" {
		return fmt.Sprintf("marker %q was not found (line %d, scalebar %s)", u.Label, u.Line, u.Pair)
	}
	return fmt.Sprintf("marker %q was not found (line %d)", u.Label, u.Line)
}

// Report summarises one reconciliation pass.
type Report struct {
	Constraints int
	Existing    int
	Created     []session.Scalebar
	Updated     []session.Scalebar
	Unresolved  []UnresolvedLabel
}

// Skipped returns the number of constraints that produced no scalebar.
func (r Report) Skipped() int {
	return r.Constraints - len(r.Created) - len(r.Updated)
}

// Reconcile makes the session's scalebars agree with constraints.
//
// For each constraint an existing scalebar labeled "A_B" or "B_A" is
// updated in place; otherwise both labels are looked up and, if both
// resolve, a new scalebar is created. The search covers scalebars created
// earlier in the same pass, so a file that lists a pair twice leaves one
// scalebar holding the last values. Running Reconcile twice with the same
// input is a no-op the second time apart from rewriting identical values.
//
// A session with no markers fails with a PreconditionError before any
// constraint is read. A ParseError from the sequence stops the pass; the
// report covers the constraints applied before it.
func Reconcile(s *session.Session, constraints iter.Seq2[scaledef.Constraint, error]) (Report, error) {
	log := monitoring.For("calibration").WithField("session", s.Label)

	var report Report
	if s.MarkerCount() == 0 {
		return report, session.Preconditionf(session.StageCalibration, "no markers found, unable to create scalebars")
	}
	report.Existing = len(s.Engine.Scalebars())
	if report.Existing > 0 {
		log.WithField("scalebars", report.Existing).Info("session already has scalebars")
	}

	for c, err := range constraints {
		if err != nil {
			return report, fmt.Errorf("read scale definitions: %w", err)
		}
		report.Constraints++
		if err := reconcileOne(s, c, &report, log); err != nil {
			return report, err
		}
	}

	log.WithFields(logrus.Fields{
		"constraints": report.Constraints,
		"created":     len(report.Created),
		"updated":     len(report.Updated),
		"skipped":     report.Skipped(),
		"unresolved":  len(report.Unresolved),
	}).Info("scalebars reconciled")
	return report, nil
}

func reconcileOne(s *session.Session, c scaledef.Constraint, report *Report, log *logrus.Entry) error {
	pair := session.ScalebarLabel(c.LabelA, c.LabelB)
	clog := log.WithFields(logrus.Fields{"scalebar": pair, "line": c.Line})

	if sb, ok := s.FindScalebar(c.LabelA, c.LabelB); ok {
		if err := s.Engine.UpdateScalebar(sb.ID, c.Distance, c.Accuracy); err != nil {
			return fmt.Errorf("update scalebar %s: %w", sb.Label, err)
		}
		clog.WithFields(logrus.Fields{
			"from_distance": sb.Distance,
			"distance":      c.Distance,
			"accuracy":      c.Accuracy,
		}).Info("scalebar already defined, updated reference distance")
		sb.Distance, sb.Accuracy = c.Distance, c.Accuracy
		report.Updated = append(report.Updated, sb)
		return nil
	}

	a, okA := s.MarkerByLabel(c.LabelA)
	b, okB := s.MarkerByLabel(c.LabelB)
	if !okA || !okB {
		for _, miss := range []struct {
			label string
			found bool
		}{{c.LabelA, okA}, {c.LabelB, okB}} {
			if miss.found {
				continue
			}
			u := UnresolvedLabel{Label: miss.label, Line: c.Line, Pair: pair}
			report.Unresolved = append(report.Unresolved, u)
			clog.WithField("label", miss.label).Warn("marker was not found")
		}
		return nil
	}

	sb, err := s.Engine.AddScalebar(a, b, c.Distance, c.Accuracy)
	if err != nil {
		return fmt.Errorf("add scalebar %s: %w", pair, err)
	}
	clog.WithFields(logrus.Fields{"distance": c.Distance, "accuracy": c.Accuracy}).Debug("scalebar created")
	report.Created = append(report.Created, sb)
	return nil
}
