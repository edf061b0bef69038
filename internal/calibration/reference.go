package calibration

import (
	"fmt"
	"iter"

	"github.com/reefmodel/reefscale/internal/monitoring"
	"github.com/reefmodel/reefscale/internal/scaledef"
	"github.com/reefmodel/reefscale/internal/session"
	"github.com/sirupsen/logrus"
)

// ReferenceReport summarises one reference import.
type ReferenceReport struct {
	Points     int
	Applied    []string
	Unresolved []UnresolvedLabel
}

// ImportReferences assigns each reference point to the marker with the same
// label and enables it as a control point. Points for labels the session
// does not have are reported and skipped.
func ImportReferences(s *session.Session, points iter.Seq2[scaledef.ReferencePoint, error]) (ReferenceReport, error) {
	log := monitoring.For("reference").WithField("session", s.Label)

	var report ReferenceReport
	if s.MarkerCount() == 0 {
		return report, session.Preconditionf(session.StageReference, "no markers found, unable to import reference coordinates")
	}

	for p, err := range points {
		if err != nil {
			return report, fmt.Errorf("read reference coordinates: %w", err)
		}
		report.Points++

		m, ok := s.MarkerByLabel(p.Label)
		if !ok {
			report.Unresolved = append(report.Unresolved, UnresolvedLabel{Label: p.Label, Line: p.Line})
			log.WithFields(logrus.Fields{"label": p.Label, "line": p.Line}).Warn("marker was not found")
			continue
		}
		ref := session.Reference{Position: p.Position, Accuracy: p.Accuracy, Enabled: true}
		if err := s.Engine.SetMarkerReference(m.ID, ref); err != nil {
			return report, fmt.Errorf("set reference for marker %q: %w", p.Label, err)
		}
		report.Applied = append(report.Applied, p.Label)
	}

	log.WithFields(logrus.Fields{
		"points":     report.Points,
		"applied":    len(report.Applied),
		"unresolved": len(report.Unresolved),
	}).Info("reference coordinates imported")
	return report, nil
}
