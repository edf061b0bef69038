// Package pipeline runs the session stages in order: reference import,
// scalebar calibration, region axis alignment and region rewrite.
//
// It is the composition root for the core packages. Each stage is
// delegated to calibration or region; the pipeline only decides which
// stages run, stops a session at its first failure and reports what
// happened.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reefmodel/reefscale/internal/calibration"
	"github.com/reefmodel/reefscale/internal/config"
	"github.com/reefmodel/reefscale/internal/crs"
	"github.com/reefmodel/reefscale/internal/fsutil"
	"github.com/reefmodel/reefscale/internal/region"
	"github.com/reefmodel/reefscale/internal/scaledef"
	"github.com/reefmodel/reefscale/internal/session"
	"github.com/reefmodel/reefscale/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// Stage names a pipeline step.
type Stage string

// Stages in execution order.
const (
	StageReference   Stage = session.StageReference
	StageCalibration Stage = session.StageCalibration
	StageAlign       Stage = "align"
	StageRegion      Stage = session.StageRegion
)

// AllStages is the full pipeline.
var AllStages = []Stage{StageReference, StageCalibration, StageAlign, StageRegion}

// Status of a stage run.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StageResult is the outcome of one stage on one session.
type StageResult struct {
	Stage      Stage
	Status     string
	Created    int
	Updated    int
	Unresolved []calibration.UnresolvedLabel
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// SessionResult collects the stage results of one session.
type SessionResult struct {
	SessionID string
	Label     string
	Stages    []StageResult
	// Err is the error of the stage that stopped the session, if any.
	Err error
}

// Failed reports whether a stage failed.
func (r SessionResult) Failed() bool { return r.Err != nil }

// Changed reports whether any stage completed and may have modified the
// session.
func (r SessionResult) Changed() bool {
	for _, st := range r.Stages {
		if st.Status == StatusOK {
			return true
		}
	}
	return false
}

// Recorder receives every stage result as it completes.
type Recorder interface {
	RecordStage(ctx context.Context, batchID, sessionID string, r StageResult) error
}

// Runner runs a configured set of stages against sessions.
type Runner struct {
	Config *config.PipelineConfig
	// FS is where definition files are read from. Nil means the OS.
	FS fsutil.FileSystem
	// Stages to run, in order. Nil means AllStages.
	Stages []Stage
	// Recorder is optional.
	Recorder Recorder
	// BatchID groups the records of one invocation.
	BatchID string
	// Clock stamps stage start and finish times. Nil means the system clock.
	Clock timeutil.Clock
}

// NewRunner returns a runner over cfg. A nil cfg uses the defaults.
func NewRunner(cfg *config.PipelineConfig, stages ...Stage) *Runner {
	if cfg == nil {
		cfg = config.EmptyPipelineConfig()
	}
	return &Runner{Config: cfg, Stages: stages, Clock: timeutil.RealClock{}}
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

func (r *Runner) stages() []Stage {
	if len(r.Stages) == 0 {
		return AllStages
	}
	return r.Stages
}

// Run executes the stages against s. The first failing stage stops the
// session; the remaining stages are not run. Cancellation of ctx is
// checked between stages and reported as the session's error.
func (r *Runner) Run(ctx context.Context, s *session.Session) SessionResult {
	res := SessionResult{SessionID: s.ID, Label: s.Label}
	for _, stage := range r.stages() {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		st := r.runStage(s, stage)
		res.Stages = append(res.Stages, st)

		if r.Recorder != nil {
			if err := r.Recorder.RecordStage(ctx, r.BatchID, s.ID, st); err != nil {
				opsf("session %s: record %s stage: %v", s.Label, stage, err)
			}
		}
		if st.Status == StatusFailed {
			res.Err = fmt.Errorf("session %s: %s stage: %w", s.Label, stage, st.Err)
			opsf("%v", res.Err)
			return res
		}
		diagf("session %s: %s stage %s, %s since start", s.Label, stage, st.Status, r.clock().Since(st.StartedAt))
	}
	return res
}

// RunAll runs every session in turn. A failing session does not stop the
// others. The returned error joins the errors of every failed session.
func (r *Runner) RunAll(ctx context.Context, sessions []*session.Session) ([]SessionResult, error) {
	results := make([]SessionResult, 0, len(sessions))
	var errs []error
	for _, s := range sessions {
		res := r.Run(ctx, s)
		results = append(results, res)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (r *Runner) runStage(s *session.Session, stage Stage) StageResult {
	st := StageResult{Stage: stage, StartedAt: r.clock().Now()}
	var err error
	switch stage {
	case StageReference:
		err = r.importReferences(s, &st)
	case StageCalibration:
		err = r.calibrate(s, &st)
	case StageAlign:
		err = r.alignAxes(s, &st)
	case StageRegion:
		err = r.rewriteRegion(s, &st)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	st.FinishedAt = r.clock().Now()
	switch {
	case err != nil:
		st.Status = StatusFailed
		st.Err = err
	case st.Status == "":
		st.Status = StatusOK
	}
	return st
}

func (r *Runner) source(path string, skip int, unit string) scaledef.Source {
	src := scaledef.NewSource(path, scaledef.Options{SkipRows: skip, Unit: unit})
	if r.FS != nil {
		src.FS = r.FS
	}
	return src
}

func (r *Runner) importReferences(s *session.Session, st *StageResult) error {
	path := r.Config.GetReferencePath()
	if path == "" {
		st.Status = StatusSkipped
		return nil
	}
	// Geographic coordinates are degrees; only metric systems take a unit.
	unit := r.Config.GetDistanceUnit()
	if _, geographic := s.Engine.ReferenceSystem().(*crs.Geographic); geographic {
		unit = ""
	}
	src := r.source(path, r.Config.GetReferenceSkipRows(), unit)
	report, err := calibration.ImportReferences(s, src.References())
	st.Updated = len(report.Applied)
	st.Unresolved = report.Unresolved
	return err
}

func (r *Runner) calibrate(s *session.Session, st *StageResult) error {
	path := r.Config.GetScalebarsPath()
	if path == "" {
		st.Status = StatusSkipped
		return nil
	}
	src := r.source(path, r.Config.GetScalebarsSkipRows(), r.Config.GetDistanceUnit())
	report, err := calibration.Reconcile(s, src.Constraints())
	st.Created = len(report.Created)
	st.Updated = len(report.Updated)
	st.Unresolved = report.Unresolved
	return err
}

func (r *Runner) alignAxes(s *session.Session, st *StageResult) error {
	if !r.Config.GetAlignRegionAxes() {
		st.Status = StatusSkipped
		return nil
	}
	_, err := region.AlignAxes(s)
	if err == nil {
		st.Updated = 1
	}
	return err
}

func (r *Runner) rewriteRegion(s *session.Session, st *StageResult) error {
	if !r.Config.GetRegionEnabled() {
		st.Status = StatusSkipped
		return nil
	}
	_, err := region.Rewrite(s, RegionRequest(r.Config), region.Options{
		ApplyRotation: r.Config.GetApplyRegionRotation(),
	})
	if err == nil {
		st.Updated = 1
	}
	return err
}

// RegionRequest builds the region request described by cfg.
func RegionRequest(cfg *config.PipelineConfig) region.Request {
	c, sz := cfg.GetRegionCenter(), cfg.GetRegionSize()
	return region.Request{
		Center:   r3.Vec{X: c[0], Y: c[1], Z: c[2]},
		Size:     r3.Vec{X: sz[0], Y: sz[1], Z: sz[2]},
		AngleDeg: cfg.GetRegionAngleDeg(),
	}
}
