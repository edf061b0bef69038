package pipeline

import (
	"context"

	"github.com/reefmodel/reefscale/internal/store/sqlite"
)

// StoreRecorder writes stage results to the run history table.
type StoreRecorder struct {
	Runs *sqlite.RunStore
}

// RecordStage implements Recorder.
func (s StoreRecorder) RecordStage(ctx context.Context, batchID, sessionID string, r StageResult) error {
	run := &sqlite.StageRun{
		BatchID:         batchID,
		SessionID:       sessionID,
		Stage:           string(r.Stage),
		Status:          r.Status,
		CreatedCount:    r.Created,
		UpdatedCount:    r.Updated,
		UnresolvedCount: len(r.Unresolved),
		StartedAtNs:     r.StartedAt.UnixNano(),
		FinishedAtNs:    r.FinishedAt.UnixNano(),
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return s.Runs.Insert(ctx, run)
}
