package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StageRun is one stage executed against one session. Runs started by the
// same command share a BatchID.
type StageRun struct {
	RunID           string `json:"run_id"`
	BatchID         string `json:"batch_id"`
	SessionID       string `json:"session_id"`
	Stage           string `json:"stage"`
	Status          string `json:"status"`
	CreatedCount    int    `json:"created_count"`
	UpdatedCount    int    `json:"updated_count"`
	UnresolvedCount int    `json:"unresolved_count"`
	Error           string `json:"error,omitempty"`
	StartedAtNs     int64  `json:"started_at_ns"`
	FinishedAtNs    int64  `json:"finished_at_ns"`
}

// RunStore records stage run history.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// NewBatchID returns an ID for a group of runs.
func NewBatchID() string { return uuid.New().String() }

// Insert records a run. Missing IDs and timestamps are filled in.
func (s *RunStore) Insert(ctx context.Context, run *StageRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.BatchID == "" {
		run.BatchID = run.RunID
	}
	now := time.Now().UnixNano()
	if run.StartedAtNs == 0 {
		run.StartedAtNs = now
	}
	if run.FinishedAtNs == 0 {
		run.FinishedAtNs = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_runs (
			run_id, batch_id, session_id, stage, status,
			created_count, updated_count, unresolved_count,
			error, started_at_ns, finished_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.BatchID, run.SessionID, run.Stage, run.Status,
		run.CreatedCount, run.UpdatedCount, run.UnresolvedCount,
		nullString(run.Error), run.StartedAtNs, run.FinishedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert stage run: %w", err)
	}
	return nil
}

// ListBySession returns the runs of a session, oldest first. A positive
// limit keeps only the most recent runs.
func (s *RunStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*StageRun, error) {
	query := `
		SELECT run_id, batch_id, session_id, stage, status,
		       created_count, updated_count, unresolved_count,
		       error, started_at_ns, finished_at_ns
		FROM (
			SELECT rowid AS seq, * FROM stage_runs
			WHERE session_id = ?
			ORDER BY started_at_ns DESC, seq DESC
			LIMIT ?
		)
		ORDER BY started_at_ns, seq
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stage runs: %w", err)
	}
	defer rows.Close()

	var runs []*StageRun
	for rows.Next() {
		r := &StageRun{}
		var errText sql.NullString
		err := rows.Scan(
			&r.RunID, &r.BatchID, &r.SessionID, &r.Stage, &r.Status,
			&r.CreatedCount, &r.UpdatedCount, &r.UnresolvedCount,
			&errText, &r.StartedAtNs, &r.FinishedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if errText.Valid {
			r.Error = errText.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
