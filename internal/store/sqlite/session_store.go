package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reefmodel/reefscale/internal/session"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// SessionRecord is a stored session snapshot.
type SessionRecord struct {
	SessionID     string           `json:"session_id"`
	Label         string           `json:"label"`
	CRS           string           `json:"crs"`
	MarkerCount   int              `json:"marker_count"`
	ScalebarCount int              `json:"scalebar_count"`
	Snapshot      session.Snapshot `json:"snapshot"`
	CreatedAtNs   int64            `json:"created_at_ns"`
	UpdatedAtNs   int64            `json:"updated_at_ns"`
}

// SessionStore persists session snapshots keyed by label.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save stores snap under its label. An existing session with the same label
// keeps its ID and has its snapshot replaced; otherwise a new UUID is
// assigned. The returned record carries the stored ID, which is also written
// into the snapshot.
func (s *SessionStore) Save(ctx context.Context, snap session.Snapshot) (*SessionRecord, error) {
	if snap.Label == "" {
		return nil, fmt.Errorf("save session: empty label")
	}
	now := time.Now().UnixNano()

	existing, err := s.GetByLabel(ctx, snap.Label)
	switch {
	case err == nil:
		snap.ID = existing.SessionID
	case errors.Is(err, ErrNotFound):
		snap.ID = uuid.New().String()
	default:
		return nil, err
	}

	rec := &SessionRecord{
		SessionID:     snap.ID,
		Label:         snap.Label,
		CRS:           snap.CRS,
		MarkerCount:   len(snap.Markers),
		ScalebarCount: len(snap.Scalebars),
		Snapshot:      snap,
		CreatedAtNs:   now,
		UpdatedAtNs:   now,
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	if existing != nil {
		rec.CreatedAtNs = existing.CreatedAtNs
		_, err = s.db.ExecContext(ctx, `
			UPDATE sessions
			SET crs = ?, marker_count = ?, scalebar_count = ?, snapshot_json = ?, updated_at_ns = ?
			WHERE session_id = ?
		`, rec.CRS, rec.MarkerCount, rec.ScalebarCount, string(body), rec.UpdatedAtNs, rec.SessionID)
		if err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		return rec, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, label, crs, marker_count, scalebar_count,
			snapshot_json, created_at_ns, updated_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Label, rec.CRS, rec.MarkerCount, rec.ScalebarCount,
		string(body), rec.CreatedAtNs, rec.UpdatedAtNs)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

const selectSession = `
	SELECT session_id, label, crs, marker_count, scalebar_count,
	       snapshot_json, created_at_ns, updated_at_ns
	FROM sessions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var body string
	err := row.Scan(
		&rec.SessionID, &rec.Label, &rec.CRS, &rec.MarkerCount, &rec.ScalebarCount,
		&body, &rec.CreatedAtNs, &rec.UpdatedAtNs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(body), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", rec.Label, err)
	}
	rec.Snapshot.ID = rec.SessionID
	rec.Snapshot.Label = rec.Label
	return rec, nil
}

// Get returns the session with the given ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRowContext(ctx, selectSession+" WHERE session_id = ?", sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// GetByLabel returns the session with the given label.
func (s *SessionStore) GetByLabel(ctx context.Context, label string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRowContext(ctx, selectSession+" WHERE label = ?", label))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by label: %w", err)
	}
	return rec, nil
}

// Resolve looks a session up by label, falling back to ID.
func (s *SessionStore) Resolve(ctx context.Context, labelOrID string) (*SessionRecord, error) {
	rec, err := s.GetByLabel(ctx, labelOrID)
	if errors.Is(err, ErrNotFound) {
		return s.Get(ctx, labelOrID)
	}
	return rec, err
}

// List returns every stored session ordered by label.
func (s *SessionStore) List(ctx context.Context) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectSession+" ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a session and its run history.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}
