package archive

import (
    "context"
    "errors"
    "strings"
    "time"
)

var (
    ErrNotFound  = errors.New("archive: record not found")
    ErrNilRecord = errors.New("archive: nil record")
)

// Record is one finished session. Moves are never seen by the server, so only the
// last synced position is kept.
type Record struct {
    GameID    string
    WhiteID   string
    BlackID   string
    LastFEN   string
    EndReason string
    LeaverID  string
    StartedAt time.Time
    EndedAt   time.Time
}

func (r *Record) Duration() time.Duration {
    if r == nil || r.EndedAt.Before(r.StartedAt) { return 0 }
    return r.EndedAt.Sub(r.StartedAt)
}

type Repository interface {
    // Save upserts by GameID.
    Save(ctx context.Context, rec *Record) error
    // Recent lists records by EndedAt, newest first. limit <= 0 means no limit.
    Recent(ctx context.Context, limit int) ([]*Record, error)
    Get(ctx context.Context, gameID string) (*Record, error)
    Close() error
}

func validate(rec *Record) error {
    if rec == nil { return ErrNilRecord }
    if strings.TrimSpace(rec.GameID) == "" { return errors.New("archive: empty game id") }
    return nil
}
