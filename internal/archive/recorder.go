package archive

import (
    "context"
    "time"

    "github.com/park285/chess-duel/internal/obslog"
    "github.com/park285/chess-duel/internal/pvp"
    "go.uber.org/zap"
)

// Recorder writes a Record whenever the manager tears a session down.
type Recorder struct {
    repo Repository
    now  func() time.Time
}

var _ pvp.Observer = (*Recorder)(nil)

func NewRecorder(repo Repository) *Recorder { return &Recorder{repo: repo, now: time.Now} }

func (r *Recorder) SessionStarted(context.Context, pvp.Session)  {}
func (r *Recorder) PositionUpdated(context.Context, pvp.Session) {}

func (r *Recorder) SessionEnded(ctx context.Context, s pvp.Session, reason pvp.EndReason, leaverID string) {
    if r == nil || r.repo == nil { return }
    ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
    defer cancel()
    rec := &Record{
        GameID: s.ID, WhiteID: s.WhiteID, BlackID: s.BlackID, LastFEN: s.FEN,
        EndReason: string(reason), LeaverID: leaverID,
        StartedAt: s.CreatedAt, EndedAt: r.now(),
    }
    if err := r.repo.Save(ctx, rec); err != nil {
        obslog.L().Error("archive_save_failed", zap.String("game_id", s.ID), zap.Error(err))
        return
    }
    obslog.L().Info("archive_saved", zap.String("game_id", s.ID), zap.String("reason", rec.EndReason), zap.Duration("duration", rec.Duration()))
}
