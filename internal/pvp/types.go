package pvp

import (
	"context"
	"time"

	"github.com/park285/chess-duel/pkg/wire"
)

// Session is one paired game between exactly two connections.
type Session struct {
	ID        string    `json:"id"`
	WhiteID   string    `json:"white_id"`
	BlackID   string    `json:"black_id"`
	FEN       string    `json:"fen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// observer tickets issued so far; orders callbacks that run outside the lock
	seq uint64
}

func (s *Session) issueTicket() uint64 {
	t := s.seq
	s.seq++
	return t
}

// Opponent returns the other participant, or "" when connID is not seated in s.
func (s Session) Opponent(connID string) string {
	switch connID {
	case s.WhiteID:
		return s.BlackID
	case s.BlackID:
		return s.WhiteID
	default:
		return ""
	}
}

// Has reports whether connID is one of the two participants.
func (s Session) Has(connID string) bool { return s.Opponent(connID) != "" }

// Delivery is one outbound frame addressed to a connection.
type Delivery struct {
	To       string
	Envelope wire.Envelope
}

// EndReason tells observers why a session was torn down.
type EndReason string

const (
	EndDisconnect EndReason = "disconnect"
)

// Observer receives session lifecycle callbacks after the manager lock is released.
// Implementations do their own I/O and must not call back into the Manager.
type Observer interface {
	SessionStarted(ctx context.Context, s Session)
	PositionUpdated(ctx context.Context, s Session)
	SessionEnded(ctx context.Context, s Session, reason EndReason, leaverID string)
}

// Stats is a point-in-time view of the registry and queue sizes.
type Stats struct {
	Waiting  int
	Sessions int
}
