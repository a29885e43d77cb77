package pvp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-duel/internal/obslog"
	"github.com/park285/chess-duel/pkg/wire"
	"go.uber.org/zap"
)

// Manager owns the session registry and the waiting queue. Every handler runs to
// completion under mu and performs no I/O; deliveries are returned to the caller and
// observers are notified after the lock is released.
type Manager struct {
	mu sync.Mutex
	// gameID -> session
	sessions map[string]*Session
	// connection ids in arrival order; head is the oldest waiter
	waiting []string

	now       func() time.Time
	newGameID func(now time.Time) string
	observers []Observer
	order     *notifyOrder
}

type Option func(*Manager)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithGameIDFunc overrides the game id generator.
func WithGameIDFunc(fn func(now time.Time) string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newGameID = fn
		}
	}
}

// WithObserver registers a lifecycle observer. Nil observers are skipped.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		waiting:   make([]string, 0),
		now:       time.Now,
		newGameID: timeGameID,
		order:     newNotifyOrder(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindGame pairs connID with the oldest waiter, or queues it when nobody is waiting.
func (m *Manager) FindGame(ctx context.Context, connID string) []Delivery {
	connID = strings.TrimSpace(connID)
	if m == nil || connID == "" {
		return nil
	}

	m.mu.Lock()
	if indexOf(m.waiting, connID) >= 0 {
		// already queued: pairing it with itself would break the two-seat invariant
		m.mu.Unlock()
		obslog.L().Debug("pvp_find_game_ignored", zap.String("conn_id", connID), zap.String("reason", "already_waiting"))
		return []Delivery{{To: connID, Envelope: wire.MustEnvelope(wire.EventWaiting, nil)}}
	}
	if gameID := m.seatedIn(connID); gameID != "" {
		m.mu.Unlock()
		obslog.L().Debug("pvp_find_game_ignored", zap.String("conn_id", connID), zap.String("game_id", gameID), zap.String("reason", "already_seated"))
		return nil
	}
	if len(m.waiting) == 0 {
		m.waiting = append(m.waiting, connID)
		queued := len(m.waiting)
		m.mu.Unlock()
		obslog.L().Info("pvp_waiting", zap.String("conn_id", connID), zap.Int("queue_len", queued))
		return []Delivery{{To: connID, Envelope: wire.MustEnvelope(wire.EventWaiting, nil)}}
	}

	whiteID := m.waiting[0]
	m.waiting = m.waiting[1:]
	now := m.now()
	s := &Session{
		ID:        m.allocGameID(now),
		WhiteID:   whiteID,
		BlackID:   connID,
		FEN:       wire.StartFEN,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	m.order.open(s.ID)
	ticket := s.issueTicket()
	snapshot := *s
	m.mu.Unlock()

	obslog.L().Info("pvp_game_start",
		zap.String("game_id", snapshot.ID),
		zap.String("white_id", snapshot.WhiteID),
		zap.String("black_id", snapshot.BlackID),
	)
	m.notify(snapshot.ID, ticket, false, func(o Observer) { o.SessionStarted(ctx, snapshot) })
	return []Delivery{
		{To: snapshot.WhiteID, Envelope: wire.MustEnvelope(wire.EventGameStart, wire.GameStart{GameID: snapshot.ID, Color: wire.ColorWhite, OpponentID: snapshot.BlackID})},
		{To: snapshot.BlackID, Envelope: wire.MustEnvelope(wire.EventGameStart, wire.GameStart{GameID: snapshot.ID, Color: wire.ColorBlack, OpponentID: snapshot.WhiteID})},
	}
}

// MakeMove relays a move to the sender's opponent in gameID. Unknown games and
// senders that are not seated in the game are dropped without any reply.
func (m *Manager) MakeMove(ctx context.Context, connID, gameID string, move wire.Move) []Delivery {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	s, ok := m.sessions[gameID]
	var to string
	if ok {
		to = s.Opponent(connID)
	}
	m.mu.Unlock()

	if !ok {
		obslog.L().Debug("pvp_move_dropped", zap.String("conn_id", connID), zap.String("game_id", gameID), zap.String("reason", "unknown_game"))
		return nil
	}
	if to == "" {
		obslog.L().Debug("pvp_move_dropped", zap.String("conn_id", connID), zap.String("game_id", gameID), zap.String("reason", "not_participant"))
		return nil
	}
	obslog.L().Info("pvp_move_relay",
		zap.String("game_id", gameID),
		zap.String("from_conn", connID),
		zap.String("to_conn", to),
		zap.String("move", move.From+move.To+move.Promotion),
	)
	return []Delivery{{To: to, Envelope: wire.MustEnvelope(wire.EventOpponentMove, wire.OpponentMove{Move: move})}}
}

// UpdateGame overwrites the stored position of gameID with fen as-is. The server
// never checks legality, turn order or even FEN syntax. Returns false when the game
// is unknown, which is otherwise silent.
func (m *Manager) UpdateGame(ctx context.Context, connID, gameID, fen string) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	s, ok := m.sessions[gameID]
	if !ok {
		m.mu.Unlock()
		obslog.L().Debug("pvp_update_dropped", zap.String("conn_id", connID), zap.String("game_id", gameID), zap.String("reason", "unknown_game"))
		return false
	}
	s.FEN = fen
	s.UpdatedAt = m.now()
	ticket := s.issueTicket()
	snapshot := *s
	m.mu.Unlock()

	obslog.L().Debug("pvp_position_update", zap.String("game_id", gameID), zap.String("conn_id", connID), zap.String("fen", fen))
	m.notify(snapshot.ID, ticket, false, func(o Observer) { o.PositionUpdated(ctx, snapshot) })
	return true
}

// Disconnect removes connID from the queue and tears down every session it sits in,
// notifying the remaining participant once.
func (m *Manager) Disconnect(ctx context.Context, connID string) []Delivery {
	connID = strings.TrimSpace(connID)
	if m == nil || connID == "" {
		return nil
	}
	type endedSession struct {
		Session
		ticket uint64
	}
	m.mu.Lock()
	if idx := indexOf(m.waiting, connID); idx >= 0 {
		m.waiting = append(m.waiting[:idx], m.waiting[idx+1:]...)
	}
	var ended []endedSession
	for id, s := range m.sessions {
		if s.Has(connID) {
			ended = append(ended, endedSession{Session: *s, ticket: s.issueTicket()})
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	var out []Delivery
	for _, e := range ended {
		s := e.Session
		peer := s.Opponent(connID)
		obslog.L().Info("pvp_game_end",
			zap.String("game_id", s.ID),
			zap.String("leaver", connID),
			zap.String("notified", peer),
			zap.String("reason", string(EndDisconnect)),
		)
		out = append(out, Delivery{To: peer, Envelope: wire.MustEnvelope(wire.EventOpponentDisconnected, nil)})
		m.notify(s.ID, e.ticket, true, func(o Observer) { o.SessionEnded(ctx, s, EndDisconnect, connID) })
	}
	return out
}

// Session returns a copy of the session stored under gameID.
func (m *Manager) Session(gameID string) (Session, bool) {
	if m == nil {
		return Session{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[gameID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Waiting returns the queued connection ids, oldest first.
func (m *Manager) Waiting() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.waiting...)
}

func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Waiting: len(m.waiting), Sessions: len(m.sessions)}
}

// notify runs fn for every observer, after all earlier callbacks of the same session.
func (m *Manager) notify(gameID string, ticket uint64, final bool, fn func(Observer)) {
	m.order.run(gameID, ticket, final, func() {
		for _, o := range m.observers {
			fn(o)
		}
	})
}

// allocGameID must be called with mu held. An id whose callbacks are still in
// flight counts as taken.
func (m *Manager) allocGameID(now time.Time) string {
	id := m.newGameID(now)
	if !m.idTaken(id) {
		return id
	}
	// same-millisecond pairing: keep the time prefix, disambiguate with a random suffix
	for {
		alt := fmt.Sprintf("%s_%s", id, uuid.NewString()[:8])
		if !m.idTaken(alt) {
			obslog.L().Warn("pvp_game_id_collision", zap.String("game_id", id), zap.String("resolved", alt))
			return alt
		}
	}
}

func (m *Manager) idTaken(id string) bool {
	if _, ok := m.sessions[id]; ok {
		return true
	}
	return m.order.pending(id)
}

// seatedIn must be called with mu held.
func (m *Manager) seatedIn(connID string) string {
	for id, s := range m.sessions {
		if s.Has(connID) {
			return id
		}
	}
	return ""
}

func timeGameID(now time.Time) string { return fmt.Sprintf("game_%d", now.UnixMilli()) }

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
