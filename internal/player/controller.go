package player

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/park285/chess-duel/internal/msgcat"
	"github.com/park285/chess-duel/internal/obslog"
	"github.com/park285/chess-duel/internal/rules"
	"github.com/park285/chess-duel/pkg/wire"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateWaiting   State = "waiting"
	StatePlaying   State = "playing"
	StateEnded     State = "ended"
)

var (
	ErrWrongMode  = errors.New("player: not available in this mode")
	ErrWrongState = errors.New("player: not available in current state")
)

// Sender delivers one outbound event to the relay.
type Sender interface {
	Send(ctx context.Context, event string, payload any) error
}

// Controller drives one local game, either against the random bot or against a
// remote opponent relayed by the server. It is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	mode      Mode
	state     State
	oracle    rules.Oracle
	newOracle func() rules.Oracle

	gameID string
	color  rules.Color
	// SAN of every applied ply, both sides
	plies []string
	// game_start announcement, cleared by the first ply
	banner       string
	disconnected bool

	cat      *msgcat.Catalog
	sender   Sender
	botDelay time.Duration
	intn     func(n int) int
	botTimer *time.Timer
	// bumps on Reset so a stale bot timer does nothing
	epoch    int
	onChange func()
}

type Option func(*Controller)

func WithCatalog(cat *msgcat.Catalog) Option {
	return func(c *Controller) {
		if cat != nil {
			c.cat = cat
		}
	}
}

// WithBotDelay sets the pause before the bot replies. Zero replies inline.
func WithBotDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.botDelay = d
		}
	}
}

// WithRand replaces the uniform picker used by the bot; intn(n) must return [0,n).
func WithRand(intn func(n int) int) Option {
	return func(c *Controller) {
		if intn != nil {
			c.intn = intn
		}
	}
}

// WithOracle replaces the rules oracle factory.
func WithOracle(factory func() rules.Oracle) Option {
	return func(c *Controller) {
		if factory != nil {
			c.newOracle = factory
		}
	}
}

// WithOnChange registers a callback fired after every visible state change.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

func newController(mode Mode, opts ...Option) *Controller {
	c := &Controller{
		mode:      mode,
		state:     StateIdle,
		newOracle: func() rules.Oracle { return rules.New() },
		botDelay:  300 * time.Millisecond,
		intn:      rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cat == nil {
		c.cat, _ = msgcat.Default()
	}
	c.oracle = c.newOracle()
	return c
}

// NewBot starts a game against the random bot; the local side plays white.
func NewBot(opts ...Option) *Controller {
	c := newController(ModeBot, opts...)
	c.state = StatePlaying
	c.color = rules.White
	return c
}

// NewMultiplayer returns an idle controller that talks to the relay through sender.
func NewMultiplayer(sender Sender, opts ...Option) *Controller {
	c := newController(ModeMultiplayer, opts...)
	c.sender = sender
	return c
}

// FindGame asks the relay for an opponent.
func (c *Controller) FindGame(ctx context.Context) error {
	c.mu.Lock()
	if c.mode != ModeMultiplayer {
		c.mu.Unlock()
		return ErrWrongMode
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrWrongState
	}
	c.state = StateSearching
	sender := c.sender
	c.mu.Unlock()

	c.changed()
	if sender == nil {
		return nil
	}
	return sender.Send(ctx, wire.EventFindGame, nil)
}

// Drop is a local drag-and-drop intent. Promotion is always to a queen. Only the
// local side may move, so a drop during a pending bot reply is refused too. It
// reports whether the move was accepted; a refused move leaves everything untouched.
func (c *Controller) Drop(ctx context.Context, from, to string) bool {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return false
	}
	if c.oracle.SideToMove() != c.color || (c.mode == ModeMultiplayer && c.gameID == "") {
		c.mu.Unlock()
		return false
	}
	res, err := c.oracle.AttemptMove(from, to, rules.Queen)
	if err != nil {
		c.mu.Unlock()
		obslog.L().Debug("player_move_rejected", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return false
	}
	c.recordLocked(res)
	over := c.oracle.TerminalStatus().Over()
	mode, gameID, sender, epoch := c.mode, c.gameID, c.sender, c.epoch
	c.mu.Unlock()
	c.changed()

	switch mode {
	case ModeMultiplayer:
		if sender == nil {
			return true
		}
		// the intent goes out as dropped, queen included; the peer oracle ignores it on non-promoting moves
		mv := wire.Move{From: res.Move.From, To: res.Move.To, Promotion: rules.Queen.Letter()}
		if err := sender.Send(ctx, wire.EventMakeMove, wire.MakeMove{GameID: gameID, Move: mv}); err != nil {
			obslog.L().Warn("player_send_failed", zap.String("event", wire.EventMakeMove), zap.Error(err))
		}
		if err := sender.Send(ctx, wire.EventUpdateGame, wire.UpdateGame{GameID: gameID, FEN: res.FEN}); err != nil {
			obslog.L().Warn("player_send_failed", zap.String("event", wire.EventUpdateGame), zap.Error(err))
		}
	case ModeBot:
		if !over {
			c.scheduleBot(epoch)
		}
	}
	return true
}

// Handle applies one inbound relay event.
func (c *Controller) Handle(ctx context.Context, env wire.Envelope) {
	c.mu.Lock()
	if c.mode != ModeMultiplayer {
		c.mu.Unlock()
		return
	}
	changed := false
	switch env.Event {
	case wire.EventWaiting:
		if c.state == StateSearching {
			c.state = StateWaiting
			changed = true
		}
	case wire.EventGameStart:
		var gs wire.GameStart
		if err := env.Decode(&gs); err != nil {
			obslog.L().Warn("player_bad_payload", zap.String("event", env.Event), zap.Error(err))
			break
		}
		if c.state != StateSearching && c.state != StateWaiting {
			break
		}
		color, ok := rules.ParseColor(gs.Color)
		if !ok {
			obslog.L().Warn("player_bad_color", zap.String("color", gs.Color))
			break
		}
		c.gameID, c.color, c.state = gs.GameID, color, StatePlaying
		c.banner = c.cat.Text(msgcat.KeyStarted, map[string]string{"Color": color.String()}, "Game started! You are playing as "+color.String())
		changed = true
	case wire.EventOpponentMove:
		if c.state != StatePlaying {
			break
		}
		var om wire.OpponentMove
		if err := env.Decode(&om); err != nil {
			obslog.L().Warn("player_bad_payload", zap.String("event", env.Event), zap.Error(err))
			break
		}
		res, err := c.oracle.AttemptMove(om.Move.From, om.Move.To, rules.ParsePieceKind(om.Move.Promotion))
		if err != nil {
			obslog.L().Warn("player_remote_move_rejected", zap.String("game_id", c.gameID), zap.String("move", om.Move.From+om.Move.To+om.Move.Promotion), zap.Error(err))
			break
		}
		c.recordLocked(res)
		changed = true
	case wire.EventOpponentDisconnected:
		if c.state == StateEnded && c.disconnected {
			break
		}
		c.stopBotLocked()
		c.state = StateEnded
		c.disconnected = true
		changed = true
	default:
		obslog.L().Debug("player_unknown_event", zap.String("event", env.Event))
	}
	c.mu.Unlock()
	if changed {
		c.changed()
	}
}

// Reset starts a fresh bot game.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.mode != ModeBot {
		c.mu.Unlock()
		return ErrWrongMode
	}
	c.stopBotLocked()
	c.epoch++
	c.oracle = c.newOracle()
	c.plies = nil
	c.state = StatePlaying
	c.mu.Unlock()
	c.changed()
	return nil
}

// Close stops a pending bot reply.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopBotLocked()
	c.epoch++
	c.mu.Unlock()
}

// Status is the current status line.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		return ""
	case StateSearching:
		return c.cat.Text(msgcat.KeyFinding, nil, "Finding opponent...")
	case StateWaiting:
		return c.cat.Text(msgcat.KeyWaiting, nil, "Waiting for opponent...")
	}
	if c.disconnected {
		return c.cat.Text(msgcat.KeyOpponentLeft, nil, "Opponent disconnected. Game ended.")
	}
	return StatusText(c.cat, ViewOf(c.oracle, c.mode, c.color))
}

// Announcement is the game_start text ("Game started! You are playing as black")
// until the first ply, then empty. Status moves straight on to the turn text.
func (c *Controller) Announcement() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// MoveLog returns one entry per ply numbered by full move: "1. e4", "1. e5", "2. Nf3".
func (c *Controller) MoveLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.plies))
	for i, san := range c.plies {
		n := i/2 + 1
		out[i] = c.cat.Text(msgcat.KeyMoveEntry, map[string]any{"Number": n, "SAN": san}, strconv.Itoa(n)+". "+san)
	}
	return out
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Mode() Mode { return c.mode }

// GameID is empty until game_start.
func (c *Controller) GameID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

func (c *Controller) Color() rules.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.color
}

// FEN is the local oracle position.
func (c *Controller) FEN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oracle.CurrentPosition()
}

func (c *Controller) LegalMoves() []rules.Move {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oracle.LegalMoves()
}

// recordLocked must be called with mu held.
func (c *Controller) recordLocked(res rules.MoveResult) {
	c.plies = append(c.plies, res.SAN)
	c.banner = ""
	if c.oracle.TerminalStatus().Over() {
		c.state = StateEnded
	}
}

func (c *Controller) scheduleBot(epoch int) {
	if c.botDelay <= 0 {
		c.botMove(epoch)
		return
	}
	c.mu.Lock()
	c.stopBotLocked()
	c.botTimer = time.AfterFunc(c.botDelay, func() { c.botMove(epoch) })
	c.mu.Unlock()
}

func (c *Controller) botMove(epoch int) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != StatePlaying || c.oracle.SideToMove() == c.color {
		c.mu.Unlock()
		return
	}
	legal := c.oracle.LegalMoves()
	if len(legal) == 0 {
		c.mu.Unlock()
		return
	}
	mv := legal[c.intn(len(legal))]
	res, err := c.oracle.AttemptMove(mv.From, mv.To, mv.Promotion)
	if err != nil {
		c.mu.Unlock()
		obslog.L().Warn("player_bot_move_failed", zap.String("move", mv.UCI()), zap.Error(err))
		return
	}
	c.recordLocked(res)
	c.mu.Unlock()
	obslog.L().Debug("player_bot_move", zap.String("move", mv.UCI()), zap.String("san", res.SAN))
	c.changed()
}

func (c *Controller) stopBotLocked() {
	if c.botTimer != nil {
		c.botTimer.Stop()
		c.botTimer = nil
	}
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
