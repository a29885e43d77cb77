package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-duel/internal/obslog"
	"github.com/park285/chess-duel/internal/pvp"
	"github.com/park285/chess-duel/internal/render"
	"github.com/park285/chess-duel/internal/rules"
	"github.com/park285/chess-duel/pkg/wire"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Options struct {
	WSPath         string
	AllowedOrigins []string
	ReadLimit      int64
	SendBuffer     int
}

// Server is the websocket transport in front of a pvp.Manager. It owns connection
// bookkeeping only; all pairing and relay decisions come from the manager.
type Server struct {
	mgr      *pvp.Manager
	renderer *render.Renderer
	opts     Options

	mu      sync.RWMutex
	conns   map[string]*Conn
	closing bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(mgr *pvp.Manager, renderer *render.Renderer, opts Options) *Server {
	if strings.TrimSpace(opts.WSPath) == "" {
		opts.WSPath = "/ws"
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4096
	}
	if renderer == nil {
		renderer = render.New(64)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		mgr:      mgr,
		renderer: renderer,
		opts:     opts,
		conns:    make(map[string]*Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler wires every endpoint onto a fresh mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.WSPath, s.handleWS)
	if s.opts.WSPath != "/socket" {
		mux.HandleFunc("/socket", s.handleWS)
	}
	mux.HandleFunc("GET /api/socket", s.handleSocketInfo)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /games/{id}/board.png", s.handleBoard)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closing := s.closing
	s.mu.RUnlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.opts.AllowedOrigins,
		InsecureSkipVerify: len(s.opts.AllowedOrigins) == 0,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("relay_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	c := newConn(uuid.NewString(), ws, s.opts.SendBuffer)
	if !s.register(c) {
		c.close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	defer s.wg.Done()

	go c.writePump(s.ctx)
	s.readLoop(c)

	c.close(websocket.StatusNormalClosure, "")
	s.unregister(c)
	// teardown must still reach observers while the server is shutting down
	s.deliver(s.mgr.Disconnect(context.WithoutCancel(s.ctx), c.id))
}

func (s *Server) readLoop(c *Conn) {
	for {
		typ, data, err := c.ws.Read(s.ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				obslog.L().Debug("relay_closed", zap.String("conn_id", c.id), zap.Int("status", int(status)))
			case errors.Is(err, context.Canceled):
			default:
				obslog.L().Debug("relay_read_failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			obslog.L().Debug("relay_frame_ignored", zap.String("conn_id", c.id), zap.String("reason", "binary"))
			continue
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			obslog.L().Debug("relay_frame_ignored", zap.String("conn_id", c.id), zap.String("reason", "malformed"), zap.Error(err))
			continue
		}
		s.dispatch(c, env)
	}
}

func (s *Server) dispatch(c *Conn, env wire.Envelope) {
	ctx := s.ctx
	switch env.Event {
	case wire.EventFindGame:
		s.deliver(s.mgr.FindGame(ctx, c.id))
	case wire.EventMakeMove:
		var mm wire.MakeMove
		if err := env.Decode(&mm); err != nil {
			obslog.L().Debug("relay_frame_ignored", zap.String("conn_id", c.id), zap.String("event", env.Event), zap.String("reason", "bad_payload"), zap.Error(err))
			return
		}
		s.deliver(s.mgr.MakeMove(ctx, c.id, mm.GameID, mm.Move))
	case wire.EventUpdateGame:
		var ug wire.UpdateGame
		if err := env.Decode(&ug); err != nil {
			obslog.L().Debug("relay_frame_ignored", zap.String("conn_id", c.id), zap.String("event", env.Event), zap.String("reason", "bad_payload"), zap.Error(err))
			return
		}
		s.mgr.UpdateGame(ctx, c.id, ug.GameID, ug.FEN)
	default:
		obslog.L().Debug("relay_frame_ignored", zap.String("conn_id", c.id), zap.String("event", env.Event), zap.String("reason", "unknown_event"))
	}
}

// deliver writes frames after the manager lock has been released. Recipients that
// are already gone are skipped.
func (s *Server) deliver(out []pvp.Delivery) {
	for _, d := range out {
		s.mu.RLock()
		c, ok := s.conns[d.To]
		s.mu.RUnlock()
		if !ok {
			obslog.L().Debug("relay_delivery_dropped", zap.String("to", d.To), zap.String("event", d.Envelope.Event), zap.String("reason", "gone"))
			continue
		}
		frame, err := json.Marshal(d.Envelope)
		if err != nil {
			obslog.L().Error("relay_encode_failed", zap.String("event", d.Envelope.Event), zap.Error(err))
			continue
		}
		_ = c.enqueue(frame)
	}
}

// register tracks c and adds it to wg. Both happen under mu so no Add can follow
// the Wait in Close.
func (s *Server) register(c *Conn) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		obslog.L().Debug("relay_connect_refused", zap.String("conn_id", c.id), zap.String("reason", "closing"))
		return false
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	n := len(s.conns)
	s.mu.Unlock()
	obslog.L().Info("relay_connect", zap.String("conn_id", c.id), zap.Int("connections", n))
	return true
}

func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	n := len(s.conns)
	s.mu.Unlock()
	obslog.L().Info("relay_disconnect", zap.String("conn_id", c.id), zap.Int("connections", n))
}

// Connections is the number of live sockets.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close refuses new sockets, drops every live one and waits for their disconnect
// handling, bounded by ctx. http.Server.Shutdown does not track hijacked
// connections, so call this after it.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close(websocket.StatusGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Server) handleSocketInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, wire.SocketInfo{Message: "Socket endpoint - use WebSocket connection", Status: "active"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.mgr.Stats()
	writeJSON(w, http.StatusOK, wire.Stats{Waiting: st.Waiting, Sessions: st.Sessions, Connections: s.Connections()})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.mgr.Session(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
		return
	}
	opts := render.Options{Caption: sess.ID}
	if c, ok := rules.ParseColor(r.URL.Query().Get("orientation")); ok {
		opts.Orientation = c
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	png, err := s.renderer.RenderFEN(ctx, sess.FEN, opts)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidFEN) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "stored position is not a valid FEN"})
			return
		}
		obslog.L().Error("relay_board_render_failed", zap.String("game_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
