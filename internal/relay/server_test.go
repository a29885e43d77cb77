package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-duel/internal/pvp"
	"github.com/park285/chess-duel/internal/render"
	"github.com/park285/chess-duel/pkg/wire"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(pvp.NewManager(), render.New(16), Options{SendBuffer: 8})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Close(ctx)
	})
	return srv, hs
}

func dial(t *testing.T, hs *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + path
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil { t.Fatalf("dial %s: %v", path, err) }
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, payload any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, wire.MustEnvelope(event, payload)); err != nil { t.Fatalf("write %s: %v", event, err) }
}

func recv(t *testing.T, c *websocket.Conn) wire.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var env wire.Envelope
	if err := wsjson.Read(ctx, c, &env); err != nil { t.Fatalf("read: %v", err) }
	return env
}

func recvMove(t *testing.T, c *websocket.Conn) wire.Move {
	t.Helper()
	env := recv(t, c)
	var om wire.OpponentMove
	if err := env.Decode(&om); err != nil || env.Event != wire.EventOpponentMove {
		t.Fatalf("got %+v (%v), want opponent_move", env, err)
	}
	return om.Move
}

func TestRelay_EndToEnd(t *testing.T) {
	srv, hs := newTestServer(t)
	a := dial(t, hs, "/ws")
	b := dial(t, hs, "/socket")

	send(t, a, wire.EventFindGame, nil)
	if env := recv(t, a); env.Event != wire.EventWaiting { t.Fatalf("A got %q, want waiting", env.Event) }

	send(t, b, wire.EventFindGame, nil)
	var startA, startB wire.GameStart
	if err := recv(t, a).Decode(&startA); err != nil { t.Fatal(err) }
	if err := recv(t, b).Decode(&startB); err != nil { t.Fatal(err) }
	if startA.Color != wire.ColorWhite || startB.Color != wire.ColorBlack || startA.GameID != startB.GameID {
		t.Fatalf("bad pairing: A=%+v B=%+v", startA, startB)
	}

	mv := wire.Move{From: "e2", To: "e4", Promotion: "q"}
	send(t, a, wire.EventMakeMove, wire.MakeMove{GameID: startA.GameID, Move: mv})
	if got := recvMove(t, b); got != mv { t.Fatalf("B got %+v, want %+v", got, mv) }

	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	send(t, a, wire.EventUpdateGame, wire.UpdateGame{GameID: startA.GameID, FEN: fen})
	// garbage is ignored and the socket stays usable
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil { t.Fatalf("write garbage: %v", err) }
	cancel()
	send(t, a, "resign", nil)

	// A's first frame since game_start is B's reply: its own move, the update and the
	// garbage produced nothing on A's side
	reply := wire.Move{From: "e7", To: "e5"}
	send(t, b, wire.EventMakeMove, wire.MakeMove{GameID: startB.GameID, Move: reply})
	if got := recvMove(t, a); got != reply { t.Fatalf("A got %+v, want %+v", got, reply) }

	next := wire.Move{From: "g1", To: "f3", Promotion: "q"}
	send(t, a, wire.EventMakeMove, wire.MakeMove{GameID: startA.GameID, Move: next})
	if got := recvMove(t, b); got != next { t.Fatalf("B got %+v, want %+v", got, next) }

	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, ok := srv.mgr.Session(startA.GameID); ok && s.FEN == fen { break }
		if time.Now().After(deadline) { t.Fatalf("fen never stored") }
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(hs.URL + "/games/" + startA.GameID + "/board.png?orientation=black")
	if err != nil { t.Fatalf("board: %v", err) }
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("board status=%d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if err := a.Close(websocket.StatusNormalClosure, "bye"); err != nil { t.Fatalf("close A: %v", err) }
	if env := recv(t, b); env.Event != wire.EventOpponentDisconnected { t.Fatalf("B got %q", env.Event) }

	deadline = time.Now().Add(2 * time.Second)
	for srv.mgr.Stats().Sessions != 0 || srv.Connections() != 1 {
		if time.Now().After(deadline) { t.Fatalf("stats never settled: %+v conns=%d", srv.mgr.Stats(), srv.Connections()) }
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRelay_HTTPEndpoints(t *testing.T) {
	_, hs := newTestServer(t)

	get := func(path string) (int, []byte) {
		resp, err := http.Get(hs.URL + path)
		if err != nil { t.Fatalf("GET %s: %v", path, err) }
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, body
	}

	code, body := get("/api/socket")
	var info wire.SocketInfo
	if err := json.Unmarshal(body, &info); err != nil || code != 200 || info.Status != "active" || info.Message != "Socket endpoint - use WebSocket connection" {
		t.Fatalf("/api/socket: %d %s", code, body)
	}
	if code, body := get("/healthz"); code != 200 || !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("/healthz: %d %s", code, body)
	}
	code, body = get("/stats")
	var st wire.Stats
	if err := json.Unmarshal(body, &st); err != nil || code != 200 || st != (wire.Stats{}) {
		t.Fatalf("/stats: %d %s", code, body)
	}
	if code, _ := get("/games/game_404/board.png"); code != http.StatusNotFound {
		t.Fatalf("unknown board: %d", code)
	}
}

func TestRelay_BoardRejectsGarbageFEN(t *testing.T) {
	srv, hs := newTestServer(t)
	ctx := context.Background()
	srv.mgr.FindGame(ctx, "x")
	out := srv.mgr.FindGame(ctx, "y")
	var gs wire.GameStart
	if err := out[0].Envelope.Decode(&gs); err != nil { t.Fatal(err) }
	srv.mgr.UpdateGame(ctx, "x", gs.GameID, "definitely not fen")

	resp, err := http.Get(hs.URL + "/games/" + gs.GameID + "/board.png")
	if err != nil { t.Fatalf("GET: %v", err) }
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity { t.Fatalf("status = %d", resp.StatusCode) }
}

func TestConnEnqueue_SlowConsumerCloses(t *testing.T) {
	c := newConn("slow", nil, 2)
	for i := 0; i < 2; i++ {
		if err := c.enqueue([]byte(`{}`)); err != nil { t.Fatalf("enqueue %d: %v", i, err) }
	}
	if err := c.enqueue([]byte(`{}`)); !errors.Is(err, errSlowConsumer) { t.Fatalf("expected errSlowConsumer, got %v", err) }
	select {
	case <-c.done:
	default:
		t.Fatalf("slow consumer not closed")
	}
	if err := c.enqueue([]byte(`{}`)); !errors.Is(err, net.ErrClosed) { t.Fatalf("expected net.ErrClosed, got %v", err) }
}

func TestRelay_RefusesSocketsAfterClose(t *testing.T) {
	srv, hs := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Close(ctx); err != nil { t.Fatalf("Close: %v", err) }

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	c, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		_ = c.Close(websocket.StatusNormalClosure, "")
		t.Fatalf("dial succeeded after Close")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial response = %+v, err = %v", resp, err)
	}
	if srv.register(newConn("late", nil, 1)) { t.Fatalf("register accepted a connection after Close") }
	if srv.Connections() != 0 { t.Fatalf("connections = %d", srv.Connections()) }
}
