package pvp

import (
    "context"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/park285/chess-duel/pkg/wire"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
    t.Helper()
    var n int
    clock := func() time.Time {
        n++
        return time.UnixMilli(int64(1_700_000_000_000 + n))
    }
    return NewManager(append([]Option{WithClock(clock)}, opts...)...)
}

func startOf(t *testing.T, d Delivery) wire.GameStart {
    t.Helper()
    if d.Envelope.Event != wire.EventGameStart { t.Fatalf("expected game_start, got %q", d.Envelope.Event) }
    var gs wire.GameStart
    if err := d.Envelope.Decode(&gs); err != nil { t.Fatalf("decode game_start: %v", err) }
    return gs
}

func TestFindGame_FIFOPairingAndColors(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()

    out := m.FindGame(ctx, "A")
    if len(out) != 1 || out[0].To != "A" || out[0].Envelope.Event != wire.EventWaiting {
        t.Fatalf("expected waiting for A, got %+v", out)
    }

    out = m.FindGame(ctx, "B")
    if len(out) != 2 { t.Fatalf("expected 2 deliveries, got %d", len(out)) }
    white, black := startOf(t, out[0]), startOf(t, out[1])
    if out[0].To != "A" || white.Color != wire.ColorWhite || white.OpponentID != "B" {
        t.Fatalf("unexpected white start: to=%s %+v", out[0].To, white)
    }
    if out[1].To != "B" || black.Color != wire.ColorBlack || black.OpponentID != "A" {
        t.Fatalf("unexpected black start: to=%s %+v", out[1].To, black)
    }
    if white.GameID != black.GameID { t.Fatalf("gameId mismatch: %q vs %q", white.GameID, black.GameID) }

    s, ok := m.Session(white.GameID)
    if !ok { t.Fatalf("session %q not registered", white.GameID) }
    if s.FEN != wire.StartFEN { t.Fatalf("new session fen = %q", s.FEN) }
    if st := m.Stats(); st.Waiting != 0 || st.Sessions != 1 { t.Fatalf("stats = %+v", st) }

    // C waits, D pairs with C and not with anyone already seated
    m.FindGame(ctx, "C")
    out = m.FindGame(ctx, "D")
    if len(out) != 2 || out[0].To != "C" || out[1].To != "D" { t.Fatalf("expected C/D pairing, got %+v", out) }
}

func TestFindGame_GameIDFormat(t *testing.T) {
    m := NewManager(WithClock(func() time.Time { return time.UnixMilli(1712345678901) }))
    ctx := context.Background()
    m.FindGame(ctx, "A")
    gs := startOf(t, m.FindGame(ctx, "B")[0])
    if gs.GameID != "game_1712345678901" { t.Fatalf("gameId = %q", gs.GameID) }

    // same millisecond: second session must not overwrite the first
    m.FindGame(ctx, "C")
    gs2 := startOf(t, m.FindGame(ctx, "D")[0])
    if gs2.GameID == gs.GameID { t.Fatalf("colliding gameId %q", gs2.GameID) }
    if st := m.Stats(); st.Sessions != 2 { t.Fatalf("expected 2 sessions, got %d", st.Sessions) }
}

func TestFindGame_DuplicateRequests(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()

    m.FindGame(ctx, "A")
    out := m.FindGame(ctx, "A")
    if len(out) != 1 || out[0].Envelope.Event != wire.EventWaiting { t.Fatalf("expected waiting re-sent, got %+v", out) }
    if w := m.Waiting(); len(w) != 1 { t.Fatalf("A queued twice: %v", w) }

    m.FindGame(ctx, "B")
    if out := m.FindGame(ctx, "B"); len(out) != 0 { t.Fatalf("seated connection got %+v", out) }
    if w := m.Waiting(); len(w) != 0 { t.Fatalf("seated connection queued: %v", w) }
}

func TestMakeMove_RelayIsolation(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    m.FindGame(ctx, "A")
    gs := startOf(t, m.FindGame(ctx, "B")[0])
    m.FindGame(ctx, "C")
    other := startOf(t, m.FindGame(ctx, "D")[0])

    mv := wire.Move{From: "e2", To: "e4", Promotion: "q"}
    out := m.MakeMove(ctx, "A", gs.GameID, mv)
    if len(out) != 1 || out[0].To != "B" { t.Fatalf("expected single delivery to B, got %+v", out) }
    var om wire.OpponentMove
    if err := out[0].Envelope.Decode(&om); err != nil { t.Fatalf("decode: %v", err) }
    if out[0].Envelope.Event != wire.EventOpponentMove || om.Move != mv { t.Fatalf("unexpected relay: %s %+v", out[0].Envelope.Event, om) }

    if out := m.MakeMove(ctx, "B", gs.GameID, wire.Move{From: "e7", To: "e5"}); len(out) != 1 || out[0].To != "A" {
        t.Fatalf("expected delivery to A, got %+v", out)
    }
    if out := m.MakeMove(ctx, "C", gs.GameID, mv); len(out) != 0 { t.Fatalf("stranger move relayed: %+v", out) }
    if out := m.MakeMove(ctx, "A", other.GameID, mv); len(out) != 0 { t.Fatalf("cross-game move relayed: %+v", out) }
    if out := m.MakeMove(ctx, "A", "game_missing", mv); len(out) != 0 { t.Fatalf("unknown game relayed: %+v", out) }
}

func TestUpdateGame_TrustsClient(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    m.FindGame(ctx, "A")
    gs := startOf(t, m.FindGame(ctx, "B")[0])

    for _, fen := range []string{
        "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
        "not a fen at all",
    } {
        if !m.UpdateGame(ctx, "A", gs.GameID, fen) { t.Fatalf("UpdateGame rejected %q", fen) }
        s, _ := m.Session(gs.GameID)
        if s.FEN != fen { t.Fatalf("stored fen = %q, want %q", s.FEN, fen) }
    }
    if m.UpdateGame(ctx, "A", "game_missing", "x") { t.Fatalf("unknown game should be a no-op") }
}

func TestDisconnect_Cleanup(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()

    m.FindGame(ctx, "A")
    if out := m.Disconnect(ctx, "A"); len(out) != 0 { t.Fatalf("waiting disconnect delivered %+v", out) }
    if w := m.Waiting(); len(w) != 0 { t.Fatalf("A still waiting: %v", w) }

    m.FindGame(ctx, "A")
    gs := startOf(t, m.FindGame(ctx, "B")[0])
    out := m.Disconnect(ctx, "B")
    if len(out) != 1 || out[0].To != "A" || out[0].Envelope.Event != wire.EventOpponentDisconnected {
        t.Fatalf("expected opponent_disconnected to A, got %+v", out)
    }
    if _, ok := m.Session(gs.GameID); ok { t.Fatalf("session %q survived disconnect", gs.GameID) }
    if out := m.MakeMove(ctx, "A", gs.GameID, wire.Move{From: "e2", To: "e4"}); len(out) != 0 {
        t.Fatalf("relay after teardown: %+v", out)
    }
    if out := m.Disconnect(ctx, "B"); len(out) != 0 { t.Fatalf("second disconnect delivered %+v", out) }

    // A may search again once its session is gone
    if out := m.FindGame(ctx, "A"); len(out) != 1 || out[0].Envelope.Event != wire.EventWaiting {
        t.Fatalf("expected A to wait again, got %+v", out)
    }
}

type recordingObserver struct {
    mu     sync.Mutex
    events []string
}

func (r *recordingObserver) add(s string) { r.mu.Lock(); r.events = append(r.events, s); r.mu.Unlock() }
func (r *recordingObserver) SessionStarted(_ context.Context, s Session) { r.add("start:" + s.ID) }
func (r *recordingObserver) PositionUpdated(_ context.Context, s Session) { r.add("update:" + s.FEN) }
func (r *recordingObserver) SessionEnded(_ context.Context, s Session, reason EndReason, leaver string) {
    r.add(fmt.Sprintf("end:%s:%s", reason, leaver))
}

func TestObserverLifecycle(t *testing.T) {
    obs := &recordingObserver{}
    m := NewManager(
        WithGameIDFunc(func(time.Time) string { return "game_fixed" }),
        WithObserver(obs),
        WithObserver(nil),
    )
    ctx := context.Background()
    m.FindGame(ctx, "A")
    m.FindGame(ctx, "B")
    m.UpdateGame(ctx, "B", "game_fixed", "fen1")
    m.Disconnect(ctx, "A")

    want := []string{"start:game_fixed", "update:fen1", "end:disconnect:A"}
    if len(obs.events) != len(want) { t.Fatalf("events = %v", obs.events) }
    for i := range want {
        if obs.events[i] != want[i] { t.Fatalf("event[%d] = %q, want %q", i, obs.events[i], want[i]) }
    }
}

func TestConcurrentFindGamePairsEveryone(t *testing.T) {
    m := NewManager()
    ctx := context.Background()
    var wg sync.WaitGroup
    for i := 0; i < 50; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            m.FindGame(ctx, fmt.Sprintf("conn-%d", i))
        }(i)
    }
    wg.Wait()
    if st := m.Stats(); st.Waiting != 0 || st.Sessions != 25 { t.Fatalf("stats = %+v", st) }
}

// gateObserver parks the first PositionUpdated until release is closed.
type gateObserver struct {
    once    sync.Once
    entered chan struct{}
    release chan struct{}
}

func (g *gateObserver) SessionStarted(context.Context, Session) {}
func (g *gateObserver) PositionUpdated(context.Context, Session) {
    g.once.Do(func() { close(g.entered) })
    <-g.release
}
func (g *gateObserver) SessionEnded(context.Context, Session, EndReason, string) {}

func TestObserverOrderWithConcurrentDisconnect(t *testing.T) {
    gate := &gateObserver{entered: make(chan struct{}), release: make(chan struct{})}
    obs := &recordingObserver{}
    m := NewManager(WithGameIDFunc(func(time.Time) string { return "game_fixed" }), WithObserver(gate), WithObserver(obs))
    ctx := context.Background()
    m.FindGame(ctx, "A")
    m.FindGame(ctx, "B")

    updated := make(chan struct{})
    go func() {
        defer close(updated)
        m.UpdateGame(ctx, "A", "game_fixed", "x")
    }()
    <-gate.entered

    disconnected := make(chan []Delivery, 1)
    go func() { disconnected <- m.Disconnect(ctx, "B") }()

    deadline := time.Now().Add(2 * time.Second)
    for {
        if _, ok := m.Session("game_fixed"); !ok { break }
        if time.Now().After(deadline) { t.Fatalf("session never torn down") }
        time.Sleep(5 * time.Millisecond)
    }
    time.Sleep(20 * time.Millisecond)
    obs.mu.Lock()
    early := append([]string(nil), obs.events...)
    obs.mu.Unlock()
    if len(early) != 1 { t.Fatalf("end delivered before the pending update: %v", early) }

    close(gate.release)
    <-updated
    var out []Delivery
    select {
    case out = <-disconnected:
    case <-time.After(2 * time.Second):
        t.Fatalf("Disconnect never returned")
    }
    if len(out) != 1 || out[0].To != "A" || out[0].Envelope.Event != wire.EventOpponentDisconnected {
        t.Fatalf("disconnect deliveries = %+v", out)
    }

    want := []string{"start:game_fixed", "update:x", "end:disconnect:B"}
    if len(obs.events) != len(want) { t.Fatalf("events = %v", obs.events) }
    for i := range want {
        if obs.events[i] != want[i] { t.Fatalf("event[%d] = %q, want %q", i, obs.events[i], want[i]) }
    }

    // the id is free again once its callbacks are done
    m.FindGame(ctx, "C")
    if gs := startOf(t, m.FindGame(ctx, "D")[0]); gs.GameID != "game_fixed" { t.Fatalf("gameId = %q", gs.GameID) }
}

func TestDisconnect_TrimsConnID(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    m.FindGame(ctx, " a ")
    if w := m.Waiting(); len(w) != 1 || w[0] != "a" { t.Fatalf("waiting = %q", w) }
    m.Disconnect(ctx, " a ")
    if w := m.Waiting(); len(w) != 0 { t.Fatalf("waiting after disconnect = %q", w) }
}
