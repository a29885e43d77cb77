package sessionmirror

import (
    "context"
    "fmt"
    "sync"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/park285/chess-duel/internal/pvp"
    "github.com/park285/chess-duel/pkg/wire"
)

func newTestMirror(t *testing.T) (*Mirror, *miniredis.Miniredis) {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(func() { mr.Close() })
    m, err := Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
    if err != nil { t.Fatalf("Open: %v", err) }
    t.Cleanup(func() { _ = m.Close() })
    return m, mr
}

func TestMirrorFollowsManagerLifecycle(t *testing.T) {
    m, mr := newTestMirror(t)
    ctx := context.Background()
    mgr := pvp.NewManager(pvp.WithObserver(m))

    mgr.FindGame(ctx, "A")
    out := mgr.FindGame(ctx, "B")
    var gs wire.GameStart
    if err := out[0].Envelope.Decode(&gs); err != nil { t.Fatal(err) }

    snap, err := m.Get(ctx, gs.GameID)
    if err != nil || snap == nil { t.Fatalf("Get after start: %+v %v", snap, err) }
    if snap.WhiteID != "A" || snap.BlackID != "B" || snap.FEN != wire.StartFEN { t.Fatalf("snapshot = %+v", snap) }
    if ttl := mr.TTL(keySession(gs.GameID)); ttl != time.Hour { t.Fatalf("ttl = %v", ttl) }

    mgr.UpdateGame(ctx, "A", gs.GameID, "fen-after-e4")
    snap, _ = m.Get(ctx, gs.GameID)
    if snap == nil || snap.FEN != "fen-after-e4" { t.Fatalf("update not mirrored: %+v", snap) }

    list, err := m.List(ctx)
    if err != nil || len(list) != 1 { t.Fatalf("List = %+v %v", list, err) }

    mgr.Disconnect(ctx, "B")
    if snap, _ := m.Get(ctx, gs.GameID); snap != nil { t.Fatalf("snapshot survived end: %+v", snap) }
    if ok, _ := mr.SIsMember(keyIndex, gs.GameID); ok { t.Fatalf("index still lists %s", gs.GameID) }
}

func TestListPrunesExpired(t *testing.T) {
    m, mr := newTestMirror(t)
    ctx := context.Background()
    now := time.Now()
    m.SessionStarted(ctx, pvp.Session{ID: "game_1", WhiteID: "a", BlackID: "b", CreatedAt: now})
    m.SessionStarted(ctx, pvp.Session{ID: "game_2", WhiteID: "c", BlackID: "d", CreatedAt: now.Add(time.Second)})
    mr.Del(keySession("game_1"))

    list, err := m.List(ctx)
    if err != nil { t.Fatalf("List: %v", err) }
    if len(list) != 1 || list[0].GameID != "game_2" { t.Fatalf("List = %+v", list) }
    if ok, _ := mr.SIsMember(keyIndex, "game_1"); ok { t.Fatalf("stale member not pruned") }
}

func TestOpenRejectsBadURL(t *testing.T) {
    ctx := context.Background()
    if _, err := Open(ctx, "", time.Minute); err != ErrNoRedisURL { t.Fatalf("empty url: %v", err) }
    if _, err := Open(ctx, "http://localhost:6379", time.Minute); err == nil { t.Fatalf("expected scheme error") }
}

type holdUpdates struct {
    once    sync.Once
    entered chan struct{}
    release chan struct{}
}

func (h *holdUpdates) SessionStarted(context.Context, pvp.Session) {}
func (h *holdUpdates) PositionUpdated(context.Context, pvp.Session) {
    h.once.Do(func() { close(h.entered) })
    <-h.release
}
func (h *holdUpdates) SessionEnded(context.Context, pvp.Session, pvp.EndReason, string) {}

func TestMirrorDropsSessionWhenUpdateRacesDisconnect(t *testing.T) {
    m, mr := newTestMirror(t)
    ctx := context.Background()
    hold := &holdUpdates{entered: make(chan struct{}), release: make(chan struct{})}
    mgr := pvp.NewManager(pvp.WithObserver(hold), pvp.WithObserver(m))

    mgr.FindGame(ctx, "A")
    var gs wire.GameStart
    if err := mgr.FindGame(ctx, "B")[0].Envelope.Decode(&gs); err != nil { t.Fatal(err) }

    var wg sync.WaitGroup
    wg.Add(2)
    go func() { defer wg.Done(); mgr.UpdateGame(ctx, "A", gs.GameID, "x") }()
    <-hold.entered
    go func() { defer wg.Done(); mgr.Disconnect(ctx, "B") }()
    for deadline := time.Now().Add(2 * time.Second); ; {
        if _, ok := mgr.Session(gs.GameID); !ok { break }
        if time.Now().After(deadline) { t.Fatalf("session never torn down") }
        time.Sleep(5 * time.Millisecond)
    }
    close(hold.release)
    wg.Wait()

    if snap, err := m.Get(ctx, gs.GameID); err != nil || snap != nil { t.Fatalf("ended game still mirrored: %+v %v", snap, err) }
    if list, _ := m.List(ctx); len(list) != 0 { t.Fatalf("List = %+v", list) }
    if ok, _ := mr.SIsMember(keyIndex, gs.GameID); ok { t.Fatalf("index still lists %s", gs.GameID) }
}
