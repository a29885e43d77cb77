package sessionmirror

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "sort"
    "strconv"
    "strings"
    "time"

    "github.com/park285/chess-duel/internal/obslog"
    "github.com/park285/chess-duel/internal/pvp"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

const (
    keyIndex   = "chess:sessions"
    keyPrefix  = "chess:session:"
    opTimeout  = 2 * time.Second
    defaultTTL = 24 * time.Hour
)

var ErrNoRedisURL = errors.New("sessionmirror: redis url is empty")

// Snapshot is the JSON stored under chess:session:<gameId>.
type Snapshot struct {
    GameID    string    `json:"game_id"`
    WhiteID   string    `json:"white_id"`
    BlackID   string    `json:"black_id"`
    FEN       string    `json:"fen"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// Mirror copies live sessions into Redis for operators. It is write-only from the
// server's side: nothing is ever read back for pairing or recovery.
type Mirror struct {
    rdb *redis.Client
    ttl time.Duration
}

var _ pvp.Observer = (*Mirror)(nil)

func New(rdb *redis.Client, ttl time.Duration) *Mirror {
    if ttl <= 0 { ttl = defaultTTL }
    return &Mirror{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL and pings it.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Mirror, error) {
    if strings.TrimSpace(redisURL) == "" { return nil, ErrNoRedisURL }
    opts, err := parseRedisURL(redisURL)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return New(rdb, ttl), nil
}

func (m *Mirror) Close() error {
    if m == nil || m.rdb == nil { return nil }
    return m.rdb.Close()
}

func keySession(id string) string { return keyPrefix + strings.TrimSpace(id) }

func (m *Mirror) SessionStarted(ctx context.Context, s pvp.Session) {
    if err := m.save(ctx, s); err != nil {
        obslog.L().Warn("mirror_save_failed", zap.String("game_id", s.ID), zap.String("phase", "start"), zap.Error(err))
    }
}

func (m *Mirror) PositionUpdated(ctx context.Context, s pvp.Session) {
    if err := m.save(ctx, s); err != nil {
        obslog.L().Warn("mirror_save_failed", zap.String("game_id", s.ID), zap.String("phase", "update"), zap.Error(err))
    }
}

func (m *Mirror) SessionEnded(ctx context.Context, s pvp.Session, reason pvp.EndReason, _ string) {
    ctx, cancel := context.WithTimeout(ctx, opTimeout)
    defer cancel()
    pipe := m.rdb.TxPipeline()
    pipe.Del(ctx, keySession(s.ID))
    pipe.SRem(ctx, keyIndex, s.ID)
    if _, err := pipe.Exec(ctx); err != nil {
        obslog.L().Warn("mirror_delete_failed", zap.String("game_id", s.ID), zap.String("reason", string(reason)), zap.Error(err))
    }
}

func (m *Mirror) save(ctx context.Context, s pvp.Session) error {
    raw, err := json.Marshal(Snapshot{
        GameID: s.ID, WhiteID: s.WhiteID, BlackID: s.BlackID, FEN: s.FEN,
        CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
    })
    if err != nil { return err }
    ctx, cancel := context.WithTimeout(ctx, opTimeout)
    defer cancel()
    pipe := m.rdb.TxPipeline()
    pipe.Set(ctx, keySession(s.ID), raw, m.ttl)
    pipe.SAdd(ctx, keyIndex, s.ID)
    pipe.Expire(ctx, keyIndex, m.ttl)
    _, err = pipe.Exec(ctx)
    return err
}

// Get returns nil, nil when the session is not mirrored.
func (m *Mirror) Get(ctx context.Context, gameID string) (*Snapshot, error) {
    raw, err := m.rdb.Get(ctx, keySession(gameID)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var s Snapshot
    if err := json.Unmarshal(raw, &s); err != nil { return nil, err }
    return &s, nil
}

// List returns every mirrored session, newest first. Index members whose snapshot
// expired are pruned on the way.
func (m *Mirror) List(ctx context.Context) ([]Snapshot, error) {
    ids, err := m.rdb.SMembers(ctx, keyIndex).Result()
    if err != nil { return nil, err }
    out := make([]Snapshot, 0, len(ids))
    var stale []any
    for _, id := range ids {
        s, err := m.Get(ctx, id)
        if err != nil { return nil, err }
        if s == nil {
            stale = append(stale, id)
            continue
        }
        out = append(out, *s)
    }
    if len(stale) > 0 {
        _ = m.rdb.SRem(ctx, keyIndex, stale...).Err()
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
    return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(raw)
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" { if n, err := strconv.Atoi(p); err == nil { db = n } }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
