package archive

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    _ "github.com/lib/pq"
    _ "modernc.org/sqlite"
)

type dialect int

const (
    dialectPostgres dialect = iota
    dialectSQLite
)

func (d dialect) driver() string {
    if d == dialectSQLite { return "sqlite" }
    return "postgres"
}

const schema = `CREATE TABLE IF NOT EXISTS duel_games (
    game_id     TEXT PRIMARY KEY,
    white_id    TEXT NOT NULL,
    black_id    TEXT NOT NULL,
    last_fen    TEXT NOT NULL,
    end_reason  TEXT NOT NULL,
    leaver_id   TEXT NOT NULL DEFAULT '',
    started_ms  BIGINT NOT NULL,
    ended_ms    BIGINT NOT NULL,
    duration_ms BIGINT NOT NULL
)`

type sqlrepo struct {
    db      *sql.DB
    dialect dialect
}

// Open picks a backend from databaseURL: empty for memory, postgres:// or
// postgresql:// for lib/pq, sqlite: or file: for modernc sqlite.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
    raw := strings.TrimSpace(databaseURL)
    switch {
    case raw == "":
        return NewMemoryRepository(), nil
    case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
        return openSQL(ctx, dialectPostgres, raw)
    case strings.HasPrefix(raw, "sqlite:"):
        return openSQL(ctx, dialectSQLite, strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite:"), "//"))
    case strings.HasPrefix(raw, "file:"):
        return openSQL(ctx, dialectSQLite, raw)
    default:
        return nil, fmt.Errorf("archive: unsupported database url scheme in %q", redact(raw))
    }
}

func openSQL(ctx context.Context, d dialect, dsn string) (Repository, error) {
    db, err := sql.Open(d.driver(), dsn)
    if err != nil { return nil, err }
    if d == dialectSQLite {
        // one writer; also keeps a :memory: database alive across queries
        db.SetMaxOpenConns(1)
    } else {
        db.SetMaxOpenConns(16)
        db.SetMaxIdleConns(8)
        db.SetConnMaxLifetime(30 * time.Minute)
    }
    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := db.PingContext(pingCtx); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("archive ping: %w", err)
    }
    if _, err := db.ExecContext(pingCtx, schema); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("archive schema: %w", err)
    }
    return &sqlrepo{db: db, dialect: d}, nil
}

func (r *sqlrepo) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

func (r *sqlrepo) Save(ctx context.Context, rec *Record) error {
    if err := validate(rec); err != nil { return err }
    q := r.rebind(`INSERT INTO duel_games (
        game_id, white_id, black_id, last_fen, end_reason, leaver_id,
        started_ms, ended_ms, duration_ms
      ) VALUES (?,?,?,?,?,?,?,?,?)
      ON CONFLICT (game_id) DO UPDATE SET
        white_id=EXCLUDED.white_id,
        black_id=EXCLUDED.black_id,
        last_fen=EXCLUDED.last_fen,
        end_reason=EXCLUDED.end_reason,
        leaver_id=EXCLUDED.leaver_id,
        started_ms=EXCLUDED.started_ms,
        ended_ms=EXCLUDED.ended_ms,
        duration_ms=EXCLUDED.duration_ms`)
    _, err := r.db.ExecContext(ctx, q,
        rec.GameID, rec.WhiteID, rec.BlackID, rec.LastFEN, rec.EndReason, rec.LeaverID,
        rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(), rec.Duration().Milliseconds(),
    )
    if err != nil { return fmt.Errorf("archive save %s: %w", rec.GameID, err) }
    return nil
}

const selectCols = `game_id, white_id, black_id, last_fen, end_reason, leaver_id, started_ms, ended_ms`

func (r *sqlrepo) Recent(ctx context.Context, limit int) ([]*Record, error) {
    q := `SELECT ` + selectCols + ` FROM duel_games ORDER BY ended_ms DESC, game_id DESC`
    var args []any
    if limit > 0 {
        q += ` LIMIT ?`
        args = append(args, limit)
    }
    rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]*Record, 0)
    for rows.Next() {
        rec, err := scanRecord(rows)
        if err != nil { return nil, err }
        out = append(out, rec)
    }
    return out, rows.Err()
}

func (r *sqlrepo) Get(ctx context.Context, gameID string) (*Record, error) {
    row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+selectCols+` FROM duel_games WHERE game_id = ?`), gameID)
    rec, err := scanRecord(row)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    return rec, err
}

type scanner interface{ Scan(dest ...any) error }

func scanRecord(s scanner) (*Record, error) {
    var rec Record
    var startedMs, endedMs int64
    if err := s.Scan(&rec.GameID, &rec.WhiteID, &rec.BlackID, &rec.LastFEN, &rec.EndReason, &rec.LeaverID, &startedMs, &endedMs); err != nil {
        return nil, err
    }
    rec.StartedAt = time.UnixMilli(startedMs)
    rec.EndedAt = time.UnixMilli(endedMs)
    return &rec, nil
}

// rebind turns ? placeholders into $n for postgres.
func (r *sqlrepo) rebind(q string) string {
    if r.dialect != dialectPostgres { return q }
    var b strings.Builder
    n := 0
    for _, ch := range q {
        if ch == '?' {
            n++
            b.WriteString("$" + strconv.Itoa(n))
            continue
        }
        b.WriteRune(ch)
    }
    return b.String()
}

func redact(raw string) string {
    if i := strings.Index(raw, "@"); i >= 0 {
        if j := strings.Index(raw, "://"); j >= 0 && j < i {
            return raw[:j+3] + "***" + raw[i:]
        }
    }
    return raw
}
