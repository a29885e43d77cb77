package archive

import (
    "context"
    "sort"
    "sync"
)

// memrepo keeps records for the life of the process; used when no database is configured.
type memrepo struct {
    mu      sync.RWMutex
    records map[string]*Record
}

func NewMemoryRepository() Repository {
    return &memrepo{records: make(map[string]*Record)}
}

func (m *memrepo) Save(_ context.Context, rec *Record) error {
    if err := validate(rec); err != nil { return err }
    cp := *rec
    m.mu.Lock()
    m.records[rec.GameID] = &cp
    m.mu.Unlock()
    return nil
}

func (m *memrepo) Recent(_ context.Context, limit int) ([]*Record, error) {
    m.mu.RLock()
    items := make([]*Record, 0, len(m.records))
    for _, r := range m.records {
        cp := *r
        items = append(items, &cp)
    }
    m.mu.RUnlock()

    sort.Slice(items, func(i, j int) bool {
        if !items[i].EndedAt.Equal(items[j].EndedAt) {
            return items[i].EndedAt.After(items[j].EndedAt)
        }
        return items[i].GameID > items[j].GameID
    })
    if limit > 0 && len(items) > limit {
        items = items[:limit]
    }
    return items, nil
}

func (m *memrepo) Get(_ context.Context, gameID string) (*Record, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    r, ok := m.records[gameID]
    if !ok { return nil, ErrNotFound }
    cp := *r
    return &cp, nil
}

func (m *memrepo) Close() error { return nil }
