package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// Memory is an in-process cache.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rows   []ir.Datum
	stored time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory(opts Options) *Memory {
	return &Memory{opts: opts, entries: map[string]memoryEntry{}, now: time.Now}
}

// Get returns the rows stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]ir.Datum, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if life := m.opts.lifetime(); life > 0 && m.now().Sub(e.stored) > life {
		delete(m.entries, key)
		return nil, false, nil
	}
	return cloneRows(e.rows), true, nil
}

// Put stores rows under key, evicting the oldest entries past the
// retention floor when the cache is full.
func (m *Memory) Put(_ context.Context, key string, rows []ir.Datum) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.entries[key] = memoryEntry{rows: cloneRows(rows), stored: now}
	m.evict(now)
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) evict(now time.Time) {
	excess := len(m.entries) - m.opts.MaxEntries
	if m.opts.MaxEntries <= 0 || excess <= 0 {
		return
	}
	type aged struct {
		key    string
		stored time.Time
	}
	var candidates []aged
	for k, e := range m.entries {
		if now.Sub(e.stored) >= m.opts.MinRetention {
			candidates = append(candidates, aged{k, e.stored})
		}
	}
	slices.SortFunc(candidates, func(a, b aged) int { return a.stored.Compare(b.stored) })
	for _, c := range candidates[:min(excess, len(candidates))] {
		delete(m.entries, c.key)
	}
}

func cloneRows(rows []ir.Datum) []ir.Datum {
	out := make([]ir.Datum, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
