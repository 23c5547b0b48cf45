// Package baseline persists the local addition set that seeds every
// synchronization pass.
package baseline

import (
	"context"
	"sync"

	"registry-federation/internal/addition"
)

// Namespace is the fixed key the baseline is stored under.
const Namespace = "git_updater_additions"

// Store reads and writes the baseline addition list.
type Store interface {
	Load(ctx context.Context) ([]addition.Record, error)
	Save(ctx context.Context, records []addition.Record) error
}

// Memory keeps the baseline in process memory.
type Memory struct {
	mu      sync.RWMutex
	records []addition.Record
}

func NewMemory(initial ...addition.Record) *Memory {
	return &Memory{records: cloneRecords(initial)}
}

func (m *Memory) Load(_ context.Context) ([]addition.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneRecords(m.records), nil
}

func (m *Memory) Save(_ context.Context, records []addition.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = cloneRecords(records)
	return nil
}

func cloneRecords(in []addition.Record) []addition.Record {
	out := make([]addition.Record, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		c := make(addition.Record, len(r))
		for k, v := range r {
			c[k] = v
		}
		out = append(out, c)
	}
	return out
}
