package location

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldwatch/pkg/platform/sentinel"
)

// Memory is an in-memory Store with per-entry expiry. It doubles as the
// monitor test fake.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uuid.UUID]memoryEntry
	nowFn   func() time.Time
}

type memoryEntry struct {
	report    Report
	expiresAt time.Time
}

// NewMemory builds an in-memory store. Reports older than ttl read as
// absent; a zero ttl disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[uuid.UUID]memoryEntry),
		nowFn:   time.Now,
	}
}

// WithNow overrides the clock. Test hook.
func (m *Memory) WithNow(nowFn func() time.Time) *Memory {
	m.nowFn = nowFn
	return m
}

func (m *Memory) SetLatest(_ context.Context, report Report) error {
	if err := report.Coordinate.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{report: report}
	if m.ttl > 0 {
		entry.expiresAt = m.nowFn().Add(m.ttl)
	}
	m.entries[report.AgentID] = entry
	return nil
}

func (m *Memory) Latest(_ context.Context, agentID uuid.UUID) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[agentID]
	if !ok || m.expired(entry) {
		return Report{}, sentinel.ErrNotFound
	}
	return entry.report, nil
}

func (m *Memory) LatestBatch(_ context.Context, agentIDs []uuid.UUID) (map[uuid.UUID]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]Report, len(agentIDs))
	for _, id := range agentIDs {
		if entry, ok := m.entries[id]; ok && !m.expired(entry) {
			out[id] = entry.report
		}
	}
	return out, nil
}

func (m *Memory) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && m.nowFn().After(entry.expiresAt)
}

var _ Store = (*Memory)(nil)
