package location

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldwatch/internal/geo"
	"fieldwatch/pkg/platform/sentinel"
)

func TestMemoryLatest(t *testing.T) {
	ctx := context.Background()
	agentID := uuid.New()
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	current := now
	m := NewMemory(2 * time.Minute).WithNow(func() time.Time { return current })

	t.Run("unknown agent is not found", func(t *testing.T) {
		_, err := m.Latest(ctx, agentID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		report := Report{
			AgentID:    agentID,
			Coordinate: geo.Coordinate{Latitude: 5.396534, Longitude: -3.981554},
			RecordedAt: now,
		}
		require.NoError(t, m.SetLatest(ctx, report))

		got, err := m.Latest(ctx, agentID)
		require.NoError(t, err)
		assert.Equal(t, report, got)
	})

	t.Run("report expires after the ttl", func(t *testing.T) {
		current = now.Add(3 * time.Minute)
		_, err := m.Latest(ctx, agentID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("invalid coordinate is rejected", func(t *testing.T) {
		err := m.SetLatest(ctx, Report{
			AgentID:    agentID,
			Coordinate: geo.Coordinate{Latitude: 91, Longitude: 0},
		})
		require.Error(t, err)
	})
}

func TestMemoryLatestBatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	known := uuid.New()
	unknown := uuid.New()
	require.NoError(t, m.SetLatest(ctx, Report{
		AgentID:    known,
		Coordinate: geo.Coordinate{Latitude: 5.39, Longitude: -3.98},
		RecordedAt: time.Now(),
	}))

	batch, err := m.LatestBatch(ctx, []uuid.UUID{known, unknown})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	_, ok := batch[unknown]
	assert.False(t, ok)
}
