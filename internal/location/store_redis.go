package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fieldwatch/pkg/platform/sentinel"
)

const latestKeyPrefix = "loc:agent:"

// Redis is the production Store: latest position per agent under a TTL'd
// key, shared across instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds a Redis-backed store. The client lifecycle is managed by
// the caller.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func latestKey(agentID uuid.UUID) string {
	return latestKeyPrefix + agentID.String()
}

func (r *Redis) SetLatest(ctx context.Context, report Report) error {
	if err := report.Coordinate.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal location report: %w", err)
	}
	return r.client.Set(ctx, latestKey(report.AgentID), payload, r.ttl).Err()
}

func (r *Redis) Latest(ctx context.Context, agentID uuid.UUID) (Report, error) {
	raw, err := r.client.Get(ctx, latestKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("get location report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, fmt.Errorf("unmarshal location report: %w", err)
	}
	return report, nil
}

// LatestBatch fetches all requested positions in one MGET round trip.
func (r *Redis) LatestBatch(ctx context.Context, agentIDs []uuid.UUID) (map[uuid.UUID]Report, error) {
	if len(agentIDs) == 0 {
		return map[uuid.UUID]Report{}, nil
	}
	keys := make([]string, len(agentIDs))
	for i, id := range agentIDs {
		keys[i] = latestKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget location reports: %w", err)
	}

	out := make(map[uuid.UUID]Report, len(agentIDs))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired or never reported
		}
		var report Report
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, fmt.Errorf("unmarshal location report: %w", err)
		}
		out[agentIDs[i]] = report
	}
	return out, nil
}

var _ Store = (*Redis)(nil)
