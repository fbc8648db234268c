package hotlabel

import (
	"context"
	"errors"

	ikeys "github.com/hotlabel/hotlabel-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// Counters is the write contract towards the external stats collaborator:
// atomic increments under the stats: namespace. Reads exist for the
// rebalancer (per-task response coverage) and queue snapshots; richer
// analytics live outside the engine.
type Counters struct {
	rdb redis.UniversalClient
}

// NewCounters creates a Counters on top of the given Redis handle.
func NewCounters(rdb redis.UniversalClient) *Counters {
	return &Counters{rdb: rdb}
}

// Incr adds one to the named stats counter.
func (c *Counters) Incr(ctx context.Context, name string) error {
	return c.rdb.IncrBy(ctx, ikeys.Stat(name), 1).Err()
}

// Get returns the value of the named stats counter, zero if absent.
func (c *Counters) Get(ctx context.Context, name string) (int64, error) {
	n, err := c.rdb.Get(ctx, ikeys.Stat(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// IncrTaskResponses bumps the per-task response counter read by the
// rebalancer's coverage boost.
func (c *Counters) IncrTaskResponses(ctx context.Context, taskID string) error {
	return c.rdb.IncrBy(ctx, ikeys.TaskResponses(taskID), 1).Err()
}

// TaskResponses returns how many responses have been observed for a task.
func (c *Counters) TaskResponses(ctx context.Context, taskID string) (int64, error) {
	n, err := c.rdb.Get(ctx, ikeys.TaskResponses(taskID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
