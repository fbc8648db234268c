package hotlabel

import (
	"context"
	"fmt"

	ikeys "github.com/hotlabel/hotlabel-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// QueueEntry is one (task ID, priority) pair inside the queue ZSET.
type QueueEntry struct {
	TaskID   string
	Priority float64
}

// PriorityQueue is the sorted set of pending task IDs keyed by priority
// score. Lower scores are served first; ties are broken by the store's
// member order, which is stable but not specified.
type PriorityQueue struct {
	rdb  redis.UniversalClient
	repo *Repository
}

// NewPriorityQueue creates the queue on top of the given Redis handle. The
// repository is written through on enqueue so the queue never references an
// absent task.
func NewPriorityQueue(rdb redis.UniversalClient, repo *Repository) *PriorityQueue {
	return &PriorityQueue{rdb: rdb, repo: repo}
}

// Enqueue persists the task and upserts its queue entry at t.Priority.
// Re-enqueueing an already queued task just overwrites the score.
func (q *PriorityQueue) Enqueue(ctx context.Context, t *Task) error {
	if err := q.repo.PutTask(ctx, t); err != nil {
		return err
	}
	err := q.rdb.ZAdd(ctx, ikeys.Queue, redis.Z{Score: t.Priority, Member: t.TaskID}).Err()
	if err != nil {
		return fmt.Errorf("enqueue task %s: %w", t.TaskID, err)
	}
	return nil
}

// PeekTop returns up to n task IDs in ascending priority order without
// removing them.
func (q *PriorityQueue) PeekTop(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := q.rdb.ZRange(ctx, ikeys.Queue, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	return ids, nil
}

// Rescore overwrites the priority of a queued task. The write applies only
// while the task is still a queue member, so a stale rescore can never
// resurrect an entry a concurrent claim just removed; the boolean reports
// whether the score was changed.
func (q *PriorityQueue) Rescore(ctx context.Context, taskID string, priority float64) (bool, error) {
	n, err := q.rdb.ZAddArgs(ctx, ikeys.Queue, redis.ZAddArgs{
		XX:      true,
		Ch:      true,
		Members: []redis.Z{{Score: priority, Member: taskID}},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("rescore task %s: %w", taskID, err)
	}
	return n == 1, nil
}

// Remove drops a task from the queue. The boolean reports whether this call
// removed the member: under concurrent assignment exactly one caller sees
// true, which is the claim that serializes leases.
func (q *PriorityQueue) Remove(ctx context.Context, taskID string) (bool, error) {
	n, err := q.rdb.ZRem(ctx, ikeys.Queue, taskID).Result()
	if err != nil {
		return false, fmt.Errorf("remove task %s from queue: %w", taskID, err)
	}
	return n == 1, nil
}

// Entries returns the full queue contents with scores, in ascending order.
// Used by the rebalancer; request paths should stick to PeekTop.
func (q *PriorityQueue) Entries(ctx context.Context) ([]QueueEntry, error) {
	zs, err := q.rdb.ZRangeWithScores(ctx, ikeys.Queue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue entries: %w", err)
	}
	out := make([]QueueEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, QueueEntry{TaskID: id, Priority: z.Score})
	}
	return out, nil
}

// Len returns the number of queued tasks.
func (q *PriorityQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, ikeys.Queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
