package hotlabel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ikeys "github.com/hotlabel/hotlabel-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// LeaseManager hands out time-boxed exclusive leases on queued tasks and
// reclaims the ones whose lease ran out.
type LeaseManager struct {
	rdb      redis.UniversalClient
	repo     *Repository
	queue    *PriorityQueue
	counters *Counters
	ttl      time.Duration
	requeue  float64
	log      Logger
}

// NewLeaseManager wires a lease manager. ttl is the lease duration; requeue
// is the fixed priority expired tasks re-enter the queue at.
func NewLeaseManager(rdb redis.UniversalClient, repo *Repository, queue *PriorityQueue, counters *Counters, ttl time.Duration, requeue float64, log Logger) *LeaseManager {
	if log == nil {
		log = nopLogger{}
	}
	return &LeaseManager{rdb: rdb, repo: repo, queue: queue, counters: counters, ttl: ttl, requeue: requeue, log: log}
}

// Assign leases a task to a worker session.
//
// Re-assigning to the current holder returns the existing lease unchanged.
// A task leased to someone else, or claimed by a concurrent caller a moment
// earlier, yields ErrTaskLeased; completed/rejected tasks yield
// ErrTaskClosed. The queue entry is the claim token: ZREM removes it for
// exactly one of any set of concurrent callers, so two assigns for the same
// task can never both succeed.
func (m *LeaseManager) Assign(ctx context.Context, taskID, workerID string) (*Task, error) {
	t, err := m.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case StatusCompleted, StatusRejected:
		return nil, ErrTaskClosed
	case StatusAssigned:
		if t.AssignedTo == workerID {
			return t, nil
		}
		return nil, ErrTaskLeased
	}

	claimed, err := m.queue.Remove(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race: another caller holds the claim.
		return nil, ErrTaskLeased
	}

	now := time.Now()
	t.Status = StatusAssigned
	t.AssignedTo = workerID
	t.AssignedAt = now.UnixMilli()
	t.ExpiresAt = now.Add(m.ttl).UnixMilli()
	t.UpdatedAt = now.UnixMilli()

	if err := m.persistLease(ctx, t); err != nil {
		return nil, err
	}
	if err := m.counters.Incr(ctx, "tasks:assigned"); err != nil {
		m.log.Warnf("assign: counter bump failed task=%s err=%v", taskID, err)
	}
	return t, nil
}

// persistLease writes the assigned task and indexes its expiry.
func (m *LeaseManager) persistLease(ctx context.Context, t *Task) error {
	if err := m.repo.PutTask(ctx, t); err != nil {
		return err
	}
	err := m.rdb.ZAdd(ctx, ikeys.Leases, redis.Z{Score: float64(t.ExpiresAt), Member: t.TaskID}).Err()
	if err != nil {
		return fmt.Errorf("index lease %s: %w", t.TaskID, err)
	}
	return nil
}

// Release drops a task's lease index entry. Called on completion.
func (m *LeaseManager) Release(ctx context.Context, taskID string) error {
	return m.rdb.ZRem(ctx, ikeys.Leases, taskID).Err()
}

// SweepExpired reclaims every lease whose deadline has passed: the task is
// marked expired, then requeued as pending at the fixed boost priority with
// its assignment fields cleared. Nobody is auto-reassigned; a fresh matching
// cycle must win the task again.
//
// A failure on one task never aborts the sweep for the rest. The sweep
// re-checks the live status right before downgrading, so a task completed
// between the range read and the write is left alone.
func (m *LeaseManager) SweepExpired(ctx context.Context) (int, error) {
	nowMs := time.Now().UnixMilli()
	ids, err := m.rdb.ZRangeByScore(ctx, ikeys.Leases, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowMs, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("range expired leases: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if err := m.expireOne(ctx, id, nowMs); err != nil {
			m.log.Warnf("sweep: task=%s err=%v", id, err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (m *LeaseManager) expireOne(ctx context.Context, taskID string, nowMs int64) error {
	t, err := m.repo.GetTask(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		// Record gone; drop the stale index entry so the sweep stops seeing it.
		return m.rdb.ZRem(ctx, ikeys.Leases, taskID).Err()
	}
	if err != nil {
		return err
	}

	// Stale-sweep guard: only a still-assigned, actually overdue task may be
	// downgraded. Anything else just loses its lease index entry.
	if t.Status != StatusAssigned || t.ExpiresAt == 0 || t.ExpiresAt > nowMs {
		return m.rdb.ZRem(ctx, ikeys.Leases, taskID).Err()
	}

	t.Status = StatusExpired
	t.UpdatedAt = nowMs
	if err := m.repo.PutTask(ctx, t); err != nil {
		return err
	}
	if err := m.counters.Incr(ctx, "tasks:status:expired"); err != nil {
		m.log.Warnf("sweep: counter bump failed task=%s err=%v", taskID, err)
	}

	// Requeue as pending at boosted priority. Presence in the queue implies
	// pending, so the assignment fields are cleared in the same write.
	t.Status = StatusPending
	t.AssignedTo = ""
	t.AssignedAt = 0
	t.ExpiresAt = 0
	t.Priority = m.requeue
	if err := m.queue.Enqueue(ctx, t); err != nil {
		return err
	}
	return m.rdb.ZRem(ctx, ikeys.Leases, taskID).Err()
}
