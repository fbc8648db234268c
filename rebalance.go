package hotlabel

import (
	"context"
	"math"
	"time"
)

// Rebalancer periodically recomputes queue priorities from task age and
// response coverage. Both boosts are non-negative, so a queued task's
// priority only ever grows across ticks; starvation is bounded.
type Rebalancer struct {
	repo     *Repository
	queue    *PriorityQueue
	counters *Counters
	log      Logger
}

// NewRebalancer wires a rebalancer.
func NewRebalancer(repo *Repository, queue *PriorityQueue, counters *Counters, log Logger) *Rebalancer {
	if log == nil {
		log = nopLogger{}
	}
	return &Rebalancer{repo: repo, queue: queue, counters: counters, log: log}
}

// Rebalance walks every queue entry and applies the age and coverage boosts,
// skipping writes when the drift stays within 1.0 to avoid churning scores on
// every tick. It returns how many entries were inspected and how many were
// actually rescored; per-entry failures are logged and skipped.
func (r *Rebalancer) Rebalance(ctx context.Context) (analyzed, adjusted int, err error) {
	entries, err := r.queue.Entries(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now().UnixMilli()

	for _, e := range entries {
		t, err := r.repo.GetTask(ctx, e.TaskID)
		if err != nil {
			r.log.Warnf("rebalance: task=%s err=%v", e.TaskID, err)
			continue
		}
		analyzed++

		ageHours := float64(now-t.CreatedAt) / float64(time.Hour.Milliseconds())
		ageBoost := math.Min(ageHours/24, 5)

		responses, err := r.counters.TaskResponses(ctx, e.TaskID)
		if err != nil {
			r.log.Warnf("rebalance: response count task=%s err=%v", e.TaskID, err)
			continue
		}
		responseBoost := math.Max(5-float64(responses), 0)

		newPriority := e.Priority + ageBoost + responseBoost
		if math.Abs(newPriority-e.Priority) <= 1.0 {
			continue
		}

		updated, err := r.queue.Rescore(ctx, e.TaskID, newPriority)
		if err != nil {
			r.log.Warnf("rebalance: rescore task=%s err=%v", e.TaskID, err)
			continue
		}
		if !updated {
			// Claimed between the snapshot and the rescore; no longer queued.
			continue
		}
		t.Priority = newPriority
		t.UpdatedAt = now
		if err := r.repo.PutTask(ctx, t); err != nil {
			r.log.Warnf("rebalance: persist task=%s err=%v", e.TaskID, err)
			continue
		}
		adjusted++
	}
	return analyzed, adjusted, nil
}
