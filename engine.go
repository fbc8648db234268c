package hotlabel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	ikeys "github.com/hotlabel/hotlabel-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// EngineConfig defines the tunables of the distribution engine. Zero values
// fall back to the defaults below.
type EngineConfig struct {
	// LeaseTTL is how long a worker holds an assigned task before the sweep
	// may reclaim it.
	LeaseTTL time.Duration
	// MatchWindow is how many top-of-queue tasks the matcher considers.
	MatchWindow int
	// RequeuePriority is the fixed score expired tasks re-enter the queue at.
	// Nil selects the default of 5.0; a pointer to zero is a legal explicit
	// value (the most urgent score, since lower scores are served first).
	RequeuePriority *float64
	// TaskRetention / ResponseRetention bound how long closed records are
	// kept; ProfileMaxIdle bounds how long an inactive profile survives
	// the retention job.
	TaskRetention     time.Duration
	ResponseRetention time.Duration
	ProfileMaxIdle    time.Duration
	// Quality is the response scoring policy; defaults to BaselinePolicy.
	Quality QualityPolicy
	// Encoder is the record serializer; defaults to JSONEncoder.
	Encoder Encoder
	// Logger receives engine events; defaults to a no-op logger.
	Logger Logger
}

// DefaultEngineConfig returns the reference configuration: 10 minute leases,
// a 20-task matching window, requeue boost 5.0, 90 day task/response
// retention and 60 day profile idle cutoff.
func DefaultEngineConfig() EngineConfig {
	requeue := 5.0
	return EngineConfig{
		LeaseTTL:          10 * time.Minute,
		MatchWindow:       20,
		RequeuePriority:   &requeue,
		TaskRetention:     90 * 24 * time.Hour,
		ResponseRetention: 90 * 24 * time.Hour,
		ProfileMaxIdle:    60 * 24 * time.Hour,
	}
}

// Engine is the task distribution and matching engine. It is stateless
// between calls; every piece of shared state lives in the Redis store, so
// multiple Engine instances may serve traffic concurrently.
type Engine struct {
	rdb      redis.UniversalClient
	cfg      EngineConfig
	log      Logger
	repo     *Repository
	queue    *PriorityQueue
	lease    *LeaseManager
	matcher  *Matcher
	balancer *Rebalancer
	counters *Counters
	quality  QualityPolicy
}

// NewEngine wires an engine on top of the given Redis handle.
func NewEngine(rdb redis.UniversalClient, cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}
	if cfg.MatchWindow == 0 {
		cfg.MatchWindow = def.MatchWindow
	}
	if cfg.RequeuePriority == nil {
		cfg.RequeuePriority = def.RequeuePriority
	}
	if cfg.TaskRetention == 0 {
		cfg.TaskRetention = def.TaskRetention
	}
	if cfg.ResponseRetention == 0 {
		cfg.ResponseRetention = def.ResponseRetention
	}
	if cfg.ProfileMaxIdle == 0 {
		cfg.ProfileMaxIdle = def.ProfileMaxIdle
	}
	if cfg.Quality == nil {
		cfg.Quality = &BaselinePolicy{}
	}
	if cfg.Encoder == nil {
		cfg.Encoder = &JSONEncoder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	repo := NewRepository(rdb, cfg.Encoder)
	queue := NewPriorityQueue(rdb, repo)
	counters := NewCounters(rdb)
	return &Engine{
		rdb:      rdb,
		cfg:      cfg,
		log:      cfg.Logger,
		repo:     repo,
		queue:    queue,
		lease:    NewLeaseManager(rdb, repo, queue, counters, cfg.LeaseTTL, *cfg.RequeuePriority, cfg.Logger),
		matcher:  NewMatcher(repo, queue, cfg.MatchWindow, cfg.Logger),
		balancer: NewRebalancer(repo, queue, counters, cfg.Logger),
		counters: counters,
		quality:  cfg.Quality,
	}
}

// CreateTask validates a draft, persists it as pending and enqueues it at
// its base priority.
func (e *Engine) CreateTask(ctx context.Context, draft TaskDraft) (*Task, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}
	t := draft.materialize(time.Now())
	if err := e.queue.Enqueue(ctx, t); err != nil {
		return nil, err
	}
	e.bump(ctx, "tasks:total")
	e.bump(ctx, "tasks:category:"+string(t.Category))
	e.bump(ctx, "tasks:type:"+string(t.Type))
	e.log.Debugf("task created: id=%s topic=%s priority=%.1f", t.TaskID, t.Topic, t.Priority)
	return t, nil
}

// BatchFailure records why one item of a batch was rejected.
type BatchFailure struct {
	TaskID string `json:"task_id"`
	Reason string `json:"error"`
}

// CreateBatchResult reports per-item outcomes of a batch creation.
type CreateBatchResult struct {
	Created []*Task        `json:"created_tasks"`
	Failed  []BatchFailure `json:"failed_tasks"`
}

// CreateTasks creates many tasks, continuing past individual failures and
// reporting a per-item success/failure list.
func (e *Engine) CreateTasks(ctx context.Context, drafts []TaskDraft) CreateBatchResult {
	var res CreateBatchResult
	for _, draft := range drafts {
		t, err := e.CreateTask(ctx, draft)
		if err != nil {
			res.Failed = append(res.Failed, BatchFailure{TaskID: draft.TaskID, Reason: err.Error()})
			continue
		}
		res.Created = append(res.Created, t)
	}
	return res
}

// GetTask returns a task by ID.
func (e *Engine) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return e.repo.GetTask(ctx, taskID)
}

// ListTasks pages tasks in creation order, optionally filtered by status
// (empty matches all).
func (e *Engine) ListTasks(ctx context.Context, status TaskStatus, limit, offset int) ([]*Task, error) {
	return e.repo.ListTasks(ctx, status, limit, offset)
}

// RequestAssignment finds the best-matching queued task for the profile and
// leases it to the profile's session. ErrNoTaskAvailable means the window was
// empty; ErrTaskLeased means the winner was claimed concurrently and the
// caller should simply request again.
func (e *Engine) RequestAssignment(ctx context.Context, profile *WorkerProfile) (*Task, error) {
	best, err := e.matcher.FindBest(ctx, profile)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, ErrNoTaskAvailable
	}
	return e.lease.Assign(ctx, best.TaskID, profile.SessionID)
}

// Assign leases a specific task to a worker session. Exposed for callers
// that pick from RankMatches instead of taking the single best.
func (e *Engine) Assign(ctx context.Context, taskID, sessionID string) (*Task, error) {
	return e.lease.Assign(ctx, taskID, sessionID)
}

// RankMatches scores the candidate window against the profile and returns
// the ranked matches with reasons. Read-only.
func (e *Engine) RankMatches(ctx context.Context, profile *WorkerProfile, limit int) ([]Match, error) {
	return e.matcher.Rank(ctx, profile, limit)
}

// SubmitResponse accepts a worker's answer for a task it holds the lease on:
// the response is scored by the quality policy and stored, the task is
// completed, and the worker's history and expertise are updated.
func (e *Engine) SubmitResponse(ctx context.Context, draft ResponseDraft) (*Response, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}
	t, err := e.repo.GetTask(ctx, draft.TaskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusAssigned || t.AssignedTo != draft.SessionID {
		return nil, ErrNotAssignee
	}

	now := time.Now()
	resp := &Response{
		ResponseID:     uuid.NewString(),
		TaskID:         draft.TaskID,
		SessionID:      draft.SessionID,
		PublisherID:    t.TrackID,
		Data:           draft.Data,
		ClientMetadata: draft.ClientMetadata,
		ResponseTimeMs: draft.ResponseTimeMs,
		CreatedAt:      now.UnixMilli(),
		Status:         ResponseSubmitted,
	}
	score := e.quality.Evaluate(resp, t)
	resp.QualityScore = &score
	resp.QualityLevel = QualityLevelFor(score)

	if err := e.repo.PutResponse(ctx, resp); err != nil {
		return nil, err
	}
	e.bump(ctx, "responses:total")
	e.bump(ctx, "responses:quality:"+string(resp.QualityLevel))
	if err := e.counters.IncrTaskResponses(ctx, t.TaskID); err != nil {
		e.log.Warnf("submit: response counter task=%s err=%v", t.TaskID, err)
	}

	t.Status = StatusCompleted
	t.CompletedAt = now.UnixMilli()
	t.UpdatedAt = now.UnixMilli()
	t.ExpiresAt = 0
	if err := e.repo.PutTask(ctx, t); err != nil {
		return nil, err
	}
	if err := e.lease.Release(ctx, t.TaskID); err != nil {
		e.log.Warnf("submit: lease release task=%s err=%v", t.TaskID, err)
	}
	e.bump(ctx, "tasks:status:completed")

	e.recordCompletion(ctx, t, resp, score, now)
	e.log.Infof("response submitted: id=%s task=%s quality=%s", resp.ResponseID, t.TaskID, resp.QualityLevel)
	return resp, nil
}

// recordCompletion folds a completed task into the worker's history and
// expertise. A missing profile is logged and skipped; the response stands on
// its own.
func (e *Engine) recordCompletion(ctx context.Context, t *Task, resp *Response, quality float64, now time.Time) {
	p, err := e.repo.GetProfile(ctx, resp.SessionID)
	if err != nil {
		e.log.Warnf("submit: profile update skipped session=%s err=%v", resp.SessionID, err)
		return
	}
	p.TaskHistory.Record(t.Type, t.Category, resp.ResponseTimeMs, true)
	p.Expertise.UpdateExpertise(string(t.Category), quality, 0.05)
	p.Expertise.TechnicalLevel = p.Expertise.TechnicalLevel*0.95 + (float64(t.Complexity)/5)*0.05
	p.UpdatedAt = now.UnixMilli()
	p.LastActive = now.UnixMilli()
	if err := e.repo.PutProfile(ctx, p); err != nil {
		e.log.Warnf("submit: profile persist session=%s err=%v", resp.SessionID, err)
	}
}

// SubmitBatchResult reports per-item outcomes of a batch submission.
type SubmitBatchResult struct {
	Submitted []*Response    `json:"responses"`
	Failed    []BatchFailure `json:"failed_responses"`
}

// SubmitResponses submits many responses for one session, continuing past
// individual failures.
func (e *Engine) SubmitResponses(ctx context.Context, sessionID string, drafts []ResponseDraft) SubmitBatchResult {
	var res SubmitBatchResult
	for _, draft := range drafts {
		if draft.SessionID != sessionID {
			res.Failed = append(res.Failed, BatchFailure{TaskID: draft.TaskID, Reason: "inconsistent session_id in batch"})
			continue
		}
		resp, err := e.SubmitResponse(ctx, draft)
		if err != nil {
			res.Failed = append(res.Failed, BatchFailure{TaskID: draft.TaskID, Reason: err.Error()})
			continue
		}
		res.Submitted = append(res.Submitted, resp)
	}
	return res
}

// GetResponse returns a response by ID.
func (e *Engine) GetResponse(ctx context.Context, responseID string) (*Response, error) {
	return e.repo.GetResponse(ctx, responseID)
}

// SubmitFeedback attaches reviewer feedback to a response. Quality feedback
// with a score overrides the evaluator's score and re-buckets the level.
func (e *Engine) SubmitFeedback(ctx context.Context, fb Feedback) error {
	resp, err := e.repo.GetResponse(ctx, fb.ResponseID)
	if err != nil {
		return err
	}
	raw, err := e.cfg.Encoder.Encode(&fb)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	if err := e.rdb.Set(ctx, ikeys.Feedback(fb.ResponseID, fb.FeedbackType), raw, 0).Err(); err != nil {
		return fmt.Errorf("store feedback: %w", err)
	}
	if fb.FeedbackType == "quality" && fb.Score != nil {
		resp.QualityScore = fb.Score
		resp.QualityLevel = QualityLevelFor(*fb.Score)
		resp.ReviewNotes = fb.Notes
		if err := e.repo.PutResponse(ctx, resp); err != nil {
			return err
		}
	}
	return nil
}

// CreateProfile registers a new anonymous worker session.
func (e *Engine) CreateProfile(ctx context.Context, info BrowserInfo) (*WorkerProfile, error) {
	p := NewWorkerProfile(info, time.Now())
	if err := e.repo.PutProfile(ctx, p); err != nil {
		return nil, err
	}
	e.bump(ctx, "users:total")
	return p, nil
}

// GetProfile returns the profile for a session.
func (e *Engine) GetProfile(ctx context.Context, sessionID string) (*WorkerProfile, error) {
	return e.repo.GetProfile(ctx, sessionID)
}

// UpdateProfile folds incremental browser signals into a profile. An unknown
// session is created on the fly when the update carries browser info;
// otherwise ErrProfileNotFound.
func (e *Engine) UpdateProfile(ctx context.Context, sessionID string, update ProfileUpdate) (*WorkerProfile, error) {
	p, err := e.repo.GetProfile(ctx, sessionID)
	if errors.Is(err, ErrProfileNotFound) {
		if update.BrowserInfo == nil {
			return nil, ErrProfileNotFound
		}
		return e.CreateProfile(ctx, *update.BrowserInfo)
	}
	if err != nil {
		return nil, err
	}
	update.apply(p, time.Now())
	if err := e.repo.PutProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateTaskHistory records a task outcome on a worker's history directly.
// The response path does this automatically; this entry point exists for
// abandonment signals, where no response is ever submitted.
func (e *Engine) UpdateTaskHistory(ctx context.Context, sessionID string, taskType TaskType, category TaskCategory, completionTimeMs int, completed bool) (*WorkerProfile, error) {
	p, err := e.repo.GetProfile(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p.TaskHistory.Record(taskType, category, completionTimeMs, completed)
	ms := time.Now().UnixMilli()
	p.UpdatedAt = ms
	p.LastActive = ms
	if err := e.repo.PutProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SweepExpired runs one lease-expiry sweep and returns how many tasks were
// reclaimed.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	return e.lease.SweepExpired(ctx)
}

// Rebalance runs one priority rebalance pass.
func (e *Engine) Rebalance(ctx context.Context) (analyzed, adjusted int, err error) {
	return e.balancer.Rebalance(ctx)
}

// RollupWorkerQuality recomputes each worker's rolling quality score as the
// average of their responses' quality scores. Returns how many profiles were
// updated; per-profile failures are logged and skipped.
func (e *Engine) RollupWorkerQuality(ctx context.Context) (int, error) {
	sessions, err := e.rdb.ZRange(ctx, ikeys.ProfileIndex, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("range profiles: %w", err)
	}
	updated := 0
	for _, sid := range sessions {
		ids, err := e.rdb.ZRange(ctx, ikeys.SessionResponses(sid), 0, -1).Result()
		if err != nil {
			e.log.Warnf("rollup: responses session=%s err=%v", sid, err)
			continue
		}
		var sum float64
		var n int
		for _, rid := range ids {
			resp, err := e.repo.GetResponse(ctx, rid)
			if err != nil || resp.QualityScore == nil {
				continue
			}
			sum += *resp.QualityScore
			n++
		}
		if n == 0 {
			continue
		}
		p, err := e.repo.GetProfile(ctx, sid)
		if err != nil {
			e.log.Warnf("rollup: profile session=%s err=%v", sid, err)
			continue
		}
		p.TaskHistory.QualityScore = sum / float64(n)
		if err := e.repo.PutProfile(ctx, p); err != nil {
			e.log.Warnf("rollup: persist session=%s err=%v", sid, err)
			continue
		}
		updated++
	}
	return updated, nil
}

// PurgeOldRecords deletes tasks and responses past their retention window
// and profiles idle past the cutoff, walking the secondary indexes rather
// than scanning the keyspace. Returns the number of records deleted.
func (e *Engine) PurgeOldRecords(ctx context.Context) (int, error) {
	now := time.Now()
	deleted := 0

	taskCutoff := strconv.FormatInt(now.Add(-e.cfg.TaskRetention).UnixMilli(), 10)
	ids, err := e.rdb.ZRangeByScore(ctx, ikeys.TaskIndex, &redis.ZRangeBy{Min: "-inf", Max: taskCutoff}).Result()
	if err != nil {
		return deleted, fmt.Errorf("range old tasks: %w", err)
	}
	for _, id := range ids {
		if err := e.repo.DeleteTask(ctx, id); err != nil {
			e.log.Warnf("purge: task=%s err=%v", id, err)
			continue
		}
		deleted++
	}

	respCutoff := strconv.FormatInt(now.Add(-e.cfg.ResponseRetention).UnixMilli(), 10)
	ids, err = e.rdb.ZRangeByScore(ctx, ikeys.ResponseIndex, &redis.ZRangeBy{Min: "-inf", Max: respCutoff}).Result()
	if err != nil {
		return deleted, fmt.Errorf("range old responses: %w", err)
	}
	for _, id := range ids {
		if err := e.repo.DeleteResponse(ctx, id); err != nil {
			e.log.Warnf("purge: response=%s err=%v", id, err)
			continue
		}
		deleted++
	}

	idleCutoff := strconv.FormatInt(now.Add(-e.cfg.ProfileMaxIdle).UnixMilli(), 10)
	sessions, err := e.rdb.ZRangeByScore(ctx, ikeys.ProfileIndex, &redis.ZRangeBy{Min: "-inf", Max: idleCutoff}).Result()
	if err != nil {
		return deleted, fmt.Errorf("range idle profiles: %w", err)
	}
	for _, sid := range sessions {
		if err := e.repo.DeleteProfile(ctx, sid); err != nil {
			e.log.Warnf("purge: profile=%s err=%v", sid, err)
			continue
		}
		deleted++
	}

	return deleted, nil
}

// QueueStats is a snapshot of queue and lease depth.
type QueueStats struct {
	Queued int64 `json:"queued"`
	Leased int64 `json:"leased"`
}

// Stats returns the current queue depth and active lease count.
func (e *Engine) Stats(ctx context.Context) (QueueStats, error) {
	queued, err := e.queue.Len(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	leased, err := e.rdb.ZCard(ctx, ikeys.Leases).Result()
	if err != nil {
		return QueueStats{}, fmt.Errorf("lease count: %w", err)
	}
	return QueueStats{Queued: queued, Leased: leased}, nil
}

// Counter exposes a stats counter read for embedding applications.
func (e *Engine) Counter(ctx context.Context, name string) (int64, error) {
	return e.counters.Get(ctx, name)
}

// bump increments a stats counter, logging instead of failing: counters are
// a side effect, not part of the operation's contract.
func (e *Engine) bump(ctx context.Context, name string) {
	if err := e.counters.Incr(ctx, name); err != nil {
		e.log.Warnf("counter %s: %v", name, err)
	}
}
