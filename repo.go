package hotlabel

import (
	"context"
	"errors"
	"fmt"
	"time"

	ikeys "github.com/hotlabel/hotlabel-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// profileTTL is how long an idle worker profile survives in the store.
const profileTTL = 30 * 24 * time.Hour

// Repository owns the serialization contract for task, profile and response
// records and maintains the creation-time/last-active secondary indexes so
// that listing and retention never need a KEYS scan.
type Repository struct {
	rdb redis.UniversalClient
	enc Encoder
}

// NewRepository creates a Repository on top of the given Redis handle.
func NewRepository(rdb redis.UniversalClient, enc Encoder) *Repository {
	if enc == nil {
		enc = &JSONEncoder{}
	}
	return &Repository{rdb: rdb, enc: enc}
}

// PutTask upserts a task record and its index entry.
func (r *Repository) PutTask(ctx context.Context, t *Task) error {
	raw, err := r.enc.Encode(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.TaskID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, ikeys.Task(t.TaskID), raw, 0)
		p.ZAdd(ctx, ikeys.TaskIndex, redis.Z{Score: float64(t.CreatedAt), Member: t.TaskID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store task %s: %w", t.TaskID, err)
	}
	return nil
}

// GetTask returns the task with the given ID or ErrTaskNotFound.
func (r *Repository) GetTask(ctx context.Context, id string) (*Task, error) {
	raw, err := r.rdb.Get(ctx, ikeys.Task(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	var t Task
	if err := r.enc.Decode(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// ListTasks pages through the task index in creation order and optionally
// filters by status. An empty status matches everything. The page is taken
// from the index before filtering, so a filtered page may come back short.
func (r *Repository) ListTasks(ctx context.Context, status TaskStatus, limit, offset int) ([]*Task, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := r.rdb.ZRange(ctx, ikeys.TaskIndex, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetTask(ctx, id)
		if err != nil {
			// Index entries can outlive records briefly during cleanup.
			continue
		}
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// DeleteTask removes a task record together with every structure that may
// still reference it: index, queue, lease index and its response counter.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, ikeys.Task(id))
		p.ZRem(ctx, ikeys.TaskIndex, id)
		p.ZRem(ctx, ikeys.Queue, id)
		p.ZRem(ctx, ikeys.Leases, id)
		p.Del(ctx, ikeys.TaskResponses(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// PutProfile upserts a worker profile with the idle TTL and refreshes its
// last-active index entry.
func (r *Repository) PutProfile(ctx context.Context, p *WorkerProfile) error {
	raw, err := r.enc.Encode(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.SessionID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ikeys.Profile(p.SessionID), raw, profileTTL)
		pipe.ZAdd(ctx, ikeys.ProfileIndex, redis.Z{Score: float64(p.LastActive), Member: p.SessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store profile %s: %w", p.SessionID, err)
	}
	return nil
}

// GetProfile returns the profile for a session or ErrProfileNotFound.
func (r *Repository) GetProfile(ctx context.Context, sessionID string) (*WorkerProfile, error) {
	raw, err := r.rdb.Get(ctx, ikeys.Profile(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", sessionID, err)
	}
	var p WorkerProfile
	if err := r.enc.Decode(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", sessionID, err)
	}
	return &p, nil
}

// DeleteProfile removes a profile, its index entry and its response index.
func (r *Repository) DeleteProfile(ctx context.Context, sessionID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, ikeys.Profile(sessionID))
		p.ZRem(ctx, ikeys.ProfileIndex, sessionID)
		p.Del(ctx, ikeys.SessionResponses(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", sessionID, err)
	}
	return nil
}

// PutResponse upserts a response record plus the global and per-session
// indexes used by the rollup and retention jobs.
func (r *Repository) PutResponse(ctx context.Context, resp *Response) error {
	raw, err := r.enc.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode response %s: %w", resp.ResponseID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, ikeys.Response(resp.ResponseID), raw, 0)
		p.ZAdd(ctx, ikeys.ResponseIndex, redis.Z{Score: float64(resp.CreatedAt), Member: resp.ResponseID})
		p.ZAdd(ctx, ikeys.SessionResponses(resp.SessionID), redis.Z{Score: float64(resp.CreatedAt), Member: resp.ResponseID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store response %s: %w", resp.ResponseID, err)
	}
	return nil
}

// GetResponse returns the response with the given ID or ErrResponseNotFound.
func (r *Repository) GetResponse(ctx context.Context, id string) (*Response, error) {
	raw, err := r.rdb.Get(ctx, ikeys.Response(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResponseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load response %s: %w", id, err)
	}
	var resp Response
	if err := r.enc.Decode(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", id, err)
	}
	return &resp, nil
}

// DeleteResponse removes a response record and its index entries.
func (r *Repository) DeleteResponse(ctx context.Context, id string) error {
	resp, err := r.GetResponse(ctx, id)
	if errors.Is(err, ErrResponseNotFound) {
		// Record already gone; still clear the global index entry.
		return r.rdb.ZRem(ctx, ikeys.ResponseIndex, id).Err()
	}
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, ikeys.Response(id))
		p.ZRem(ctx, ikeys.ResponseIndex, id)
		p.ZRem(ctx, ikeys.SessionResponses(resp.SessionID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete response %s: %w", id, err)
	}
	return nil
}
