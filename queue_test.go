package hotlabel

import (
	"context"
	"testing"
	"time"

	mrd "github.com/alicebob/miniredis/v2"
	ikeys "github.com/hotlabel/hotlabel-go/internal/keys"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		s.Close()
	}
	return rdb, cleanup
}

// newTestTask builds a pending task directly, bypassing draft validation.
func newTestTask(id string, complexity int) *Task {
	now := time.Now().UnixMilli()
	return &Task{
		TaskID:     id,
		TrackID:    "track-test",
		Language:   "en",
		Category:   CategoryText,
		Type:       TypeMultipleChoice,
		Topic:      "technology",
		Complexity: complexity,
		Question:   Question{Text: "pick one"},
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Priority:   basePriority(complexity),
	}
}

func TestPriorityQueue_OrderingAscending(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	// complexity 5 -> priority 0, complexity 1 -> priority 8
	require.NoError(t, q.Enqueue(ctx, newTestTask("easy", 1)))
	require.NoError(t, q.Enqueue(ctx, newTestTask("hard", 5)))
	require.NoError(t, q.Enqueue(ctx, newTestTask("mid", 3)))

	ids, err := q.PeekTop(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"hard", "mid", "easy"}, ids)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestPriorityQueue_EnqueueWritesThrough(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestTask("t1", 2)))

	got, err := repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 6.0, got.Priority)
}

func TestPriorityQueue_RemoveIsSingleWinner(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestTask("t1", 3)))

	first, err := q.Remove(ctx, "t1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := q.Remove(ctx, "t1")
	require.NoError(t, err)
	require.False(t, second)
}

func TestPriorityQueue_Rescore(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestTask("a", 1))) // priority 8
	require.NoError(t, q.Enqueue(ctx, newTestTask("b", 3))) // priority 4

	// Boost "b" past "a" (lower is served first).
	updated, err := q.Rescore(ctx, "b", 9)
	require.NoError(t, err)
	require.True(t, updated)

	ids, err := q.PeekTop(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 9.0, entries[1].Priority)
}

func TestPriorityQueue_RescoreOnlyWhileQueued(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestTask("t1", 3)))

	claimed, err := q.Remove(ctx, "t1")
	require.NoError(t, err)
	require.True(t, claimed)

	// A rescore based on a snapshot taken before the claim must not
	// re-insert the member.
	updated, err := q.Rescore(ctx, "t1", 9)
	require.NoError(t, err)
	require.False(t, updated)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPriorityQueue_EqualScoresKeepDistinctMembers(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	// Same complexity, same score; order between them is unspecified.
	require.NoError(t, q.Enqueue(ctx, newTestTask("a", 3)))
	require.NoError(t, q.Enqueue(ctx, newTestTask("b", 3)))

	ids, err := q.PeekTop(ctx, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestPriorityQueue_QueueKeyMembership(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	repo := NewRepository(rdb, nil)
	q := NewPriorityQueue(rdb, repo)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestTask("t1", 2)))
	n, err := rdb.ZCard(ctx, ikeys.Queue).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
