package hotlabel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *redis.Client, func()) {
	t.Helper()
	rdb, done := newMiniClient(t)
	return NewEngine(rdb, EngineConfig{}), rdb, done
}

func testDraft(topic string, complexity int) TaskDraft {
	return TaskDraft{
		TrackID:    "track-test",
		Language:   "en",
		Category:   CategoryText,
		Type:       TypeMultipleChoice,
		Topic:      topic,
		Complexity: complexity,
		Question:   Question{Text: "pick one"},
	}
}

func TestEngine_CreateTask(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	task, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)
	require.NotEmpty(t, task.TaskID)
	require.Equal(t, StatusPending, task.Status)
	require.Equal(t, 4.0, task.Priority)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Queued)

	total, err := e.Counter(ctx, "tasks:total")
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	byCat, err := e.Counter(ctx, "tasks:category:text")
	require.NoError(t, err)
	require.Equal(t, int64(1), byCat)
}

func TestEngine_CreateTaskValidation(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	bad := testDraft("technology", 3)
	bad.Language = ""
	_, err := e.CreateTask(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidTask)

	bad = testDraft("technology", 9)
	_, err = e.CreateTask(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidTask)

	bad = testDraft("technology", 3)
	bad.Category = "video"
	_, err = e.CreateTask(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidTask)
}

func TestEngine_CreateTasksPartialFailure(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	bad := testDraft("science", 3)
	bad.Topic = ""
	bad.TaskID = "bad-one"
	res := e.CreateTasks(ctx, []TaskDraft{
		testDraft("technology", 2),
		bad,
		testDraft("art", 4),
	})
	require.Len(t, res.Created, 2)
	require.Len(t, res.Failed, 1)
	require.Equal(t, "bad-one", res.Failed[0].TaskID)
	require.NotEmpty(t, res.Failed[0].Reason)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Queued)
}

func TestEngine_ListTasksFilterAndPaging(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.CreateTask(ctx, testDraft("technology", 3))
		require.NoError(t, err)
	}

	all, err := e.ListTasks(ctx, "", 3, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	rest, err := e.ListTasks(ctx, "", 3, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)

	pending, err := e.ListTasks(ctx, StatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 5)

	completed, err := e.ListTasks(ctx, StatusCompleted, 10, 0)
	require.NoError(t, err)
	require.Empty(t, completed)
}

func TestEngine_ExplicitZeroRequeuePriority(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	zero := 0.0
	e := NewEngine(rdb, EngineConfig{
		LeaseTTL:        time.Millisecond,
		RequeuePriority: &zero,
	})
	ctx := context.Background()

	created, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)
	_, err = e.Assign(ctx, created.TaskID, "worker-a")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	n, err := e.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := e.GetTask(ctx, created.TaskID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 0.0, got.Priority)
}

func TestEngine_RequestAssignmentEmptyQueue(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	profile, err := e.CreateProfile(ctx, BrowserInfo{Language: "en"})
	require.NoError(t, err)

	_, err = e.RequestAssignment(ctx, profile)
	require.ErrorIs(t, err, ErrNoTaskAvailable)
}

func TestEngine_AssignAndSubmitFlow(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	created, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)

	profile, err := e.CreateProfile(ctx, BrowserInfo{Language: "en"})
	require.NoError(t, err)

	assigned, err := e.RequestAssignment(ctx, profile)
	require.NoError(t, err)
	require.Equal(t, created.TaskID, assigned.TaskID)
	require.Equal(t, profile.SessionID, assigned.AssignedTo)

	resp, err := e.SubmitResponse(ctx, ResponseDraft{
		TaskID:         assigned.TaskID,
		SessionID:      profile.SessionID,
		Data:           json.RawMessage(`"option_a"`),
		ResponseTimeMs: 4200,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ResponseID)
	require.Equal(t, created.TrackID, resp.PublisherID)
	require.NotNil(t, resp.QualityScore)
	require.InDelta(t, 0.5, *resp.QualityScore, 0.0001)
	require.Equal(t, QualityMedium, resp.QualityLevel)

	// task completed and off the queue
	final, err := e.GetTask(ctx, created.TaskID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)
	require.NotZero(t, final.CompletedAt)
	require.Zero(t, final.ExpiresAt)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Queued)
	require.Zero(t, stats.Leased)

	// worker history folded in
	p, err := e.GetProfile(ctx, profile.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, p.TaskHistory.CompletedTasks)
	require.Equal(t, 1, p.TaskHistory.CategoriesCompleted["text"])
	require.Equal(t, 1, p.TaskHistory.TaskTypesCompleted["multiple-choice"])
	require.InDelta(t, 0.505, p.Expertise.TechnicalLevel, 0.0001) // 0.5*0.95 + 0.6*0.05
}

func TestEngine_SubmitResponseNotAssignee(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	created, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)

	// not assigned at all
	_, err = e.SubmitResponse(ctx, ResponseDraft{
		TaskID:    created.TaskID,
		SessionID: "intruder",
		Data:      json.RawMessage(`"x"`),
	})
	require.ErrorIs(t, err, ErrNotAssignee)

	// assigned to someone else
	_, err = e.Assign(ctx, created.TaskID, "holder")
	require.NoError(t, err)
	_, err = e.SubmitResponse(ctx, ResponseDraft{
		TaskID:    created.TaskID,
		SessionID: "intruder",
		Data:      json.RawMessage(`"x"`),
	})
	require.ErrorIs(t, err, ErrNotAssignee)
}

func TestEngine_SubmitResponsesBatch(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	a, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)
	b, err := e.CreateTask(ctx, testDraft("science", 3))
	require.NoError(t, err)

	_, err = e.Assign(ctx, a.TaskID, "session-1")
	require.NoError(t, err)
	// b stays unassigned so its submission fails

	res := e.SubmitResponses(ctx, "session-1", []ResponseDraft{
		{TaskID: a.TaskID, SessionID: "session-1", Data: json.RawMessage(`"x"`), ResponseTimeMs: 3000},
		{TaskID: b.TaskID, SessionID: "session-1", Data: json.RawMessage(`"y"`), ResponseTimeMs: 3000},
		{TaskID: b.TaskID, SessionID: "other", Data: json.RawMessage(`"z"`), ResponseTimeMs: 3000},
	})
	require.Len(t, res.Submitted, 1)
	require.Len(t, res.Failed, 2)
}

func TestEngine_FeedbackOverridesQuality(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	created, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)
	_, err = e.Assign(ctx, created.TaskID, "session-1")
	require.NoError(t, err)
	resp, err := e.SubmitResponse(ctx, ResponseDraft{
		TaskID: created.TaskID, SessionID: "session-1",
		Data: json.RawMessage(`"x"`), ResponseTimeMs: 3000,
	})
	require.NoError(t, err)

	score := 0.9
	require.NoError(t, e.SubmitFeedback(ctx, Feedback{
		ResponseID:   resp.ResponseID,
		FeedbackType: "quality",
		Score:        &score,
		Notes:        "verified by reviewer",
	}))

	got, err := e.GetResponse(ctx, resp.ResponseID)
	require.NoError(t, err)
	require.InDelta(t, 0.9, *got.QualityScore, 0.0001)
	require.Equal(t, QualityHigh, got.QualityLevel)
	require.Equal(t, "verified by reviewer", got.ReviewNotes)

	// unknown response rejected
	err = e.SubmitFeedback(ctx, Feedback{ResponseID: "nope", FeedbackType: "quality"})
	require.ErrorIs(t, err, ErrResponseNotFound)
}

func TestEngine_UpdateProfile(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	profile, err := e.CreateProfile(ctx, BrowserInfo{Language: "en"})
	require.NoError(t, err)

	depth := 1.0
	updated, err := e.UpdateProfile(ctx, profile.SessionID, ProfileUpdate{
		CurrentSiteCategory: "technology",
		TimeOnPage:          180,
		InteractionDepth:    &depth,
	})
	require.NoError(t, err)
	// EMA from the 0.5 default towards 0.9 at weight 0.1
	require.InDelta(t, 0.54, updated.Interests.Categories["technology"], 0.0001)

	// unknown session without browser info
	_, err = e.UpdateProfile(ctx, "missing", ProfileUpdate{TimeOnPage: 30})
	require.ErrorIs(t, err, ErrProfileNotFound)

	// unknown session with browser info creates on the fly
	created, err := e.UpdateProfile(ctx, "missing", ProfileUpdate{
		BrowserInfo: &BrowserInfo{Language: "fr"},
	})
	require.NoError(t, err)
	require.Equal(t, "fr", created.BrowserInfo.Language)
}

func TestEngine_UpdateTaskHistoryAbandonment(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	profile, err := e.CreateProfile(ctx, BrowserInfo{Language: "en"})
	require.NoError(t, err)

	updated, err := e.UpdateTaskHistory(ctx, profile.SessionID, TypeRating, CategoryImage, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, updated.TaskHistory.AbandonedTasks)
	require.Zero(t, updated.TaskHistory.CompletedTasks)

	_, err = e.UpdateTaskHistory(ctx, "missing", TypeRating, CategoryImage, 0, false)
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestEngine_RollupWorkerQuality(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	profile, err := e.CreateProfile(ctx, BrowserInfo{Language: "en"})
	require.NoError(t, err)

	for i, score := range []float64{0.2, 0.8} {
		s := score
		require.NoError(t, e.repo.PutResponse(ctx, &Response{
			ResponseID:   string(rune('a' + i)),
			TaskID:       "t",
			SessionID:    profile.SessionID,
			Data:         json.RawMessage(`"x"`),
			CreatedAt:    time.Now().UnixMilli(),
			Status:       ResponseSubmitted,
			QualityScore: &s,
			QualityLevel: QualityLevelFor(s),
		}))
	}

	n, err := e.RollupWorkerQuality(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := e.GetProfile(ctx, profile.SessionID)
	require.NoError(t, err)
	require.InDelta(t, 0.5, got.TaskHistory.QualityScore, 0.0001)
}

func TestEngine_PurgeOldRecords(t *testing.T) {
	e, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	old := newTestTask("ancient", 3)
	old.CreatedAt = time.Now().Add(-100 * 24 * time.Hour).UnixMilli()
	require.NoError(t, e.repo.PutTask(ctx, old))
	fresh, err := e.CreateTask(ctx, testDraft("technology", 3))
	require.NoError(t, err)

	require.NoError(t, e.repo.PutResponse(ctx, &Response{
		ResponseID: "old-resp",
		TaskID:     "ancient",
		SessionID:  "s1",
		Data:       json.RawMessage(`"x"`),
		CreatedAt:  time.Now().Add(-100 * 24 * time.Hour).UnixMilli(),
		Status:     ResponseSubmitted,
	}))

	idle := NewWorkerProfile(BrowserInfo{Language: "en"}, time.Now())
	idle.LastActive = time.Now().Add(-70 * 24 * time.Hour).UnixMilli()
	require.NoError(t, e.repo.PutProfile(ctx, idle))
	active, err := e.CreateProfile(ctx, BrowserInfo{Language: "en"})
	require.NoError(t, err)

	deleted, err := e.PurgeOldRecords(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	_, err = e.GetTask(ctx, "ancient")
	require.ErrorIs(t, err, ErrTaskNotFound)
	_, err = e.GetResponse(ctx, "old-resp")
	require.ErrorIs(t, err, ErrResponseNotFound)
	_, err = e.GetProfile(ctx, idle.SessionID)
	require.ErrorIs(t, err, ErrProfileNotFound)

	// recent records survive
	_, err = e.GetTask(ctx, fresh.TaskID)
	require.NoError(t, err)
	_, err = e.GetProfile(ctx, active.SessionID)
	require.NoError(t, err)
}
