package hotlabel

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a labeling task.
// Use the exported constants (StatusPending, StatusAssigned, etc.) instead of
// raw strings to avoid typos.
type TaskStatus string

const (
	// StatusPending means the task is created and waiting in the queue.
	StatusPending TaskStatus = "pending"
	// StatusAssigned means the task is leased to a worker session.
	StatusAssigned TaskStatus = "assigned"
	// StatusCompleted means an accepted response was submitted. Terminal.
	StatusCompleted TaskStatus = "completed"
	// StatusRejected means the task was rejected for quality issues. Terminal.
	StatusRejected TaskStatus = "rejected"
	// StatusExpired means a lease ran out before completion; the sweep
	// requeues the task as pending at boosted priority.
	StatusExpired TaskStatus = "expired"
)

// AllStatuses lists every valid task status in a stable order.
var AllStatuses = []TaskStatus{StatusPending, StatusAssigned, StatusCompleted, StatusRejected, StatusExpired}

// String returns the raw string value of the status.
func (s TaskStatus) String() string { return string(s) }

// terminal reports whether a task may never leave this status.
func (s TaskStatus) terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// ParseTaskStatus converts a string into a TaskStatus, returning an error for
// unknown values.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch s {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusAssigned):
		return StatusAssigned, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusRejected):
		return StatusRejected, nil
	case string(StatusExpired):
		return StatusExpired, nil
	default:
		return "", ErrUnknownStatus
	}
}

// TaskCategory is the content modality of a task.
type TaskCategory string

const (
	CategoryText  TaskCategory = "text"
	CategoryImage TaskCategory = "image"
	CategoryVQA   TaskCategory = "vqa"
	CategoryAudio TaskCategory = "audio"
	CategoryCode  TaskCategory = "code"
)

// TaskType is the answer format expected from the worker.
type TaskType string

const (
	TypeMultipleChoice TaskType = "multiple-choice"
	TypeTrueFalse      TaskType = "true-false"
	TypeShortAnswer    TaskType = "short-answer"
	TypeRating         TaskType = "rating"
	TypeVQA            TaskType = "vqa"
)

var validCategories = map[TaskCategory]bool{
	CategoryText: true, CategoryImage: true, CategoryVQA: true, CategoryAudio: true, CategoryCode: true,
}

var validTypes = map[TaskType]bool{
	TypeMultipleChoice: true, TypeTrueFalse: true, TypeShortAnswer: true, TypeRating: true, TypeVQA: true,
}

// TextContent is inline text to label.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent references an image to label.
type ImageContent struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// AudioContent references an audio clip to label.
type AudioContent struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Content is the task payload; exactly the fields relevant to the task
// category are populated.
type Content struct {
	Text  *TextContent  `json:"text,omitempty"`
	Image *ImageContent `json:"image,omitempty"`
	Audio *AudioContent `json:"audio,omitempty"`
}

// Question is what the worker is asked about the content.
type Question struct {
	Text    string            `json:"text"`
	Choices map[string]string `json:"choices,omitempty"`
}

// Requirements optionally restricts who may receive the task.
type Requirements struct {
	Languages         []string `json:"language,omitempty"`
	Topics            []string `json:"topics,omitempty"`
	ExpertiseLevel    int      `json:"expertise_level,omitempty"`
	MinCompletionTime int      `json:"min_completion_time,omitempty"`
}

// Task is a unit of labeling work. It is serialized to JSON and stored in
// Redis keyed by task ID; queue membership is tracked separately by ID.
type Task struct {
	// TaskID is the unique identifier, caller-assignable or generated.
	TaskID string `json:"task_id"`
	// TrackID groups tasks belonging to the same submission batch/publisher.
	TrackID  string       `json:"track_id,omitempty"`
	Language string       `json:"language"`
	Category TaskCategory `json:"category"`
	Type     TaskType     `json:"type"`
	Topic    string       `json:"topic"`
	// Complexity is a 1-5 difficulty scale.
	Complexity   int           `json:"complexity"`
	Content      Content       `json:"content"`
	Question     Question      `json:"task"`
	Requirements *Requirements `json:"requirements,omitempty"`
	// CorrectAnswer, when known, is used by the quality evaluator.
	CorrectAnswer string     `json:"correct_answer,omitempty"`
	Status        TaskStatus `json:"status"`
	// CreatedAt/UpdatedAt are timestamps in Unix milliseconds.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
	// AssignedTo is the worker session holding the lease; set together with
	// AssignedAt or not at all.
	AssignedTo string `json:"assigned_to,omitempty"`
	AssignedAt int64  `json:"assigned_at,omitempty"`
	// ExpiresAt is the lease deadline (ms); set only while status is assigned.
	ExpiresAt   int64 `json:"expires_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`
	// Priority is the current queue score; lower scores are served first.
	Priority float64 `json:"priority"`
}

// TaskDraft is the caller-supplied shape used to create a task.
type TaskDraft struct {
	TaskID        string        `json:"task_id,omitempty"`
	TrackID       string        `json:"track_id,omitempty"`
	Language      string        `json:"language"`
	Category      TaskCategory  `json:"category"`
	Type          TaskType      `json:"type"`
	Topic         string        `json:"topic"`
	Complexity    int           `json:"complexity"`
	Content       Content       `json:"content"`
	Question      Question      `json:"task"`
	Requirements  *Requirements `json:"requirements,omitempty"`
	CorrectAnswer string        `json:"correct_answer,omitempty"`
}

// validate rejects malformed drafts before anything touches the store.
func (d *TaskDraft) validate() error {
	if d.Language == "" || d.Topic == "" || d.Question.Text == "" {
		return ErrInvalidTask
	}
	if !validCategories[d.Category] || !validTypes[d.Type] {
		return ErrInvalidTask
	}
	if d.Complexity < 1 || d.Complexity > 5 {
		return ErrInvalidTask
	}
	return nil
}

// materialize builds a pending Task from the draft, generating IDs as needed.
func (d *TaskDraft) materialize(now time.Time) *Task {
	id := d.TaskID
	if id == "" {
		id = uuid.NewString()
	}
	track := d.TrackID
	if track == "" {
		track = uuid.NewString()
	}
	ms := now.UnixMilli()
	return &Task{
		TaskID:        id,
		TrackID:       track,
		Language:      d.Language,
		Category:      d.Category,
		Type:          d.Type,
		Topic:         d.Topic,
		Complexity:    d.Complexity,
		Content:       d.Content,
		Question:      d.Question,
		Requirements:  d.Requirements,
		CorrectAnswer: d.CorrectAnswer,
		Status:        StatusPending,
		CreatedAt:     ms,
		UpdatedAt:     ms,
		Priority:      basePriority(d.Complexity),
	}
}

// basePriority computes the creation-time queue score. Lower scores are served
// first, so high-complexity tasks (base 0) reach workers before easy ones.
func basePriority(complexity int) float64 {
	return float64(10 - 2*complexity)
}
