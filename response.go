package hotlabel

import "encoding/json"

// ResponseStatus represents the review state of a submitted response.
type ResponseStatus string

const (
	ResponseSubmitted     ResponseStatus = "submitted"
	ResponsePendingReview ResponseStatus = "pending_review"
	ResponseAccepted      ResponseStatus = "accepted"
	ResponseRejected      ResponseStatus = "rejected"
)

// QualityLevel is the coarse bucket derived from a continuous quality score.
type QualityLevel string

const (
	QualityHigh   QualityLevel = "high"
	QualityMedium QualityLevel = "medium"
	QualityLow    QualityLevel = "low"
	QualitySpam   QualityLevel = "spam"
)

// QualityLevelFor maps a 0-1 quality score to its bucket using the fixed
// thresholds: >=0.8 high, >=0.5 medium, >=0.2 low, else spam.
func QualityLevelFor(score float64) QualityLevel {
	switch {
	case score >= 0.8:
		return QualityHigh
	case score >= 0.5:
		return QualityMedium
	case score >= 0.2:
		return QualityLow
	default:
		return QualitySpam
	}
}

// Response is a worker's answer to one task. It is created on submission,
// scored once by the quality evaluator and otherwise immutable.
type Response struct {
	ResponseID string `json:"response_id"`
	TaskID     string `json:"task_id"`
	SessionID  string `json:"session_id"`
	// PublisherID is the track of the task being answered.
	PublisherID string `json:"publisher_id"`
	// Data is the raw answer payload (string, selection map, etc.).
	Data           json.RawMessage `json:"response_data"`
	ClientMetadata map[string]any  `json:"client_metadata,omitempty"`
	ResponseTimeMs int             `json:"response_time_ms"`
	CreatedAt      int64           `json:"created_at"`
	Status         ResponseStatus  `json:"status"`
	// QualityScore is nil until the evaluator has run.
	QualityScore *float64     `json:"quality_score,omitempty"`
	QualityLevel QualityLevel `json:"quality_level,omitempty"`
	ReviewNotes  string       `json:"review_notes,omitempty"`
}

// ResponseDraft is the caller-supplied shape used to submit a response.
type ResponseDraft struct {
	TaskID         string          `json:"task_id"`
	SessionID      string          `json:"session_id"`
	Data           json.RawMessage `json:"response_data"`
	ClientMetadata map[string]any  `json:"client_metadata,omitempty"`
	ResponseTimeMs int             `json:"response_time_ms"`
}

// validate rejects malformed drafts before anything touches the store.
func (d *ResponseDraft) validate() error {
	if d.TaskID == "" || d.SessionID == "" || len(d.Data) == 0 {
		return ErrInvalidResponse
	}
	if d.ResponseTimeMs < 0 {
		return ErrInvalidResponse
	}
	return nil
}

// Feedback is reviewer input attached to a response after the fact.
type Feedback struct {
	ResponseID   string   `json:"response_id"`
	FeedbackType string   `json:"feedback_type"`
	Score        *float64 `json:"score,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	ReviewerID   string   `json:"reviewer_id,omitempty"`
}
