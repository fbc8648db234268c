package hotlabel

import (
	"time"

	"github.com/google/uuid"
)

// BrowserInfo holds the browser-derived attributes that identify and describe
// an anonymous worker session.
type BrowserInfo struct {
	UserAgent          string   `json:"user_agent"`
	Language           string   `json:"language"`
	PreferredLanguages []string `json:"preferred_languages,omitempty"`
	Timezone           string   `json:"timezone,omitempty"`
	ScreenResolution   string   `json:"screen_resolution,omitempty"`
	Platform           string   `json:"platform,omitempty"`
	IsMobile           bool     `json:"is_mobile,omitempty"`
}

// InterestProfile tracks per-category and per-topic interest scores (0-1).
type InterestProfile struct {
	Categories map[string]float64 `json:"categories,omitempty"`
	Topics     map[string]float64 `json:"topics,omitempty"`
}

// UpdateInterest folds a new signal into the category score with an
// exponential moving average. Unknown categories start at 0.5.
func (p *InterestProfile) UpdateInterest(category string, score, weight float64) {
	if p.Categories == nil {
		p.Categories = make(map[string]float64)
	}
	current, ok := p.Categories[category]
	if !ok {
		current = 0.5
	}
	p.Categories[category] = current*(1-weight) + score*weight
}

// ExpertiseProfile tracks domain expertise, language proficiency and a general
// technical level, all on a 0-1 scale.
type ExpertiseProfile struct {
	Domains        map[string]float64 `json:"domains,omitempty"`
	Languages      map[string]float64 `json:"languages,omitempty"`
	TechnicalLevel float64            `json:"technical_level"`
}

// UpdateExpertise folds a new signal into the domain score with an exponential
// moving average. Unknown domains start at 0.5.
func (p *ExpertiseProfile) UpdateExpertise(domain string, score, weight float64) {
	if p.Domains == nil {
		p.Domains = make(map[string]float64)
	}
	current, ok := p.Domains[domain]
	if !ok {
		current = 0.5
	}
	p.Domains[domain] = current*(1-weight) + score*weight
}

// TaskHistory summarizes a worker's past labeling activity.
type TaskHistory struct {
	CompletedTasks          int                `json:"completed_tasks"`
	AbandonedTasks          int                `json:"abandoned_tasks"`
	AverageCompletionTimeMs float64            `json:"average_completion_time_ms,omitempty"`
	TaskTypesCompleted      map[string]int     `json:"task_types_completed,omitempty"`
	CategoriesCompleted     map[string]int     `json:"categories_completed,omitempty"`
	// QualityScore is the rolling 0-1 quality of the worker's responses,
	// recomputed by the periodic rollup job.
	QualityScore float64 `json:"quality_score"`
}

// Record updates the history with the outcome of one task.
func (h *TaskHistory) Record(taskType TaskType, category TaskCategory, completionTimeMs int, completed bool) {
	if !completed {
		h.AbandonedTasks++
		return
	}
	h.CompletedTasks++
	if h.TaskTypesCompleted == nil {
		h.TaskTypesCompleted = make(map[string]int)
	}
	if h.CategoriesCompleted == nil {
		h.CategoriesCompleted = make(map[string]int)
	}
	h.TaskTypesCompleted[string(taskType)]++
	h.CategoriesCompleted[string(category)]++
	if h.CompletedTasks == 1 {
		h.AverageCompletionTimeMs = float64(completionTimeMs)
	} else {
		n := float64(h.CompletedTasks)
		h.AverageCompletionTimeMs = (h.AverageCompletionTimeMs*(n-1) + float64(completionTimeMs)) / n
	}
}

// BehavioralProfile captures engagement signals used as weak matching input.
type BehavioralProfile struct {
	ActiveHours          []int   `json:"active_hours,omitempty"`
	AverageSessionLength float64 `json:"average_session_length,omitempty"`
	PageEngagement       float64 `json:"page_engagement"`
	ClickPatternScore    float64 `json:"click_pattern_score"`
	VisitFrequency       string  `json:"visit_frequency,omitempty"`
}

// WorkerProfile is the full picture of an anonymous worker session. It is
// created once and afterwards mutated only incrementally via EMA updates.
type WorkerProfile struct {
	SessionID   string            `json:"session_id"`
	BrowserInfo BrowserInfo       `json:"browser_info"`
	Interests   InterestProfile   `json:"interests"`
	Expertise   ExpertiseProfile  `json:"expertise"`
	TaskHistory TaskHistory       `json:"task_history"`
	Behavioral  BehavioralProfile `json:"behavioral"`
	RecentSites []string          `json:"recent_sites,omitempty"`
	// Timestamps in Unix milliseconds.
	CreatedAt  int64 `json:"created_at"`
	UpdatedAt  int64 `json:"updated_at"`
	LastActive int64 `json:"last_active"`
}

// NewWorkerProfile creates a fresh profile with neutral defaults for the
// given browser fingerprint.
func NewWorkerProfile(info BrowserInfo, now time.Time) *WorkerProfile {
	ms := now.UnixMilli()
	return &WorkerProfile{
		SessionID:   uuid.NewString(),
		BrowserInfo: info,
		Expertise:   ExpertiseProfile{TechnicalLevel: 0.5},
		TaskHistory: TaskHistory{QualityScore: 0.5},
		Behavioral:  BehavioralProfile{PageEngagement: 0.5, ClickPatternScore: 0.5},
		CreatedAt:   ms,
		UpdatedAt:   ms,
		LastActive:  ms,
	}
}

// ProfileUpdate carries incremental signals from the worker's browser.
// Zero-valued fields are ignored.
type ProfileUpdate struct {
	BrowserInfo         *BrowserInfo   `json:"browser_info,omitempty"`
	RecentSites         []string       `json:"recent_sites,omitempty"`
	CurrentSiteCategory string         `json:"current_site_category,omitempty"`
	CurrentPageTopic    string         `json:"current_page_topic,omitempty"`
	TimeOnPage          int            `json:"time_on_page,omitempty"`
	InteractionDepth    *float64       `json:"interaction_depth,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// apply folds an update into the profile. Interest scoring mirrors time on
// page and scroll depth; metadata carries weaker domain/engagement signals.
func (u *ProfileUpdate) apply(p *WorkerProfile, now time.Time) {
	ms := now.UnixMilli()
	p.UpdatedAt = ms
	p.LastActive = ms

	if u.BrowserInfo != nil {
		p.BrowserInfo = *u.BrowserInfo
	}
	if len(u.RecentSites) > 0 {
		p.RecentSites = u.RecentSites
	}

	if u.CurrentSiteCategory != "" {
		score := 0.7
		switch {
		case u.TimeOnPage > 120:
			score = 0.9
		case u.TimeOnPage > 60:
			score = 0.8
		case u.TimeOnPage > 0 && u.TimeOnPage < 15:
			score = 0.5
		}
		if u.InteractionDepth != nil {
			score *= 0.5 + *u.InteractionDepth*0.5
		}
		p.Interests.UpdateInterest(u.CurrentSiteCategory, score, 0.1)
	}

	if u.Metadata != nil {
		applyProfileMetadata(p, u.Metadata)
	}
}

// applyProfileMetadata processes loosely-typed browser signals. Entries with
// unexpected shapes are skipped rather than rejected.
func applyProfileMetadata(p *WorkerProfile, md map[string]any) {
	if lang, ok := md["detected_language"].(string); ok && lang != "" {
		if p.Expertise.Languages == nil {
			p.Expertise.Languages = make(map[string]float64)
		}
		if _, exists := p.Expertise.Languages[lang]; !exists {
			p.Expertise.Languages[lang] = 0.7
		}
	}

	if terms, ok := md["technical_terms"].([]any); ok {
		for _, raw := range terms {
			term, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			domain, _ := term["domain"].(string)
			if domain == "" {
				continue
			}
			confidence := 0.5
			if c, ok := term["confidence"].(float64); ok {
				confidence = c
			}
			p.Expertise.UpdateExpertise(domain, confidence, 0.03)
		}
	}

	if hour, ok := md["active_hour"].(float64); ok {
		h := int(hour)
		found := false
		for _, existing := range p.Behavioral.ActiveHours {
			if existing == h {
				found = true
				break
			}
		}
		if !found {
			p.Behavioral.ActiveHours = append(p.Behavioral.ActiveHours, h)
			if len(p.Behavioral.ActiveHours) > 5 {
				p.Behavioral.ActiveHours = p.Behavioral.ActiveHours[len(p.Behavioral.ActiveHours)-5:]
			}
		}
	}

	if signals, ok := md["engagement_signals"].(map[string]any); ok {
		if depth, ok := signals["scroll_depth"].(float64); ok {
			p.Behavioral.PageEngagement = p.Behavioral.PageEngagement*0.7 + depth*0.3
		}
		if pattern, ok := signals["click_pattern"].(float64); ok {
			p.Behavioral.ClickPatternScore = p.Behavioral.ClickPatternScore*0.7 + pattern*0.3
		}
	}
}
