package hotlabel

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Match is one scored candidate from a ranking run, with the human-readable
// reasons for the score.
type Match struct {
	TaskID    string   `json:"task_id"`
	SessionID string   `json:"session_id"`
	Score     float64  `json:"match_score"`
	Reasons   []string `json:"match_reasons"`
}

// Matcher scores worker profiles against a bounded window of the queue.
// It never mutates state; assignment is a separate, explicit call.
type Matcher struct {
	repo   *Repository
	queue  *PriorityQueue
	window int
	log    Logger
}

// NewMatcher wires a matcher over the given window size. The window bounds
// matching cost: only the top-N queued tasks are considered, trading global
// optimality for latency.
func NewMatcher(repo *Repository, queue *PriorityQueue, window int, log Logger) *Matcher {
	if log == nil {
		log = nopLogger{}
	}
	return &Matcher{repo: repo, queue: queue, window: window, log: log}
}

// FindBest returns the single best-scoring task in the candidate window for
// the profile, or nil if the window is empty. Ties keep the first-seen
// candidate, which makes the result deterministic for a fixed window.
func (m *Matcher) FindBest(ctx context.Context, profile *WorkerProfile) (*Task, error) {
	candidates, err := m.candidates(ctx)
	if err != nil {
		return nil, err
	}
	var best *Task
	bestScore := math.Inf(-1)
	for _, t := range candidates {
		score, _ := scoreTask(profile, t, false)
		if score > bestScore {
			best = t
			bestScore = score
		}
	}
	return best, nil
}

// Rank scores every candidate in the window and returns them sorted
// descending by score (stable for equal scores), truncated to limit.
func (m *Matcher) Rank(ctx context.Context, profile *WorkerProfile, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 5
	}
	candidates, err := m.candidates(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(candidates))
	for _, t := range candidates {
		score, reasons := scoreTask(profile, t, true)
		matches = append(matches, Match{
			TaskID:    t.TaskID,
			SessionID: profile.SessionID,
			Score:     score,
			Reasons:   reasons,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// candidates loads the task records behind the top-of-queue window. IDs whose
// record cannot be loaded are skipped; the queue and the store converge via
// the periodic jobs.
func (m *Matcher) candidates(ctx context.Context) ([]*Task, error) {
	ids, err := m.queue.PeekTop(ctx, m.window)
	if err != nil {
		return nil, err
	}
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := m.repo.GetTask(ctx, id)
		if err != nil {
			m.log.Debugf("matcher: skipping candidate %s: %v", id, err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// topExpertiseDomains returns up to five domains by descending score. Ties
// fall back to map iteration order, which is not specified.
func topExpertiseDomains(profile *WorkerProfile) []string {
	type ds struct {
		domain string
		score  float64
	}
	all := make([]ds, 0, len(profile.Expertise.Domains))
	for d, s := range profile.Expertise.Domains {
		all = append(all, ds{d, s})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	n := len(all)
	if n > 5 {
		n = 5
	}
	out := make([]string, 0, n)
	for _, e := range all[:n] {
		out = append(out, e.domain)
	}
	return out
}

// scoreTask computes the match score for one task against one profile, with
// reasons only when asked for (the hot FindBest path skips the allocations).
//
// Rules: +2 language match, +3 topic in the top-5 expertise domains, +2 when
// complexity is within 1 of technical_level*5 (otherwise minus the distance),
// +1 each for a previously completed category or type. Scores can go
// negative.
func scoreTask(profile *WorkerProfile, t *Task, withReasons bool) (float64, []string) {
	var score float64
	var reasons []string

	languages := append([]string{profile.BrowserInfo.Language}, profile.BrowserInfo.PreferredLanguages...)
	for _, lang := range languages {
		if t.Language == lang {
			score += 2
			if withReasons {
				reasons = append(reasons, fmt.Sprintf("Language match: %s", t.Language))
			}
			break
		}
	}

	for _, domain := range topExpertiseDomains(profile) {
		if t.Topic == domain {
			score += 3
			if withReasons {
				reasons = append(reasons, fmt.Sprintf("Topic match: %s", t.Topic))
			}
			break
		}
	}

	expertise := profile.Expertise.TechnicalLevel * 5
	diff := math.Abs(float64(t.Complexity) - expertise)
	if diff <= 1 {
		score += 2
		if withReasons {
			reasons = append(reasons, fmt.Sprintf("Complexity suitable: %d vs expertise %.1f", t.Complexity, expertise))
		}
	} else {
		score -= diff
		if withReasons {
			if float64(t.Complexity) > expertise {
				reasons = append(reasons, fmt.Sprintf("Task may be too difficult: %d vs expertise %.1f", t.Complexity, expertise))
			} else {
				reasons = append(reasons, fmt.Sprintf("Task may be too easy: %d vs expertise %.1f", t.Complexity, expertise))
			}
		}
	}

	if _, ok := profile.TaskHistory.CategoriesCompleted[string(t.Category)]; ok {
		score++
		if withReasons {
			reasons = append(reasons, fmt.Sprintf("User has experience with %s tasks", t.Category))
		}
	}
	if _, ok := profile.TaskHistory.TaskTypesCompleted[string(t.Type)]; ok {
		score++
		if withReasons {
			reasons = append(reasons, fmt.Sprintf("User has experience with %s tasks", t.Type))
		}
	}

	return score, reasons
}
