package hotlabel

import "encoding/json"

// QualityPolicy scores a submitted response against its task, returning a
// value in [0,1]. It is an injection point: the engine never inspects the
// score beyond bucketing it, so consensus- or history-based scorers can
// replace the baseline without touching the queue or lease machinery.
type QualityPolicy interface {
	Evaluate(resp *Response, task *Task) float64
}

// BaselinePolicy is the placeholder heuristic: start at 0.5, dock 0.2 for
// suspiciously fast answers, dock 0.3 when a known correct answer exists and
// the payload doesn't match it exactly, clamp to [0,1].
type BaselinePolicy struct {
	// MinResponseTimeMs is the too-fast threshold. Zero means the default
	// of 1000ms.
	MinResponseTimeMs int
}

// Evaluate implements QualityPolicy.
func (p *BaselinePolicy) Evaluate(resp *Response, task *Task) float64 {
	minMs := p.MinResponseTimeMs
	if minMs == 0 {
		minMs = 1000
	}

	score := 0.5
	if resp.ResponseTimeMs < minMs {
		score -= 0.2
	}
	if task.CorrectAnswer != "" && !answerMatches(resp.Data, task.CorrectAnswer) {
		score -= 0.3
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// answerMatches compares a raw response payload to the known answer. A JSON
// string payload is compared by value; anything else by its raw text. Exact
// match only.
func answerMatches(data json.RawMessage, answer string) bool {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s == answer
	}
	return string(data) == answer
}
