package keys

// Package keys centralizes Redis key construction.
// It is kept in internal to avoid leaking key formats to public API.

func Task(id string) string     { return "task:" + id }
func Profile(id string) string  { return "user:" + id }
func Response(id string) string { return "response:" + id }

// Queue is the priority sorted set: members are task IDs, scores are priority
// values (lower served first).
const Queue = "queue:tasks"

// Leases is a ZSET index of active leases: members are task IDs, scores are
// absolute lease expiry timestamps in ms. The sweep ranges it by score
// instead of scanning every task record.
const Leases = "queue:leases"

// Stat returns a counter key under the stats namespace.
func Stat(name string) string { return "stats:" + name }

// TaskResponses is the per-task response counter consumed by the rebalancer.
func TaskResponses(taskID string) string { return "stats:task:" + taskID + ":responses" }

// TaskIndex is a ZSET of all task IDs scored by creation time (ms). It
// replaces KEYS scans for listing and retention cleanup.
const TaskIndex = "index:tasks"

// ResponseIndex is a ZSET of all response IDs scored by creation time (ms).
const ResponseIndex = "index:responses"

// ProfileIndex is a ZSET of all session IDs scored by last-active time (ms).
const ProfileIndex = "index:profiles"

// SessionResponses is a per-session ZSET of response IDs scored by creation
// time (ms), used by the quality rollup.
func SessionResponses(sessionID string) string { return "session:" + sessionID + ":responses" }

// Feedback returns the key for reviewer feedback on a response.
func Feedback(responseID, feedbackType string) string {
	return "feedback:" + responseID + ":" + feedbackType
}
