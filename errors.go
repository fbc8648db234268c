package hotlabel

import "errors"

// ErrTaskNotFound is returned when a task with the specified ID does not exist.
var ErrTaskNotFound = errors.New("hotlabel: task not found")

// ErrResponseNotFound is returned when a response with the specified ID does not exist.
var ErrResponseNotFound = errors.New("hotlabel: response not found")

// ErrProfileNotFound is returned when no worker profile exists for a session ID.
var ErrProfileNotFound = errors.New("hotlabel: worker profile not found")

// ErrTaskLeased is returned when a task is already leased to a different
// worker. It is a denial, not a failure; the caller should request again.
var ErrTaskLeased = errors.New("hotlabel: task leased to another worker")

// ErrTaskClosed is returned when an operation targets a task in a terminal
// status (completed or rejected).
var ErrTaskClosed = errors.New("hotlabel: task already closed")

// ErrNoTaskAvailable is returned when the candidate window holds no task for
// the requesting worker.
var ErrNoTaskAvailable = errors.New("hotlabel: no task available")

// ErrNotAssignee is returned when a response is submitted by a session that
// does not hold the task's lease.
var ErrNotAssignee = errors.New("hotlabel: task not assigned to this session")

// ErrInvalidTask is returned when a task draft fails validation.
var ErrInvalidTask = errors.New("hotlabel: invalid task")

// ErrInvalidResponse is returned when a response draft fails validation.
var ErrInvalidResponse = errors.New("hotlabel: invalid response")

// ErrUnknownStatus is returned when an invalid task status string is parsed.
var ErrUnknownStatus = errors.New("hotlabel: unknown task status")
