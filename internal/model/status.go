package model

import "fmt"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

const (
	InfoWaiting     = "Waiting..."
	InfoStarting    = "Starting..."
	InfoDone        = "Done"
	InfoCancelled   = "Cancelled"
	InfoError       = "Error"
	InfoException   = "Exception"
	InfoInterrupted = "Interrupted (Restarted)"
)

// Terminal states have no outgoing edges; a retry builds a new record.
var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusDone:      true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusDone:      {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func IsTerminal(status string) bool {
	switch status {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(job *Job, toStatus string, info string) error {
	from := job.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s name=%s)", from, toStatus, job.ID, job.Name)
	}
	job.Status = toStatus
	job.Info = info
	return nil
}

// MarkInterrupted fails a record left pending or processing by a previous
// process lifetime. It is a recovery rewrite, not a lifecycle transition,
// so it bypasses the transition table. Reports whether the record changed.
func MarkInterrupted(job *Job) bool {
	if job.Status != StatusPending && job.Status != StatusProcessing {
		return false
	}
	job.Status = StatusFailed
	job.Info = InfoInterrupted
	job.Progress = 0
	return true
}

func ExitCodeInfo(code int) string {
	return fmt.Sprintf("Exit Code: %d", code)
}
