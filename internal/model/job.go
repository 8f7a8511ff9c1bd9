package model

import (
	"strings"
	"time"
)

const (
	TypeOptimize = "optimize"
	TypeTrim     = "trim"
	TypeConvert  = "convert"
	TypeMerge    = "merge"
	TypeAudio    = "audio"
)

const (
	DefaultLogLimit     = 2000
	DefaultHistoryLimit = 50
)

// View selects which collection a front-end renders. It is presentation
// state only and never persisted.
type View string

const (
	ViewActive  View = "active"
	ViewHistory View = "history"
)

// Request is what a caller hands to the queue: a fully formed invocation.
type Request struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	Output  string   `json:"output,omitempty" yaml:"output"`
}

// Job is the persistable job record. It never carries a live process handle.
type Job struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Command          string   `json:"command"`
	Args             []string `json:"args"`
	Output           string   `json:"output,omitempty"`
	Status           string   `json:"status"`
	Progress         int      `json:"progress"`
	Info             string   `json:"info"`
	Logs             []string `json:"logs"`
	ExpectedDuration *float64 `json:"expected_duration,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	StartedAt        string   `json:"started_at,omitempty"`
	FinishedAt       string   `json:"finished_at,omitempty"`
	CompletedAt      string   `json:"completed_at,omitempty"`
}

func NewJob(id string, req Request, now time.Time) Job {
	return Job{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Type:      strings.ToLower(strings.TrimSpace(req.Type)),
		Command:   req.Command,
		Args:      append([]string(nil), req.Args...),
		Output:    req.Output,
		Status:    StatusPending,
		Progress:  0,
		Info:      InfoWaiting,
		Logs:      []string{},
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
}

// Request returns the caller-supplied half of the record, used by retry.
func (j Job) Request() Request {
	return Request{
		Name:    j.Name,
		Type:    j.Type,
		Command: j.Command,
		Args:    append([]string(nil), j.Args...),
		Output:  j.Output,
	}
}

func (j Job) Clone() Job {
	out := j
	out.Args = append([]string(nil), j.Args...)
	out.Logs = append([]string(nil), j.Logs...)
	if j.ExpectedDuration != nil {
		d := *j.ExpectedDuration
		out.ExpectedDuration = &d
	}
	return out
}

// AppendLog pushes a line and evicts the oldest lines beyond limit.
func (j *Job) AppendLog(line string, limit int) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if len(j.Logs) < limit {
		j.Logs = append(j.Logs, line)
		return
	}
	// full: shift left in place, no reallocation
	n := copy(j.Logs, j.Logs[len(j.Logs)-limit+1:])
	j.Logs = append(j.Logs[:n], line)
}

func (j *Job) TrimLogs(limit int) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if over := len(j.Logs) - limit; over > 0 {
		j.Logs = append(j.Logs[:0:0], j.Logs[over:]...)
	}
	if j.Logs == nil {
		j.Logs = []string{}
	}
}

func (j Job) DisplayName() string {
	if strings.TrimSpace(j.Name) != "" {
		return j.Name
	}
	return j.Command
}

func (j Job) HasExpectedDuration() bool {
	return j.ExpectedDuration != nil
}
