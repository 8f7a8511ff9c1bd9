// Package queue owns the job queue: a FIFO of job records driven through a
// single worker slot, a bounded history of archived records, and their
// persistence.
package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ffqueue/internal/ffmpeg"
	"ffqueue/internal/model"
	"ffqueue/internal/statestore"
)

// entry is the in-memory wrapper around a persistable record. proc is set
// only while the job owns the worker and is never serialized.
type entry struct {
	job  model.Job
	proc ffmpeg.Process
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

func WithLogLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.logLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

type Manager struct {
	launcher     ffmpeg.Launcher
	store        statestore.Store
	logger       *slog.Logger
	historyLimit int
	logLimit     int
	now          func() time.Time
	newID        func() string

	mu      sync.Mutex
	queue   []*entry
	history []model.Job
	active  *entry
	view    model.View
	closed  bool
	// held keys failed to load and must not be overwritten
	held    map[string]bool
	subs    map[int]chan struct{}
	nextSub int
}

func New(launcher ffmpeg.Launcher, store statestore.Store, opts ...Option) *Manager {
	m := &Manager{
		launcher:     launcher,
		store:        store,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		historyLimit: model.DefaultHistoryLimit,
		logLimit:     model.DefaultLogLimit,
		now:          time.Now,
		newID:        uuid.NewString,
		history:      []model.Job{},
		view:         model.ViewActive,
		subs:         make(map[int]chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Enqueue appends a pending job and starts it if the worker is idle. It
// never blocks on the process and never fails: a malformed request surfaces
// later as a failed job.
func (m *Manager) Enqueue(req model.Request) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueLocked(req)
}

func (m *Manager) enqueueLocked(req model.Request) string {
	job := model.NewJob(m.newID(), req, m.now())
	m.queue = append(m.queue, &entry{job: job})
	m.logger.Info("job enqueued", "job_id", job.ID, "name", job.Name, "type", job.Type, "command", job.Command)
	m.persistLocked()
	m.notifyLocked()
	m.processNextLocked()
	return job.ID
}

// Retry enqueues a fresh copy of a job that is still in the queue. The
// original record is left as it is. ok is false when id is not in the
// queue, archived jobs included.
func (m *Manager) Retry(id string) (newID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return "", false
	}
	req := m.queue[idx].job.Request()
	m.logger.Info("job retried", "job_id", id)
	return m.enqueueLocked(req), true
}

// CancelOrRemove cancels a processing job, archives a terminal one, and
// drops a pending one. ok is false when id is not in the queue.
func (m *Manager) CancelOrRemove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return false
	}
	e := m.queue[idx]

	switch {
	case e.job.Status == model.StatusProcessing:
		if e.proc != nil {
			if err := e.proc.Terminate(); err != nil {
				m.logger.Warn("terminate failed", "job_id", id, "error", err)
			}
		}
		// optimistic: the record is cancelled now, late exit events are dropped
		m.finishLocked(e, model.StatusCancelled, model.InfoCancelled)
		m.processNextLocked()
	case model.IsTerminal(e.job.Status):
		m.archiveLocked(e.job)
		m.removeLocked(idx)
		m.persistLocked()
		m.notifyLocked()
	default:
		m.removeLocked(idx)
		m.logger.Info("pending job removed", "job_id", id)
		m.persistLocked()
		m.notifyLocked()
	}
	return true
}

// ArchiveCompleted moves every terminal job into history and returns how
// many were moved.
func (m *Manager) ArchiveCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.queue[:0]
	moved := 0
	for _, e := range m.queue {
		if e.job.Status == model.StatusPending || e.job.Status == model.StatusProcessing {
			kept = append(kept, e)
			continue
		}
		m.archiveLocked(e.job)
		moved++
	}
	for i := len(kept); i < len(m.queue); i++ {
		m.queue[i] = nil
	}
	m.queue = kept
	if moved > 0 {
		m.persistLocked()
		m.notifyLocked()
	}
	return moved
}

func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = []model.Job{}
	m.persistHistoryLocked()
	m.notifyLocked()
}

func (m *Manager) SetView(v model.View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v != model.ViewHistory {
		v = model.ViewActive
	}
	if m.view == v {
		return
	}
	m.view = v
	m.notifyLocked()
}

func (m *Manager) View() model.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Shutdown kills the running process, marks its job cancelled and stops
// the queue from starting further jobs. Pending jobs stay pending on disk
// and are failed as interrupted by the next Restore.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if e := m.active; e != nil {
		if e.proc != nil {
			if err := e.proc.Terminate(); err != nil {
				m.logger.Warn("terminate failed", "job_id", e.job.ID, "error", err)
			}
		}
		m.finishLocked(e, model.StatusCancelled, model.InfoCancelled)
	}
	m.persistLocked()
	m.notifyLocked()
}

// Wait blocks until no job is pending or processing, or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	ch, cancel := m.Subscribe()
	defer cancel()
	for {
		if m.Idle() {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) processNextLocked() {
	for m.active == nil && !m.closed {
		e := m.firstPendingLocked()
		if e == nil {
			return
		}
		m.startLocked(e)
	}
}

func (m *Manager) firstPendingLocked() *entry {
	for _, e := range m.queue {
		if e.job.Status == model.StatusPending {
			return e
		}
	}
	return nil
}

func (m *Manager) startLocked(e *entry) {
	if err := model.TransitionJobStatus(&e.job, model.StatusProcessing, model.InfoStarting); err != nil {
		m.logger.Error("cannot start job", "job_id", e.job.ID, "error", err)
		e.job.Status = model.StatusFailed
		e.job.Info = model.InfoError
		return
	}
	e.job.StartedAt = m.now().UTC().Format(time.RFC3339)
	m.active = e
	m.persistLocked()
	m.notifyLocked()

	proc, err := m.launcher.Launch(e.job.Command, e.job.Args)
	if err != nil {
		m.logger.Error("spawn failed", "job_id", e.job.ID, "command", e.job.Command, "error", err)
		e.job.AppendLog(err.Error(), m.logLimit)
		m.finishLocked(e, model.StatusFailed, model.InfoException)
		return
	}
	e.proc = proc
	m.logger.Info("job started", "job_id", e.job.ID, "name", e.job.Name, "pid", proc.PID())
	go m.supervise(e, proc)
}

// finishLocked applies a terminal transition and releases the worker slot
// and the process handle. Callers decide whether to run processNext.
func (m *Manager) finishLocked(e *entry, status, info string) {
	if err := model.TransitionJobStatus(&e.job, status, info); err != nil {
		m.logger.Error("cannot finish job", "job_id", e.job.ID, "error", err)
		return
	}
	switch status {
	case model.StatusDone:
		e.job.Progress = 100
	default:
		e.job.Progress = 0
	}
	e.job.FinishedAt = m.now().UTC().Format(time.RFC3339)
	e.proc = nil
	if m.active == e {
		m.active = nil
	}
	m.logger.Info("job finished", "job_id", e.job.ID, "status", status, "info", info)
	m.persistLocked()
	m.notifyLocked()
}

func (m *Manager) archiveLocked(job model.Job) {
	job.CompletedAt = m.now().UTC().Format(time.RFC3339)
	m.history = append([]model.Job{job}, m.history...)
	if len(m.history) > m.historyLimit {
		m.history = m.history[:m.historyLimit]
	}
}

func (m *Manager) removeLocked(idx int) {
	copy(m.queue[idx:], m.queue[idx+1:])
	m.queue[len(m.queue)-1] = nil
	m.queue = m.queue[:len(m.queue)-1]
}

func (m *Manager) indexLocked(id string) int {
	for i, e := range m.queue {
		if e.job.ID == id {
			return i
		}
	}
	return -1
}
