package queue

import (
	"time"

	"ffqueue/internal/model"
	"ffqueue/internal/statestore"
)

type RestoreReport struct {
	Queued      int `json:"queued"`
	History     int `json:"history"`
	Interrupted int `json:"interrupted"`
	// Quarantined lists where unreadable documents were moved aside.
	Quarantined []string `json:"quarantined,omitempty"`
	// Unreadable lists keys that could be neither read nor moved aside; they
	// are not written for the rest of this session.
	Unreadable []string `json:"unreadable,omitempty"`
}

// Restore loads the persisted queue and history. Any job left pending or
// processing by a previous process lifetime is failed as interrupted; no
// stale processing state survives a restart. A document that cannot be
// read starts its collection empty and is never overwritten: it is moved
// aside when the store supports that, otherwise the key is left untouched.
func (m *Manager) Restore() RestoreReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.logger.Warn("restore skipped: a job is already running")
		return RestoreReport{Queued: len(m.queue), History: len(m.history)}
	}

	report := RestoreReport{}
	m.held = map[string]bool{}
	var jobs []model.Job
	if !m.loadLocked(statestore.KeyQueue, &jobs, &report) {
		jobs = nil
	}
	var history []model.Job
	if !m.loadLocked(statestore.KeyHistory, &history, &report) {
		history = nil
	}

	now := m.now().UTC().Format(time.RFC3339)
	m.queue = make([]*entry, 0, len(jobs))
	for _, job := range jobs {
		if model.MarkInterrupted(&job) {
			job.FinishedAt = now
			report.Interrupted++
			m.logger.Warn("job interrupted by restart", "job_id", job.ID, "name", job.Name)
		}
		job.TrimLogs(m.logLimit)
		m.queue = append(m.queue, &entry{job: job})
	}

	if len(history) > m.historyLimit {
		history = history[:m.historyLimit]
	}
	m.history = make([]model.Job, 0, len(history))
	for _, job := range history {
		job.TrimLogs(m.logLimit)
		m.history = append(m.history, job)
	}

	report.Queued = len(m.queue)
	report.History = len(m.history)
	m.logger.Info("state restored", "queued", report.Queued, "history", report.History, "interrupted", report.Interrupted)

	m.persistLocked()
	m.notifyLocked()
	m.processNextLocked()
	return report
}

// loadLocked reports whether key was read cleanly (absent counts as clean).
func (m *Manager) loadLocked(key string, v any, report *RestoreReport) bool {
	_, err := m.store.Load(key, v)
	if err == nil {
		return true
	}
	m.logger.Error("restore failed", "key", key, "error", err)
	if q, ok := m.store.(statestore.Quarantiner); ok {
		aside, qerr := q.Quarantine(key)
		if qerr == nil {
			m.logger.Warn("unreadable state moved aside", "key", key, "path", aside)
			report.Quarantined = append(report.Quarantined, aside)
			return false
		}
		m.logger.Error("quarantine failed", "key", key, "error", qerr)
	}
	m.held[key] = true
	m.logger.Warn("unreadable state left untouched; changes to it are not saved this session", "key", key)
	report.Unreadable = append(report.Unreadable, key)
	return false
}

// persistence is best-effort: failures are logged and never block the queue.

func (m *Manager) persistLocked() {
	m.persistQueueLocked()
	m.persistHistoryLocked()
}

func (m *Manager) persistQueueLocked() {
	if m.held[statestore.KeyQueue] {
		return
	}
	jobs := make([]model.Job, 0, len(m.queue))
	for _, e := range m.queue {
		jobs = append(jobs, e.job)
	}
	if err := m.store.Save(statestore.KeyQueue, jobs); err != nil {
		m.logger.Warn("persist queue failed", "error", err)
	}
}

func (m *Manager) persistHistoryLocked() {
	if m.held[statestore.KeyHistory] {
		return
	}
	if err := m.store.Save(statestore.KeyHistory, m.history); err != nil {
		m.logger.Warn("persist history failed", "error", err)
	}
}
