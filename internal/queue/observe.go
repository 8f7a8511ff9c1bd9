package queue

import "ffqueue/internal/model"

type Summary struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	History    int `json:"history"`
}

// Subscribe returns a coalescing change signal: at most one notification is
// buffered, so slow observers see the latest state rather than every step.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan struct{}, 1)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notifyLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Jobs returns copies of the queue records in queue order.
func (m *Manager) Jobs() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Job, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, e.job.Clone())
	}
	return out
}

// History returns copies of the archived records, newest first.
func (m *Manager) History() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Job, 0, len(m.history))
	for _, j := range m.history {
		out = append(out, j.Clone())
	}
	return out
}

// Job looks id up in the queue first, then in history.
func (m *Manager) Job(id string) (model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx := m.indexLocked(id); idx >= 0 {
		return m.queue[idx].job.Clone(), true
	}
	for _, j := range m.history {
		if j.ID == id {
			return j.Clone(), true
		}
	}
	return model.Job{}, false
}

func (m *Manager) Active() (model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return model.Job{}, false
	}
	return m.active.job.Clone(), true
}

// Idle reports whether nothing is running and nothing is waiting to run.
func (m *Manager) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return false
	}
	if m.closed {
		return true
	}
	return m.firstPendingLocked() == nil
}

func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summarize(jobsOf(m.queue), len(m.history))
}

func jobsOf(entries []*entry) []model.Job {
	out := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.job)
	}
	return out
}

func Summarize(jobs []model.Job, history int) Summary {
	s := Summary{History: history}
	for _, j := range jobs {
		switch j.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusProcessing:
			s.Processing++
		case model.StatusDone:
			s.Done++
		case model.StatusFailed:
			s.Failed++
		case model.StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}
