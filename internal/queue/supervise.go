package queue

import (
	"fmt"

	"ffqueue/internal/ffmpeg"
	"ffqueue/internal/model"
	"ffqueue/internal/progress"
)

// supervise is the one routine that consumes a spawned process's events.
// It keeps draining after the job stops owning the process so the child
// never blocks on a full channel.
func (m *Manager) supervise(e *entry, proc ffmpeg.Process) {
	terminal := false
	for ev := range proc.Events() {
		if ev.Kind != ffmpeg.EventLine {
			terminal = true
		}
		m.handleEvent(e, proc, ev)
	}
	if !terminal {
		m.handleEvent(e, proc, ffmpeg.Event{
			Kind: ffmpeg.EventError,
			Err:  fmt.Errorf("process output closed without an exit status"),
		})
	}
}

func (m *Manager) handleEvent(e *entry, proc ffmpeg.Process, ev ffmpeg.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// cancelled (or otherwise finished) jobs no longer own the process;
	// a late exit must not overwrite their state
	if e.job.Status != model.StatusProcessing || e.proc != proc {
		return
	}

	switch ev.Kind {
	case ffmpeg.EventLine:
		e.job.AppendLog(ev.Line, m.logLimit)
		if progress.Apply(&e.job, ev.Line) {
			m.persistQueueLocked()
		}
		m.notifyLocked()
	case ffmpeg.EventExit:
		if ev.ExitCode == 0 {
			m.finishLocked(e, model.StatusDone, model.InfoDone)
		} else {
			m.finishLocked(e, model.StatusFailed, model.ExitCodeInfo(ev.ExitCode))
		}
		m.processNextLocked()
	case ffmpeg.EventError:
		if ev.Err != nil {
			e.job.AppendLog(ev.Err.Error(), m.logLimit)
		}
		m.logger.Warn("process error", "job_id", e.job.ID, "error", ev.Err)
		m.finishLocked(e, model.StatusFailed, model.InfoError)
		m.processNextLocked()
	}
}
