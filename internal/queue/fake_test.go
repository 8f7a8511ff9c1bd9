package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ffqueue/internal/ffmpeg"
	"ffqueue/internal/statestore"
)

// fakeProcess hands its event channel to the test. The channel is
// unbuffered, so a completed send means the previous event was handled.
type fakeProcess struct {
	command    string
	args       []string
	pid        int
	events     chan ffmpeg.Event
	terminated atomic.Int32
	closeOnce  sync.Once
}

func (p *fakeProcess) Events() <-chan ffmpeg.Event { return p.events }
func (p *fakeProcess) PID() int                    { return p.pid }

func (p *fakeProcess) Terminate() error {
	p.terminated.Add(1)
	return nil
}

func (p *fakeProcess) line(t *testing.T, text string) {
	t.Helper()
	p.send(t, ffmpeg.Event{Kind: ffmpeg.EventLine, Stream: ffmpeg.StreamStderr, Line: text})
}

func (p *fakeProcess) send(t *testing.T, ev ffmpeg.Event) {
	t.Helper()
	select {
	case p.events <- ev:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out delivering event to %s", p.command)
	}
}

// exit reports an exit code, then pushes a barrier line so the exit is
// known to be applied when exit returns.
func (p *fakeProcess) exit(t *testing.T, code int) {
	t.Helper()
	p.send(t, ffmpeg.Event{Kind: ffmpeg.EventExit, ExitCode: code})
	p.line(t, "barrier")
	p.close()
}

func (p *fakeProcess) fail(t *testing.T, err error) {
	t.Helper()
	p.send(t, ffmpeg.Event{Kind: ffmpeg.EventError, Err: err})
	p.line(t, "barrier")
	p.close()
}

func (p *fakeProcess) close() {
	p.closeOnce.Do(func() { close(p.events) })
}

type fakeLauncher struct {
	mu       sync.Mutex
	failing  map[string]bool
	launched []*fakeProcess
	started  chan *fakeProcess
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		failing: map[string]bool{},
		started: make(chan *fakeProcess, 64),
	}
}

func (l *fakeLauncher) Launch(command string, args []string) (ffmpeg.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing[command] {
		return nil, errors.New("exec: \"" + command + "\": executable file not found in $PATH")
	}
	p := &fakeProcess{
		command: command,
		args:    append([]string(nil), args...),
		pid:     1000 + len(l.launched),
		events:  make(chan ffmpeg.Event),
	}
	l.launched = append(l.launched, p)
	l.started <- p
	return p, nil
}

func (l *fakeLauncher) fail(command string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing[command] = true
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

func (l *fakeLauncher) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-l.started:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a process launch")
		return nil
	}
}

// failingStore rejects every write and read.
type failingStore struct {
	saves atomic.Int32
}

func (s *failingStore) Load(key string, v any) (bool, error) {
	return false, fmt.Errorf("load %s: disk unavailable", key)
}

func (s *failingStore) Save(key string, v any) error {
	s.saves.Add(1)
	return fmt.Errorf("save %s: disk unavailable", key)
}

func (s *failingStore) Close() error { return nil }

// loadFailingStore fails Load for one key until that key is quarantined;
// everything else goes to the wrapped store.
type loadFailingStore struct {
	statestore.Store
	failKey string
}

func (s *loadFailingStore) Load(key string, v any) (bool, error) {
	if key == s.failKey {
		return false, fmt.Errorf("parse %s: invalid character '}'", key)
	}
	return s.Store.Load(key, v)
}

type quarantiningStore struct {
	loadFailingStore
}

func (s *quarantiningStore) Quarantine(key string) (string, error) {
	if key != s.failKey {
		return "", fmt.Errorf("quarantine %s: nothing to move", key)
	}
	s.failKey = ""
	return "aside/" + key, nil
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string {
		return fmt.Sprintf("job-%d", n.Add(1))
	}
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
