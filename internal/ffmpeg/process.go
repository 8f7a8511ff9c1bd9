package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

type EventKind int

const (
	EventLine EventKind = iota
	EventExit
	EventError
)

// Event is the single currency of a supervised process: any number of
// EventLine values followed by exactly one EventExit or EventError, after
// which the channel is closed.
type Event struct {
	Kind     EventKind
	Stream   OutputStream
	Line     string
	ExitCode int
	Err      error
}

type Process interface {
	Events() <-chan Event
	// Terminate kills the process. It is a no-op once the process exited.
	Terminate() error
	PID() int
}

type Launcher interface {
	Launch(command string, args []string) (Process, error)
}

// ExecLauncher spawns real executables. Binaries maps command aliases such
// as "ffmpeg" to the binary that should run in their place.
type ExecLauncher struct {
	Binaries map[string]string
	Dir      string
	Env      []string
}

func (l ExecLauncher) Resolve(command string) string {
	name := strings.TrimSpace(command)
	if path := strings.TrimSpace(l.Binaries[name]); path != "" {
		return path
	}
	return name
}

func (l ExecLauncher) Launch(command string, args []string) (Process, error) {
	bin := l.Resolve(command)
	if bin == "" {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.Command(bin, args...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	p := &execProcess{
		cmd:    cmd,
		events: make(chan Event, 64),
	}
	go p.supervise(stdoutPipe, stderrPipe)
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	events chan Event

	mu     sync.Mutex
	exited bool
}

func (p *execProcess) Events() <-chan Event {
	return p.events
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *execProcess) supervise(stdout, stderr io.Reader) {
	defer close(p.events)

	var wg sync.WaitGroup
	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			p.events <- Event{Kind: EventLine, Stream: stream, Line: scanner.Text()}
		}
		// keep the pipe drained so the child never blocks on a full buffer
		_, _ = io.Copy(io.Discard, r)
	}

	wg.Add(2)
	go read(StreamStdout, stdout)
	go read(StreamStderr, stderr)
	wg.Wait()

	err := p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()

	p.events <- exitEvent(err)
}

func exitEvent(err error) Event {
	if err == nil {
		return Event{Kind: EventExit, ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return Event{Kind: EventExit, ExitCode: code}
		}
		// terminated by a signal: no exit code to report
		return Event{Kind: EventError, Err: err}
	}
	return Event{Kind: EventError, Err: err}
}

// ffmpeg rewrites its status line with \r, so both terminate a line.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
