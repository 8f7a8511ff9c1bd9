package cli

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"ffqueue/internal/model"
	"ffqueue/internal/statestore"
)

const fakeFFmpeg = `#!/usr/bin/env bash
set -euo pipefail
out="${@: -1}"
case "$out" in
  *fail*)
    echo "Conversion failed!" >&2
    exit 1
    ;;
esac
printf 'Duration: 00:00:02.00, start: 0.000000\n' >&2
printf 'frame=1 time=00:00:01.00 speed=1x\rframe=2 time=00:00:02.00 speed=1x\n' >&2
touch "$out"
`

// harnessEnv puts a fake ffmpeg on PATH and points the state directory at
// a temp dir. It returns the working directory and the state directory.
func harnessEnv(t *testing.T, backend string) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	fakeBin := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(fakeBin, name), []byte(fakeFFmpeg), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	stateDir := filepath.Join(tmp, "state")
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	t.Setenv("FFQUEUE_STATE_DIR", stateDir)
	t.Setenv("FFQUEUE_STORE", backend)
	t.Setenv("FFQUEUE_LOG_LEVEL", "error")
	if wd, err := os.Getwd(); err != nil {
		t.Fatal(err)
	} else {
		t.Cleanup(func() { _ = os.Chdir(wd) })
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	return tmp, stateDir
}

func loadQueue(t *testing.T, backend, stateDir string) []model.Job {
	t.Helper()
	store, err := statestore.Open(backend, stateDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	var jobs []model.Job
	if _, err := store.Load(statestore.KeyQueue, &jobs); err != nil {
		t.Fatal(err)
	}
	return jobs
}

func TestHarnessAddRunsJobToCompletion(t *testing.T) {
	for _, backend := range []string{statestore.BackendFile, statestore.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir, stateDir := harnessEnv(t, backend)

			if err := Run([]string{"add", "--progress=false", "--type", "optimize", "--", "ffmpeg", "-i", "in.mp4", "-y", "out.mp4"}); err != nil {
				t.Fatalf("add failed: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "out.mp4")); err != nil {
				t.Fatalf("expected output file: %v", err)
			}

			jobs := loadQueue(t, backend, stateDir)
			if len(jobs) != 1 {
				t.Fatalf("expected one persisted job, got %d", len(jobs))
			}
			job := jobs[0]
			if job.Status != model.StatusDone || job.Progress != 100 || job.Name != "out.mp4" || job.Type != model.TypeOptimize {
				t.Fatalf("unexpected job: %+v", job)
			}
			if _, err := os.Stat(filepath.Join(stateDir, ".ffqueue.lock")); !os.IsNotExist(err) {
				t.Fatalf("lock must be released after the command, stat err=%v", err)
			}
		})
	}
}

func TestHarnessRunJobFileReportsFailures(t *testing.T) {
	dir, stateDir := harnessEnv(t, statestore.BackendFile)
	jobsPath := filepath.Join(dir, "jobs.yaml")
	body := `jobs:
  - name: good
    type: convert
    command: ffmpeg
    args: ["-i", "in.mp4", "good.mkv"]
  - name: bad
    type: convert
    command: ffmpeg
    args: ["-i", "in.mp4", "fail.mkv"]
`
	if err := os.WriteFile(jobsPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Run([]string{"run", "--jobs", jobsPath, "--progress=false"})
	if err == nil || !strings.Contains(err.Error(), "1 of 2 job(s) failed") {
		t.Fatalf("expected failure summary error, got %v", err)
	}

	jobs := loadQueue(t, statestore.BackendFile, stateDir)
	if len(jobs) != 2 || jobs[0].Status != model.StatusDone || jobs[1].Info != "Exit Code: 1" {
		t.Fatalf("unexpected persisted queue: %+v", jobs)
	}

	csvPath := filepath.Join(dir, "queue.csv")
	if err := Run([]string{"history", "export", "--queue", "--out", csvPath}); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(raw)), "\n"); lines != 2 {
		t.Fatalf("expected header plus 2 rows, got %d newlines:\n%s", lines, raw)
	}

	if err := Run([]string{"status", "--json"}); err != nil {
		t.Fatalf("status failed: %v", err)
	}
}

func TestHarnessRestartMarksStaleJobsInterrupted(t *testing.T) {
	_, stateDir := harnessEnv(t, statestore.BackendFile)
	store, err := statestore.NewFileStore(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	stale := []model.Job{{ID: "stale", Name: "crashed", Command: "ffmpeg", Status: model.StatusProcessing, Progress: 70, Info: "70%", Logs: []string{}}}
	if err := store.Save(statestore.KeyQueue, stale); err != nil {
		t.Fatal(err)
	}

	if err := Run([]string{"add", "--progress=false", "--", "ffmpeg", "-i", "in.mp4", "after.mp4"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	jobs := loadQueue(t, statestore.BackendFile, stateDir)
	if len(jobs) != 2 {
		t.Fatalf("expected stale plus new job, got %d", len(jobs))
	}
	if jobs[0].Status != model.StatusFailed || jobs[0].Info != model.InfoInterrupted {
		t.Fatalf("stale job not interrupted: %+v", jobs[0])
	}
	if jobs[1].Status != model.StatusDone {
		t.Fatalf("queue must proceed after restore, got %q", jobs[1].Status)
	}
}

func TestHarnessCrashedSessionLockIsReclaimed(t *testing.T) {
	_, stateDir := harnessEnv(t, statestore.BackendFile)
	store, err := statestore.NewFileStore(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	stale := []model.Job{{ID: "stale", Name: "killed", Command: "ffmpeg", Status: model.StatusProcessing, Progress: 40, Info: "40%", Logs: []string{}}}
	if err := store.Save(statestore.KeyQueue, stale); err != nil {
		t.Fatal(err)
	}

	// the lock a SIGKILLed session leaves behind
	exited := exec.Command("true")
	if err := exited.Run(); err != nil {
		t.Fatal(err)
	}
	host, _ := os.Hostname()
	owner := statestore.LockOwner{PID: exited.Process.Pid, CreatedAt: "2026-01-01T00:00:00Z", Hostname: host}
	if err := statestore.WriteJSON(filepath.Join(stateDir, ".ffqueue.lock", "owner.json"), owner); err != nil {
		t.Fatal(err)
	}

	res := doctor("")
	if res.OK {
		t.Fatalf("expected doctor to flag the stale lock, got %+v", res.Checks)
	}
	for _, c := range res.Checks {
		if c.Name == "lock" && (c.OK || !strings.Contains(c.Message, "stale")) {
			t.Fatalf("unexpected lock check: %+v", c)
		}
	}

	if err := Run([]string{"add", "--progress=false", "--", "ffmpeg", "-i", "in.mp4", "after.mp4"}); err != nil {
		t.Fatalf("add after crash failed: %v", err)
	}
	jobs := loadQueue(t, statestore.BackendFile, stateDir)
	if len(jobs) != 2 {
		t.Fatalf("expected stale plus new job, got %d", len(jobs))
	}
	if jobs[0].Status != model.StatusFailed || jobs[0].Info != model.InfoInterrupted {
		t.Fatalf("stale job not interrupted: %+v", jobs[0])
	}
	if jobs[1].Status != model.StatusDone {
		t.Fatalf("expected new job done, got %q", jobs[1].Status)
	}
	if st, err := statestore.InspectLock(stateDir); err != nil || st.Held {
		t.Fatalf("expected lock released after the run, got %+v err=%v", st, err)
	}
}

func TestHarnessLockedStateDirIsRefused(t *testing.T) {
	_, stateDir := harnessEnv(t, statestore.BackendFile)
	lock, err := statestore.AcquireLock(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	err = Run([]string{"add", "--progress=false", "--", "ffmpeg", "-i", "in.mp4", "out.mp4"})
	if !errors.Is(err, statestore.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestHarnessHistoryClear(t *testing.T) {
	_, stateDir := harnessEnv(t, statestore.BackendFile)
	store, err := statestore.NewFileStore(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(statestore.KeyHistory, []model.Job{{ID: "h1", Status: model.StatusDone}}); err != nil {
		t.Fatal(err)
	}

	if err := Run([]string{"history", "clear", "--yes"}); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	var history []model.Job
	if _, err := store.Load(statestore.KeyHistory, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
}

func TestHarnessDoctor(t *testing.T) {
	_, stateDir := harnessEnv(t, statestore.BackendSQLite)

	res := doctor("")
	if !res.OK {
		t.Fatalf("expected doctor ok, got %+v", res.Checks)
	}
	names := []string{}
	for _, c := range res.Checks {
		names = append(names, c.Name)
	}
	if got := strings.Join(names, ","); got != "config,dependency:ffmpeg,dependency:ffprobe,directory:state,lock,store:sqlite" {
		t.Fatalf("unexpected checks: %s", got)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "state.db")); err != nil {
		t.Fatalf("expected sqlite database: %v", err)
	}

	t.Setenv("FFQUEUE_FFMPEG", "definitely-not-installed-ffmpeg")
	if res := doctor(""); res.OK {
		t.Fatalf("expected doctor failure with missing ffmpeg")
	}
}
