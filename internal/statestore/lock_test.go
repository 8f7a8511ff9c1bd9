package statestore

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock_BlocksConcurrentAcquire(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireLock(stateDir)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on second acquire, got %v", err)
	}

	owner, err := ReadLockOwner(stateDir)
	if err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Fatalf("unexpected owner pid %d", owner.PID)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
	if err := (Lock{}).Release(); err != nil {
		t.Fatalf("zero lock release should be a no-op: %v", err)
	}
}

// deadPID returns the pid of a child that has already exited and been
// reaped.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	return cmd.Process.Pid
}

func plantLock(t *testing.T, stateDir string, owner *LockOwner) string {
	t.Helper()
	lockDir := filepath.Join(stateDir, lockDirName)
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if owner != nil {
		if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
			t.Fatal(err)
		}
	}
	return lockDir
}

func TestAcquireLock_ReclaimsLockOfDeadOwner(t *testing.T) {
	stateDir := t.TempDir()
	dead := LockOwner{PID: deadPID(t), CreatedAt: "2026-01-01T00:00:00Z", Hostname: hostnameOrUnknown()}
	plantLock(t, stateDir, &dead)

	st, err := InspectLock(stateDir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !st.Held || !st.Stale || st.Owner.PID != dead.PID {
		t.Fatalf("expected stale lock of pid %d, got %+v", dead.PID, st)
	}

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("expected takeover of dead owner's lock, got %v", err)
	}
	defer lock.Release()
	if lock.Reclaimed == nil || lock.Reclaimed.PID != dead.PID {
		t.Fatalf("expected reclaimed owner pid %d, got %+v", dead.PID, lock.Reclaimed)
	}
	owner, err := ReadLockOwner(stateDir)
	if err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Fatalf("expected lock owned by this process, got pid %d", owner.PID)
	}
	if _, err := os.Stat(filepath.Join(stateDir, lockDirName+".break")); !os.IsNotExist(err) {
		t.Fatalf("break marker left behind: %v", err)
	}
}

func TestAcquireLock_KeepsLiveAndForeignOwners(t *testing.T) {
	cases := []struct {
		name  string
		owner LockOwner
	}{
		{name: "live pid on this host", owner: LockOwner{PID: os.Getpid(), CreatedAt: "2026-01-01T00:00:00Z", Hostname: hostnameOrUnknown()}},
		{name: "dead pid on another host", owner: LockOwner{PID: deadPID(t), CreatedAt: "2026-01-01T00:00:00Z", Hostname: "some-other-host.invalid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stateDir := t.TempDir()
			plantLock(t, stateDir, &tc.owner)

			_, err := AcquireLock(stateDir)
			if !errors.Is(err, ErrLocked) {
				t.Fatalf("expected ErrLocked, got %v", err)
			}
			st, err := InspectLock(stateDir)
			if err != nil {
				t.Fatalf("inspect: %v", err)
			}
			if !st.Held || st.Stale {
				t.Fatalf("expected held, non-stale lock, got %+v", st)
			}
		})
	}
}

func TestAcquireLock_OwnerlessLockHonoursGrace(t *testing.T) {
	stateDir := t.TempDir()
	lockDir := plantLock(t, stateDir, nil)

	if _, err := AcquireLock(stateDir); !errors.Is(err, ErrLocked) {
		t.Fatalf("fresh ownerless lock must be respected, got %v", err)
	}

	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockDir, old, old); err != nil {
		t.Fatal(err)
	}
	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("expected takeover of abandoned ownerless lock, got %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if st, err := InspectLock(stateDir); err != nil || st.Held {
		t.Fatalf("expected free lock after release, got %+v err=%v", st, err)
	}
}
