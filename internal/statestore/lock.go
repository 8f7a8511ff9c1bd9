package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".ffqueue.lock"
	lockOwnerFile = "owner.json"

	// A lock directory without owner.json is only abandoned once it is older
	// than this; a live acquirer writes the owner right after mkdir.
	ownerlessLockGrace = 10 * time.Second
)

// ErrLocked is returned when another ffqueue process owns the state directory.
var ErrLocked = errors.New("state directory is locked")

// Lock marks a state directory as owned by one process. Restore assumes no
// other process is driving the same queue, so only the lock holder may
// restore and run jobs.
type Lock struct {
	lockDir string

	// Reclaimed is set when the directory was taken over from a dead owner.
	Reclaimed *LockOwner
}

type LockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func (o LockOwner) String() string {
	return fmt.Sprintf("pid=%d created_at=%s host=%s", o.PID, o.CreatedAt, o.Hostname)
}

// LockState describes a lock directory as seen by a process that does not
// hold it.
type LockState struct {
	Held  bool
	Stale bool
	Owner LockOwner
	// Reason explains a stale verdict.
	Reason string
}

// InspectLock reports whether stateDir is locked and whether the holder is
// gone. Only owners on this host can be judged dead; a lock from another
// host is always treated as live.
func InspectLock(stateDir string) (LockState, error) {
	lockDir := filepath.Join(strings.TrimSpace(stateDir), lockDirName)
	info, err := os.Stat(lockDir)
	if err != nil {
		if os.IsNotExist(err) {
			return LockState{}, nil
		}
		return LockState{}, fmt.Errorf("stat lock %s: %w", lockDir, err)
	}

	st := LockState{Held: true}
	owner, err := ReadLockOwner(stateDir)
	if err != nil || owner.PID <= 0 {
		if time.Since(info.ModTime()) > ownerlessLockGrace {
			st.Stale = true
			st.Reason = "lock has no readable owner"
		}
		return st, nil
	}
	st.Owner = owner
	if owner.Hostname != "" && owner.Hostname != hostnameOrUnknown() {
		return st, nil
	}
	if !processAlive(owner.PID) {
		st.Stale = true
		st.Reason = fmt.Sprintf("owner pid %d is no longer running", owner.PID)
	}
	return st, nil
}

// AcquireLock takes the state directory lock. A lock left behind by a
// process that died without releasing it is taken over.
func AcquireLock(stateDir string) (Lock, error) {
	target := strings.TrimSpace(stateDir)
	if target == "" {
		return Lock{}, fmt.Errorf("state directory is required")
	}
	if err := Mkdir(target); err != nil {
		return Lock{}, err
	}

	lock, err := tryLock(target)
	if !errors.Is(err, ErrLocked) {
		return lock, err
	}

	st, inspectErr := InspectLock(target)
	if inspectErr != nil || !st.Held || !st.Stale {
		return Lock{}, err
	}
	if err := breakLock(target); err != nil {
		return Lock{}, err
	}
	// a concurrent starter may win the race for the freed directory
	lock, err = tryLock(target)
	if err != nil {
		return Lock{}, err
	}
	prev := st.Owner
	lock.Reclaimed = &prev
	return lock, nil
}

func tryLock(target string) (Lock, error) {
	lockDir := filepath.Join(target, lockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			if owner, readErr := ReadLockOwner(target); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return Lock{}, fmt.Errorf("%w: %s (%s)", ErrLocked, target, owner)
			}
			return Lock{}, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		return Lock{}, fmt.Errorf("acquire lock for %s: %w", target, err)
	}

	owner := LockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return Lock{}, fmt.Errorf("write lock owner for %s: %w", target, err)
	}
	return Lock{lockDir: lockDir}, nil
}

// breakLock removes an abandoned lock. Breakers serialize on a sibling
// directory and re-check staleness inside it, so a lock taken by a
// concurrent starter is never removed.
func breakLock(target string) error {
	lockDir := filepath.Join(target, lockDirName)
	breakDir := lockDir + ".break"
	if err := os.Mkdir(breakDir, 0o755); err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("break stale lock %s: %w", lockDir, err)
		}
		info, statErr := os.Stat(breakDir)
		if statErr != nil || time.Since(info.ModTime()) <= ownerlessLockGrace {
			return fmt.Errorf("%w: %s (stale lock is being reclaimed)", ErrLocked, target)
		}
		// a breaker died mid-way; take over its slot
		_ = os.Remove(breakDir)
		if err := os.Mkdir(breakDir, 0o755); err != nil {
			return fmt.Errorf("%w: %s (stale lock is being reclaimed)", ErrLocked, target)
		}
	}
	defer os.Remove(breakDir)

	st, err := InspectLock(target)
	if err != nil {
		return err
	}
	if st.Held && !st.Stale {
		return fmt.Errorf("%w: %s (%s)", ErrLocked, target, st.Owner)
	}
	if err := os.RemoveAll(lockDir); err != nil {
		return fmt.Errorf("remove stale lock %s: %w", lockDir, err)
	}
	return nil
}

func ReadLockOwner(stateDir string) (LockOwner, error) {
	var owner LockOwner
	err := ReadJSON(filepath.Join(stateDir, lockDirName, lockOwnerFile), &owner)
	return owner, err
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
