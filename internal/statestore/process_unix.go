//go:build unix

package statestore

import (
	"errors"
	"syscall"
)

// processAlive probes pid with signal 0. EPERM means the pid exists but
// belongs to someone else.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
