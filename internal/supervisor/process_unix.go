//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts cmd in its own process group so a single
// signal can reach the worker and any subprocess it spawns.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcess sends SIGTERM to the worker's process group, then
// SIGKILL if it hasn't exited within a fixed 5 seconds (not the
// configurable drain deadline).
func terminateProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pgid := -cmd.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = unix.Kill(pgid, unix.SIGKILL)
	}
}
