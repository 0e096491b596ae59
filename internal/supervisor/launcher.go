package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/svlopp/svlopp/internal/config"
	"github.com/tuxdude/zzzlogi"
	"golang.org/x/sys/unix"
)

// ProcessLauncher implements Launcher (spec.md §4.E): fork/exec a service's
// command as the leader of its own process group, inheriting the
// supervisor's standard streams. Grounded on kornnellio-gosv's
// Process.Start, generalized from one static *exec.Cmd field to a stateless
// launch-per-call method since the state machine, not the launcher, owns
// per-service lifecycle bookkeeping here.
type ProcessLauncher struct {
	log zzzlogi.Logger
}

// NewProcessLauncher constructs a launcher. It does not itself set the
// subreaper bit; call EnableSubreaper once, process-wide, at startup.
func NewProcessLauncher(log zzzlogi.Logger) *ProcessLauncher {
	return &ProcessLauncher{log: log}
}

// EnableSubreaper marks the calling process as the reaper of orphaned
// descendants via prctl(PR_SET_CHILD_SUBREAPER), per spec.md §4.E. Must be
// called once, before any service is launched.
func EnableSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}

// Launch starts spec.Command as the leader of a new process group. The
// argv[0] passed to the kernel is args[0] if present, else command, per
// spec.md §4.E.
func (l *ProcessLauncher) Launch(spec config.ServiceSpec) (int, error) {
	argv0 := spec.Command
	if len(spec.Args) > 0 {
		argv0 = spec.Args[0]
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Args = append([]string{argv0}, spec.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch %q: %w", spec.Name, err)
	}

	pid := cmd.Process.Pid
	// The launcher never blocks on the child (spec.md §4.E); release the
	// *os.Process handle so a later os/exec call on the same pid can't
	// interfere with the reaper's own wait4 path.
	if err := cmd.Process.Release(); err != nil {
		l.log.Warnf("launch %q: failed to release process handle for pid %d: %v", spec.Name, pid, err)
	}
	return pid, nil
}
