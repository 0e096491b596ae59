package supervisor

import (
	"github.com/tuxdude/zzzlogi"
	"golang.org/x/sys/unix"
)

// Reaper drains every exited child in response to one CHLD event,
// translating each (pid, status) into a ProcessExited state-machine input.
// Grounded on kornnellio-gosv's reapZombies loop (Wait4 with WNOHANG until
// no children remain) and the invariant in spec.md §3 that this is the only
// code path calling the reaping syscall.
type Reaper struct {
	reg *Registry
	sm  *StateMachine
	log zzzlogi.Logger
}

// NewReaper constructs a Reaper bound to reg and sm.
func NewReaper(reg *Registry, sm *StateMachine, log zzzlogi.Logger) *Reaper {
	return &Reaper{reg: reg, sm: sm, log: log}
}

// Drain reaps every exited child, non-blockingly, until none remain. It
// must be called to exhaustion in a single invocation so that SIGCHLD
// coalescing never strands a dead child (spec.md §4.F).
func (r *Reaper) Drain() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		svc, ok := r.reg.LookupByPID(pid)
		if !ok {
			// Orphaned descendant reaped by virtue of the subreaper bit;
			// discard silently (spec.md §4.F step 1).
			continue
		}
		r.reg.UnbindPID(pid)

		reason := translateStatus(status)
		r.log.Debugf("service %q: pid %d exited, %s", svc.Spec.Name, pid, reason)
		r.sm.ProcessExited(svc.Spec.Name, reason)
	}
}

func translateStatus(status unix.WaitStatus) StopReason {
	switch {
	case status.Exited():
		return StopReason{Kind: ReasonExitedNormally, Code: status.ExitStatus()}
	case status.Signaled():
		return StopReason{Kind: ReasonKilledBySignal, Signal: int(status.Signal())}
	default:
		return StopReason{Kind: ReasonExitedNormally, Code: status.ExitStatus()}
	}
}
