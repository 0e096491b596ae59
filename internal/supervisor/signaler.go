package supervisor

import "golang.org/x/sys/unix"

// ProcessGroupSignaler implements Signaler by sending to the negative pid,
// i.e. the whole process group, the idiom kornnellio-gosv's Process.Signal
// and the podman-rpc-supervisor reference's signalGroup both use to catch
// forked helpers within one service (spec.md §9).
type ProcessGroupSignaler struct{}

// SignalGroup sends sig to the process group led by pid.
func (ProcessGroupSignaler) SignalGroup(pid int, sig int) error {
	if pid <= 0 {
		return nil
	}
	return unix.Kill(-pid, unix.Signal(sig))
}
