package supervisor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SignalSource presents the process's CHLD/HUP/TERM/INT signals as a
// readable fd, via signalfd, the literal kernel multiplexer spec.md §4.D
// calls for. The same signals are blocked at the process level
// (sigprocmask) so the kernel enqueues them exclusively on this fd instead
// of invoking a Go signal handler.
type SignalSource struct {
	fd int
}

var supervisedSignals = []unix.Signal{
	unix.SIGCHLD,
	unix.SIGHUP,
	unix.SIGTERM,
	unix.SIGINT,
}

// OpenSignalSource blocks SIGCHLD/SIGHUP/SIGTERM/SIGINT at the process
// level and returns a signalfd that receives them instead. PthreadSigmask
// only affects the calling OS thread, so this must run during process
// startup, before any other goroutine can be scheduled onto a fresh thread
// with a default (unblocked) mask.
func OpenSignalSource() (*SignalSource, error) {
	var mask unix.Sigset_t
	for _, sig := range supervisedSignals {
		addSignal(&mask, sig)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, fmt.Errorf("block signals: %w", err)
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("signalfd: %w", err)
	}
	return &SignalSource{fd: fd}, nil
}

// FD returns the file descriptor to register with the event loop.
func (s *SignalSource) FD() int { return s.fd }

// Close releases the signalfd.
func (s *SignalSource) Close() error { return unix.Close(s.fd) }

// Read drains every pending signal record from one readable event and
// returns the decoded signal numbers, in delivery order (spec.md §4.A: one
// read drains all pending signal records, each dispatched as a distinct
// logical event).
func (s *SignalSource) Read() ([]unix.Signal, error) {
	var sigs []unix.Signal
	var info unix.SignalfdSiginfo
	buf := (*[unix.SizeofSignalfdSiginfo]byte)(unsafePointer(&info))[:]

	for {
		n, err := unix.Read(s.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return sigs, err
		}
		if n != unix.SizeofSignalfdSiginfo {
			break
		}
		sigs = append(sigs, unix.Signal(info.Signo))
	}
	return sigs, nil
}
