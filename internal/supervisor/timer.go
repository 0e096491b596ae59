package supervisor

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// TickInterval is the timer source's periodic tick, used to enforce
// Stopping deadlines (spec.md §4.B). 250ms matches the suggested value.
const TickInterval = 250 * time.Millisecond

// TimerSource is a periodic timerfd-backed tick, the second kernel event
// source registered with the event loop alongside signals and the control
// FIFO.
type TimerSource struct {
	fd int
}

// OpenTimerSource creates and arms a periodic timerfd.
func OpenTimerSource(interval time.Duration) (*TimerSource, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("timerfd_create: %w", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("timerfd_settime: %w", err)
	}
	return &TimerSource{fd: fd}, nil
}

// FD returns the file descriptor to register with the event loop.
func (t *TimerSource) FD() int { return t.fd }

// Close releases the timerfd.
func (t *TimerSource) Close() error { return unix.Close(t.fd) }

// Ack drains the expiration counter a readable timerfd always carries.
// The count itself is unused: the handler simply re-evaluates every
// Stopping service's deadline each tick.
func (t *TimerSource) Ack() error {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return err
	}
	if n == 8 {
		_ = binary.LittleEndian.Uint64(buf[:])
	}
	return nil
}
