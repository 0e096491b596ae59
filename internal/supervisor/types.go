// Package supervisor is the event-driven supervision engine: the event
// loop, the service state machine, the registry, the reconciler, and the
// reaper described in spec.md §§3-5. Every process lifecycle event funnels
// through the single Supervisor.handle* dispatch path; there is no
// per-service goroutine.
package supervisor

import (
	"fmt"
	"time"

	"github.com/svlopp/svlopp/internal/config"
)

// ServiceID is assigned monotonically by the Registry the first time a name
// is seen, and is never reused within one supervisor lifetime (spec.md §3).
type ServiceID uint64

// StateKind tags the variant of ServiceState.
type StateKind int

const (
	StateStarting StateKind = iota
	StateRunning
	StateStopping
	StateStopped
)

func (k StateKind) String() string {
	switch k {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Intent is the action to apply once a Stopping service's process exits, or
// the externally-requested action recorded on Service.PendingIntent while a
// process is mid-restart. Priority for refinement on a Stopping service is
// IntentRemove > IntentRestartWith > IntentRestart > IntentIdle, matching
// spec.md §4.H's intent refinement rule.
type IntentKind int

const (
	IntentIdle IntentKind = iota
	IntentRestart
	IntentRestartWith
	IntentRemove
	// IntentStartAfter only ever appears as Service.PendingIntent (never as
	// a Stopping.Then), queued by a Start command arriving while the
	// service is already Stopping.
	IntentStartAfter
)

func (k IntentKind) priority() int {
	switch k {
	case IntentRemove:
		return 3
	case IntentRestartWith:
		return 2
	case IntentRestart:
		return 1
	default:
		return 0
	}
}

// Intent carries the kind plus, for IntentRestartWith, the replacement spec.
type Intent struct {
	Kind IntentKind
	Spec config.ServiceSpec
}

// refine applies the priority-refinement rule from spec.md §4.H: a stronger
// intent replaces a weaker one, a weaker one is dropped.
func refine(current, incoming Intent) Intent {
	if incoming.Kind.priority() >= current.Kind.priority() {
		return incoming
	}
	return current
}

// StopReasonKind tags why a service reached ServiceState Stopped.
type StopReasonKind int

const (
	ReasonExitedNormally StopReasonKind = iota
	ReasonKilledBySignal
	ReasonFailedToStart
	ReasonStoppedByUser
	ReasonRemovedOnExit
)

// StopReason is the terminal-state payload described in spec.md §3.
type StopReason struct {
	Kind   StopReasonKind
	Code   int // valid for ReasonExitedNormally
	Signal int // valid for ReasonKilledBySignal
}

func (r StopReason) String() string {
	switch r.Kind {
	case ReasonExitedNormally:
		return fmt.Sprintf("exited:%d", r.Code)
	case ReasonKilledBySignal:
		return fmt.Sprintf("signal:%d", r.Signal)
	case ReasonFailedToStart:
		return "failed_to_start"
	case ReasonStoppedByUser:
		return "stopped_by_user"
	case ReasonRemovedOnExit:
		return "removed_on_exit"
	default:
		return "unknown"
	}
}

// ServiceState is the tagged variant described in spec.md §3. Only the
// fields relevant to Kind are meaningful.
type ServiceState struct {
	Kind StateKind

	// Running, Stopping
	PID int

	// Stopping
	Deadline time.Time
	Then     Intent

	// Stopped
	Reason StopReason
}

// Service is the live registry record.
type Service struct {
	ID            ServiceID
	Spec          config.ServiceSpec
	State         ServiceState
	PendingIntent Intent
}
