package supervisor

import (
	"time"

	"github.com/svlopp/svlopp/internal/config"
	"github.com/tuxdude/zzzlogi"
)

// DefaultDeadline is the bounded wait between a graceful-stop signal and the
// KILL escalation (spec.md §5 "Cancellation/timeouts"). The source is silent
// on the exact value; 10s matches the grace window used throughout the
// process-supervisor references in the retrieval pack.
const DefaultDeadline = 10 * time.Second

// Launcher is the subset of the process launcher (spec.md §4.E) the state
// machine depends on.
type Launcher interface {
	Launch(spec config.ServiceSpec) (pid int, err error)
}

// Signaler sends a signal to a service's process group (spec.md §4.H/§9
// "Process groups for stopping").
type Signaler interface {
	SignalGroup(pid int, sig int) error
}

// StateMachine is the per-service lifecycle coordinator described in
// spec.md §4.H. It holds no goroutines of its own; every method runs to
// completion inside the single event-loop dispatch.
type StateMachine struct {
	reg      *Registry
	launcher Launcher
	signaler Signaler
	log      zzzlogi.Logger
	deadline time.Duration
	now      func() time.Time
}

// NewStateMachine constructs a StateMachine bound to reg, launching and
// signaling through launcher/signaler.
func NewStateMachine(reg *Registry, launcher Launcher, signaler Signaler, log zzzlogi.Logger) *StateMachine {
	return &StateMachine{
		reg:      reg,
		launcher: launcher,
		signaler: signaler,
		log:      log,
		deadline: DefaultDeadline,
		now:      time.Now,
	}
}

func (m *StateMachine) launch(svc *Service) {
	pid, err := m.launcher.Launch(svc.Spec)
	if err != nil {
		m.log.Warnf("service %q failed to start: %v", svc.Spec.Name, err)
		svc.State = ServiceState{Kind: StateStopped, Reason: StopReason{Kind: ReasonFailedToStart}}
		m.reg.markDirty()
		return
	}
	svc.State = ServiceState{Kind: StateRunning, PID: pid}
	m.reg.BindPID(svc, pid)
	m.log.Infof("service %q started, pid=%d", svc.Spec.Name, pid)
}

func (m *StateMachine) beginStopping(svc *Service, then Intent) {
	pid := svc.State.PID
	if err := m.signaler.SignalGroup(pid, sigTERM); err != nil {
		m.log.Warnf("service %q: failed to send TERM to pgid %d: %v", svc.Spec.Name, pid, err)
	}
	svc.State = ServiceState{
		Kind:     StateStopping,
		PID:      pid,
		Deadline: m.now().Add(m.deadline),
		Then:     then,
	}
	m.reg.markDirty()
}

// Start handles the explicit Start input. Idempotent on Running.
func (m *StateMachine) Start(name string) {
	svc, ok := m.reg.LookupByName(name)
	if !ok {
		return
	}
	switch svc.State.Kind {
	case StateStopped:
		m.launch(svc)
	case StateRunning:
		// noop
	case StateStopping:
		svc.PendingIntent = Intent{Kind: IntentStartAfter}
		m.reg.markDirty()
	}
}

// Stop handles the explicit Stop input. Idempotent on Stopping and Stopped.
func (m *StateMachine) Stop(name string) {
	svc, ok := m.reg.LookupByName(name)
	if !ok {
		return
	}
	switch svc.State.Kind {
	case StateStopped:
		// noop
	case StateRunning:
		m.beginStopping(svc, Intent{Kind: IntentIdle})
	case StateStopping:
		svc.State.Then = refine(svc.State.Then, Intent{Kind: IntentIdle})
		m.reg.markDirty()
	}
}

// Restart handles the explicit Restart input.
func (m *StateMachine) Restart(name string) {
	svc, ok := m.reg.LookupByName(name)
	if !ok {
		return
	}
	switch svc.State.Kind {
	case StateStopped:
		m.launch(svc)
	case StateRunning:
		m.beginStopping(svc, Intent{Kind: IntentRestart})
	case StateStopping:
		svc.State.Then = refine(svc.State.Then, Intent{Kind: IntentRestart})
		m.reg.markDirty()
	}
}

// ReloadChanged handles a reconciler-driven spec change for a known name.
func (m *StateMachine) ReloadChanged(name string, newSpec config.ServiceSpec) {
	svc, ok := m.reg.LookupByName(name)
	if !ok {
		return
	}
	switch svc.State.Kind {
	case StateStopped:
		svc.Spec = newSpec
		m.launch(svc)
	case StateRunning:
		m.beginStopping(svc, Intent{Kind: IntentRestartWith, Spec: newSpec})
	case StateStopping:
		svc.State.Then = refine(svc.State.Then, Intent{Kind: IntentRestartWith, Spec: newSpec})
		m.reg.markDirty()
	}
}

// ReloadRemoved handles the reconciler observing name is absent from the
// freshly parsed configuration.
func (m *StateMachine) ReloadRemoved(name string) {
	svc, ok := m.reg.LookupByName(name)
	if !ok {
		return
	}
	switch svc.State.Kind {
	case StateStopped:
		m.reg.Remove(name)
	case StateRunning:
		m.beginStopping(svc, Intent{Kind: IntentRemove})
	case StateStopping:
		svc.State.Then = refine(svc.State.Then, Intent{Kind: IntentRemove})
		m.reg.markDirty()
	}
}

// ProcessExited handles the reaper-driven notification that svc's child
// has exited with reason. This is the only path that resolves a Stopping
// service's pending "then", and the only path that applies on_exit.
func (m *StateMachine) ProcessExited(name string, reason StopReason) {
	svc, ok := m.reg.LookupByName(name)
	if !ok {
		return
	}

	switch svc.State.Kind {
	case StateRunning:
		m.applyOnExit(svc, reason)
	case StateStopping:
		m.resolveStopping(svc, reason)
	default:
		// Starting/Stopped: a stray exit notification for a service with
		// no owned pid should not happen (invariant 2); ignore defensively.
	}
}

// applyOnExit implements spec.md §4.H's "ProcessExited on Running" table.
// on_exit never runs for a supervisor-initiated exit, because those always
// pass through Stopping first (the critical design choice in spec.md §4.H).
func (m *StateMachine) applyOnExit(svc *Service, reason StopReason) {
	switch svc.Spec.OnExit {
	case config.OnExitRestart:
		m.launch(svc)
	case config.OnExitRemove:
		m.reg.Remove(svc.Spec.Name)
	default:
		svc.State = ServiceState{Kind: StateStopped, Reason: reason}
		m.reg.markDirty()
	}
}

// resolveStopping implements the ProcessExited column of the Stopping row:
// resolve Then once the process has actually exited.
func (m *StateMachine) resolveStopping(svc *Service, reason StopReason) {
	then := svc.State.Then
	pending := svc.PendingIntent
	svc.PendingIntent = Intent{Kind: IntentIdle}

	switch then.Kind {
	case IntentRestart:
		m.launch(svc)
	case IntentRestartWith:
		svc.Spec = then.Spec
		m.launch(svc)
	case IntentRemove:
		m.reg.Remove(svc.Spec.Name)
		return
	default: // IntentIdle
		svc.State = ServiceState{Kind: StateStopped, Reason: StopReason{Kind: ReasonStoppedByUser}}
		m.reg.markDirty()
	}

	// A Start that arrived while this service was Stopping is honored once
	// it has settled into Stopped/Running, per spec.md §4.H's "queue
	// pending=StartAfter" resolution for Start-on-Stopping.
	if pending.Kind == IntentStartAfter {
		m.Start(svc.Spec.Name)
	}
}

// CheckDeadlines escalates to KILL any Stopping service whose deadline has
// elapsed (spec.md §4.B). The service remains Stopping, its Then preserved,
// until ProcessExited arrives.
func (m *StateMachine) CheckDeadlines() {
	now := m.now()
	for _, svc := range m.reg.Iter() {
		if svc.State.Kind != StateStopping {
			continue
		}
		if now.Before(svc.State.Deadline) {
			continue
		}
		if err := m.signaler.SignalGroup(svc.State.PID, sigKILL); err != nil {
			m.log.Warnf("service %q: failed to send KILL to pgid %d: %v", svc.Spec.Name, svc.State.PID, err)
		}
	}
}

// BeginShutdown transitions every non-stopped service to Stopping{then=Idle}
// by sending TERM to its process group, per spec.md §4.D phase 1.
func (m *StateMachine) BeginShutdown() {
	for _, svc := range m.reg.Iter() {
		switch svc.State.Kind {
		case StateRunning:
			m.beginStopping(svc, Intent{Kind: IntentIdle})
		case StateStopping:
			svc.State.Then = Intent{Kind: IntentIdle}
			svc.PendingIntent = Intent{Kind: IntentIdle}
			m.reg.markDirty()
		}
	}
}

// QuiescentForShutdown reports whether every service has reached Stopped,
// the event loop's exit condition during shutdown (spec.md §4.D).
func (m *StateMachine) QuiescentForShutdown() bool {
	for _, svc := range m.reg.Iter() {
		if svc.State.Kind == StateRunning || svc.State.Kind == StateStopping {
			return false
		}
	}
	return true
}
