package supervisor

import (
	"errors"
	"testing"
	"time"

	"github.com/svlopp/svlopp/internal/config"
	"github.com/tuxdude/zzzlogi"
)

// fakeLogger discards everything; tests assert on state, not log output.
type fakeLogger struct{}

func (fakeLogger) Tracef(string, ...interface{}) {}
func (fakeLogger) Debugf(string, ...interface{}) {}
func (fakeLogger) Infof(string, ...interface{})  {}
func (fakeLogger) Warnf(string, ...interface{})  {}
func (fakeLogger) Errorf(string, ...interface{}) {}
func (fakeLogger) Fatalf(string, ...interface{}) {}
func (fakeLogger) Panicf(string, ...interface{}) {}

var _ zzzlogi.Logger = fakeLogger{}

type fakeLauncher struct {
	nextPID int
	fail    bool
	starts  int
}

func (l *fakeLauncher) Launch(spec config.ServiceSpec) (int, error) {
	l.starts++
	if l.fail {
		return 0, errors.New("exec failed")
	}
	l.nextPID++
	return l.nextPID, nil
}

type fakeSignaler struct {
	sent []int
}

func (s *fakeSignaler) SignalGroup(pid int, sig int) error {
	s.sent = append(s.sent, sig)
	return nil
}

func newHarness() (*Registry, *StateMachine, *fakeLauncher, *fakeSignaler) {
	reg := NewRegistry(fakeLogger{})
	launcher := &fakeLauncher{}
	signaler := &fakeSignaler{}
	sm := NewStateMachine(reg, launcher, signaler, fakeLogger{})
	return reg, sm, launcher, signaler
}

func TestStartFromStopped(t *testing.T) {
	reg, sm, launcher, _ := newHarness()
	spec := config.ServiceSpec{Name: "a", Command: "sleep", Args: []string{"3600"}}
	reg.Insert(spec)

	sm.Start("a")

	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateRunning {
		t.Fatalf("expected Running, got %v", svc.State.Kind)
	}
	if launcher.starts != 1 {
		t.Fatalf("expected exactly one launch")
	}
	if _, ok := reg.LookupByPID(svc.State.PID); !ok {
		t.Fatalf("expected pid bound in reverse index")
	}
}

func TestStopIsIdempotentOnStopped(t *testing.T) {
	reg, sm, _, signaler := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "true"})

	sm.Stop("a")
	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateStopped {
		t.Fatalf("expected Stopped, got %v", svc.State.Kind)
	}
	if len(signaler.sent) != 0 {
		t.Fatalf("expected no signal sent for Stop on an already-Stopped service")
	}
}

func TestRunningStopThenProcessExitedResolvesIdle(t *testing.T) {
	reg, sm, _, signaler := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "sleep", Args: []string{"3600"}})
	sm.Start("a")

	sm.Stop("a")
	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateStopping {
		t.Fatalf("expected Stopping, got %v", svc.State.Kind)
	}
	if len(signaler.sent) != 1 || signaler.sent[0] != sigTERM {
		t.Fatalf("expected one TERM sent, got %v", signaler.sent)
	}

	sm.ProcessExited("a", StopReason{Kind: ReasonExitedNormally, Code: 0})
	svc, _ = reg.LookupByName("a")
	if svc.State.Kind != StateStopped || svc.State.Reason.Kind != ReasonStoppedByUser {
		t.Fatalf("expected Stopped{StoppedByUser}, got %+v", svc.State)
	}
}

func TestOnExitRestartAppliesOnlyOnUnsupervisedExit(t *testing.T) {
	reg, sm, launcher, _ := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "true", OnExit: config.OnExitRestart})
	sm.Start("a")

	sm.ProcessExited("a", StopReason{Kind: ReasonExitedNormally, Code: 0})

	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateRunning {
		t.Fatalf("expected on_exit=Restart to relaunch into Running, got %v", svc.State.Kind)
	}
	if launcher.starts != 2 {
		t.Fatalf("expected two launches (initial + restart), got %d", launcher.starts)
	}
}

func TestOnExitRestartDoesNotFireAfterSupervisorInitiatedStop(t *testing.T) {
	reg, sm, launcher, _ := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "true", OnExit: config.OnExitRestart})
	sm.Start("a")
	sm.Stop("a") // moves to Stopping{then=Idle} — a supervisor-initiated stop

	sm.ProcessExited("a", StopReason{Kind: ReasonExitedNormally, Code: 0})

	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateStopped || svc.State.Reason.Kind != ReasonStoppedByUser {
		t.Fatalf("on_exit must not override a supervisor-initiated stop, got %+v", svc.State)
	}
	if launcher.starts != 1 {
		t.Fatalf("expected no restart launch, got %d launches", launcher.starts)
	}
}

func TestIntentRefinementRemoveBeatsRestartWith(t *testing.T) {
	reg, sm, _, _ := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "sleep", Args: []string{"3600"}})
	sm.Start("a")

	v2 := config.ServiceSpec{Name: "a", Command: "sleep", Args: []string{"60"}}
	sm.ReloadChanged("a", v2) // Stopping{then=RestartWith(v2)}
	sm.ReloadRemoved("a")     // should refine to Remove, beating RestartWith

	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateStopping || svc.State.Then.Kind != IntentRemove {
		t.Fatalf("expected Then refined to Remove, got %+v", svc.State.Then)
	}

	sm.ProcessExited("a", StopReason{Kind: ReasonExitedNormally, Code: 0})
	if _, ok := reg.LookupByName("a"); ok {
		t.Fatalf("expected service removed after resolving Remove intent")
	}
}

func TestReloadChangedAppliesNewArgsOnRestart(t *testing.T) {
	reg, sm, _, _ := newHarness()
	reg.Insert(config.ServiceSpec{Name: "c", Command: "sleep", Args: []string{"3600"}})
	sm.Start("c")

	v2 := config.ServiceSpec{Name: "c", Command: "sleep", Args: []string{"60"}}
	sm.ReloadChanged("c", v2)
	sm.ProcessExited("c", StopReason{Kind: ReasonExitedNormally, Code: 0})

	svc, _ := reg.LookupByName("c")
	if svc.State.Kind != StateRunning {
		t.Fatalf("expected Running after reload-change settles, got %v", svc.State.Kind)
	}
	if len(svc.Spec.Args) != 1 || svc.Spec.Args[0] != "60" {
		t.Fatalf("expected adopted new args, got %v", svc.Spec.Args)
	}
}

func TestFailedLaunchRecordsFailedToStart(t *testing.T) {
	reg := NewRegistry(fakeLogger{})
	launcher := &fakeLauncher{fail: true}
	sm := NewStateMachine(reg, launcher, &fakeSignaler{}, fakeLogger{})
	reg.Insert(config.ServiceSpec{Name: "a", Command: "/nonexistent"})

	sm.Start("a")

	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateStopped || svc.State.Reason.Kind != ReasonFailedToStart {
		t.Fatalf("expected Stopped{FailedToStart}, got %+v", svc.State)
	}
}

func TestCheckDeadlinesEscalatesToKill(t *testing.T) {
	reg, sm, _, signaler := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "sleep", Args: []string{"3600"}})
	sm.Start("a")
	sm.Stop("a")

	sm.now = func() time.Time { return time.Now().Add(time.Hour) } // force deadline elapsed
	sm.CheckDeadlines()

	if len(signaler.sent) != 2 || signaler.sent[1] != sigKILL {
		t.Fatalf("expected TERM then KILL, got %v", signaler.sent)
	}

	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateStopping {
		t.Fatalf("service must remain Stopping until ProcessExited arrives, got %v", svc.State.Kind)
	}
}

func TestStartDuringStoppingQueuesStartAfter(t *testing.T) {
	reg, sm, launcher, _ := newHarness()
	reg.Insert(config.ServiceSpec{Name: "a", Command: "sleep", Args: []string{"3600"}})
	sm.Start("a")
	sm.Stop("a")

	sm.Start("a") // arrives while Stopping; must not relaunch immediately
	if launcher.starts != 1 {
		t.Fatalf("Start on a Stopping service must not launch immediately, got %d starts", launcher.starts)
	}

	sm.ProcessExited("a", StopReason{Kind: ReasonExitedNormally, Code: 0})
	svc, _ := reg.LookupByName("a")
	if svc.State.Kind != StateRunning {
		t.Fatalf("expected queued Start to launch once Stopping resolves, got %v", svc.State.Kind)
	}
	if launcher.starts != 2 {
		t.Fatalf("expected the queued start to trigger a second launch, got %d", launcher.starts)
	}
}
