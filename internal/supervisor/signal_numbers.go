package supervisor

// Numeric signal values the state machine passes to its Signaler, so that
// statemachine.go, registry.go and reconciler.go need no import of
// golang.org/x/sys/unix. ProcessGroupSignaler converts them with
// unix.Signal when talking to the kernel; the values equal
// unix.SIGTERM/unix.SIGKILL on Linux.
const (
	sigTERM = 15
	sigKILL = 9
)
