package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tuxdude/zzzlogi"
)

// StatusWriter atomically rewrites the on-disk status file after every
// event-handling cycle that left the registry dirty, per spec.md §4.J.
type StatusWriter struct {
	path string
	reg  *Registry
	log  zzzlogi.Logger
}

// NewStatusWriter constructs a StatusWriter that rewrites path.
func NewStatusWriter(path string, reg *Registry, log zzzlogi.Logger) *StatusWriter {
	return &StatusWriter{path: path, reg: reg, log: log}
}

// WriteIfDirty rewrites the status file iff the registry has mutated since
// the last write, via a write-then-rename so readers never observe a
// partial file (spec.md §4.J, §8 invariant 2).
func (w *StatusWriter) WriteIfDirty() {
	if !w.reg.Dirty() {
		return
	}
	if err := w.write(); err != nil {
		// Retried next event cycle since the dirty flag stays set on
		// failure (spec.md §7: status write failure is logged, not fatal).
		w.log.Warnf("status: write failed, will retry: %v", err)
		return
	}
	w.reg.ClearDirty()
}

func (w *StatusWriter) write() error {
	var b strings.Builder
	for _, svc := range w.reg.Iter() {
		fmt.Fprintf(&b, "%s %d %s\n", svc.Spec.Name, svc.ID, renderState(svc.State))
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, w.path)
}

func renderState(s ServiceState) string {
	switch s.Kind {
	case StateRunning:
		return fmt.Sprintf("running %d", s.PID)
	case StateStopping:
		return fmt.Sprintf("stopping %d", s.PID)
	case StateStopped:
		return "stopped " + s.Reason.String()
	default:
		return "starting"
	}
}
