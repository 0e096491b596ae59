// Package config decodes the supervisor's TOML configuration file into the
// ServiceSpec shape the reconciler consumes. Decoding is the only TOML
// concern in the repository — everything downstream of Load works with
// plain Go values.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// OnExit is the fallback policy applied when a service's process exits
// without the supervisor having initiated the exit itself.
type OnExit string

const (
	OnExitNone    OnExit = "None"
	OnExitRestart OnExit = "Restart"
	OnExitRemove  OnExit = "Remove"
)

func (o OnExit) valid() bool {
	switch o {
	case OnExitNone, OnExitRestart, OnExitRemove, "":
		return true
	default:
		return false
	}
}

// ServiceSpec is the declarative record parsed for one [service.<name>] table.
type ServiceSpec struct {
	Name    string   `toml:"-"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	OnExit  OnExit   `toml:"on_exit"`
}

// Equal reports whether two specs are equivalent per spec.md §3: every
// field equal component-wise.
func (s ServiceSpec) Equal(o ServiceSpec) bool {
	if s.Name != o.Name || s.Command != o.Command || s.effectiveOnExit() != o.effectiveOnExit() {
		return false
	}
	if len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

func (s ServiceSpec) effectiveOnExit() OnExit {
	if s.OnExit == "" {
		return OnExitNone
	}
	return s.OnExit
}

// Config is the decoded top-level document.
type Config struct {
	Services map[string]ServiceSpec
}

// rawDoc mirrors the TOML shape: either a [service.*] or [services.*] table,
// treated equivalently per spec.md §6.
type rawDoc struct {
	Service  map[string]rawSpec `toml:"service"`
	Services map[string]rawSpec `toml:"services"`
}

type rawSpec struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	OnExit  string   `toml:"on_exit"`
}

// Load reads and strictly decodes the configuration at path. Unknown keys
// and a missing command are errors, per spec.md §6. Following the strict
// decode idiom used in the podman-rpc-supervisor reference (Undecoded()
// checked against the parsed MetaData before trusting the struct).
func Load(path string) (*Config, error) {
	var doc rawDoc
	meta, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	merged := doc.Service
	if merged == nil {
		merged = make(map[string]rawSpec)
	}
	for name, spec := range doc.Services {
		if _, dup := merged[name]; dup {
			return nil, fmt.Errorf("parse %s: service %q declared in both [service] and [services]", path, name)
		}
		merged[name] = spec
	}

	cfg := &Config{Services: make(map[string]ServiceSpec, len(merged))}
	for name, raw := range merged {
		if name == "" {
			return nil, fmt.Errorf("parse %s: service name must not be empty", path)
		}
		if raw.Command == "" {
			return nil, fmt.Errorf("parse %s: service %q missing required field command", path, name)
		}
		onExit := OnExit(raw.OnExit)
		if !onExit.valid() {
			return nil, fmt.Errorf("parse %s: service %q has invalid on_exit %q", path, name, raw.OnExit)
		}
		if onExit == "" {
			onExit = OnExitNone
		}
		cfg.Services[name] = ServiceSpec{
			Name:    name,
			Command: raw.Command,
			Args:    append([]string(nil), raw.Args...),
			OnExit:  onExit,
		}
	}
	return cfg, nil
}
