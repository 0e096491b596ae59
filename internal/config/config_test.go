package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "svlopp.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadBasic(t *testing.T) {
	path := writeTemp(t, `
[service.a]
command = "sleep"
args = ["3600"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, ok := cfg.Services["a"]
	if !ok {
		t.Fatalf("expected service a")
	}
	if a.Command != "sleep" || len(a.Args) != 1 || a.Args[0] != "3600" {
		t.Fatalf("unexpected spec: %+v", a)
	}
	if a.OnExit != OnExitNone {
		t.Fatalf("expected default on_exit None, got %v", a.OnExit)
	}
}

func TestLoadMissingCommand(t *testing.T) {
	path := writeTemp(t, `
[service.a]
args = ["3600"]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing command")
	}
}

func TestLoadUnknownKeyRejected(t *testing.T) {
	path := writeTemp(t, `
[service.a]
command = "sleep"
bogus = true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoadServicesAliasEquivalent(t *testing.T) {
	path := writeTemp(t, `
[services.b]
command = "true"
on_exit = "Restart"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, ok := cfg.Services["b"]
	if !ok || b.OnExit != OnExitRestart {
		t.Fatalf("unexpected spec: %+v ok=%v", b, ok)
	}
}

func TestSpecEqual(t *testing.T) {
	a := ServiceSpec{Name: "x", Command: "sleep", Args: []string{"1"}, OnExit: OnExitNone}
	b := ServiceSpec{Name: "x", Command: "sleep", Args: []string{"1"}, OnExit: ""}
	if !a.Equal(b) {
		t.Fatalf("expected equivalent specs (empty on_exit defaults to None)")
	}
	c := ServiceSpec{Name: "x", Command: "sleep", Args: []string{"2"}, OnExit: OnExitNone}
	if a.Equal(c) {
		t.Fatalf("expected differing args to compare unequal")
	}
}
