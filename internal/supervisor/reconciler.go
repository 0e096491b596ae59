package supervisor

import (
	"github.com/svlopp/svlopp/internal/config"
	"github.com/tuxdude/zzzlogi"
)

// Reconciler diffs a freshly parsed configuration against the registry and
// drives the per-service transitions described in spec.md §4.I. It holds
// no state of its own between calls.
type Reconciler struct {
	reg *Registry
	sm  *StateMachine
	log zzzlogi.Logger
}

// NewReconciler constructs a Reconciler bound to reg and sm.
func NewReconciler(reg *Registry, sm *StateMachine, log zzzlogi.Logger) *Reconciler {
	return &Reconciler{reg: reg, sm: sm, log: log}
}

// Reconcile applies cfg's declared set against the registry: new names are
// inserted and started, changed specs drive ReloadChanged, and names no
// longer declared drive ReloadRemoved. Equivalent specs are a no-op.
func (c *Reconciler) Reconcile(cfg *config.Config) {
	for name, spec := range cfg.Services {
		if _, ok := c.reg.LookupByName(name); !ok {
			svc := c.reg.Insert(spec)
			c.log.Infof("reconcile: new service %q (id=%d)", name, svc.ID)
			c.sm.Start(name)
		}
	}

	for name, spec := range cfg.Services {
		svc, ok := c.reg.LookupByName(name)
		if !ok {
			continue // every declared name was inserted above; names inserted there compare Equal below
		}
		if svc.Spec.Equal(spec) {
			continue
		}
		c.log.Infof("reconcile: service %q changed", name)
		c.sm.ReloadChanged(name, spec)
	}

	for _, svc := range c.reg.Iter() {
		if _, declared := cfg.Services[svc.Spec.Name]; declared {
			continue
		}
		c.log.Infof("reconcile: service %q removed from configuration", svc.Spec.Name)
		c.sm.ReloadRemoved(svc.Spec.Name)
	}
}
