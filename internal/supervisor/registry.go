package supervisor

import (
	"github.com/svlopp/svlopp/internal/config"
	"github.com/tuxdude/zzzlogi"
)

// Registry is the in-memory set of services, keyed by name and by id, with
// a reverse index from pid valid exactly while a service is Running or
// Stopping (spec.md §3 invariant 2). All mutation funnels through this
// type's methods, mirroring the single-borrowing-path discipline the
// teacher applies to its serviceRepo.
type Registry struct {
	log zzzlogi.Logger

	byName map[string]*Service
	byID   map[ServiceID]string
	byPID  map[int]string

	nextID ServiceID
	dirty  bool
}

// NewRegistry constructs an empty registry.
func NewRegistry(log zzzlogi.Logger) *Registry {
	return &Registry{
		log:    log,
		byName: make(map[string]*Service),
		byID:   make(map[ServiceID]string),
		byPID:  make(map[int]string),
	}
}

// Insert creates a new Service for a name not previously seen, allocating
// the next monotonic id. If the name is already known, the existing service
// is returned unchanged (insert is only ever called for a name absent from
// the registry; callers check LookupByName first).
func (r *Registry) Insert(spec config.ServiceSpec) *Service {
	if svc, ok := r.byName[spec.Name]; ok {
		return svc
	}
	r.nextID++
	svc := &Service{
		ID:    r.nextID,
		Spec:  spec,
		State: ServiceState{Kind: StateStopped, Reason: StopReason{Kind: ReasonStoppedByUser}},
	}
	r.byName[spec.Name] = svc
	r.byID[svc.ID] = spec.Name
	r.markDirty()
	return svc
}

// LookupByName returns the service registered under name, if any.
func (r *Registry) LookupByName(name string) (*Service, bool) {
	svc, ok := r.byName[name]
	return svc, ok
}

// LookupByID returns the service with the given id, if any.
func (r *Registry) LookupByID(id ServiceID) (*Service, bool) {
	name, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.byName[name], true
}

// LookupByPID returns the service currently owning pid, if any. Valid only
// while that service is Running or Stopping (invariant 2).
func (r *Registry) LookupByPID(pid int) (*Service, bool) {
	name, ok := r.byPID[pid]
	if !ok {
		return nil, false
	}
	return r.byName[name], true
}

// BindPID records that svc now owns pid, establishing invariant 1 (a live
// pid appears in the reverse index for at most one service). Called by the
// state machine immediately after a successful launch.
func (r *Registry) BindPID(svc *Service, pid int) {
	r.byPID[pid] = svc.Spec.Name
	r.markDirty()
}

// UnbindPID releases pid from the reverse index. Called only by the reaper,
// preserving invariant 5 (all reaping funnels through one path).
func (r *Registry) UnbindPID(pid int) {
	delete(r.byPID, pid)
	r.markDirty()
}

// Remove deletes name's record entirely, used when a service's on_exit or
// pending intent is Remove and it has reached a terminal exit.
func (r *Registry) Remove(name string) {
	svc, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byID, svc.ID)
	delete(r.byName, name)
	if svc.State.PID != 0 {
		delete(r.byPID, svc.State.PID)
	}
	r.markDirty()
}

// Iter returns every service, in insertion (ascending id) order so the
// status writer and reconciler see a stable ordering.
func (r *Registry) Iter() []*Service {
	out := make([]*Service, 0, len(r.byName))
	for id := ServiceID(1); id <= r.nextID; id++ {
		name, ok := r.byID[id]
		if !ok {
			continue
		}
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Registry) markDirty() { r.dirty = true }

// Dirty reports whether the registry has mutated since the last call to
// ClearDirty, per spec.md §3 invariant 4.
func (r *Registry) Dirty() bool { return r.dirty }

// ClearDirty resets the dirty flag after the status writer has rewritten
// the status file for the current state.
func (r *Registry) ClearDirty() { r.dirty = false }
