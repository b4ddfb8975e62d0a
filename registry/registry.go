package registry

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
)

// Type describes one constructible proxy type.
type Type struct {
	// Go is the dynamic type New returns. Derived from New when nil.
	Go   reflect.Type
	New  func() any
	Name string
	ID   uuid.UUID
	Kind abi.Kind
}

// Of builds a Type for a pointer-to-struct proxy.
func Of[T any](id uuid.UUID, kind abi.Kind, name string, ctor func() *T) Type {
	return Type{
		ID:   id,
		Kind: kind,
		Name: name,
		Go:   reflect.TypeOf((*T)(nil)),
		New:  func() any { return ctor() },
	}
}

// Entry is a registered type and the module that owns it.
type Entry struct {
	Type
	Owner uuid.UUID
}

// Registry holds the registered types. The zero value is not usable.
type Registry struct {
	entries []Entry
	mu      sync.RWMutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// RegisterTypes registers types under owner and reports whether all of them
// were accepted.
func (r *Registry) RegisterTypes(owner uuid.UUID, types ...Type) bool {
	if err := r.Register(owner, types...); err != nil {
		Logger().Warn("type registration rejected",
			zap.Stringer("owner", owner),
			zap.Error(err))
		return false
	}
	return true
}

// Register is RegisterTypes with the reason for a rejection. Registering a
// type again under the same owner is accepted and leaves the entry unchanged.
func (r *Registry) Register(owner uuid.UUID, types ...Type) error {
	if owner == uuid.Nil {
		return errors.InvalidInput(errors.PhaseRegister, "owner module id is nil")
	}

	prepared := make([]Type, 0, len(types))
	batch := make(map[uuid.UUID]bool, len(types))
	for _, t := range types {
		if t.ID == uuid.Nil {
			return errors.InvalidInput(errors.PhaseRegister, "type id is nil")
		}
		if t.New == nil {
			return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				TypeID(t.ID).
				Detail("type %q has no constructor", t.Name).
				Build()
		}
		if batch[t.ID] {
			return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				TypeID(t.ID).
				Detail("type id listed twice").
				Build()
		}
		batch[t.ID] = true
		if t.Go == nil {
			t.Go = reflect.TypeOf(t.New())
		}
		prepared = append(prepared, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var added []Entry
	for _, t := range prepared {
		if e, ok := r.find(t.ID); ok {
			if e.Owner != owner {
				return errors.RegistrationConflict(t.ID, e.Owner, owner)
			}
			continue
		}
		added = append(added, Entry{Type: t, Owner: owner})
	}
	r.entries = append(r.entries, added...)

	for _, e := range added {
		Logger().Debug("type registered",
			zap.Stringer("type_id", e.ID),
			zap.String("name", e.Name),
			zap.Stringer("kind", e.Kind),
			zap.Stringer("owner", owner))
	}
	return nil
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id uuid.UUID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(id)
}

// find scans linearly; registries hold tens of entries.
func (r *Registry) find(id uuid.UUID) (Entry, bool) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// CreateFromTypeID constructs a new, unregistered instance of the type.
func (r *Registry) CreateFromTypeID(id uuid.UUID) (any, error) {
	e, ok := r.Lookup(id)
	if !ok {
		return nil, errors.TypeNotFound(errors.PhaseConstruct, id)
	}
	v := e.New()
	if v == nil {
		return nil, errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			TypeID(id).
			Detail("constructor for %q returned nil", e.Name).
			Build()
	}
	return v, nil
}

// IsRegistered reports whether the dynamic type of v is registered.
func (r *Registry) IsRegistered(v any) bool {
	if v == nil {
		return false
	}
	rt := reflect.TypeOf(v)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Go == rt {
			return true
		}
	}
	return false
}

// TypeIDOf returns the type id registered for the dynamic type of v.
func (r *Registry) TypeIDOf(v any) (uuid.UUID, bool) {
	if v == nil {
		return uuid.Nil, false
	}
	rt := reflect.TypeOf(v)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Go == rt {
			return e.ID, true
		}
	}
	return uuid.Nil, false
}

// Unregister removes every type owned by owner and returns how many were
// removed.
func (r *Registry) Unregister(owner uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0:0]
	removed := 0
	for _, e := range r.entries {
		if e.Owner == owner {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed
}

// Entries returns a snapshot in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
