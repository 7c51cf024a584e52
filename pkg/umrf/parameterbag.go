package umrf

import (
	"fmt"
	"sync"
)

// ParameterBag is a name-indexed set of Parameters guarded by its own lock,
// matching the per-field mutex discipline the original action engine used
// around input/output parameter access rather than a single node-wide lock.
type ParameterBag struct {
	mu     sync.RWMutex
	byName map[string]Parameter
	order  []string
}

func NewParameterBag(params ...Parameter) *ParameterBag {
	bag := &ParameterBag{byName: make(map[string]Parameter, len(params))}
	for _, p := range params {
		bag.set(p)
	}

	return bag
}

func (b *ParameterBag) set(p Parameter) {
	if _, exists := b.byName[p.Name]; !exists {
		b.order = append(b.order, p.Name)
	}

	b.byName[p.Name] = p
}

// Set replaces or inserts a parameter by name.
func (b *ParameterBag) Set(p Parameter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(p)
}

// Get returns the parameter with the given name.
func (b *ParameterBag) Get(name string) (Parameter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.byName[name]

	return p, ok
}

// Has reports whether a parameter with the given name exists.
func (b *ParameterBag) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byName[name]

	return ok
}

// Len returns the number of parameters held.
func (b *ParameterBag) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.order)
}

// Each calls fn for every parameter in insertion order. fn must not call
// back into the bag.
func (b *ParameterBag) Each(fn func(Parameter)) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, name := range b.order {
		fn(b.byName[name])
	}
}

// CopyFrom overwrites the Data of parameters shared by name with other's
// Data only, mirroring Umrf::copyInputParameters' behavior of transferring
// a parent's output values into a child's input bag without disturbing the
// child's own parameter descriptor (Type, Required, Updatable,
// AllowedValues).
func (b *ParameterBag) CopyFrom(other *ParameterBag) {
	if other == nil {
		return
	}

	other.Each(func(p Parameter) {
		b.mu.Lock()
		if existing, ok := b.byName[p.Name]; ok {
			existing.Data = p.Data
			b.byName[p.Name] = existing
		}
		b.mu.Unlock()
	})
}

// ReceivedAllRequired reports whether every required parameter in the bag
// carries non-zero data, mirroring Umrf::inputParametersReceived.
func (b *ParameterBag) ReceivedAllRequired() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, name := range b.order {
		p := b.byName[name]
		if p.Required && p.DataSize() == 0 {
			return false
		}
	}

	return true
}

// UpdateFrom applies only the updatable parameters present in both bags,
// mirroring Umrf::updateInputParams. It returns whether anything changed.
func (b *ParameterBag) UpdateFrom(incoming *ParameterBag) bool {
	if incoming == nil {
		return false
	}

	updated := false

	incoming.Each(func(p Parameter) {
		b.mu.Lock()
		existing, ok := b.byName[p.Name]
		if ok && existing.Updatable && existing.IsEqualNoDataNoUpdate(p) {
			b.byName[p.Name] = p
			updated = true
		}
		b.mu.Unlock()
	})

	return updated
}

// count / equal support the structural equality checks used when a
// graph update is admitted.
func (b *ParameterBag) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.order)
}

func (b *ParameterBag) equal(other *ParameterBag, checkUpdatable bool) bool {
	if b.count() != other.count() {
		return false
	}

	equal := true
	b.Each(func(p Parameter) {
		op, ok := other.Get(p.Name)
		if !ok {
			equal = false

			return
		}

		if checkUpdatable {
			if !p.IsEqualNoData(op) {
				equal = false
			}
		} else if !p.IsEqualNoDataNoUpdate(op) {
			equal = false
		}
	})

	return equal
}

func (b *ParameterBag) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := ""
	for _, name := range b.order {
		p := b.byName[name]
		out += fmt.Sprintf("   - name=%s; type=%s; required=%t; data_size=%d\n", p.Name, p.Type, p.Required, p.DataSize())
	}

	return out
}
