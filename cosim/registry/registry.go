// Package registry provides the append-only instance table behind the
// adapter's opaque handles.
//
// Slots are never reused and entries are never removed: a caller may keep a
// handle after the instance it names has been freed, and resolving it must
// keep yielding the same (retired) instance rather than a newer one. Each
// registry stamps its handles with a generation so that handles issued by a
// different registry are rejected instead of aliasing an unrelated slot.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

var (
	// ErrInvalidHandle is returned when a handle was never issued by the registry.
	ErrInvalidHandle = errors.New("invalid instance handle")
	// ErrTooManyInstances is returned when the configured capacity is exhausted.
	ErrTooManyInstances = errors.New("too many instances")
)

// Handle is an opaque instance reference: generation in the high 32 bits,
// slot index + 1 in the low 32 bits. The zero Handle is never valid.
type Handle uint64

// Generation returns the registry generation the handle was issued under.
func (h Handle) Generation() uint32 {
	return uint32(h >> 32)
}

// Index returns the dense slot index, or -1 for the zero handle.
func (h Handle) Index() int {
	return int(uint32(h)) - 1
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Generation(), h.Index())
}

func makeHandle(generation uint32, index int) Handle {
	return Handle(uint64(generation)<<32 | uint64(uint32(index+1)))
}

var lastGeneration atomic.Uint32

// Registry is an indexed table of T keyed by Handle.
//
// Thread-safety: safe for concurrent use. Allocation is serialized; the
// values themselves are not protected by the registry.
type Registry[T any] struct {
	mu         sync.RWMutex
	entries    []T
	generation uint32
	max        int
}

// New creates a registry holding at most max entries. max <= 0 means the
// only limit is the handle encoding itself.
func New[T any](max int) *Registry[T] {
	if max <= 0 || max > math.MaxUint32-1 {
		max = math.MaxUint32 - 1
	}
	return &Registry[T]{
		entries:    make([]T, 0, 16),
		generation: lastGeneration.Add(1),
		max:        max,
	}
}

// Allocate reserves the next slot and stores the value returned by build.
// build receives the handle and index of the new slot so the value can
// record its own identity; it runs under the registry lock and must not
// call back into the registry.
func (r *Registry[T]) Allocate(build func(h Handle, index int) T) (Handle, T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if len(r.entries) >= r.max {
		return 0, zero, fmt.Errorf("%w: limit is %d", ErrTooManyInstances, r.max)
	}
	index := len(r.entries)
	h := makeHandle(r.generation, index)
	v := build(h, index)
	r.entries = append(r.entries, v)
	return h, v, nil
}

// Resolve returns the value registered under h.
func (r *Registry[T]) Resolve(h Handle) (T, error) {
	var zero T
	if h == 0 || h.Generation() != r.generation {
		return zero, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := h.Index()
	if idx < 0 || idx >= len(r.entries) {
		return zero, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return r.entries[idx], nil
}

// Len returns the number of handles issued so far.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Each calls fn for every entry in allocation order until fn returns false.
func (r *Registry[T]) Each(fn func(Handle, T) bool) {
	r.mu.RLock()
	snapshot := make([]T, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()

	for i, v := range snapshot {
		if !fn(makeHandle(r.generation, i), v) {
			return
		}
	}
}
