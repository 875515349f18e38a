package renderer

import "fmt"

// Handle identifies a GPU resource owned by a RenderSystem. A handle stays valid
// until the resource is deleted; afterwards the slot's generation moves on and
// the stale handle no longer resolves, so a second delete is rejected instead of
// freeing whatever reused the slot.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether the handle was never issued.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.generation)
}

type arenaSlot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// HandleArena stores values addressed by generation-counted handles. It is not
// safe for concurrent use; RenderSystem implementations guard it with their own
// mutex.
type HandleArena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

// NewHandleArena creates an empty arena.
//
// Returns:
//   - *HandleArena[T]: the arena
func NewHandleArena[T any]() *HandleArena[T] {
	return &HandleArena[T]{}
}

// Insert stores v and returns its handle. Freed slots are reused with a bumped
// generation.
//
// Parameters:
//   - v: the value to store
//
// Returns:
//   - Handle: the handle addressing v
func (a *HandleArena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}
	s := &a.slots[idx]
	s.generation++
	s.value = v
	s.live = true
	a.live++
	return Handle{index: idx, generation: s.generation}
}

// Get resolves a handle.
//
// Parameters:
//   - h: the handle
//
// Returns:
//   - T: the stored value, or the zero value
//   - bool: false if the handle is zero, stale or out of range
func (a *HandleArena[T]) Get(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	return a.slots[h.index].value, true
}

// Remove deletes the value addressed by h.
//
// Parameters:
//   - h: the handle
//
// Returns:
//   - T: the removed value, or the zero value
//   - bool: false if the handle did not resolve
func (a *HandleArena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	s := &a.slots[h.index]
	v := s.value
	s.value = zero
	s.live = false
	a.free = append(a.free, h.index)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *HandleArena[T]) Len() int {
	return a.live
}

// Each calls fn for every live value in slot order.
func (a *HandleArena[T]) Each(fn func(h Handle, v T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(Handle{index: uint32(i), generation: s.generation}, s.value)
		}
	}
}

func (a *HandleArena[T]) valid(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.index]
	return s.live && s.generation == h.generation
}
