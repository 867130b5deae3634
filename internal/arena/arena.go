// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package arena implements a generational slot arena.
// Values stored in an arena are referred to by Handle
// rather than by pointer, so a stale reference can be
// detected instead of silently aliasing a newer value.
package arena

// Handle identifies a value stored in an Arena.
// The zero Handle is never returned by Insert.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Index returns the slot index of h.
func (h Handle) Index() int { return int(h.index) }

const nbit = 64

// Arena is a growable set of slots holding values of type T.
// The free list is a bit vector in which set bits denote
// occupied slots.
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	vals []T
	gens []uint32
	used []uint64
	n    int
}

// Len returns the number of values in the arena.
func (a *Arena[_]) Len() int { return a.n }

// search locates an unoccupied slot.
// It grows the bit vector when every slot is taken.
func (a *Arena[T]) search() int {
	for i, x := range a.used {
		if x == ^uint64(0) {
			continue
		}
		var b int
		for ; x&(1<<b) != 0; b++ {
		}
		return i*nbit + b
	}
	index := len(a.used) * nbit
	a.used = append(a.used, 0)
	a.vals = append(a.vals, make([]T, nbit)...)
	a.gens = append(a.gens, make([]uint32, nbit)...)
	return index
}

// isSet checks whether slot index is occupied.
func (a *Arena[_]) isSet(index int) bool {
	i := index / nbit
	if i >= len(a.used) {
		return false
	}
	return a.used[i]&(1<<(index&(nbit-1))) != 0
}

// Insert stores v in a free slot and returns its Handle.
func (a *Arena[T]) Insert(v T) Handle {
	index := a.search()
	a.used[index/nbit] |= 1 << (index & (nbit - 1))
	a.gens[index]++
	if a.gens[index] == 0 {
		// Skip the zero generation on wrap around.
		a.gens[index] = 1
	}
	a.vals[index] = v
	a.n++
	return Handle{index: uint32(index), gen: a.gens[index]}
}

// Get returns the value identified by h.
// It returns false if h is stale or was never issued.
func (a *Arena[T]) Get(h Handle) (v T, ok bool) {
	index := int(h.index)
	if h.IsZero() || !a.isSet(index) || a.gens[index] != h.gen {
		return
	}
	return a.vals[index], true
}

// Remove removes the value identified by h.
// It returns false if h is stale or was never issued.
func (a *Arena[T]) Remove(h Handle) bool {
	index := int(h.index)
	if h.IsZero() || !a.isSet(index) || a.gens[index] != h.gen {
		return false
	}
	var zero T
	a.vals[index] = zero
	a.used[index/nbit] &^= 1 << (index & (nbit - 1))
	a.n--
	return true
}

// All calls fn for every value in the arena, in slot order,
// until fn returns false.
func (a *Arena[T]) All(fn func(Handle, T) bool) {
	for i, x := range a.used {
		for b := 0; x != 0; b, x = b+1, x>>1 {
			if x&1 == 0 {
				continue
			}
			index := i*nbit + b
			if !fn(Handle{index: uint32(index), gen: a.gens[index]}, a.vals[index]) {
				return
			}
		}
	}
}
