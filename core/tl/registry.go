// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package tl

import (
	"fmt"
)

// Registry maps constructor ids to factories.  A Registry is populated
// once at construction and is safe for concurrent lookups afterwards.
type Registry struct {
	ctors map[uint32]func() Object
}

// NewRegistry returns a registry containing the given constructors.
// Registering the same id twice panics.
func NewRegistry(ctors ...func() Object) *Registry {
	r := &Registry{ctors: make(map[uint32]func() Object, len(ctors))}
	for _, c := range ctors {
		r.add(c)
	}
	return r
}

func (r *Registry) add(c func() Object) {
	id := c().CRC()
	if _, ok := r.ctors[id]; ok {
		panic(fmt.Sprintf("tl: duplicate constructor 0x%08x", id))
	}
	r.ctors[id] = c
}

// Merge returns a new registry holding the union of r and others.
func (r *Registry) Merge(others ...*Registry) *Registry {
	m := &Registry{ctors: make(map[uint32]func() Object)}
	for _, src := range append([]*Registry{r}, others...) {
		if src == nil {
			continue
		}
		for _, c := range src.ctors {
			m.add(c)
		}
	}
	return m
}

// New returns a fresh object for id.
func (r *Registry) New(id uint32) (Object, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.ctors[id]
	if !ok {
		return nil, false
	}
	return c(), true
}

// Has returns true iff id is registered.
func (r *Registry) Has(id uint32) bool {
	if r == nil {
		return false
	}
	_, ok := r.ctors[id]
	return ok
}

// Len returns the number of registered constructors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ctors)
}
