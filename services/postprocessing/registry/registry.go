// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry implements explicit plug-in discovery: a typed table
// mapping (module, class) to a factory. It replaces dynamic library loading
// with compile-time registration from module init functions.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

// Registry holds factories for one plug-in kind (reductors, comparators,
// validators, tasks). Instantiation is a fresh value per call; factories
// must not share mutable state.
//
// Thread Safety: safe for concurrent registration and lookup.
type Registry[T any] struct {
	kind string
	mu   sync.RWMutex
	mods map[string]map[string]func() T
}

// New returns an empty registry; kind names the plug-in family in errors.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, mods: map[string]map[string]func() T{}}
}

// Register adds a factory under (module, class). Registering the same pair
// twice replaces the earlier factory.
func (r *Registry[T]) Register(module, class string, factory func() T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	classes, ok := r.mods[module]
	if !ok {
		classes = map[string]func() T{}
		r.mods[module] = classes
	}
	classes[class] = factory
}

// Create instantiates the class from the module. It fails with
// core.ErrLoadModule when the module is unknown and core.ErrResolveClass
// when the module exists but the class does not.
func (r *Registry[T]) Create(module, class string) (T, error) {
	var zero T
	r.mu.RLock()
	classes, ok := r.mods[module]
	if !ok {
		r.mu.RUnlock()
		return zero, fmt.Errorf("%s module %q: %w", r.kind, module, core.ErrLoadModule)
	}
	factory, ok := classes[class]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%s class %q in module %q: %w", r.kind, class, module, core.ErrResolveClass)
	}
	return factory(), nil
}

// Modules returns the sorted list of registered module names.
func (r *Registry[T]) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.mods))
	for m := range r.mods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Classes returns the sorted class names of a module, nil when unknown.
func (r *Registry[T]) Classes(module string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes, ok := r.mods[module]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(classes))
	for c := range classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
