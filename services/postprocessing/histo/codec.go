// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package histo

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Object is any payload the codec can persist. Payload kinds defined outside
// this package (e.g. trend trees) register a factory with RegisterKind.
type Object interface {
	GetName() string
	Kind() string
}

// Built-in payload kinds.
const (
	KindHistogram   = "histogram"
	KindHistogram2D = "histogram2d"
	KindGraph       = "graph"
	KindGraphErrors = "graphErrors"
	KindCanvas      = "canvas"
	KindLegend      = "legend"
	KindPaveLabel   = "paveLabel"
	KindArrow       = "arrow"
)

// Envelope is the kind-tagged wire form of a payload.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

var (
	kindMu    sync.RWMutex
	kindTable = map[string]func() Object{
		KindHistogram:   func() Object { return &Histogram{} },
		KindHistogram2D: func() Object { return &Histogram2D{} },
		KindGraph:       func() Object { return &Graph{} },
		KindGraphErrors: func() Object { return &GraphErrors{} },
		KindCanvas:      func() Object { return &Canvas{} },
		KindLegend:      func() Object { return &Legend{} },
		KindPaveLabel:   func() Object { return &PaveLabel{} },
		KindArrow:       func() Object { return &Arrow{} },
	}
)

// RegisterKind adds a payload kind to the codec. Later registrations under
// the same kind replace earlier ones; packages register from init.
func RegisterKind(kind string, factory func() Object) {
	kindMu.Lock()
	defer kindMu.Unlock()
	kindTable[kind] = factory
}

// Wrap builds the envelope for an object.
func Wrap(obj Object) (Envelope, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", obj.Kind(), err)
	}
	return Envelope{Kind: obj.Kind(), Data: data}, nil
}

// Unwrap decodes an envelope into a freshly allocated object of its kind.
func Unwrap(env Envelope) (Object, error) {
	kindMu.RLock()
	factory, ok := kindTable[env.Kind]
	kindMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
	obj := factory()
	if err := json.Unmarshal(env.Data, obj); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Kind, err)
	}
	return obj, nil
}

// Encode serializes an object to its enveloped byte form.
func Encode(obj Object) ([]byte, error) {
	env, err := Wrap(obj)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode deserializes an enveloped byte form back into an object.
func Decode(data []byte) (Object, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding payload envelope: %w", err)
	}
	return Unwrap(env)
}
