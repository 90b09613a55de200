// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reductor defines the plug-in contract that collapses a monitor
// object into a fixed-schema scalar record, the leaf-list grammar those
// records declare their schema with, and the built-in reductor module.
package reductor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

// LeafType is the scalar type code of one leaf.
type LeafType byte

// Leaf type codes: double, float, int32, uint32, int16, uint16, int64,
// uint64, string, bool.
const (
	LeafDouble LeafType = 'D'
	LeafFloat  LeafType = 'F'
	LeafInt32  LeafType = 'I'
	LeafUint32 LeafType = 'i'
	LeafInt16  LeafType = 's'
	LeafUint16 LeafType = 'S'
	LeafInt64  LeafType = 'l'
	LeafUint64 LeafType = 'L'
	LeafString LeafType = 'C'
	LeafBool   LeafType = 'B'
)

func validLeafType(t LeafType) bool {
	switch t {
	case LeafDouble, LeafFloat, LeafInt32, LeafUint32, LeafInt16,
		LeafUint16, LeafInt64, LeafUint64, LeafString, LeafBool:
		return true
	}
	return false
}

// Leaf is one declared column of a reductor record. Count > 1 marks a
// fixed-size array leaf.
type Leaf struct {
	Name  string
	Type  LeafType
	Count int
}

// Width returns the number of scalar slots the leaf occupies.
func (l Leaf) Width() int {
	if l.Count < 1 {
		return 1
	}
	return l.Count
}

// ParseLeafList parses a schema string of the form
//
//	leaf[/T](:leaf[/T])*
//
// where the first leaf must declare its type and unqualified leaves inherit
// the previous one. Array leaves are written name[N]. Parsing fails with
// core.ErrConfig on any grammar violation.
func ParseLeafList(spec string) ([]Leaf, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty leaf list: %w", core.ErrConfig)
	}
	parts := strings.Split(spec, ":")
	leaves := make([]Leaf, 0, len(parts))
	var last LeafType
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("leaf %d is empty in %q: %w", i, spec, core.ErrConfig)
		}
		name := part
		typ := last
		if idx := strings.IndexByte(part, '/'); idx >= 0 {
			name = part[:idx]
			code := part[idx+1:]
			if len(code) != 1 || !validLeafType(LeafType(code[0])) {
				return nil, fmt.Errorf("leaf %q has bad type code %q: %w", name, code, core.ErrConfig)
			}
			typ = LeafType(code[0])
		} else if i == 0 {
			return nil, fmt.Errorf("first leaf %q must declare a type: %w", name, core.ErrConfig)
		}

		count := 1
		if open := strings.IndexByte(name, '['); open >= 0 {
			if !strings.HasSuffix(name, "]") {
				return nil, fmt.Errorf("leaf %q has unterminated array size: %w", name, core.ErrConfig)
			}
			n, err := strconv.Atoi(name[open+1 : len(name)-1])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("leaf %q has bad array size: %w", name, core.ErrConfig)
			}
			count = n
			name = name[:open]
		}
		if name == "" {
			return nil, fmt.Errorf("leaf %d has no name in %q: %w", i, spec, core.ErrConfig)
		}

		leaves = append(leaves, Leaf{Name: name, Type: typ, Count: count})
		last = typ
	}
	return leaves, nil
}

// LeafNames returns the declared names in order.
func LeafNames(leaves []Leaf) []string {
	out := make([]string, len(leaves))
	for i, l := range leaves {
		out[i] = l.Name
	}
	return out
}

// RecordWidth returns the total number of scalar slots of a record.
func RecordWidth(leaves []Leaf) int {
	w := 0
	for _, l := range leaves {
		w += l.Width()
	}
	return w
}
