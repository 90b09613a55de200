// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trending implements the trending engine: the append-only columnar
// trend tree, the trending task that feeds it from reductors, its sliced
// variant, and the InfluxDB row mirror.
package trending

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/reductor"
)

// KindTree is the codec kind under which trend trees persist.
const KindTree = "trendTree"

func init() {
	histo.RegisterKind(KindTree, func() histo.Object { return &Tree{} })
}

// Branch is one column group of a trend tree, schema-bound to a reductor's
// leaf list. Sliced branches carry a variable number of records per row and
// skip the fixed-width check.
type Branch struct {
	Name     string      `json:"name"`
	LeafList string      `json:"leafList"`
	Sliced   bool        `json:"sliced,omitempty"`
	Rows     [][]float64 `json:"rows"`

	// Labels holds per-slice axis labels of the latest row (sliced only).
	Labels []string `json:"labels,omitempty"`

	leaves []reductor.Leaf
}

// Tree is the per-task append-only table: fixed base columns runNumber and
// time (seconds since epoch), plus one branch per data source. Rows are
// never mutated in place.
type Tree struct {
	Name       string    `json:"name"`
	RunNumbers []int32   `json:"runNumbers"`
	Times      []uint32  `json:"times"`
	Branches   []*Branch `json:"branches"`
}

// NewTree returns an empty tree named after its task.
func NewTree(taskName string) *Tree {
	return &Tree{Name: taskName}
}

func (t *Tree) GetName() string { return t.Name }

// Kind implements histo.Object.
func (t *Tree) Kind() string { return KindTree }

// NRows returns the number of appended rows.
func (t *Tree) NRows() int { return len(t.Times) }

// AddBranch declares a column group. The leaf list is validated eagerly;
// duplicate branch names are rejected.
func (t *Tree) AddBranch(name, leafList string, sliced bool) error {
	if t.Branch(name) != nil {
		return fmt.Errorf("duplicate branch %q: %w", name, core.ErrConfig)
	}
	leaves, err := reductor.ParseLeafList(leafList)
	if err != nil {
		return err
	}
	t.Branches = append(t.Branches, &Branch{
		Name:     name,
		LeafList: leafList,
		Sliced:   sliced,
		leaves:   leaves,
	})
	return nil
}

// Branch returns the named branch, nil when absent.
func (t *Tree) Branch(name string) *Branch {
	for _, b := range t.Branches {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// BranchNames returns the declared branch names in order.
func (t *Tree) BranchNames() []string {
	out := make([]string, len(t.Branches))
	for i, b := range t.Branches {
		out[i] = b.Name
	}
	return out
}

func (b *Branch) ensureLeaves() []reductor.Leaf {
	if b.leaves == nil && b.LeafList != "" {
		b.leaves, _ = reductor.ParseLeafList(b.LeafList)
	}
	return b.leaves
}

// AppendRow appends one coherent row: the base columns plus the flattened
// values of every branch, keyed by branch name. A missing branch or a width
// mismatch rejects the whole row, leaving the tree unchanged.
func (t *Tree) AppendRow(runNumber int32, timeSec uint32, values map[string][]float64) error {
	for _, b := range t.Branches {
		v, ok := values[b.Name]
		if !ok {
			return fmt.Errorf("row is missing branch %q: %w", b.Name, core.ErrSchema)
		}
		if !b.Sliced {
			if want := reductor.RecordWidth(b.ensureLeaves()); len(v) != want {
				return fmt.Errorf("branch %q row width %d, schema wants %d: %w",
					b.Name, len(v), want, core.ErrSchema)
			}
		}
	}
	t.RunNumbers = append(t.RunNumbers, runNumber)
	t.Times = append(t.Times, timeSec)
	for _, b := range t.Branches {
		b.Rows = append(b.Rows, append([]float64(nil), values[b.Name]...))
	}
	return nil
}

// Leaf resolves a column by name: the base columns "time" and "runNumber"
// (alias "meta.runNumber"), a qualified "branch.leaf", or a bare leaf name
// searched across branches in declaration order. Array leaves yield their
// first slot.
func (t *Tree) Leaf(name string) ([]float64, bool) {
	switch name {
	case "time":
		out := make([]float64, len(t.Times))
		for i, v := range t.Times {
			out[i] = float64(v)
		}
		return out, true
	case "runNumber", "meta.runNumber":
		out := make([]float64, len(t.RunNumbers))
		for i, v := range t.RunNumbers {
			out[i] = float64(v)
		}
		return out, true
	}

	for _, b := range t.Branches {
		if b.Sliced {
			continue
		}
		offset := 0
		for _, l := range b.ensureLeaves() {
			if l.Name == name || b.Name+"."+l.Name == name {
				out := make([]float64, len(b.Rows))
				for i, row := range b.Rows {
					if offset < len(row) {
						out[i] = row[offset]
					}
				}
				return out, true
			}
			offset += l.Width()
		}
	}
	return nil, false
}

// LeafNamesFlat returns every addressable leaf, qualified by branch.
func (t *Tree) LeafNamesFlat() []string {
	out := []string{"runNumber", "time"}
	for _, b := range t.Branches {
		for _, l := range b.ensureLeaves() {
			out = append(out, b.Name+"."+l.Name)
		}
	}
	return out
}

// CompatibleWith reports whether a persisted tree can be resumed for the
// given branch schema: the branch name sets must be equal and every common
// branch must declare the identical leaf list. Schema drift is rejected
// rather than silently rebound.
func (t *Tree) CompatibleWith(branches map[string]string) bool {
	if len(branches) != len(t.Branches) {
		return false
	}
	for _, b := range t.Branches {
		want, ok := branches[b.Name]
		if !ok || want != b.LeafList {
			return false
		}
	}
	return true
}

// SeenRunNumbers returns the distinct run numbers in appended order of
// first appearance.
func (t *Tree) SeenRunNumbers() []int32 {
	seen := map[int32]bool{}
	var out []int32
	for _, r := range t.RunNumbers {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// SortedLeafValues returns a copy of the column sorted ascending, for
// axis-range decisions.
func SortedLeafValues(col []float64) []float64 {
	out := append([]float64(nil), col...)
	sort.Float64s(out)
	return out
}
