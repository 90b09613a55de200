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

import "encoding/json"

// Pad is one drawing region of a canvas. It borrows the objects it draws;
// ownership stays with whoever placed them unless the canvas is decoded from
// the store, in which case the pad owns its decoded copies.
type Pad struct {
	Name    string   `json:"name"`
	Title   string   `json:"title,omitempty"`
	LogY    bool     `json:"logY,omitempty"`
	Objects []Object `json:"-"`
}

// Draw appends an object to the pad.
func (p *Pad) Draw(obj Object) {
	p.Objects = append(p.Objects, obj)
}

// FindObject returns the first drawn object with the given name, or nil.
func (p *Pad) FindObject(name string) Object {
	for _, o := range p.Objects {
		if o.GetName() == name {
			return o
		}
	}
	return nil
}

// padJSON is the wire form of a pad; objects travel as codec envelopes.
type padJSON struct {
	Name    string     `json:"name"`
	Title   string     `json:"title,omitempty"`
	LogY    bool       `json:"logY,omitempty"`
	Objects []Envelope `json:"objects,omitempty"`
}

func (p *Pad) MarshalJSON() ([]byte, error) {
	out := padJSON{Name: p.Name, Title: p.Title, LogY: p.LogY}
	for _, o := range p.Objects {
		env, err := Wrap(o)
		if err != nil {
			return nil, err
		}
		out.Objects = append(out.Objects, env)
	}
	return json.Marshal(out)
}

func (p *Pad) UnmarshalJSON(data []byte) error {
	var in padJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Name, p.Title, p.LogY = in.Name, in.Title, in.LogY
	p.Objects = nil
	for _, env := range in.Objects {
		obj, err := Unwrap(env)
		if err != nil {
			return err
		}
		p.Objects = append(p.Objects, obj)
	}
	return nil
}

// Canvas is a named collection of pads.
type Canvas struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Pads  []*Pad `json:"pads,omitempty"`
}

// NewCanvas returns an empty canvas.
func NewCanvas(name, title string) *Canvas {
	return &Canvas{Name: name, Title: title}
}

func (c *Canvas) GetName() string { return c.Name }

// Kind implements Object for the payload codec.
func (c *Canvas) Kind() string { return KindCanvas }

// AddPad appends a new named pad and returns it.
func (c *Canvas) AddPad(name string) *Pad {
	p := &Pad{Name: name}
	c.Pads = append(c.Pads, p)
	return p
}

// GetPad returns the pad with the given name, or nil.
func (c *Canvas) GetPad(name string) *Pad {
	for _, p := range c.Pads {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Clear drops all pads.
func (c *Canvas) Clear() { c.Pads = nil }

// Legend is a box of (label, color) entries drawn on a pad.
type Legend struct {
	Name    string        `json:"name,omitempty"`
	Entries []LegendEntry `json:"entries,omitempty"`
}

type LegendEntry struct {
	Label string `json:"label"`
	Color int    `json:"color,omitempty"`
}

func (l *Legend) GetName() string { return l.Name }

// Kind implements Object for the payload codec.
func (l *Legend) Kind() string { return KindLegend }

// AddEntry appends a legend row.
func (l *Legend) AddEntry(label string, color int) {
	l.Entries = append(l.Entries, LegendEntry{Label: label, Color: color})
}

// PaveLabel is a single block of text with a color, used for quality labels
// and denylist summaries.
type PaveLabel struct {
	Name      string `json:"name,omitempty"`
	Text      string `json:"text"`
	TextColor int    `json:"textColor,omitempty"`
}

func (p *PaveLabel) GetName() string { return p.Name }

// Kind implements Object for the payload codec.
func (p *PaveLabel) Kind() string { return KindPaveLabel }

// Arrow is a double-headed marker between two points, used to flag a range
// of interest on a pad.
type Arrow struct {
	Name  string  `json:"name,omitempty"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color int     `json:"color,omitempty"`
}

func (a *Arrow) GetName() string { return a.Name }

// Kind implements Object for the payload codec.
func (a *Arrow) Kind() string { return KindArrow }
