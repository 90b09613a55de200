// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reductor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// BuiltinModule is the module name of the reductors shipped here.
const BuiltinModule = "common"

func init() {
	Registry.Register(BuiltinModule, "TH1Reductor", func() Reductor { return &TH1Reductor{} })
	Registry.Register(BuiltinModule, "TH2Reductor", func() Reductor { return &TH2Reductor{} })
	Registry.Register(BuiltinModule, "QualityReductor", func() Reductor { return &QualityReductor{} })
	Registry.Register(BuiltinModule, "ScalarConditionReductor", func() Reductor { return &ScalarConditionReductor{} })
	Registry.Register(BuiltinModule, "TH1SliceReductor", func() Reductor { return &TH1SliceReductor{} })
}

// TH1Reductor reduces a 1-D histogram to its mean, standard deviation and
// entry count.
type TH1Reductor struct {
	mean, stddev, entries float64
}

func (r *TH1Reductor) BranchLeafList() string { return "mean/D:stddev:entries" }

func (r *TH1Reductor) Values() []float64 { return []float64{r.mean, r.stddev, r.entries} }

func (r *TH1Reductor) Update(obj any) error {
	h, ok := payloadOf(obj).(*histo.Histogram)
	if !ok {
		return fmt.Errorf("expected histogram, got %T: %w", obj, core.ErrSchema)
	}
	r.mean = h.Mean()
	r.stddev = h.StdDev()
	r.entries = h.Entries
	return nil
}

// TH2Reductor reduces a 2-D histogram to its entry count and the
// content-weighted means along each axis.
type TH2Reductor struct {
	entries, meanX, meanY float64
}

func (r *TH2Reductor) BranchLeafList() string { return "entries/D:meanX:meanY" }

func (r *TH2Reductor) Values() []float64 { return []float64{r.entries, r.meanX, r.meanY} }

func (r *TH2Reductor) Update(obj any) error {
	h, ok := payloadOf(obj).(*histo.Histogram2D)
	if !ok {
		return fmt.Errorf("expected 2d histogram, got %T: %w", obj, core.ErrSchema)
	}
	var sumX, sumY, sumW float64
	for by := 0; by < h.YAxis.NBins; by++ {
		for bx := 0; bx < h.XAxis.NBins; bx++ {
			w := h.GetBinContent(bx, by)
			sumW += w
			sumX += w * h.XAxis.BinCenter(bx)
			sumY += w * h.YAxis.BinCenter(by)
		}
	}
	r.entries = h.Entries
	if sumW > 0 {
		r.meanX = sumX / sumW
		r.meanY = sumY / sumW
	} else {
		r.meanX, r.meanY = 0, 0
	}
	return nil
}

// QualityReductor reduces a quality verdict to its numeric level.
type QualityReductor struct {
	level float64
}

func (r *QualityReductor) BranchLeafList() string { return "level/i" }

func (r *QualityReductor) Values() []float64 { return []float64{r.level} }

func (r *QualityReductor) Update(obj any) error {
	switch v := obj.(type) {
	case *core.QualityObject:
		r.level = float64(v.Quality.Level)
	case core.Quality:
		r.level = float64(v.Level)
	case *core.Quality:
		r.level = float64(v.Level)
	default:
		return fmt.Errorf("expected quality, got %T: %w", obj, core.ErrSchema)
	}
	return nil
}

// ScalarConditionReductor reads a condition object whose payload is a bare
// JSON number.
type ScalarConditionReductor struct {
	value float64
}

func (r *ScalarConditionReductor) BranchLeafList() string { return "value/D" }

func (r *ScalarConditionReductor) Values() []float64 { return []float64{r.value} }

func (r *ScalarConditionReductor) UpdateCondition(ctx context.Context, db repository.Database, ts int64, fullPath string) error {
	payload, _, err := db.RetrieveRaw(ctx, fullPath, ts, nil)
	if err != nil {
		return err
	}
	var v float64
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("condition at %s is not a scalar: %w", fullPath, core.ErrSchema)
	}
	r.value = v
	return nil
}

// TH1SliceReductor reduces a 1-D histogram slice-by-slice along configured
// X divisions: entry count, mean and standard deviation per slice.
type TH1SliceReductor struct {
	slices []SliceRecord
}

func (r *TH1SliceReductor) BranchLeafList() string { return "entries/D:meanX:stddevX" }

// Values flattens the per-slice records in slice order.
func (r *TH1SliceReductor) Values() []float64 {
	out := make([]float64, 0, 3*len(r.slices))
	for _, s := range r.slices {
		out = append(out, s.Field("entries"), s.Field("meanX"), s.Field("stddevX"))
	}
	return out
}

func (r *TH1SliceReductor) Slices() []SliceRecord { return r.slices }

func (r *TH1SliceReductor) UpdateSliced(obj any, axisX, _ []float64) error {
	h, ok := payloadOf(obj).(*histo.Histogram)
	if !ok {
		return fmt.Errorf("expected histogram, got %T: %w", obj, core.ErrSchema)
	}
	// No divisions: a single slice over the full axis.
	if len(axisX) < 2 {
		axisX = []float64{h.XAxis.Min, h.XAxis.Max}
	}
	r.slices = r.slices[:0]
	for i := 0; i+1 < len(axisX); i++ {
		lo, hi := axisX[i], axisX[i+1]
		var sumW, sumX float64
		for b := 0; b < h.NBins(); b++ {
			c := h.XAxis.BinCenter(b)
			if c < lo || c >= hi {
				continue
			}
			w := h.GetBinContent(b)
			sumW += w
			sumX += w * c
		}
		mean := 0.0
		if sumW > 0 {
			mean = sumX / sumW
		}
		var sumD float64
		for b := 0; b < h.NBins(); b++ {
			c := h.XAxis.BinCenter(b)
			if c < lo || c >= hi {
				continue
			}
			d := c - mean
			sumD += h.GetBinContent(b) * d * d
		}
		stddev := 0.0
		if sumW > 0 {
			stddev = math.Sqrt(sumD / sumW)
		}
		r.slices = append(r.slices, SliceRecord{
			Fields:  map[string]float64{"entries": sumW, "meanX": mean, "stddevX": stddev},
			LabelX:  fmt.Sprintf("%g-%g", lo, hi),
			BoundsX: [2]float64{lo, hi},
		})
	}
	return nil
}

// payloadOf unwraps monitor objects so reductors accept either the wrapper
// or the bare payload.
func payloadOf(obj any) any {
	if mo, ok := obj.(*core.MonitorObject); ok {
		return mo.Payload
	}
	return obj
}
