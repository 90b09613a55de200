// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package core

import "fmt"

// QualityLevel is the numeric rank of a verdict. Higher level means worse.
type QualityLevel uint

const (
	LevelNull   QualityLevel = 0
	LevelGood   QualityLevel = 1
	LevelMedium QualityLevel = 2
	LevelBad    QualityLevel = 3
)

// QualityFlag is a (kind, comment) pair attached to a verdict to explain it.
type QualityFlag struct {
	Name    string `json:"name"`
	Comment string `json:"comment,omitempty"`
}

// Quality is a totally ordered verdict: Null < Good < Medium < Bad, where
// "greater" means worse. Flags accumulate context about how the verdict was
// reached. The zero value is Null with no flags.
type Quality struct {
	Level    QualityLevel      `json:"level"`
	Flags    []QualityFlag     `json:"flags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var (
	QualityNull   = Quality{Level: LevelNull}
	QualityGood   = Quality{Level: LevelGood}
	QualityMedium = Quality{Level: LevelMedium}
	QualityBad    = Quality{Level: LevelBad}
)

// Name returns the canonical verdict name.
func (q Quality) Name() string {
	switch q.Level {
	case LevelGood:
		return "Good"
	case LevelMedium:
		return "Medium"
	case LevelBad:
		return "Bad"
	default:
		return "Null"
	}
}

// IsWorseThan reports whether q ranks strictly worse than other.
func (q Quality) IsWorseThan(other Quality) bool {
	return q.Level > other.Level
}

// IsBetterThan reports whether q ranks strictly better than other.
func (q Quality) IsBetterThan(other Quality) bool {
	return q.Level < other.Level
}

// AddFlag appends a flag and returns the updated verdict.
func (q Quality) AddFlag(name, comment string) Quality {
	q.Flags = append(q.Flags, QualityFlag{Name: name, Comment: comment})
	return q
}

// SetMetadata records a key on the verdict metadata map.
func (q *Quality) SetMetadata(key, value string) {
	if q.Metadata == nil {
		q.Metadata = map[string]string{}
	}
	q.Metadata[key] = value
}

func (q Quality) String() string {
	return fmt.Sprintf("Quality: %s (level %d)", q.Name(), q.Level)
}

// WorstOf returns the worse of the two verdicts.
func WorstOf(a, b Quality) Quality {
	if b.IsWorseThan(a) {
		return b
	}
	return a
}
