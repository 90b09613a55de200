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

import "strings"

// Canonical repository path layout:
//
//	qc/<detector>/MO/<task>/<object>
//	qc/<detector>/QO/<check>[/<objectName>]
//	qc/<detector>/TRFC/<name>
//
// The leading provenance segment defaults to "qc"; async and MC productions
// use "qc_async" and "qc_mc".

const defaultProvenance = "qc"

// MOPath returns the monitor-object directory for a task.
func MOPath(detector, task string) string {
	return MOPathWithProvenance(defaultProvenance, detector, task)
}

// MOPathWithProvenance is MOPath under an explicit provenance segment.
func MOPathWithProvenance(provenance, detector, task string) string {
	if provenance == "" {
		provenance = defaultProvenance
	}
	return provenance + "/" + detector + "/MO/" + task
}

// QOPath returns the quality-object root for a detector.
func QOPath(detector string) string {
	return QOPathWithProvenance(defaultProvenance, detector)
}

// QOPathWithProvenance is QOPath under an explicit provenance segment.
func QOPathWithProvenance(provenance, detector string) string {
	if provenance == "" {
		provenance = defaultProvenance
	}
	return provenance + "/" + detector + "/QO"
}

// TRFCPath returns the time-range flag collection path for a detector.
func TRFCPath(detector, name string) string {
	return defaultProvenance + "/" + detector + "/TRFC/" + name
}

// SplitObjectPath splits a full object path into its parent directory and
// leaf name. It returns ok=false when the path has no directory component.
func SplitObjectPath(fullPath string) (ok bool, parent, leaf string) {
	idx := strings.LastIndex(fullPath, "/")
	if idx <= 0 || idx == len(fullPath)-1 {
		return false, "", ""
	}
	return true, fullPath[:idx], fullPath[idx+1:]
}
