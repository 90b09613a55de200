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

// Well-known metadata keys attached to stored objects. The repository layer
// fills the store-assigned keys (Valid-From, Created, Content-MD5) on
// retrieval; producers fill the qc_* keys before upload.
const (
	MetaValidFrom     = "Valid-From"
	MetaValidUntil    = "Valid-Until"
	MetaCreated       = "Created"
	MetaContentMD5    = "Content-MD5"
	MetaObjectType    = "ObjectType"
	MetaLastModified  = "lastModified"
	MetaQCVersion     = "qc_version"
	MetaDetectorName  = "qc_detector_name"
	MetaTaskName      = "qc_task_name"
	MetaTaskClass     = "qc_task_class"
	MetaQuality       = "qc_quality"
	MetaCheckName     = "qc_check_name"
	MetaAdjustableEOV = "adjustableEOV"
	MetaDrawOptions   = "drawOptions"
	MetaDisplayHint   = "displayHint"
)

// MergeMetadata copies entries from src into dst without overwriting keys
// already present. dst may be nil, in which case a new map is returned.
func MergeMetadata(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

// MetadataMatches reports whether every key in want is present in have with
// an equal value. An empty want matches anything.
func MetadataMatches(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
