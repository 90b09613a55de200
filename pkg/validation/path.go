// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for security-critical
// operations. Object paths arrive from HTTP clients and end up in store
// keys, so they are validated before use to prevent path traversal and
// key injection.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentPattern matches one object-path segment: histogram names like
// "h_dedx_vs_p" or task names like "TrendTracks.v2".
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]{0,63}$`)

// detectorPattern matches detector codes like "TPC" or "MFT".
var detectorPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,7}$`)

// maxPathLength bounds a full object path.
const maxPathLength = 512

// ValidateObjectPath checks a slash-separated store path.
//
// Valid paths:
//   - 1-512 characters, non-empty segments
//   - segments of letters, digits, underscores, dots and hyphens
//   - no "." or ".." segments
func ValidateObjectPath(path string) error {
	if path == "" {
		return fmt.Errorf("object path cannot be empty")
	}
	if len(path) > maxPathLength {
		return fmt.Errorf("object path exceeds %d characters", maxPathLength)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("object path %q has an empty segment", path)
		}
		if seg == "." || seg == ".." {
			return fmt.Errorf("object path %q contains a traversal segment", path)
		}
		if !segmentPattern.MatchString(seg) {
			return fmt.Errorf("invalid path segment %q (letters, digits, underscores, dots and hyphens only)", seg)
		}
	}
	return nil
}

// ValidateDetector checks a detector code: 2-8 characters, uppercase
// alphanumeric, starting with a letter.
func ValidateDetector(detector string) error {
	if !detectorPattern.MatchString(detector) {
		return fmt.Errorf("invalid detector code %q", detector)
	}
	return nil
}
