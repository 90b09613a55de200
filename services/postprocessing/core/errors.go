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

import (
	"errors"
	"fmt"
)

// === Error Kinds ===
//
// Every failure surfaced by the post-processing packages wraps one of these
// sentinels so that callers can branch on kind with errors.Is regardless of
// which layer produced it.

var (
	// ErrNotFound means no matching object exists in the store.
	ErrNotFound = errors.New("object not found")

	// ErrStale means an object exists but is older than the caller's
	// staleness budget.
	ErrStale = errors.New("object is stale")

	// ErrSchema means a payload could not be viewed as the expected type.
	ErrSchema = errors.New("payload schema mismatch")

	// ErrLoadModule means a plug-in module could not be located.
	ErrLoadModule = errors.New("module load failed")

	// ErrResolveClass means a class name is unknown within its module.
	ErrResolveClass = errors.New("class resolution failed")

	// ErrTimeout means a store operation exceeded its per-call deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrConfig means a mandatory configuration option is missing or bad.
	ErrConfig = errors.New("invalid configuration")

	// ErrValidatorFail means a validator plug-in rejected object content.
	ErrValidatorFail = errors.New("validator rejected content")
)

// PathError annotates a sentinel with the store path that triggered it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// NewPathError wraps err with the operation and path context.
func NewPathError(op, path string, err error) *PathError {
	return &PathError{Op: op, Path: path, Err: err}
}
