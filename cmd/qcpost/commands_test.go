// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "qcpost "+version)
}

func TestOpenDatabase(t *testing.T) {
	t.Run("badger", func(t *testing.T) {
		cfg := &config.Config{Database: config.DatabaseConfig{
			Kind: "badger",
			Path: filepath.Join(t.TempDir(), "store"),
		}}
		db, err := openDatabase(cfg)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	})

	t.Run("http", func(t *testing.T) {
		cfg := &config.Config{Database: config.DatabaseConfig{
			Kind:    "http",
			URL:     "http://localhost:8080",
			Timeout: time.Second,
		}}
		db, err := openDatabase(cfg)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	})

	t.Run("unknown kind", func(t *testing.T) {
		cfg := &config.Config{Database: config.DatabaseConfig{Kind: "oracle"}}
		_, err := openDatabase(cfg)
		assert.ErrorIs(t, err, core.ErrConfig)
	})
}

func TestRunTasksMissingConfig(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "nope.yaml")
	err := runTasks(runCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
