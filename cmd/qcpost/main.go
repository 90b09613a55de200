// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// qcpost runs post-processing tasks over a quality-control object store
// and serves the store over HTTP.
package main

import (
	"os"

	// Task classes register themselves on import.
	_ "github.com/AleutianAI/qcpost/services/postprocessing/aggregator"
	_ "github.com/AleutianAI/qcpost/services/postprocessing/inspector"
	_ "github.com/AleutianAI/qcpost/services/postprocessing/refcomp"
	_ "github.com/AleutianAI/qcpost/services/postprocessing/trending"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
