// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package about

import "fmt"

// Set at link time with -ldflags "-X github.com/helixstack/helixctl/pkg/about.version=..."
var (
	version   = "0.0.0-SNAPSHOT"
	buildHash = "00000000"
	buildDate = "1970-01-01T00:00:00Z"
)

// BuildInfo contains build metadata information.
type BuildInfo struct {
	Version string `json:"version"`
	Hash    string `json:"build_hash"`
	Date    string `json:"build_date"`
}

// GetBuildInfo returns the build metadata of the running binary.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version: version,
		Hash:    buildHash,
		Date:    buildDate,
	}
}

// VersionString returns the version and short build hash in a single string.
func (b BuildInfo) VersionString() string {
	return fmt.Sprintf("%s-%s", b.Version, b.Hash)
}
