// Package stash is the orchestration layer: it ties the tree, the storage
// registries, placement, chunking, encryption and transfer together into
// whole-file operations.
package stash

import (
	"os"

	"dstash/internal/model"
)

// Version is the engine version recorded in birth metadata.
const Version = 1

// DefaultBirth captures the birth template for this process. The tree
// store stamps the per-record time.
func DefaultBirth() model.Birth {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return model.Birth{Version: Version, Hostname: hostname}
}
