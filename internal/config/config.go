// Package config exposes the coordinator's own settings view over the
// engine-wide utils/config.DBConfig singleton, the same sync.Once-guarded
// JSON-file-backed config the rest of the storage engine already loads
// from. internal/engine depends on this package, not utils/config
// directly, so the coordinator's settings surface stays narrow and typed
// to what the scheduler and flush job actually need.
package config

import "github.com/paradox0503/cnosdb/utils/config"

// Coordinator holds the background compaction and flush coordinator's
// tunables, mirroring utils/config.DBConfig's Coordinator section.
type Coordinator struct {
	MaxConcurrentCompaction  uint64
	NodeID                   uint64
	CollectCompactionMetrics bool
}

// Load reads the coordinator settings off the process-wide config
// singleton. Safe to call repeatedly; the underlying singleton is
// initialized exactly once via sync.Once.
func Load() Coordinator {
	c := config.GetConfig().Coordinator
	return Coordinator{
		MaxConcurrentCompaction:  c.MaxConcurrentCompaction,
		NodeID:                   c.NodeID,
		CollectCompactionMetrics: c.CollectCompactionMetrics,
	}
}
