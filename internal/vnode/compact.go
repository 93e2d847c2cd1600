package vnode

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/paradox0503/cnosdb/lsm"
	"github.com/paradox0503/cnosdb/lsm/sstable"
)

// CompactionPlan names a set of SSTables in one level to merge into a new
// SSTable placed in a (possibly different) target level.
type CompactionPlan struct {
	Level    int
	Target   int
	Files    []uint64
	NewIndex uint64
}

// PickCompaction scans this vnode's levels for the first one exceeding its
// table-count budget and proposes merging its oldest group into the next
// level, cascading the same way size-tiered compaction has always worked in
// this engine: oldest files first, one level promoted to the next when it
// overflows. It returns false when no level currently needs compaction.
func (f *Family) PickCompaction() (CompactionPlan, bool) {
	maxLevels := int(lsm.MAX_LEVELS)
	maxPer := int(lsm.MAX_TABLES_PER_LEVEL)
	if maxPer < 2 {
		return CompactionPlan{}, false
	}

	for lvl := 0; lvl < maxLevels; lvl++ {
		files := f.LevelFiles(lvl)
		if len(files) <= maxPer {
			continue
		}

		groupSize := maxPer
		if len(files) < groupSize {
			groupSize = len(files)
		}
		if groupSize < 2 {
			continue
		}

		target := lvl
		if lvl < maxLevels-1 {
			target = lvl + 1
		}

		group := make([]uint64, groupSize)
		copy(group, files[:groupSize])

		return CompactionPlan{
			Level:    lvl,
			Target:   target,
			Files:    group,
			NewIndex: f.NextSSTableIndex(),
		}, true
	}

	return CompactionPlan{}, false
}

// RunCompaction executes plan: it merges plan.Files into a single new
// SSTable and applies the resulting version edit to this vnode's level
// structure. The caller is expected to hold whatever cross-vnode
// serialization the scheduler requires (one compaction per vnode at a time);
// RunCompaction itself still takes the per-level locks so a manual
// compaction trigger can never race the background scheduler.
func (f *Family) RunCompaction(ctx context.Context, plan CompactionPlan) (VersionEdit, CompactionMetrics, error) {
	start := time.Now()

	lvlLock := f.LevelLock(plan.Level)
	lvlLock.Lock()
	defer lvlLock.Unlock()
	if plan.Target != plan.Level {
		tgtLock := f.LevelLock(plan.Target)
		tgtLock.Lock()
		defer tgtLock.Unlock()
	}

	intIndexes := make([]int, len(plan.Files))
	for i, idx := range plan.Files {
		intIndexes[i] = int(idx)
	}

	if err := sstable.Compact(intIndexes, int(plan.NewIndex)); err != nil {
		return VersionEdit{}, CompactionMetrics{}, errors.Wrapf(err, "vnode %s: compact level %d into %d", f.id, plan.Level, plan.Target)
	}

	f.tree.ApplyCompaction(plan.Level, plan.Target, plan.Files, plan.NewIndex)

	edit := VersionEdit{
		Vnode:    f.id,
		Level:    plan.Level,
		Target:   plan.Target,
		Consumed: plan.Files,
		Produced: FileMeta{Index: plan.NewIndex, Level: plan.Target},
	}
	metrics := CompactionMetrics{
		Vnode:         f.id,
		Level:         plan.Level,
		ConsumedFiles: len(plan.Files),
		DurationMs:    time.Since(start).Milliseconds(),
	}
	f.mx.ObserveCompaction(f.id, plan.Level, len(plan.Files), time.Since(start))

	f.log.Debug("compacted level",
		zap.Stringer("vnode", f.id),
		zap.Int("level", plan.Level),
		zap.Int("target", plan.Target),
		zap.Int("consumed_files", len(plan.Files)),
		zap.Uint64("new_index", plan.NewIndex),
	)

	return edit, metrics, nil
}
