package vnode

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/paradox0503/cnosdb/lsm"
	"github.com/paradox0503/cnosdb/lsm/memtable"
)

// Metrics is the narrow surface Family needs from the process-wide metrics
// recorder. Defined here, implemented by internal/metrics, so this package
// never has to import it - internal/metrics stays a leaf.
type Metrics interface {
	ObserveFlush(vnode ID, d time.Duration)
	ObserveCompaction(vnode ID, level int, consumed int, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFlush(ID, time.Duration)                {}
func (noopMetrics) ObserveCompaction(ID, int, int, time.Duration) {}

// Family is the per-vnode storage collaborator: it owns one lsm.LSM and the
// flush worker pool that drains its sealed memtables, and exposes the
// seal/flush/compact primitives the background coordinator calls.
type Family struct {
	id    ID
	tree  *lsm.LSM
	pool  *lsm.FlushPool
	index *Index
	log   *zap.Logger
	mx    Metrics
}

// Option configures a Family at construction time.
type Option func(*Family)

// WithLogger attaches a logger; otherwise a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(f *Family) { f.log = l }
}

// WithMetrics attaches a metrics recorder; otherwise observations are dropped.
func WithMetrics(m Metrics) Option {
	return func(f *Family) {
		if m != nil {
			f.mx = m
		}
	}
}

// NewFamily wraps tree (already loaded via lsm.LoadLSM) as vnode id, with
// flushWorkers concurrent flush workers and idx as its key dictionary.
func NewFamily(id ID, tree *lsm.LSM, flushWorkers int, idx *Index, opts ...Option) *Family {
	f := &Family{
		id:    id,
		tree:  tree,
		pool:  lsm.NewFlushPool(flushWorkers),
		index: idx,
		log:   zap.NewNop(),
		mx:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID returns the vnode identifier this family backs.
func (f *Family) ID() ID { return f.id }

// Index returns this family's key dictionary handle, the ts_index
// collaborator a flush request drives.
func (f *Family) Index() *Index { return f.index }

// Close stops the flush worker pool. Callers must ensure no flush is
// in-flight.
func (f *Family) Close() {
	f.pool.Stop()
}

// OnSeal installs fn as the hook invoked whenever the underlying LSM seals a
// batch of memtables, letting the engine wire sealing straight into flush
// scheduling.
func (f *Family) OnSeal(fn func()) {
	f.tree.SetOnSeal(fn)
}

// ImCache returns the vnode's immutable memcache: memtables that have been
// sealed but not yet durably flushed, oldest (lowest seq) first.
func (f *Family) ImCache() []*memtable.MemTable {
	return f.tree.ImCache()
}

// CanCompaction reports whether this vnode currently accepts compaction.
func (f *Family) CanCompaction() bool { return f.tree.CanCompaction() }

// SetMigrating marks or clears the vnode's migrating state.
func (f *Family) SetMigrating(m bool) { f.tree.SetMigrating(m) }

// LevelFiles returns the SSTable indexes currently registered in level lvl.
func (f *Family) LevelFiles(lvl int) []uint64 { return f.tree.LevelFiles(lvl) }

// LevelLock returns the mutex serializing compactions against level lvl.
func (f *Family) LevelLock(lvl int) interface{ Lock(); Unlock() } {
	return f.tree.LevelLock(lvl)
}

// ReportFlushMetrics records the timings of a completed flush run into the
// family's LSM tree for later observability queries.
func (f *Family) ReportFlushMetrics(m FlushMetrics) {
	f.tree.RecordFlushMetrics(m.IndexMs, m.UseMs)
}

// NextSSTableIndex allocates the next SSTable file index for this vnode.
func (f *Family) NextSSTableIndex() uint64 {
	return f.tree.GetNextSSTableIndexWithIncrement()
}

// FlushOne durably flushes a single sealed memtable to a fresh SSTable at
// level 0 and removes it from the immutable memcache. It is the vnode-scoped
// building block internal/flush.Job drives per FlushRequest. The caller is
// responsible for having already claimed mem via MarkFlushing: FlushOne
// does not claim or release that flag itself, so a failure here leaves the
// claim for the caller to erase.
func (f *Family) FlushOne(ctx context.Context, mem *memtable.MemTable) (FileMeta, FlushMetrics, error) {
	start := time.Now()
	index := f.NextSSTableIndex()
	indexStart := time.Now()

	if err := f.pool.Submit(mem, int(index)); err != nil {
		return FileMeta{}, FlushMetrics{}, errors.Wrapf(err, "vnode %s: flush memtable to sstable %d", f.id, index)
	}
	indexMs := uint64(time.Since(indexStart).Milliseconds())

	f.tree.AppendLevel(0, index)
	f.tree.RemoveSealed(mem)

	useMs := uint64(time.Since(start).Milliseconds())
	f.tree.RecordFlushMetrics(indexMs, useMs)
	f.mx.ObserveFlush(f.id, time.Since(start))

	entries := mem.TotalEntries()
	f.log.Debug("flushed memtable",
		zap.Stringer("vnode", f.id),
		zap.Uint64("sstable_index", index),
		zap.Int("entries", entries),
		zap.Uint64("use_ms", useMs),
	)

	return FileMeta{Index: index, Level: 0, EntryCount: entries},
		FlushMetrics{IndexMs: indexMs, UseMs: useMs},
		nil
}
