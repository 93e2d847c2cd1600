// Package flush implements the background flush coordinator (C5): it drains
// a vnode's immutable memcaches to durable SSTables and releases the
// resulting summary tasks to the manifest writer in strict sequence-number
// order, even though the underlying per-memcache flush work completes out
// of order.
package flush

import (
	"context"

	"github.com/paradox0503/cnosdb/internal/vnode"
	"github.com/paradox0503/cnosdb/lsm/memtable"
)

// tsFamily is the narrow surface Job needs from a vnode's storage
// collaborator. *vnode.Family satisfies it; tests supply lighter fakes so
// the queue's ordering and error-cleanup behavior can be verified without a
// real LSM tree backing every case.
type tsFamily interface {
	ImCache() []*memtable.MemTable
	FlushOne(ctx context.Context, mem *memtable.MemTable) (vnode.FileMeta, vnode.FlushMetrics, error)
	ReportFlushMetrics(vnode.FlushMetrics)
}

// tsIndex is the narrow surface Job needs from a vnode's key dictionary.
// *vnode.Index satisfies it.
type tsIndex interface {
	Flush() error
	ClearTombstoneSeries(live map[string]struct{}) error
}

// Request describes one flush invocation for a single vnode. Unlike the
// reference FlushReq, completion state does not live here: a single Request
// can seal and flush several memcaches at once, and each gets its own
// completion flag tracked by the job's queue entry, not by this struct.
type Request struct {
	VnodeID        vnode.ID
	Family         tsFamily
	Index          tsIndex
	TriggerCompact bool
}

// NewRequest builds a flush Request for vnode id.
func NewRequest(id vnode.ID, family *vnode.Family, index *vnode.Index, triggerCompact bool) *Request {
	return &Request{VnodeID: id, Family: family, Index: index, TriggerCompact: triggerCompact}
}
