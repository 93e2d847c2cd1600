package flush

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/paradox0503/cnosdb/internal/compaction"
	"github.com/paradox0503/cnosdb/internal/guard"
	"github.com/paradox0503/cnosdb/internal/summary"
	"github.com/paradox0503/cnosdb/internal/vnode"
	"github.com/paradox0503/cnosdb/lsm/memtable"
)

// queueEntry is one seal-to-summary leg tracked by the job's ordered queue,
// keyed externally by the memcache's min seq no.
type queueEntry struct {
	mem            *memtable.MemTable
	task           *summary.Task
	vnodeID        vnode.ID
	triggerCompact bool
	completed      bool
}

// Job owns the seq-ordered summary queue and the background writer that
// drains it in strict ascending order. One Job exists per engine instance;
// every vnode's flush requests share it.
type Job struct {
	mu    sync.Mutex
	queue map[uint64]*queueEntry

	notify *guard.Notifier

	summaryCh chan<- *summary.Task
	compactCh chan<- compaction.Task

	log *zap.Logger
}

// NewJob constructs a Job and immediately starts its summary-writer loop,
// which runs until ctx is done - matching the reference implementation's
// "started on construction, runs for the lifetime of the job".
func NewJob(ctx context.Context, summaryCh chan<- *summary.Task, compactCh chan<- compaction.Task, log *zap.Logger) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	j := &Job{
		queue:     make(map[uint64]*queueEntry),
		notify:    guard.NewNotifier(),
		summaryCh: summaryCh,
		compactCh: compactCh,
		log:       log,
	}
	go j.writeSummaryJob(ctx)
	return j
}

// RunBlock flushes req and returns the first error observed, including a
// failed summary reply.
func (j *Job) RunBlock(ctx context.Context, req *Request) error {
	return j.run(ctx, req)
}

// RunSpawn flushes req in the background. Errors are logged, never
// propagated - the caller is not waiting on this flush's outcome.
func (j *Job) RunSpawn(ctx context.Context, req *Request) {
	go func() {
		if err := j.run(ctx, req); err != nil {
			j.log.Error("flush: background run failed", zap.Stringer("vnode", req.VnodeID), zap.Error(err))
		}
	}()
}

func (j *Job) run(ctx context.Context, req *Request) error {
	runStart := time.Now()

	if err := req.Index.Flush(); err != nil {
		return errors.Wrapf(err, "vnode %s: flush index", req.VnodeID)
	}
	indexMs := uint64(time.Since(runStart).Milliseconds())

	sealed := req.Family.ImCache()
	retained := make([]*memtable.MemTable, 0, len(sealed))
	for _, mem := range sealed {
		if mem.MarkFlushing() {
			retained = append(retained, mem)
		}
	}
	if len(retained) == 0 {
		return nil
	}

	entries := make([]*queueEntry, len(retained))
	j.mu.Lock()
	for i, mem := range retained {
		task := summary.NewTask(req.Family, vnode.VersionEdit{}, nil, []*memtable.MemTable{mem})
		entry := &queueEntry{
			mem:            mem,
			task:           task,
			vnodeID:        req.VnodeID,
			triggerCompact: req.TriggerCompact,
		}
		j.queue[mem.MinSeqNo()] = entry
		entries[i] = entry
	}
	j.mu.Unlock()

	if err := j.flushMemtables(ctx, req, retained, entries); err != nil {
		for _, mem := range retained {
			mem.EraseFlushing()
		}
		return err
	}

	if err := req.Index.ClearTombstoneSeries(nil); err != nil {
		j.log.Warn("flush: tombstone series GC failed, continuing", zap.Stringer("vnode", req.VnodeID), zap.Error(err))
	}

	useMs := uint64(time.Since(runStart).Milliseconds())
	req.Family.ReportFlushMetrics(vnode.FlushMetrics{IndexMs: indexMs, UseMs: useMs})

	return nil
}

// flushMemtables drives the actual per-memcache flush, in the order mems
// were snapshotted, then awaits each entry's summary reply in the same
// order. The first failure - either the flush itself or a received summary
// error - aborts the remaining memcaches; there is no partial retry. Folding
// the reply-await into this function means run's single EraseFlushing-on-
// all-retained cleanup on error covers a failed reply exactly like a failed
// FlushOne, matching flush_memtables in the reference implementation.
func (j *Job) flushMemtables(ctx context.Context, req *Request, mems []*memtable.MemTable, entries []*queueEntry) error {
	for i, mem := range mems {
		entry := entries[i]

		fileMeta, _, err := req.Family.FlushOne(ctx, mem)
		if err != nil {
			j.log.Error("flush: memtable flush failed, aborting remaining memcaches",
				zap.Stringer("vnode", req.VnodeID), zap.Uint64("min_seq_no", mem.MinSeqNo()), zap.Error(err))
			return errors.Wrapf(err, "vnode %s: flush memtable min_seq_no=%d", req.VnodeID, mem.MinSeqNo())
		}

		j.mu.Lock()
		entry.task.VersionEdit = vnode.VersionEdit{
			Vnode:    req.VnodeID,
			Level:    fileMeta.Level,
			Produced: fileMeta,
		}
		entry.task.FileMetas = append(entry.task.FileMetas, fileMeta)
		entry.completed = true
		j.mu.Unlock()

		j.notify.Notify()
	}

	for _, entry := range entries {
		select {
		case err, ok := <-entry.task.Reply:
			if ok && err != nil {
				return errors.Wrapf(err, "vnode %s: summary reply", req.VnodeID)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// writeSummaryJob is the ordering engine (write_summary_job): it wakes on
// notify and drains the queue from the smallest key, stopping the instant
// it finds an incomplete entry rather than skipping past it, so summaries
// are always released in strict ascending sequence-number order.
func (j *Job) writeSummaryJob(ctx context.Context) {
	for {
		if err := j.notify.Wait(ctx); err != nil {
			return
		}

		for {
			entry, ok := j.popSmallestCompleted()
			if !ok {
				break
			}

			select {
			case j.summaryCh <- entry.task:
			case <-ctx.Done():
				return
			}

			if entry.triggerCompact && j.compactCh != nil {
				select {
				case j.compactCh <- compaction.DeltaTask{Vnode: entry.vnodeID}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// popSmallestCompleted removes and returns the queue's lowest-keyed entry if
// it is complete. If the lowest entry is still incomplete, it is left in
// place and ok is false - the caller must not advance past it.
func (j *Job) popSmallestCompleted() (*queueEntry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var minSeq uint64
	var found bool
	for seq := range j.queue {
		if !found || seq < minSeq {
			minSeq = seq
			found = true
		}
	}
	if !found {
		return nil, false
	}

	entry := j.queue[minSeq]
	if !entry.completed {
		return nil, false
	}

	delete(j.queue, minSeq)
	return entry, true
}
