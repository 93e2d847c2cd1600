package compaction

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/paradox0503/cnosdb/internal/guard"
	"github.com/paradox0503/cnosdb/internal/summary"
	"github.com/paradox0503/cnosdb/internal/vnode"
)

// tickInterval is the scheduler's fixed check-interval.
const tickInterval = time.Second

// compactable is the surface the scheduler needs from a vnode's storage
// collaborator. *vnode.Family satisfies it; tests supply lighter fakes so
// the scheduler's concurrency and serialization behavior can be verified
// without standing up a real LSM tree.
type compactable interface {
	ID() vnode.ID
	CanCompaction() bool
	PickCompaction() (vnode.CompactionPlan, bool)
	RunCompaction(ctx context.Context, plan vnode.CompactionPlan) (vnode.VersionEdit, vnode.CompactionMetrics, error)
}

// jobInner holds the mutable state one CompactJob supervises. Its fields are
// individually concurrency-safe (atomics, a semaphore, the Processor's own
// lock, a read-only families map); Job.mu exists to let RestartGuard pause
// and resume the scheduler as one atomic step relative to other maintenance
// operations, not to guard every field access.
type jobInner struct {
	processor *Processor
	families  map[vnode.ID]compactable
	sem       *semaphore.Weighted

	enableCompaction   atomic.Bool
	runningCompactions atomic.Int64

	summaryCh chan<- *summary.Task

	log *zap.Logger
}

// Job is the compaction scheduler (C4) plus the restart guard (C6) that
// pauses and resumes it. One Job exists per engine instance.
type Job struct {
	mu    sync.RWMutex
	inner *jobInner
}

// NewJob constructs a Job. families must already be populated with every
// vnode the engine knows about at startup; summaryCh is the outbound channel
// described in the external interfaces.
func NewJob(
	processor *Processor,
	families map[vnode.ID]*vnode.Family,
	maxConcurrentCompaction uint64,
	summaryCh chan<- *summary.Task,
	log *zap.Logger,
) *Job {
	wrapped := make(map[vnode.ID]compactable, len(families))
	for id, f := range families {
		wrapped[id] = f
	}
	return newJob(processor, wrapped, maxConcurrentCompaction, summaryCh, log)
}

func newJob(
	processor *Processor,
	families map[vnode.ID]compactable,
	maxConcurrentCompaction uint64,
	summaryCh chan<- *summary.Task,
	log *zap.Logger,
) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{
		inner: &jobInner{
			processor: processor,
			families:  families,
			sem:       semaphore.NewWeighted(int64(maxConcurrentCompaction)),
			summaryCh: summaryCh,
			log:       log,
		},
	}
}

// RunningCompactions returns the current number of in-flight compaction
// workers, for observability. inner is set once at construction and never
// replaced, so reading it needs no lock of its own; j.mu only arbitrates
// RestartGuard's exclusive pause/resume window against other maintenance
// operations composed on the same lock.
func (j *Job) RunningCompactions() int64 {
	return j.inner.runningCompactions.Load()
}

// StartVnodeCompactionJob transitions enable_compaction false->true and, if
// that succeeds, spawns the scheduler loop. A call while already running is
// a no-op - starting is idempotent.
func (j *Job) StartVnodeCompactionJob(ctx context.Context) {
	inner := j.inner

	if !inner.enableCompaction.CompareAndSwap(false, true) {
		inner.log.Debug("compaction scheduler already running")
		return
	}
	go j.schedulerLoop(ctx, inner)
}

// Stop cooperatively disables the scheduler; the loop observes this within
// one tick and in-flight workers finish their current merge.
func (j *Job) Stop() {
	j.inner.enableCompaction.Store(false)
}

func (j *Job) schedulerLoop(ctx context.Context, inner *jobInner) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inner.enableCompaction.Load() {
				return
			}
			if inner.processor.Len() == 0 {
				continue
			}
			drained, err := inner.processor.Take()
			if err != nil {
				inner.log.Error("compaction scheduler: fatal processor error, exiting", zap.Error(err))
				return
			}
			runSchedulerTick(ctx, inner, drained)
		}
	}
}

// runSchedulerTick dispatches one drained batch. It returns early - dropping
// every remaining (task, lock) pair for this tick - the moment a vnode
// reports it cannot compact because it is migrating. That is the reference
// implementation's observed behavior, preserved faithfully rather than
// "fixed" into a continue.
func runSchedulerTick(ctx context.Context, inner *jobInner, drained []Drained) {
	for _, d := range drained {
		family, ok := inner.families[d.Task.VnodeID()]
		if !ok {
			inner.log.Warn("compaction: no family for vnode, skipping", zap.Stringer("vnode", d.Task.VnodeID()))
			continue
		}

		if !family.CanCompaction() {
			inner.log.Info("compaction: vnode is migrating, aborting remaining tasks this tick",
				zap.Stringer("vnode", d.Task.VnodeID()))
			return
		}

		plan, ok := family.PickCompaction()
		if !ok {
			inner.log.Info("compaction: nothing to compact", zap.Stringer("vnode", d.Task.VnodeID()))
			continue
		}

		if err := inner.sem.Acquire(ctx, 1); err != nil {
			inner.log.Error("compaction: semaphore acquire failed, fatal for this worker", zap.Error(err))
			return
		}

		go runCompactionWorker(ctx, inner, family, d.Lock, plan)
	}
}

func runCompactionWorker(ctx context.Context, inner *jobInner, family compactable, lock *sync.Mutex, plan vnode.CompactionPlan) {
	defer inner.sem.Release(1)

	lock.Lock()
	defer lock.Unlock()

	if !inner.enableCompaction.Load() {
		return
	}

	inner.runningCompactions.Inc()
	dec := guard.New(func() { inner.runningCompactions.Dec() })
	defer dec.Run()

	edit, _, err := family.RunCompaction(ctx, plan)
	if err != nil {
		inner.log.Error("compaction: merge failed, not retried", zap.Stringer("vnode", family.ID()), zap.Error(err))
		return
	}

	task := summary.NewTask(family, edit, []vnode.FileMeta{edit.Produced}, nil)
	select {
	case inner.summaryCh <- task:
	case <-ctx.Done():
	}
	// The reply channel is deliberately never read on the compaction path:
	// re-introducing a wait here would need a retry/backoff policy this
	// scheduler does not implement.
}
