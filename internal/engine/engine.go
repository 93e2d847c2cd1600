// Package engine wires the compact processor, scheduler and flush job into
// one running coordinator: it owns the channels described in the external
// interfaces, starts the long-lived loops, and exposes the handful of
// entrypoints producers and the storage layer actually call.
package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paradox0503/cnosdb/internal/compaction"
	"github.com/paradox0503/cnosdb/internal/config"
	"github.com/paradox0503/cnosdb/internal/flush"
	"github.com/paradox0503/cnosdb/internal/metrics"
	"github.com/paradox0503/cnosdb/internal/summary"
	"github.com/paradox0503/cnosdb/internal/vnode"
)

const (
	compactTaskBuffer = 256
	summaryTaskBuffer = 256
	metricsPollPeriod = time.Second
)

// Engine is the background compaction and flush coordinator for one node's
// set of vnodes. It owns no storage itself - every vnode.Family already
// wraps its own lsm.LSM - and instead drives the scheduling and ordering
// behavior the storage layer does not do on its own write path.
type Engine struct {
	families  map[vnode.ID]*vnode.Family
	processor *compaction.Processor
	job       *compaction.Job
	flushJob  *flush.Job

	compactCh chan compaction.Task
	summaryCh chan *summary.Task

	cfg config.Coordinator
	log *zap.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds an Engine over families. It does not start any background
// work; call Start for that.
func New(families map[vnode.ID]*vnode.Family, cfg config.Coordinator, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		families:  families,
		processor: compaction.NewProcessor(),
		compactCh: make(chan compaction.Task, compactTaskBuffer),
		summaryCh: make(chan *summary.Task, summaryTaskBuffer),
		cfg:       cfg,
		log:       log,
	}
}

// Summaries returns the channel the engine's manifest writer must drain.
// Every version edit, whether produced by a compaction or a flush, arrives
// here; the caller is responsible for applying it durably and replying on
// task.Reply.
func (e *Engine) Summaries() <-chan *summary.Task {
	return e.summaryCh
}

// Start constructs the compaction job and flush job and launches every
// long-lived loop: the task intake loop and (when CollectCompactionMetrics
// is set) the metrics poller run under an errgroup this Engine owns; the
// compaction scheduler is launched by StartVnodeCompactionJob and the flush
// summary-writer by flush.NewJob.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	e.group = g

	e.job = compaction.NewJob(e.processor, e.families, e.cfg.MaxConcurrentCompaction, e.summaryCh, e.log)
	e.flushJob = flush.NewJob(gctx, e.summaryCh, e.compactCh, e.log)

	g.Go(func() error {
		compaction.RunIntake(gctx, e.compactCh, e.processor)
		return nil
	})

	e.job.StartVnodeCompactionJob(gctx)

	if e.cfg.CollectCompactionMetrics {
		g.Go(func() error {
			e.pollMetrics(gctx)
			return nil
		})
	}
}

// Stop disables the compaction scheduler, cancels the engine's context, and
// blocks until the loops in the engine's errgroup (task intake and metrics
// poller) have returned. It does not wait for the compaction scheduler or
// the flush summary-writer to exit.
func (e *Engine) Stop() error {
	if e.job != nil {
		e.job.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.group != nil {
		return e.group.Wait()
	}
	return nil
}

// RequestCompaction enqueues a normal compaction task for vnode id, the
// entrypoint producers call instead of touching the processor directly.
func (e *Engine) RequestCompaction(ctx context.Context, id vnode.ID) error {
	select {
	case e.compactCh <- compaction.NormalTask{Vnode: id}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestFlush runs a flush for vnode id and blocks until it completes,
// returning the first error observed anywhere in the flush pipeline.
func (e *Engine) RequestFlush(ctx context.Context, id vnode.ID, triggerCompact bool) error {
	family, ok := e.families[id]
	if !ok {
		return errors.Newf("engine: no family registered for vnode %s", id)
	}
	req := flush.NewRequest(id, family, family.Index(), triggerCompact)
	return e.flushJob.RunBlock(ctx, req)
}

// RequestFlushSpawn runs a flush for vnode id in the background, the
// entrypoint an LSM seal hook should use: it never blocks the caller and
// only logs a failure.
func (e *Engine) RequestFlushSpawn(ctx context.Context, id vnode.ID, triggerCompact bool) {
	family, ok := e.families[id]
	if !ok {
		e.log.Error("engine: no family registered for vnode, dropping flush", zap.Stringer("vnode", id))
		return
	}
	req := flush.NewRequest(id, family, family.Index(), triggerCompact)
	e.flushJob.RunSpawn(ctx, req)
}

// RestartGuard pauses the compaction scheduler and returns a handle whose
// Release unconditionally restarts it, for maintenance operations that must
// briefly quiesce compaction (e.g. a vnode migration).
func (e *Engine) RestartGuard(ctx context.Context) *compaction.RestartGuard {
	return e.job.RestartGuard(ctx)
}

func (e *Engine) pollMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetRunningCompactions(e.job.RunningCompactions())
			metrics.SetPendingCompactionTasks(e.processor.Len())
		}
	}
}
