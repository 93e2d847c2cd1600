// Command tskv-coordinator wires one node's vnodes into a running
// background compaction and flush coordinator and exposes a Prometheus
// scrape endpoint. It owns no storage and no wire protocol of its own: it
// loads the engine-wide config, builds a single vnode.Family whose vnode id
// is the configured node id, starts internal/engine, and forwards summary tasks to a stand-in manifest
// writer that simply acks them. A real deployment would replace that one
// loop with a durable summary applier; everything else here is the whole
// node-level wiring this core promises.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paradox0503/cnosdb/internal/config"
	"github.com/paradox0503/cnosdb/internal/engine"
	"github.com/paradox0503/cnosdb/internal/logging"
	"github.com/paradox0503/cnosdb/internal/metrics"
	"github.com/paradox0503/cnosdb/internal/vnode"
	"github.com/paradox0503/cnosdb/lsm"
)

const flushWorkersPerVnode = 4

func main() {
	log := logging.Get()
	defer func() { _ = logging.Sync() }()

	cfg := config.Load()
	log.Info("starting tskv-coordinator",
		zap.Uint64("node_id", cfg.NodeID),
		zap.Uint64("max_concurrent_compaction", cfg.MaxConcurrentCompaction),
		zap.Bool("collect_compaction_metrics", cfg.CollectCompactionMetrics),
	)

	recorder := metrics.NewRecorder()

	tree := lsm.LoadLSM()
	if tree.IsDataLost() {
		log.Warn("previous LSM data was lost or corrupted, starting from an empty tree")
	}

	vnodeID := vnode.ID(cfg.NodeID)
	family := vnode.NewFamily(
		vnodeID,
		tree,
		flushWorkersPerVnode,
		vnode.NewIndex("global_key_dict.db"),
		vnode.WithLogger(log),
		vnode.WithMetrics(recorder),
	)
	defer family.Close()

	families := map[vnode.ID]*vnode.Family{vnodeID: family}

	eng := engine.New(families, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	family.OnSeal(func() { eng.RequestFlushSpawn(ctx, vnodeID, true) })

	go runSummaryStub(ctx, eng, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: ":9100", Handler: mux}

	go func() {
		log.Info("serving /metrics", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining coordinator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := eng.Stop(); err != nil {
		log.Error("coordinator shutdown returned an error", zap.Error(err))
	}
}

// runSummaryStub stands in for the external manifest writer named in the
// core's scope: it drains every summary task the coordinator produces and
// acks it immediately. Replacing this loop with a durable applier is the
// only integration point a real deployment needs to add.
func runSummaryStub(ctx context.Context, eng *engine.Engine, log *zap.Logger) {
	for {
		select {
		case task, ok := <-eng.Summaries():
			if !ok {
				return
			}
			log.Debug("applying version edit (stub)",
				zap.Stringer("vnode", task.VersionEdit.Vnode),
				zap.Int("level", task.VersionEdit.Level),
				zap.Int("file_metas", len(task.FileMetas)),
			)
			select {
			case task.Reply <- nil:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}
