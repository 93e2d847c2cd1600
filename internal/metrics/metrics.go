// Package metrics exposes the coordinator's Prometheus surface: per-vnode
// flush and compaction histograms, and the running_compactions and
// pending-task gauges, which internal/engine sets by polling the scheduler
// and the processor. Metrics are package-level
// and registered eagerly, the same pattern the etalazz-vsa churn module
// uses for its own counters - harmless if nothing ever scrapes /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paradox0503/cnosdb/internal/vnode"
)

var (
	flushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tskv_flushes_total",
		Help: "Total number of memtable flushes completed, by vnode",
	}, []string{"vnode"})

	flushDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tskv_flush_duration_seconds",
		Help:    "Duration of a single memtable flush, by vnode",
		Buckets: prometheus.DefBuckets,
	}, []string{"vnode"})

	compactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tskv_compactions_total",
		Help: "Total number of compactions completed, by vnode and source level",
	}, []string{"vnode", "level"})

	compactionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tskv_compaction_duration_seconds",
		Help:    "Duration of a single compaction merge, by vnode and source level",
		Buckets: prometheus.DefBuckets,
	}, []string{"vnode", "level"})

	compactionFilesConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tskv_compaction_files_consumed_total",
		Help: "Total number of SSTables consumed by compactions, by vnode",
	}, []string{"vnode"})

	runningCompactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tskv_running_compactions",
		Help: "Number of compaction workers currently executing a merge",
	})

	pendingCompactionTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tskv_pending_compaction_tasks",
		Help: "Number of deduplicated compaction tasks waiting for the next scheduler tick",
	})
)

func init() {
	prometheus.MustRegister(
		flushesTotal,
		flushDurationSeconds,
		compactionsTotal,
		compactionDurationSeconds,
		compactionFilesConsumedTotal,
		runningCompactions,
		pendingCompactionTasks,
	)
}

// Recorder implements vnode.Metrics against the package's Prometheus
// collectors. It is stateless - construct one with NewRecorder and share it
// across every vnode.Family via vnode.WithMetrics.
type Recorder struct{}

// NewRecorder returns a ready-to-use Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// ObserveFlush records one completed flush for vnode.
func (Recorder) ObserveFlush(id vnode.ID, d time.Duration) {
	label := id.String()
	flushesTotal.WithLabelValues(label).Inc()
	flushDurationSeconds.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveCompaction records one completed compaction for vnode at level,
// having consumed consumed source files.
func (Recorder) ObserveCompaction(id vnode.ID, level int, consumed int, d time.Duration) {
	labels := []string{id.String(), strconv.Itoa(level)}
	compactionsTotal.WithLabelValues(labels...).Inc()
	compactionDurationSeconds.WithLabelValues(labels...).Observe(d.Seconds())
	compactionFilesConsumedTotal.WithLabelValues(id.String()).Add(float64(consumed))
}

// SetRunningCompactions publishes the scheduler's current in-flight worker
// count. Callers poll compaction.Job.RunningCompactions() on an interval and
// feed it here; this package does not hold a reference to the job itself to
// avoid a metrics->compaction import.
func SetRunningCompactions(n int64) {
	runningCompactions.Set(float64(n))
}

// SetPendingCompactionTasks publishes the processor's current queue depth.
func SetPendingCompactionTasks(n int) {
	pendingCompactionTasks.Set(float64(n))
}

// Handler returns the standard Prometheus scrape handler for wiring onto an
// HTTP mux, mirroring how the etalazz-vsa churn module mounts promhttp.
func Handler() http.Handler {
	return promhttp.Handler()
}
