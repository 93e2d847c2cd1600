package lsm

import (
	"sync"

	memtable "github.com/paradox0503/cnosdb/lsm/memtable"
)

// flushJob represents a single memtable flush task with a pre-assigned
// SSTable index.
type flushJob struct {
	index int                // assigned SSTable index
	mt    *memtable.MemTable // memtable to flush
	resCh chan<- flushResult // channel to send the result
}

// flushResult reports the outcome of a single flushJob.
type flushResult struct {
	index int
	err   error
}

// FlushPool is a worker pool that flushes memtables to SSTables concurrently.
// It no longer imposes any ordering on its own: the background flush
// coordinator (internal/flush) is responsible for sequencing the resulting
// summary writes, so the pool's only job is "flush this memtable to this
// index and report back".
type FlushPool struct {
	jobs chan flushJob
	wg   sync.WaitGroup
}

// NewFlushPool creates a pool with the given worker count and starts workers
// immediately.
func NewFlushPool(workerCount int) *FlushPool {
	p := &FlushPool{
		jobs: make(chan flushJob),
	}
	p.start(workerCount)
	return p
}

func (p *FlushPool) start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				err := job.mt.Flush(job.index)
				job.resCh <- flushResult{index: job.index, err: err}
			}
		}()
	}
}

// Stop gracefully stops the pool; should be called on shutdown if needed.
func (p *FlushPool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// Submit flushes a single sealed memtable to the given SSTable index and
// blocks until the flush completes. The caller (internal/vnode.Family) owns
// registering the resulting SSTable into the right level and ordering the
// summary write against other concurrent flushes.
func (p *FlushPool) Submit(mt *memtable.MemTable, index int) error {
	resCh := make(chan flushResult, 1)
	p.jobs <- flushJob{index: index, mt: mt, resCh: resCh}
	r := <-resCh
	return r.err
}
