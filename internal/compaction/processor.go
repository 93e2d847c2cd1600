package compaction

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/paradox0503/cnosdb/internal/vnode"
)

// ErrMissingVnodeLock is returned by Processor.Take if an invariant the
// processor is supposed to maintain - every pending task has a vnode lock
// entry - was somehow violated. It should never happen in practice; seeing
// it means the processor's bookkeeping has a bug, not that the caller did
// anything wrong.
var ErrMissingVnodeLock = errors.New("compaction: pending task has no vnode lock entry")

// Drained pairs one task pulled off the pending queue with the per-vnode
// lock it must be executed under. The lock is handed out alongside the
// task, rather than looked up again later, so scheduler and worker always
// agree on which handle serializes a given vnode even if the processor is
// mutated in between.
type Drained struct {
	Task Task
	Lock *sync.Mutex
}

// Processor is the deduplicating queue of pending compaction tasks (C2): it
// coalesces a stream of requests into a structurally-unique, insertion-order
// batch, and owns the never-shrinking map of per-vnode mutual-exclusion
// handles.
type Processor struct {
	mu         sync.Mutex
	pending    []Task
	vnodeLocks map[vnode.ID]*sync.Mutex
}

// NewProcessor returns an empty Processor, ready for the engine's lifetime.
func NewProcessor() *Processor {
	return &Processor{
		pending:    make([]Task, 0, 32),
		vnodeLocks: make(map[vnode.ID]*sync.Mutex),
	}
}

// Insert appends task unless a structurally-equal task is already pending,
// and ensures a vnode lock entry exists for task's vnode. Lock entries are
// created once and never removed for the processor's lifetime - vnode count
// is bounded by node capacity, so this never grows unboundedly in practice.
func (p *Processor) Insert(task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.vnodeLocks[task.VnodeID()]; !ok {
		p.vnodeLocks[task.VnodeID()] = &sync.Mutex{}
	}

	for _, existing := range p.pending {
		if sameTask(existing, task) {
			return
		}
	}
	p.pending = append(p.pending, task)
}

// Take atomically swaps out the pending queue for a fresh empty one and
// returns every drained task paired with its vnode lock.
func (p *Processor) Take() ([]Drained, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	drained := make([]Drained, 0, len(p.pending))
	for _, task := range p.pending {
		lock, ok := p.vnodeLocks[task.VnodeID()]
		if !ok {
			return nil, errors.Wrapf(ErrMissingVnodeLock, "vnode %s", task.VnodeID())
		}
		drained = append(drained, Drained{Task: task, Lock: lock})
	}
	p.pending = make([]Task, 0, 32)
	return drained, nil
}

// Len reports the number of currently pending tasks, used by the scheduler
// to skip a tick cheaply when there is nothing to do.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
