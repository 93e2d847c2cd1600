// Package compaction implements the scheduling core that coalesces
// compaction requests, enforces per-vnode serialization and a global
// concurrency budget, and drives the external merge routine.
package compaction

import "github.com/paradox0503/cnosdb/internal/vnode"

// Task is a tagged request to compact a vnode. NormalTask and DeltaTask are
// its only two variants; equality between tasks is structural, so a second
// insert of an already-pending task is a no-op.
type Task interface {
	VnodeID() vnode.ID
	taskKind() string
}

// NormalTask requests an ordinary compaction pass over a vnode's levels.
type NormalTask struct {
	Vnode vnode.ID
}

func (t NormalTask) VnodeID() vnode.ID { return t.Vnode }
func (t NormalTask) taskKind() string  { return "normal" }

// DeltaTask requests a small incremental compaction, chained after a flush
// that set TriggerCompact.
type DeltaTask struct {
	Vnode vnode.ID
}

func (t DeltaTask) VnodeID() vnode.ID { return t.Vnode }
func (t DeltaTask) taskKind() string  { return "delta" }

// sameTask reports whether a and b are structurally equal, i.e. the same
// variant over the same vnode.
func sameTask(a, b Task) bool {
	return a.taskKind() == b.taskKind() && a.VnodeID() == b.VnodeID()
}
