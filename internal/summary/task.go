// Package summary defines the message the coordinator core hands off to the
// (external) manifest writer: a version edit bundled with the snapshots it
// derives from, plus a reply channel for the flush path to wait on.
package summary

import (
	"github.com/paradox0503/cnosdb/internal/vnode"
	"github.com/paradox0503/cnosdb/lsm/memtable"
)

// Task bundles one version edit with everything the manifest writer needs
// to apply it durably. The compaction path sends it and never reads Reply;
// the flush path reads it to propagate manifest-write failures to whoever
// is waiting on the flush.
type Task struct {
	TsFamily     vnode.FamilyHandle
	VersionEdit  vnode.VersionEdit
	FileMetas    []vnode.FileMeta
	MemSnapshots []*memtable.MemTable
	Reply        chan error
}

// NewTask builds a Task with a buffered, single-slot reply channel, the
// shape both the compaction and flush paths share.
func NewTask(family vnode.FamilyHandle, edit vnode.VersionEdit, files []vnode.FileMeta, mems []*memtable.MemTable) *Task {
	return &Task{
		TsFamily:     family,
		VersionEdit:  edit,
		FileMetas:    files,
		MemSnapshots: mems,
		Reply:        make(chan error, 1),
	}
}
