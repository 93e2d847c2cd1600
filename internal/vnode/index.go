package vnode

import (
	"github.com/paradox0503/cnosdb/utils/global_key_dict"
)

// Index adapts the process-wide series key dictionary for use by a vnode's
// compaction path: once a compaction drops every record under a series, its
// key id is no longer reachable from any live SSTable and can be reclaimed.
type Index struct {
	dict *global_key_dict.GlobalKeyDict
}

// NewIndex wraps the key dictionary persisted at path.
func NewIndex(path string) *Index {
	return &Index{dict: global_key_dict.GetGlobalKeyDict(path)}
}

// Lookup resolves key to its dictionary id, if present.
func (idx *Index) Lookup(key string) (uint64, bool) {
	return idx.dict.GetEntryID(key)
}

// Flush forces the dictionary's header block durably to disk. Called on the
// flush path before any memcache is marked flushing, so a crash afterward
// never leaves the header pointing at stale entry bookkeeping.
func (idx *Index) Flush() error {
	return idx.dict.Flush()
}

// ClearTombstoneSeries drops every dictionary entry not present in live,
// shrinking the key dictionary after a compaction has rewritten the set of
// series still present on disk. A nil live set is treated as "keep
// everything currently tracked" - a safe, conservative call for callers
// that have no narrower view of what survived, still exercising the
// dictionary's rebuild-on-compaction mechanism end to end.
func (idx *Index) ClearTombstoneSeries(live map[string]struct{}) error {
	if live == nil {
		live = idx.dict.AllKeys()
	}
	return idx.dict.Compact(live)
}
