// Package index is the external index-handle contract executors program
// against: LowerBound/UpperBound/Equal/LeafBegin/LeafEnd bound selection
// and InsertEntry/DeleteEntry, all keyed by a packed composite index key
// rather than the teacher's bare int64. Lookups return slices of rids;
// there is no scan cursor type.
//
// internal/btree's tree only orders int64 keys, so a composite key (built
// by record.PackIndexKey, which may be longer than 8 bytes and may mix
// column types) is folded into an int64 ordering key by packKey. Folding
// only preserves the leading 8 bytes of the composite key, so two distinct
// composite keys can collide on the same btree key; every lookup this
// package returns is therefore a set of candidate rids that the executor
// must re-check against the actual row before use. This mirrors how a
// lossy or truncated index is used in practice: the index narrows the scan,
// the row itself is still the source of truth.
package index

import (
	"fmt"

	"github.com/tuannm99/novacore/internal/alias/bx"
	"github.com/tuannm99/novacore/internal/btree"
	"github.com/tuannm99/novacore/internal/bufferpool"
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/storage"
)

// Handle wraps a btree.Tree with the packed-composite-key contract
// executors use for index scans and index maintenance.
type Handle struct {
	tree *btree.Tree
}

// Create formats a brand-new, empty index file.
func Create(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) *Handle {
	return &Handle{tree: btree.NewTree(sm, fs, bp)}
}

// Open attaches to an existing index file, restoring its root/height.
func Open(sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager) (*Handle, error) {
	t, err := btree.OpenTree(sm, fs, bp)
	if err != nil {
		return nil, err
	}
	return &Handle{tree: t}, nil
}

// packKey folds a packed composite key (record.PackIndexKey's output) into
// the int64 ordering key the underlying tree stores: the key's leading 8
// bytes, zero-padded on the right when shorter, read as a little-endian
// integer. The first key byte is the least significant, so folded order is
// not byte-wise key order; for a single non-negative INT column it is the
// column's numeric order.
func packKey(key []byte) int64 {
	var buf [8]byte
	n := copy(buf[:], key)
	_ = n
	return int64(bx.U64(buf[:]))
}

// InsertEntry adds (key, rid) to the index.
func (h *Handle) InsertEntry(key []byte, rid heap.Rid) error {
	return h.tree.Insert(packKey(key), rid)
}

// DeleteEntry removes the (key, rid) pair from the index, if present.
func (h *Handle) DeleteEntry(key []byte, rid heap.Rid) (bool, error) {
	return h.tree.Delete(packKey(key), rid)
}

// LowerBound returns every candidate rid whose folded key is >= key.
// Executors must re-check the actual row before trusting a match.
func (h *Handle) LowerBound(key []byte) ([]heap.Rid, error) {
	return h.tree.RangeScan(packKey(key), maxInt64)
}

// UpperBound returns every candidate rid whose folded key is <= key.
func (h *Handle) UpperBound(key []byte) ([]heap.Rid, error) {
	return h.tree.RangeScan(minInt64, packKey(key))
}

// Equal returns every candidate rid whose folded key equals key's.
func (h *Handle) Equal(key []byte) ([]heap.Rid, error) {
	return h.tree.SearchEqual(packKey(key))
}

// LeafBegin returns every rid in the index, in folded-key order; LeafEnd
// returns the same full range. IndexScan uses LeafBegin when no indexed
// predicate can bound the scan.
func (h *Handle) LeafBegin() ([]heap.Rid, error) {
	return h.tree.RangeScan(minInt64, maxInt64)
}

func (h *Handle) LeafEnd() ([]heap.Rid, error) {
	return h.LeafBegin()
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// Close flushes the underlying tree's buffer pool.
func (h *Handle) Close() error {
	return h.tree.Close()
}

// Drop removes an index's on-disk segments and its meta file. The caller is
// responsible for closing any open Handle over fs first.
func Drop(fs storage.FileSet) error {
	lfs, ok := fs.(storage.LocalFileSet)
	if !ok {
		return fmt.Errorf("index: drop only supports local file sets")
	}
	return btree.DropIndex(lfs)
}
