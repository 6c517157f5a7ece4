package btree

import "github.com/tuannm99/novacore/internal/heap"

// Index is a minimal interface BTree should satisfy to be used by planner/executor.
type Index interface {
	Insert(key KeyType, tid heap.TID) error
	Delete(key KeyType, tid heap.TID) (bool, error)
	SearchEqual(key KeyType) ([]heap.TID, error)
	RangeScan(minKey, maxKey KeyType) ([]heap.TID, error)
}
