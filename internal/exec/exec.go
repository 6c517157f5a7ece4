// Package exec implements the Volcano-model pull operators: SeqScan,
// IndexScan, NestedLoopJoin, Projection, Delete and Update. Every operator
// shares one iteration protocol (BeginTuple/NextTuple/IsEnd/Current/Cols/
// TupleLen) so they compose without a parent knowing a child's concrete type.
package exec

import (
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/record"
)

// Tuple is one output row: the fixed-width encoded values plus the rid it
// was read from, when the operator has one (scans do; joins/projections
// over a join's right side may not, and carry heap.Rid{} instead).
type Tuple struct {
	Rid  heap.Rid
	Data []byte
}

// Executor is the uniform pull-operator interface every operator in this
// package implements.
type Executor interface {
	// BeginTuple positions the cursor at the first output row, if any.
	BeginTuple() error
	// NextTuple advances the cursor to the next output row.
	NextTuple() error
	// IsEnd reports whether the cursor has passed the last output row.
	IsEnd() bool
	// Current returns the row the cursor is positioned at. Only valid when
	// !IsEnd().
	Current() Tuple
	// Cols returns the output schema, in column order.
	Cols() []record.Column
	// TupleLen returns the fixed byte width of one output row.
	TupleLen() int
}
