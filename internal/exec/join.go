package exec

import "github.com/tuannm99/novacore/internal/record"

// NestedLoopJoin treats its left child as the outer loop: begin_tuple
// initialises both sides; next_tuple advances the right child, and once
// the right child ends, advances the left child and resets the right.
// Output rows are the byte concatenation of left and right rows; the right
// side's columns are relabelled with offsets shifted by the left side's
// tuple width.
type NestedLoopJoin struct {
	left, right Executor
	cols        []record.Column
	tupleLen    int
}

func NewNestedLoopJoin(left, right Executor) *NestedLoopJoin {
	leftCols := left.Cols()
	rightCols := right.Cols()
	shift := left.TupleLen()

	cols := make([]record.Column, 0, len(leftCols)+len(rightCols))
	cols = append(cols, leftCols...)
	for _, c := range rightCols {
		c.Offset += shift
		cols = append(cols, c)
	}

	return &NestedLoopJoin{left: left, right: right, cols: cols, tupleLen: shift + right.TupleLen()}
}

func (j *NestedLoopJoin) BeginTuple() error {
	if err := j.left.BeginTuple(); err != nil {
		return err
	}
	if j.left.IsEnd() {
		return nil
	}
	return j.right.BeginTuple()
}

func (j *NestedLoopJoin) NextTuple() error {
	if j.left.IsEnd() {
		return nil
	}
	if err := j.right.NextTuple(); err != nil {
		return err
	}
	for j.right.IsEnd() {
		if err := j.left.NextTuple(); err != nil {
			return err
		}
		if j.left.IsEnd() {
			return nil
		}
		if err := j.right.BeginTuple(); err != nil {
			return err
		}
	}
	return nil
}

func (j *NestedLoopJoin) IsEnd() bool {
	return j.left.IsEnd() || j.right.IsEnd()
}

func (j *NestedLoopJoin) Current() Tuple {
	l := j.left.Current()
	r := j.right.Current()
	data := make([]byte, 0, j.tupleLen)
	data = append(data, l.Data...)
	data = append(data, r.Data...)
	return Tuple{Data: data}
}

func (j *NestedLoopJoin) Cols() []record.Column { return j.cols }
func (j *NestedLoopJoin) TupleLen() int         { return j.tupleLen }
