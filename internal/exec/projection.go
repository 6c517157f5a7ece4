package exec

import "github.com/tuannm99/novacore/internal/record"

// Projection is a stateless re-layout of its child's output: the requested
// columns, in the requested order, repacked starting at offset 0.
type Projection struct {
	child Executor
	cols  []record.Column
	srcs  []record.Column // matching slice of the child's original column, for its offset/len
	width int
}

// NewProjection selects names from child's output schema, in the given
// order, and repacks them contiguously.
func NewProjection(child Executor, names []string) *Projection {
	childCols := child.Cols()
	cols := make([]record.Column, 0, len(names))
	srcs := make([]record.Column, 0, len(names))
	offset := 0
	for _, name := range names {
		for _, c := range childCols {
			if c.Name == name {
				src := c
				out := c
				out.Offset = offset
				cols = append(cols, out)
				srcs = append(srcs, src)
				offset += c.Len
				break
			}
		}
	}
	return &Projection{child: child, cols: cols, srcs: srcs, width: offset}
}

func (p *Projection) BeginTuple() error { return p.child.BeginTuple() }
func (p *Projection) NextTuple() error  { return p.child.NextTuple() }
func (p *Projection) IsEnd() bool       { return p.child.IsEnd() }

func (p *Projection) Current() Tuple {
	src := p.child.Current()
	out := make([]byte, p.width)
	for i, s := range p.srcs {
		copy(out[p.cols[i].Offset:p.cols[i].Offset+s.Len], src.Data[s.Offset:s.Offset+s.Len])
	}
	return Tuple{Rid: src.Rid, Data: out}
}

func (p *Projection) Cols() []record.Column { return p.cols }
func (p *Projection) TupleLen() int         { return p.width }
