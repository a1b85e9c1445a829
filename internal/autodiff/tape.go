package autodiff

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/autodiff/ops"
	"github.com/born-ml/extdiff/internal/dual"
)

// ErrAlreadySwept is returned by Backward when the tape was already swept and
// no Clear or Reset happened since.
var ErrAlreadySwept = errors.New("autodiff: tape already swept")

// Tape records pending gradient closures during the forward pass and runs
// them in reverse during the backward sweep.
//
// The tape is also the arena for dual numbers: every Var and MatVar it hands
// out lives until Reset, which ends one gradient evaluation.
//
// Usage:
//
//	tape := NewTape()
//	tape.StartRecording()
//	x := tape.Scalar(2)
//	y := tape.Mul(x, x)
//	_ = tape.Backward(y)
//	fmt.Println(x.Adjoint()) // 4
//
// A Tape is not safe for concurrent use.
type Tape struct {
	operations []ops.Operation // Recorded closures (in execution order)
	recording  bool
	swept      bool

	arena    []arenaEntry
	byID     map[int]int // node id -> arena index
	produced map[int]bool
	nextID   int
}

type arenaEntry struct {
	node dual.Node
	leaf bool
}

// NewTape creates a new tape. Recording starts disabled.
func NewTape() *Tape {
	return &Tape{
		operations: make([]ops.Operation, 0, 64),
		byID:       make(map[int]int),
		produced:   make(map[int]bool),
	}
}

// StartRecording enables operation recording.
func (t *Tape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *Tape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *Tape) IsRecording() bool {
	return t.recording
}

// Record adds a closure to the tape. Only records while recording.
func (t *Tape) Record(op ops.Operation) {
	if !t.recording {
		return
	}
	t.operations = append(t.operations, op)
	t.produced[op.Output().ID()] = true
}

// NumOps returns the number of recorded operations.
func (t *Tape) NumOps() int {
	return len(t.operations)
}

// Operations returns the recorded closures in registration order.
func (t *Tape) Operations() []ops.Operation {
	return t.operations
}

// Clear drops recorded closures and zeroes every adjoint in the arena.
// The arena and the recording state are preserved.
func (t *Tape) Clear() {
	t.operations = t.operations[:0]
	t.produced = make(map[int]bool)
	t.swept = false
	for _, e := range t.arena {
		switch n := e.node.(type) {
		case *dual.Var:
			n.ZeroAdjoint()
		case *dual.MatVar:
			n.ZeroAdjoint()
		}
	}
}

// Reset drops closures and the arena. Dual numbers obtained earlier must not
// be used with this tape afterwards.
func (t *Tape) Reset() {
	t.operations = t.operations[:0]
	t.produced = make(map[int]bool)
	t.swept = false
	t.arena = t.arena[:0]
	t.byID = make(map[int]int)
}

// Scalar allocates a differentiable scalar leaf.
func (t *Tape) Scalar(value float64) *Var {
	v := dual.NewVar(t.allocID(), value)
	t.track(v, true)
	return v
}

// Scalars allocates one leaf per value.
func (t *Tape) Scalars(values ...float64) []*Var {
	vs := make([]*Var, len(values))
	for i, x := range values {
		vs[i] = t.Scalar(x)
	}
	return vs
}

// Matrix allocates a differentiable matrix leaf holding a copy of m.
func (t *Tape) Matrix(m mat.Matrix) *MatVar {
	v := dual.NewMatVar(t.allocID(), m)
	t.track(v, true)
	return v
}

// Result allocates the output of an operation. The caller must Record an
// operation producing it, otherwise it is reported by Orphans.
func (t *Tape) Result(value float64) *Var {
	v := dual.NewVar(t.allocID(), value)
	t.track(v, false)
	return v
}

// Orphans returns results that no recorded operation produced: values
// computed from stripped inputs without a matching closure. Gradients through
// them are silently zero.
func (t *Tape) Orphans() []*Var {
	if !t.recording && len(t.operations) == 0 {
		return nil
	}
	var orphans []*Var
	for _, e := range t.arena {
		if e.leaf || t.produced[e.node.ID()] {
			continue
		}
		if v, ok := e.node.(*dual.Var); ok {
			orphans = append(orphans, v)
		}
	}
	return orphans
}

// Unreached returns leaves that received no adjoint contribution in the last
// sweep. Meaningful only after Backward.
func (t *Tape) Unreached() []dual.Node {
	var out []dual.Node
	for _, e := range t.arena {
		if e.leaf && !e.node.Touched() {
			out = append(out, e.node)
		}
	}
	return out
}

// Backward seeds out's adjoint with 1 and invokes every recorded closure
// exactly once, in reverse order of registration.
//
// Recording is suspended during the sweep so closures cannot append to the
// tape they are walked from.
func (t *Tape) Backward(out *Var) error {
	if t.swept {
		return ErrAlreadySwept
	}
	if _, ok := t.byID[out.ID()]; !ok {
		return errors.Errorf("autodiff: output %v was not allocated by this tape", out)
	}

	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	out.AddAdjoint(1)
	for i := len(t.operations) - 1; i >= 0; i-- {
		t.operations[i].Backward()
	}
	t.swept = true
	return nil
}

// Gradient returns the adjoints of xs.
func Gradient(xs ...*Var) []float64 {
	g := make([]float64, len(xs))
	for i, x := range xs {
		g[i] = x.Adjoint()
	}
	return g
}

func (t *Tape) allocID() int {
	t.nextID++
	return t.nextID
}

func (t *Tape) track(n dual.Node, leaf bool) {
	t.byID[n.ID()] = len(t.arena)
	t.arena = append(t.arena, arenaEntry{node: n, leaf: leaf})
}
