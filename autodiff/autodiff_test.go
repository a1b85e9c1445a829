package autodiff_test

import (
	"errors"
	"testing"

	"github.com/born-ml/extdiff/autodiff"
)

// TestTape tests the facade end to end on y = x² + 2x.
func TestTape(t *testing.T) {
	tape := autodiff.NewTape()
	tape.StartRecording()

	x := tape.Scalar(3)
	y := tape.Add(tape.Square(x), tape.Scale(x, 2))
	if y.Value() != 15 {
		t.Errorf("y = %f, want 15", y.Value())
	}
	if err := tape.Backward(y); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if g := autodiff.Gradient(x); g[0] != 8 {
		t.Errorf("dy/dx = %f, want 8", g[0])
	}
	if err := tape.Backward(y); !errors.Is(err, autodiff.ErrAlreadySwept) {
		t.Errorf("second Backward error = %v, want ErrAlreadySwept", err)
	}
}
