package expr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/deft-ml/deft/internal/tensor"
)

func TestMatMulShapeRule(t *testing.T) {
	tests := []struct {
		name string
		a, b tensor.Shape
		want tensor.Shape
	}{
		{"plain 2d", tensor.Shape{4, 3}, tensor.Shape{3, 5}, tensor.Shape{4, 5}},
		{"square", tensor.Shape{2, 2}, tensor.Shape{2, 2}, tensor.Shape{2, 2}},
		{"batched", tensor.Shape{3, 4, 2}, tensor.Shape{3, 2, 5}, tensor.Shape{3, 4, 5}},
		{"double batched", tensor.Shape{2, 3, 4, 2}, tensor.Shape{2, 3, 2, 5}, tensor.Shape{2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := View(mustTensor(iota64(tt.a.NumElements()), tt.a))
			b := View(mustTensor(iota64(tt.b.NumElements()), tt.b))
			n, err := MatMul(a, b, 1, 0)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, n.Shape()); diff != "" {
				t.Errorf("shape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatMulConstructionErrors(t *testing.T) {
	tests := []struct {
		name string
		a, b tensor.Shape
	}{
		{"rank too low", tensor.Shape{3}, tensor.Shape{3, 2}},
		{"rank mismatch", tensor.Shape{2, 3, 4}, tensor.Shape{4, 5}},
		{"inner mismatch", tensor.Shape{4, 3}, tensor.Shape{4, 5}},
		{"batch mismatch", tensor.Shape{2, 4, 3}, tensor.Shape{3, 3, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := View(mustTensor(iota64(tt.a.NumElements()), tt.a))
			b := View(mustTensor(iota64(tt.b.NumElements()), tt.b))
			_, err := MatMul(a, b, 1, 0)
			require.Error(t, err)
			require.True(t, IsShapeError(err), "want ShapeError, got %v", err)
		})
	}
}

func TestMatMulValues(t *testing.T) {
	ex := newStubExecutor()
	a := View(mustTensor([]float64{
		1, 2, 3,
		4, 5, 6,
	}, tensor.Shape{2, 3}))
	b := View(mustTensor([]float64{
		7, 8,
		9, 10,
		11, 12,
	}, tensor.Shape{3, 2}))

	n, err := MatMul(a, b, 1, 0)
	require.NoError(t, err)

	out, err := Eval(n, ex)
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 58.0, out.At(0, 0))
	require.Equal(t, 64.0, out.At(0, 1))
	require.Equal(t, 139.0, out.At(1, 0))
	require.Equal(t, 154.0, out.At(1, 1))
}

func TestMatMulAlphaBeta(t *testing.T) {
	ex := newStubExecutor()
	a := View(mustTensor([]float64{1, 0, 0, 1}, tensor.Shape{2, 2}))
	b := View(mustTensor([]float64{1, 2, 3, 4}, tensor.Shape{2, 2}))

	// dst = 2*(I @ b) + 3*dst with dst prefilled with ones.
	n, err := MatMul(a, b, 2, 3)
	require.NoError(t, err)

	dst := View(mustTensor([]float64{1, 1, 1, 1}, tensor.Shape{2, 2}))
	require.NoError(t, n.Exec(ex, dst))

	require.Equal(t, 5.0, dst.At(0, 0))
	require.Equal(t, 7.0, dst.At(0, 1))
	require.Equal(t, 9.0, dst.At(1, 0))
	require.Equal(t, 11.0, dst.At(1, 1))
}

func TestMatMulSlicedOperands(t *testing.T) {
	ex := newStubExecutor()
	// A 4x6 source sliced down to 2x3, multiplied against a permuted view of
	// itself. View composition must be transparent to the kernel.
	raw := mustTensor(iota64(24), tensor.Shape{4, 6})
	a, err := Slice(View(raw), []int{1, 2}, []int{3, 5}, []int{1, 1})
	require.NoError(t, err)
	bT, err := Permute(a, []int{1, 0})
	require.NoError(t, err)

	n, err := MatMul(a, bT, 1, 0) // [2,3] @ [3,2] -> [2,2]
	require.NoError(t, err)
	out, err := Eval(n, ex)
	require.NoError(t, err)
	defer out.Release()

	// Rows of a: [8,9,10] and [14,15,16].
	require.Equal(t, 8.0*8+9*9+10*10, out.At(0, 0))
	require.Equal(t, 8.0*14+9*15+10*16, out.At(0, 1))
	require.Equal(t, 8.0*14+9*15+10*16, out.At(1, 0))
	require.Equal(t, 14.0*14+15*15+16*16, out.At(1, 1))
}

func TestMatMulAxesShape(t *testing.T) {
	// Contracting the trailing pair through the axes form reduces to the
	// plain rule: the permutation is the identity.
	a := View(mustTensor(iota64(2*3*4), tensor.Shape{2, 3, 4}))
	b := View(mustTensor(iota64(2*4*5), tensor.Shape{2, 4, 5}))

	n, err := MatMulAxes(a, b, 1, 0, [2]int{1, 2})
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 3, 5}, n.Shape())
}

func TestMatMulAxesMatchesExplicitPermute(t *testing.T) {
	ex := newStubExecutor()
	// Operands shaped so the contraction pair sits in the leading positions:
	// axes {0, 1} must produce the same values as permuting by hand, running
	// the plain rule, and permuting the result back.
	a := View(mustTensor(iota64(3*2*4), tensor.Shape{3, 2, 4}))
	b := View(mustTensor(iota64(2*5*4), tensor.Shape{2, 5, 4}))

	n, err := MatMulAxes(a, b, 1, 0, [2]int{0, 1})
	require.NoError(t, err)
	// The permuted [4,3,2] @ [4,2,5] rule gives [4,3,5]; restoring original
	// dimension order exposes [3,5,4].
	require.Equal(t, tensor.Shape{3, 5, 4}, n.Shape())

	got, err := Eval(n, ex)
	require.NoError(t, err)
	defer got.Release()

	// Reference: permute both operands by hand and run the plain rule.
	pa, err := Permute(a, []int{2, 0, 1})
	require.NoError(t, err)
	pb, err := Permute(b, []int{2, 0, 1})
	require.NoError(t, err)
	ref, err := MatMul(pa, pb, 1, 0)
	require.NoError(t, err)
	refOut, err := Eval(ref, ex)
	require.NoError(t, err)
	defer refOut.Release()

	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			for k := 0; k < 4; k++ {
				require.Equal(t, refOut.At(k, i, j), got.At(i, j, k),
					"mismatch at (%d,%d,%d)", i, j, k)
			}
		}
	}
}

func TestMatMulAxesErrors(t *testing.T) {
	a := View(mustTensor(iota64(24), tensor.Shape{2, 3, 4}))
	b := View(mustTensor(iota64(24), tensor.Shape{2, 3, 4}))

	for _, axes := range [][2]int{{1, 1}, {0, 3}, {-1, 2}} {
		_, err := MatMulAxes(a, b, 1, 0, axes)
		require.True(t, IsShapeError(err), "axes %v", axes)
	}
}

func TestMatMulDTypeMismatch(t *testing.T) {
	f64 := View(mustTensor(iota64(4), tensor.Shape{2, 2}))
	raw32, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	_, err = MatMul(f64, View(raw32), 1, 0)
	require.True(t, IsShapeError(err))
}
