package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deft-ml/deft/internal/tensor"
)

func TestCumSumValues(t *testing.T) {
	ex := newStubExecutor()
	n, err := CumSum(View(mustTensor([]float64{1, 2, 3, 4}, tensor.Shape{4})))
	require.NoError(t, err)

	out, err := Eval(n, ex)
	require.NoError(t, err)
	defer out.Release()

	want := []float64{1, 3, 6, 10}
	for i, w := range want {
		require.Equal(t, w, out.At(i))
	}
}

func TestCumSumLastDimensionOnly(t *testing.T) {
	ex := newStubExecutor()
	// Each row scans independently.
	n, err := CumSum(View(mustTensor([]float64{
		1, 2, 3,
		10, 20, 30,
	}, tensor.Shape{2, 3})))
	require.NoError(t, err)

	out, err := Eval(n, ex)
	require.NoError(t, err)
	defer out.Release()

	require.Equal(t, 6.0, out.At(0, 2))
	require.Equal(t, 10.0, out.At(1, 0))
	require.Equal(t, 60.0, out.At(1, 2))
}

func TestCumSumRankZero(t *testing.T) {
	_, err := CumSum(View(tensor.Scalar(1.0)))
	require.True(t, IsShapeError(err))
}

func TestCovarianceConstruction(t *testing.T) {
	tests := []struct {
		name  string
		shape tensor.Shape
	}{
		{"rank 1", tensor.Shape{4}},
		{"non-square", tensor.Shape{4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := View(mustTensor(iota64(tt.shape.NumElements()), tt.shape))
			_, err := Covariance(a)
			require.True(t, IsShapeError(err), "want ShapeError, got %v", err)
		})
	}
}

func TestCovarianceValues(t *testing.T) {
	ex := newStubExecutor()
	// Columns [1,2,3] and [2,4,6] have variance 1 and 4 and covariance 2.
	a := View(mustTensor([]float64{
		1, 2, 0,
		2, 4, 0,
		3, 6, 0,
	}, tensor.Shape{3, 3}))
	n, err := Covariance(a)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{3, 3}, n.Shape())

	out, err := Eval(n, ex)
	require.NoError(t, err)
	defer out.Release()

	require.InDelta(t, 1.0, out.At(0, 0), 1e-12)
	require.InDelta(t, 4.0, out.At(1, 1), 1e-12)
	require.InDelta(t, 2.0, out.At(0, 1), 1e-12)
	require.InDelta(t, 2.0, out.At(1, 0), 1e-12)
	require.InDelta(t, 0.0, out.At(2, 2), 1e-12)
}

func TestTraceValues(t *testing.T) {
	ex := newStubExecutor()
	n, err := Trace(View(mustTensor([]float64{
		1, 2,
		3, 4,
	}, tensor.Shape{2, 2})))
	require.NoError(t, err)

	require.Equal(t, 0, n.Rank())
	require.Equal(t, 1, n.Size(0)) // rank-0 nodes report size 1

	out, err := Eval(n, ex)
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, 5.0, out.At())
}

func TestTraceNonSquare(t *testing.T) {
	a := View(mustTensor(iota64(6), tensor.Shape{2, 3}))
	_, err := Trace(a)
	require.True(t, IsShapeError(err))
}

func TestAssignShapeMismatch(t *testing.T) {
	ex := newStubExecutor()
	src := View(mustTensor(iota64(4), tensor.Shape{4}))
	dst := View(mustTensor(make([]float64, 3), tensor.Shape{3}))
	err := Assign(dst, src, ex)
	require.True(t, IsShapeError(err), "want ShapeError, got %v", err)
}

func TestAssignLeafCopy(t *testing.T) {
	ex := newStubExecutor()
	src := View(mustTensor(iota64(6), tensor.Shape{2, 3}))
	dst := View(mustTensor(make([]float64, 6), tensor.Shape{2, 3}))
	require.NoError(t, Assign(dst, src, ex))
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, src.At(i, j), dst.At(i, j))
		}
	}
}

func TestAssignThroughSlice(t *testing.T) {
	ex := newStubExecutor()
	// Writing through a strided slice destination updates only the addressed
	// elements of the underlying tensor.
	raw := mustTensor(make([]float64, 6), tensor.Shape{6})
	dst, err := Slice(View(raw), []int{0}, []int{End}, []int{2})
	require.NoError(t, err)

	src := View(mustTensor([]float64{7, 8, 9}, tensor.Shape{3}))
	require.NoError(t, Assign(dst, src, ex))

	require.Equal(t, []float64{7, 0, 8, 0, 9, 0}, tensor.DataOf[float64](raw))
}

func TestEvalLeaf(t *testing.T) {
	ex := newStubExecutor()
	src := View(mustTensor(iota64(4), tensor.Shape{2, 2}))
	out, err := Eval(src, ex)
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, 1, ex.allocs)
	require.Equal(t, 3.0, out.At(1, 1))
}
