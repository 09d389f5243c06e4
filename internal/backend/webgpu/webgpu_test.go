package webgpu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deft-ml/deft/internal/backend/host"
	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/plancache"
	"github.com/deft-ml/deft/internal/tensor"
)

func TestAlignedSize(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 4},
		{3, 4},
		{4, 4},
		{5, 8},
		{16, 16},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, alignedSize(tt.in), "alignedSize(%d)", tt.in)
	}
}

func TestGroups(t *testing.T) {
	require.Equal(t, uint32(1), groups(1, 256))
	require.Equal(t, uint32(1), groups(256, 256))
	require.Equal(t, uint32(2), groups(257, 256))
	require.Equal(t, uint32(4), groups(64, 16))
}

func TestSupports(t *testing.T) {
	b := &Backend{}
	require.True(t, b.Supports(expr.OpMatMul))
	require.True(t, b.Supports(expr.OpCumSum))
	require.True(t, b.Supports(expr.OpTrace))
	require.False(t, b.Supports(expr.OpCovariance))
	require.False(t, b.Supports(expr.OpQR))
}

func TestMatmulTileDefault(t *testing.T) {
	b := &Backend{}
	require.Equal(t, defaultMatmulTile, b.matmulTile(8, 8))
}

func TestMatmulTileFromTuneStore(t *testing.T) {
	store, err := plancache.NewTuneStore(t.TempDir())
	require.NoError(t, err)
	b := &Backend{}
	b.SetTuneStore(store)

	// No record yet: default.
	require.Equal(t, defaultMatmulTile, b.matmulTile(8, 8))

	require.NoError(t, store.Record(plancache.TuneRecord{Op: "matmul", SizeClass: "small", WorkgroupSize: 8}))
	require.NoError(t, store.Record(plancache.TuneRecord{Op: "matmul", SizeClass: "large", WorkgroupSize: 32}))
	require.Equal(t, 8, b.matmulTile(8, 8))
	require.Equal(t, 32, b.matmulTile(512, 512))

	// An out-of-range tuned size is ignored.
	require.NoError(t, store.Record(plancache.TuneRecord{Op: "matmul", SizeClass: "small", WorkgroupSize: 7}))
	require.Equal(t, defaultMatmulTile, b.matmulTile(8, 8))
}

// requireBackend brings up the real device or skips the test.
func requireBackend(t *testing.T) *Backend {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	b, err := New()
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func f32View(t *testing.T, data []float32, shape tensor.Shape) *expr.TensorView {
	t.Helper()
	raw, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return expr.View(raw)
}

func TestAllocDeviceSpace(t *testing.T) {
	b := requireBackend(t)

	raw, err := b.Alloc(tensor.Shape{2, 3}, tensor.Float32, expr.MemDeviceAsync)
	require.NoError(t, err)
	defer raw.Release()

	require.True(t, raw.OnDevice())
	// Fresh device buffers are zero-initialized; first host read realizes.
	require.Equal(t, 0.0, raw.At(1, 2))
	require.False(t, raw.OnDevice())

	_, err = b.Alloc(tensor.Shape{2}, tensor.Float64, expr.MemDeviceAsync)
	require.Error(t, err, "float64 has no device representation")
}

func TestDeviceMatMulMatchesHost(t *testing.T) {
	b := requireBackend(t)
	h := host.New()

	aData := make([]float32, 12)
	bData := make([]float32, 20)
	for i := range aData {
		aData[i] = float32(i) * 0.5
	}
	for i := range bData {
		bData[i] = float32(i) * 0.25
	}

	run := func(ex expr.Executor) *tensor.RawTensor {
		a := f32View(t, aData, tensor.Shape{3, 4})
		bb := f32View(t, bData, tensor.Shape{4, 5})
		n, err := expr.MatMul(a, bb, 2, 0)
		require.NoError(t, err)
		out, err := expr.Eval(n, ex)
		require.NoError(t, err)
		return out
	}

	got := run(b)
	defer got.Release()
	want := run(h)
	defer want.Release()

	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			require.InDelta(t, want.At(i, j), got.At(i, j), 1e-3, "at (%d,%d)", i, j)
		}
	}
}

func TestDeviceMatMulBeta(t *testing.T) {
	b := requireBackend(t)

	a := f32View(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2})
	bb := f32View(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	n, err := expr.MatMul(a, bb, 1, 2)
	require.NoError(t, err)

	dst := f32View(t, []float32{10, 10, 10, 10}, tensor.Shape{2, 2})
	require.NoError(t, n.Exec(b, dst))

	require.InDelta(t, 21.0, dst.At(0, 0), 1e-4)
	require.InDelta(t, 24.0, dst.At(1, 1), 1e-4)
}

func TestDeviceCumSum(t *testing.T) {
	b := requireBackend(t)

	a := f32View(t, []float32{1, 2, 3, 4, 10, 20, 30, 40}, tensor.Shape{2, 4})
	n, err := expr.CumSum(a)
	require.NoError(t, err)

	out, err := expr.Eval(n, b)
	require.NoError(t, err)
	defer out.Release()

	require.InDelta(t, 10.0, out.At(0, 3), 1e-4)
	require.InDelta(t, 100.0, out.At(1, 3), 1e-4)
	require.NoError(t, n.Release())
}

func TestDeviceTrace(t *testing.T) {
	b := requireBackend(t)

	a := f32View(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{3, 3})
	n, err := expr.Trace(a)
	require.NoError(t, err)

	out, err := expr.Eval(n, b)
	require.NoError(t, err)
	defer out.Release()
	require.InDelta(t, 15.0, out.At(), 1e-4)
}

func TestDeviceCovarianceUnsupported(t *testing.T) {
	b := requireBackend(t)

	a := f32View(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	n, err := expr.Covariance(a)
	require.NoError(t, err)

	// Capability gating fires before any device allocation.
	err = n.PreRun(b)
	require.True(t, expr.IsCapabilityError(err), "want CapabilityError, got %v", err)
}

func TestDeviceChaining(t *testing.T) {
	b := requireBackend(t)

	// trace(matmul(a, a)): the inner result stays device-resident and the
	// trace kernel chains on its live buffer without a host round trip.
	a := f32View(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	mm, err := expr.MatMul(a, a, 1, 0)
	require.NoError(t, err)
	tr, err := expr.Trace(mm)
	require.NoError(t, err)

	out, err := expr.Eval(tr, b)
	require.NoError(t, err)
	defer out.Release()

	// a@a = [[7,10],[15,22]], trace 29.
	require.InDelta(t, 29.0, out.At(), 1e-4)
	require.NoError(t, tr.Release())
}

func TestPipelineCacheReuse(t *testing.T) {
	b := requireBackend(t)

	for i := 0; i < 3; i++ {
		a := f32View(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
		n, err := expr.MatMul(a, a, 1, 0)
		require.NoError(t, err)
		out, err := expr.Eval(n, b)
		require.NoError(t, err)
		out.Release()
	}

	hits, misses, entries := b.PlanStats()
	require.Equal(t, 1, entries, "one pipeline for one structural signature")
	require.Equal(t, uint64(1), misses)
	require.GreaterOrEqual(t, hits, uint64(2))
}

func TestStagingPoolReuse(t *testing.T) {
	b := requireBackend(t)

	read := func() {
		a := f32View(t, []float32{1, 2, 3, 4}, tensor.Shape{4})
		n, err := expr.CumSum(a)
		require.NoError(t, err)
		out, err := expr.Eval(n, b)
		require.NoError(t, err)
		require.InDelta(t, 10.0, out.At(3), 1e-4) // forces readback
		out.Release()
	}

	read()
	_, _, hitsBefore, _, _ := b.PoolStats()
	read()
	_, _, hitsAfter, _, pooled := b.PoolStats()

	require.Greater(t, hitsAfter, hitsBefore, "second readback reuses the pooled staging buffer")
	require.GreaterOrEqual(t, pooled, 1)
}
