package webgpu

import "fmt"

// WGSL compute shaders for the expression kernels. String constants and
// small templates instead of embed for simplicity.

// workgroupSize is the default number of threads per 1-D workgroup.
const workgroupSize = 256

// defaultMatmulTile is the per-axis workgroup size for the 2-D matmul
// dispatch, used when no tuning record overrides it.
const defaultMatmulTile = 16

// matmulShader computes result = alpha*(A @ B) + beta*result over leading
// batch dimensions. A is [batch, M, K], B is [batch, K, N], result is
// [batch, M, N], all flattened row-major. The tile size is substituted so
// tuned variants compile to distinct pipelines.
func matmulShader(tile int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    batch: u32,
    M: u32,
    K: u32,
    N: u32,
    alpha: f32,
    beta: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(%d, %d)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let col = global_id.x;
    let row = global_id.y;
    let bat = global_id.z;

    if (row >= params.M || col >= params.N || bat >= params.batch) {
        return;
    }

    let a_base = bat * params.M * params.K;
    let b_base = bat * params.K * params.N;
    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[a_base + row * params.K + k] * b[b_base + k * params.N + col];
    }

    let c_idx = bat * params.M * params.N + row * params.N + col;
    var out = params.alpha * sum;
    if (params.beta != 0.0) {
        out = out + params.beta * result[c_idx];
    }
    result[c_idx] = out;
}
`, tile, tile)
}

// cumsumShader computes an inclusive prefix sum along the last dimension:
// one thread scans one row sequentially.
const cumsumShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    len: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.x;
    if (row >= params.rows) {
        return;
    }
    let base = row * params.len;
    var sum: f32 = 0.0;
    for (var i: u32 = 0u; i < params.len; i = i + 1u) {
        sum = sum + a[base + i];
        result[base + i] = sum;
    }
}
`

// traceShader sums the main diagonal of an n-by-n matrix into a single
// element. One invocation does the reduction; the diagonal is short
// relative to dispatch overhead.
const traceShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    n: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    if (global_id.x != 0u) {
        return;
    }
    var sum: f32 = 0.0;
    for (var i: u32 = 0u; i < params.n; i = i + 1u) {
        sum = sum + a[i * params.n + i];
    }
    result[0] = sum;
}
`
