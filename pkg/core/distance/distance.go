// Package distance provides the cosine distance used by the HNSW graph.
//
// The dot product and norm kernels are selected once at startup: when the CPU
// exposes the vector extensions Gonum's assembly routines rely on (AVX2+FMA3 on
// amd64, ASIMD on arm64) the Gonum BLAS implementation is used, otherwise a
// plain Go loop.
package distance

import (
	"math"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// MaxDistance is the largest value Cosine can return. Vectors of different
// length are reported at this distance so traversal never has to abort.
const MaxDistance = 2.0

// Kernel names reported by Kernel.
const (
	KernelGo    = "go"
	KernelGonum = "gonum"
)

var gonumEngine = gonum.Implementation{}

var (
	dotFunc  = dotGo
	normFunc = normGo
	kernel   = KernelGo
)

func init() {
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) || cpuid.CPU.Supports(cpuid.ASIMD) {
		dotFunc = dotGonum
		normFunc = normGonum
		kernel = KernelGonum
	}
}

// Kernel returns the name of the active dot product implementation.
func Kernel() string {
	return kernel
}

// Cosine returns 1 - cosine_similarity(a, b).
//
// A zero-magnitude vector is at distance 1.0 from everything. Vectors of
// different length are at MaxDistance.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return MaxDistance
	}
	na := normFunc(a)
	nb := normFunc(b)
	if na == 0 || nb == 0 {
		return 1.0
	}
	sim := dotFunc(a, b) / (na * nb)
	// Rounding can push |sim| slightly past 1.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1.0 - sim
}

// Dot returns the dot product of two vectors of equal length. It returns 0
// when the lengths differ.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return dotFunc(a, b)
}

// Norm returns the Euclidean magnitude of v.
func Norm(v []float32) float64 {
	return normFunc(v)
}

func dotGo(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normGo(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dotGonum(a, b []float32) float64 {
	if len(a) == 0 {
		return 0
	}
	return float64(gonumEngine.Sdot(len(a), a, 1, b, 1))
}

func normGonum(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(gonumEngine.Snrm2(len(v), v, 1))
}
