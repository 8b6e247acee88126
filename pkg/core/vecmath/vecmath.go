// Package vecmath provides the scalar and vector helpers used by the gradient
// kernels: activations, clipping, the cosine learning-rate schedule, and a
// dot product dispatched at start-up to the fastest implementation available.
//
// Dispatch follows runtime CPU detection: pure Go by default, Gonum BLAS when
// it is linked, and vek's SIMD kernels when the CPU reports AVX2 and FMA.
package vecmath

import (
	"log"
	"math"

	"github.com/klauspost/cpuid/v2"
	"github.com/viterin/vek/vek32"
	"gonum.org/v1/gonum/blas/gonum"
)

// Epsilon keeps logarithms and divisions away from zero.
const Epsilon = 1e-7

// DotFunc computes the inner product of two equally sized vectors.
type DotFunc func(a, b []float32) float32

var (
	gonumEngine = gonum.Implementation{}

	dot     DotFunc = dotGo
	dotName         = "pure go"
)

func init() {
	dot, dotName = dotGonum, "gonum"
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		dot, dotName = dotVek, "vek (AVX2/FMA)"
	}
	log.Printf("grl compute engine: dot product using %s on %s", dotName, cpuid.CPU.BrandName)
}

// Dot returns the inner product of a and b using the dispatched implementation.
// The vectors must have the same length.
func Dot(a, b []float32) float32 {
	return dot(a, b)
}

// DotImplementation names the implementation selected at start-up.
func DotImplementation() string {
	return dotName
}

func dotGo(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func dotGonum(a, b []float32) float32 {
	return gonumEngine.Sdot(len(a), a, 1, b, 1)
}

func dotVek(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// Sigmoid is the logistic function. Sigmoid(0) is 0.5 and the infinities map
// to 1 and 0.
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// Identity returns x unchanged.
func Identity(x float32) float32 {
	return x
}

// Softmax returns the normalised exponentials of x. The maximum is
// subtracted first so large inputs do not overflow.
func Softmax(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Clip returns a copy of x with every element clamped to [lower, upper].
func Clip(x []float32, lower, upper float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	ClipInPlace(out, lower, upper)
	return out
}

// ClipInPlace clamps every element of x to [lower, upper].
func ClipInPlace(x []float32, lower, upper float32) {
	for i, v := range x {
		x[i] = ClipScalar(v, lower, upper)
	}
}

// ClipScalar clamps v to [lower, upper].
func ClipScalar(v, lower, upper float32) float32 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}

// CosDecay is the cosine schedule 0.5*(1+cos(pi*p)); it falls from 1 at p=0
// to 0 at p=1.
func CosDecay(p float64) float64 {
	return 0.5 * (1 + math.Cos(math.Pi*p))
}

// BinaryCrossEntropy is the mean logistic loss of predictions q against
// targets p.
func BinaryCrossEntropy(p, q []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	var sum float64
	for i := range p {
		sum += p[i]*math.Log(q[i]+Epsilon) + (1-p[i])*math.Log(1-q[i]+Epsilon)
	}
	return -sum / float64(len(p))
}

// Round rounds half to even, matching the rounding used for accuracy scores.
func Round(x float32) float32 {
	return float32(math.RoundToEven(float64(x)))
}
