package embed

import (
	"math"
	"math/rand/v2"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/core/vecmath"
)

// kernel holds the per-worker state of the gradient update: learning rate,
// dropout column scratch and gradient buffers. It is not shared between
// workers; the parameters it writes are.
type kernel struct {
	act  func(float32) float32
	clip float32
	lr   float32

	adam       bool
	b1, b2     float64
	eps        float32
	keep       int
	cols       []int
	gA, gB, gD []float32
	rng        *rand.Rand
}

func (m *Model) newKernel(rng *rand.Rand) *kernel {
	d := m.Dim
	k := &kernel{
		act:  m.Activation.Func(),
		clip: float32(m.Options.Clip),
		lr:   float32(m.Options.LR),
		adam: m.Options.Adam.Enabled,
		b1:   m.Options.Adam.B1,
		b2:   m.Options.Adam.B2,
		eps:  float32(m.Options.Adam.Epsilon),
		keep: d,
		cols: make([]int, d),
		gA:   make([]float32, d),
		gB:   make([]float32, d),
		gD:   make([]float32, d),
		rng:  rng,
	}
	if m.Options.Dropout > 0 {
		k.keep = min(max(int(vecmath.Round(float32(float64(d)*(1-m.Options.Dropout)))), 1), d)
	}
	for c := range k.cols {
		k.cols[c] = c
	}
	return k
}

// columns returns the columns an example reads and writes. Without dropout
// every column is kept; otherwise a fresh random subset of size keep is drawn
// by a partial Fisher-Yates shuffle.
func (k *kernel) columns() []int {
	if k.keep == len(k.cols) {
		return k.cols
	}
	d := len(k.cols)
	for i := 0; i < k.keep; i++ {
		j := i + k.rng.IntN(d-i)
		k.cols[i], k.cols[j] = k.cols[j], k.cols[i]
	}
	return k.cols[:k.keep]
}

func (k *kernel) clamp(v float32) float32 {
	return vecmath.ClipScalar(v, -k.clip, k.clip)
}

// pair is the update shared by asymmetric and symmetric embeddings: the
// score is a·b with a = left[i], b = right[j].
func (k *kernel) pair(left, right *param, i, j uint32, y float32) {
	a, b := left.row(i), right.row(j)
	cols := k.columns()
	var s float32
	if len(cols) == len(a) {
		s = vecmath.Dot(a, b)
	} else {
		for _, c := range cols {
			s += a[c] * b[c]
		}
	}
	dy := k.act(s) - y
	gA, gB := k.gA[:len(cols)], k.gB[:len(cols)]
	for n, c := range cols {
		gA[n] = k.clamp(b[c] * dy)
		gB[n] = k.clamp(a[c] * dy)
	}
	k.apply(left, i, cols, gA)
	k.apply(right, j, cols, gB)
}

// diagonal updates E[i], E[j] and D for the score sum(E[i]*E[j]*D).
func (k *kernel) diagonal(e, diag *param, i, j uint32, y float32) {
	a, b, d := e.row(i), e.row(j), diag.w
	cols := k.columns()
	var s float32
	for _, c := range cols {
		s += a[c] * b[c] * d[c]
	}
	dy := k.act(s) - y
	gA, gB, gD := k.gA[:len(cols)], k.gB[:len(cols)], k.gD[:len(cols)]
	for n, c := range cols {
		gD[n] = k.clamp(a[c] * b[c] * dy)
		gA[n] = k.clamp(b[c] * d[c] * dy)
		gB[n] = k.clamp(a[c] * d[c] * dy)
	}
	k.apply(e, i, cols, gA)
	k.apply(e, j, cols, gB)
	k.apply(diag, 0, cols, gD)
}

// apply writes one gradient row with plain SGD or Adam. The Adam counter of
// the row is incremented before the bias correction, so a row's first update
// uses t=1.
func (k *kernel) apply(p *param, i uint32, cols []int, g []float32) {
	w := p.row(i)
	if !k.adam {
		for n, c := range cols {
			w[c] -= g[n] * k.lr
		}
		return
	}
	p.t[i]++
	t := float64(p.t[i])
	alpha := float32(float64(k.lr) * math.Sqrt(1-math.Pow(k.b2, t)) / (1 - math.Pow(k.b1, t)))
	b1, b2 := float32(k.b1), float32(k.b2)
	lo := int(i) * p.cols
	m, v := p.m[lo:lo+p.cols], p.v[lo:lo+p.cols]
	for n, c := range cols {
		gn := g[n]
		m[c] = b1*m[c] + (1-b1)*gn
		v[c] = b2*v[c] + (1-b2)*gn*gn
		w[c] -= alpha * m[c] / (float32(math.Sqrt(float64(v[c]))) + k.eps)
	}
}

// stepFunc applies one labelled example to the parameters of a model, given
// in role order.
type stepFunc func(k *kernel, params []*param, x types.Pair, y float32)

var stepFuncs = [...]stepFunc{
	Asymmetric: func(k *kernel, p []*param, x types.Pair, y float32) {
		k.pair(p[0], p[1], x[0], x[1], y)
	},
	Symmetric: func(k *kernel, p []*param, x types.Pair, y float32) {
		k.pair(p[0], p[0], x[0], x[1], y)
	},
	Diagonal: func(k *kernel, p []*param, x types.Pair, y float32) {
		k.diagonal(p[0], p[1], x[0], x[1], y)
	},
}
