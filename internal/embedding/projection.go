package embedding

import (
	"math"
	"math/rand/v2"

	"mivta/internal/features"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const normEpsilon = 1e-8

type normalizer struct {
	mean [features.Dim]float64
	std  [features.Dim]float64
}

func fitNormalizer(samples []features.Vector) *normalizer {
	n := &normalizer{}
	col := make([]float64, len(samples))
	for d := 0; d < features.Dim; d++ {
		for i, s := range samples {
			col[i] = s[d]
		}
		n.mean[d], n.std[d] = stat.PopMeanStdDev(col, nil)
	}
	return n
}

func (n *normalizer) apply(x []float64) {
	for i := range x {
		x[i] = (x[i] - n.mean[i]) / (n.std[i] + normEpsilon)
	}
}

// projection is a two-layer network: ReLU hidden layer, tanh output.
// Installed projections are read-only and safe for concurrent forward passes.
type projection struct {
	w1 *mat.Dense // hidden x in
	b1 *mat.VecDense
	w2 *mat.Dense // out x hidden
	b2 *mat.VecDense
}

type activations struct {
	x   *mat.VecDense
	z1  *mat.VecDense
	a1  *mat.VecDense
	out []float64
}

func newProjection(in, hidden, out int, rng *rand.Rand) *projection {
	return &projection{
		w1: glorot(hidden, in, rng),
		b1: mat.NewVecDense(hidden, nil),
		w2: glorot(out, hidden, rng),
		b2: mat.NewVecDense(out, nil),
	}
}

func glorot(rows, cols int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(rows, cols, data)
}

func (p *projection) dims() (in, hidden, out int) {
	hidden, in = p.w1.Dims()
	out, _ = p.w2.Dims()
	return in, hidden, out
}

func (p *projection) forward(x []float64) activations {
	_, hidden, outDim := p.dims()
	xv := mat.NewVecDense(len(x), x)

	z1 := mat.NewVecDense(hidden, nil)
	z1.MulVec(p.w1, xv)
	z1.AddVec(z1, p.b1)
	a1 := mat.NewVecDense(hidden, nil)
	for i := 0; i < hidden; i++ {
		a1.SetVec(i, math.Max(0, z1.AtVec(i)))
	}

	z2 := mat.NewVecDense(outDim, nil)
	z2.MulVec(p.w2, a1)
	z2.AddVec(z2, p.b2)
	out := make([]float64, outDim)
	for i := range out {
		out[i] = math.Tanh(z2.AtVec(i))
	}
	return activations{x: xv, z1: z1, a1: a1, out: out}
}

type gradients struct {
	w1, w2 *mat.Dense
	b1, b2 *mat.VecDense
}

func newGradients(p *projection) *gradients {
	in, hidden, out := p.dims()
	return &gradients{
		w1: mat.NewDense(hidden, in, nil),
		b1: mat.NewVecDense(hidden, nil),
		w2: mat.NewDense(out, hidden, nil),
		b2: mat.NewVecDense(out, nil),
	}
}

// backward accumulates into g the parameter gradients for an upstream
// gradient dout on the output of act.
func (p *projection) backward(act activations, dout []float64, g *gradients) {
	_, hidden, outDim := p.dims()
	dz2 := mat.NewVecDense(outDim, nil)
	for i, o := range act.out {
		dz2.SetVec(i, dout[i]*(1-o*o))
	}
	g.w2.RankOne(g.w2, 1, dz2, act.a1)
	g.b2.AddVec(g.b2, dz2)

	dz1 := mat.NewVecDense(hidden, nil)
	dz1.MulVec(p.w2.T(), dz2)
	for i := 0; i < hidden; i++ {
		if act.z1.AtVec(i) <= 0 {
			dz1.SetVec(i, 0)
		}
	}
	g.w1.RankOne(g.w1, 1, dz1, act.x)
	g.b1.AddVec(g.b1, dz1)
}

// step applies one SGD update and clears g.
func (p *projection) step(g *gradients, lr float64) {
	g.w1.Scale(-lr, g.w1)
	p.w1.Add(p.w1, g.w1)
	g.w2.Scale(-lr, g.w2)
	p.w2.Add(p.w2, g.w2)
	p.b1.AddScaledVec(p.b1, -lr, g.b1)
	p.b2.AddScaledVec(p.b2, -lr, g.b2)
	g.w1.Zero()
	g.w2.Zero()
	g.b1.Zero()
	g.b2.Zero()
}

// cosineGrad returns cos(u, v) and its gradient with respect to u.
func cosineGrad(u, v []float64) (float64, []float64) {
	grad := make([]float64, len(u))
	var dot, nu, nv float64
	for i := range u {
		dot += u[i] * v[i]
		nu += u[i] * u[i]
		nv += v[i] * v[i]
	}
	if nu == 0 || nv == 0 {
		return 0, grad
	}
	lu, lv := math.Sqrt(nu), math.Sqrt(nv)
	cos := dot / (lu * lv)
	for i := range u {
		grad[i] = v[i]/(lu*lv) - cos*u[i]/nu
	}
	return cos, grad
}
