package autoencoder

import "math"

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// adam holds first and second moment estimates shaped like the layers.
type adam struct {
	lr   float64
	t    int
	m, v []dense
}

func newAdam(layers []dense, lr float64) *adam {
	return &adam{lr: lr, m: newGrads(layers), v: newGrads(layers)}
}

func (o *adam) step(layers, grads []dense) {
	o.t++
	c1 := 1 - math.Pow(adamBeta1, float64(o.t))
	c2 := 1 - math.Pow(adamBeta2, float64(o.t))

	update := func(p, g, m, v []float64) {
		for i := range p {
			m[i] = adamBeta1*m[i] + (1-adamBeta1)*g[i]
			v[i] = adamBeta2*v[i] + (1-adamBeta2)*g[i]*g[i]
			p[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
		}
	}

	for l := range layers {
		for i := range layers[l].W {
			update(layers[l].W[i], grads[l].W[i], o.m[l].W[i], o.v[l].W[i])
		}
		update(layers[l].B, grads[l].B, o.m[l].B, o.v[l].B)
	}
}
