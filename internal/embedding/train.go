package embedding

import (
	"context"
	"fmt"
	"math/rand/v2"

	"mivta/internal/config"
	"mivta/internal/features"
)

// Sample is one labeled training vector.
type Sample struct {
	Label    string
	Features features.Vector
}

// TrainOptions controls projection fitting.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	Margin       float64
	Seed         uint64
}

// OptionsFromConfig reads training options from the model section.
func OptionsFromConfig(cfg *config.Config) TrainOptions {
	return TrainOptions{
		Epochs:       cfg.Model.Epochs,
		LearningRate: cfg.Model.LearningRate,
		Margin:       cfg.Model.Margin,
		Seed:         cfg.Model.Seed,
	}
}

// TrainResult summarizes a training run.
type TrainResult struct {
	Samples    int     `json:"samples"`
	Labels     int     `json:"labels"`
	Epochs     int     `json:"epochs"`
	Loss       float64 `json:"loss"` // mean triplet loss of the last epoch
	Generation uint64  `json:"generation"`
}

// Train fits the normalizer and projection on samples with a cosine triplet
// margin loss: for anchor a, positive p of the same label and negative n of
// another label it minimizes max(0, margin - cos(a,p) + cos(a,n)).
// Zero vectors are ignored. Stored references are not re-embedded; call
// RefreshReferences afterwards.
func (m *Model) Train(ctx context.Context, samples []Sample, opts TrainOptions) (TrainResult, error) {
	var (
		vecs   []features.Vector
		labels []string
		order  []string
		byLbl  = map[string][]int{}
	)
	for _, s := range samples {
		if s.Features.IsZero() {
			continue
		}
		if _, ok := byLbl[s.Label]; !ok {
			order = append(order, s.Label)
		}
		byLbl[s.Label] = append(byLbl[s.Label], len(vecs))
		vecs = append(vecs, s.Features)
		labels = append(labels, s.Label)
	}
	res := TrainResult{Samples: len(vecs), Labels: len(order)}
	if len(order) < 2 {
		return res, ErrInsufficientData
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 1
	}

	norm := fitNormalizer(vecs)
	inputs := make([][]float64, len(vecs))
	for i, v := range vecs {
		inputs[i] = v.Slice()
		norm.apply(inputs[i])
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	proj := newProjection(features.Dim, m.hiddenDim, m.embedDim, rng)
	grads := newGradients(proj)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("train: %w", err)
		}
		var total float64
		for _, a := range rng.Perm(len(inputs)) {
			same := byLbl[labels[a]]
			p := same[rng.IntN(len(same))]
			other := order[rng.IntN(len(order)-1)]
			if other == labels[a] {
				other = order[len(order)-1]
			}
			diff := byLbl[other]
			n := diff[rng.IntN(len(diff))]

			total += tripletStep(proj, grads, inputs[a], inputs[p], inputs[n], a == p, opts)
		}
		res.Loss = total / float64(len(inputs))
		m.logger.Debugf("embedding: epoch %d/%d loss %.4f", epoch+1, opts.Epochs, res.Loss)
	}

	res.Epochs = opts.Epochs
	res.Generation = m.install(norm, proj)
	m.logger.Infof("embedding: trained on %d samples / %d labels, loss %.4f", res.Samples, res.Labels, res.Loss)
	return res, nil
}

// tripletStep runs forward and backward passes for one triplet, applies the
// update and returns the loss before the update.
func tripletStep(proj *projection, g *gradients, a, p, n []float64, selfPositive bool, opts TrainOptions) float64 {
	actA := proj.forward(a)
	actN := proj.forward(n)

	cosAP := 1.0
	var dAfromP, dP []float64
	var actP activations
	if !selfPositive {
		actP = proj.forward(p)
		cosAP, dAfromP = cosineGrad(actA.out, actP.out)
		_, dP = cosineGrad(actP.out, actA.out)
	}
	cosAN, dAfromN := cosineGrad(actA.out, actN.out)
	_, dN := cosineGrad(actN.out, actA.out)

	loss := opts.Margin - cosAP + cosAN
	if loss <= 0 {
		return 0
	}

	// dL/da = dcos(a,n)/da - dcos(a,p)/da
	dA := make([]float64, len(actA.out))
	for i := range dA {
		dA[i] = dAfromN[i]
		if dAfromP != nil {
			dA[i] -= dAfromP[i]
		}
	}
	proj.backward(actA, dA, g)
	proj.backward(actN, dN, g)
	if dP != nil {
		for i := range dP {
			dP[i] = -dP[i]
		}
		proj.backward(actP, dP, g)
	}
	proj.step(g, opts.LearningRate)
	return loss
}
