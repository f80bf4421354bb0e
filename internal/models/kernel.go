// Package models owns the heavy forecasting artifacts: predictor kernels,
// their explainers, the single-flight cache that loads each exactly once,
// and snapshot resolution for look-ahead-free historical evaluation.
package models

import (
	"fmt"
	"math"
	"sort"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// Kernel is an opaque predictor: a feature row in, a prediction vector out.
type Kernel interface {
	// Targets names the entries of the prediction vector, in order.
	Targets() []string
	// Features names the expected input row entries, in order.
	Features() []string
	// Predict evaluates one feature row.
	Predict(features []float64) ([]float64, error)
}

// Explainer attributes a kernel's prediction to its input features. An
// explainer is bound to the specific kernel it was built from.
type Explainer interface {
	Explain(features []float64) ([]report.TargetExplanation, error)
}

// MeanProvider is implemented by kernels that publish their training-time
// feature means. Callers use the means to fill features a row is missing.
type MeanProvider interface {
	Means() []float64
}

// topFeatures limits how many contributions an explanation carries per target.
const topFeatures = 5

// LinearKernel is a linear model bundle: one weight row and intercept per
// target, with optional softmax over the outputs for classifiers. Feature
// means anchor the explainer's base values.
type LinearKernel struct {
	TargetNames  []string    `json:"targets"`
	FeatureNames []string    `json:"feature_list"`
	Weights      [][]float64 `json:"weights"`
	Intercepts   []float64   `json:"intercepts"`
	FeatureMeans []float64   `json:"feature_means"`
	Softmax      bool        `json:"softmax"`
}

// Validate checks the bundle dimensions agree.
func (k *LinearKernel) Validate() error {
	if len(k.TargetNames) == 0 {
		return fmt.Errorf("kernel has no targets")
	}
	if len(k.Weights) != len(k.TargetNames) {
		return fmt.Errorf("kernel has %d weight rows for %d targets", len(k.Weights), len(k.TargetNames))
	}
	if len(k.Intercepts) != len(k.TargetNames) {
		return fmt.Errorf("kernel has %d intercepts for %d targets", len(k.Intercepts), len(k.TargetNames))
	}
	for i, row := range k.Weights {
		if len(row) != len(k.FeatureNames) {
			return fmt.Errorf("weight row %d has %d entries for %d features", i, len(row), len(k.FeatureNames))
		}
	}
	if len(k.FeatureMeans) != 0 && len(k.FeatureMeans) != len(k.FeatureNames) {
		return fmt.Errorf("kernel has %d feature means for %d features", len(k.FeatureMeans), len(k.FeatureNames))
	}
	return nil
}

func (k *LinearKernel) Targets() []string  { return k.TargetNames }
func (k *LinearKernel) Features() []string { return k.FeatureNames }
func (k *LinearKernel) Means() []float64   { return k.FeatureMeans }

func (k *LinearKernel) Predict(features []float64) ([]float64, error) {
	if len(features) != len(k.FeatureNames) {
		return nil, fmt.Errorf("kernel expects %d features, got %d", len(k.FeatureNames), len(features))
	}
	out := make([]float64, len(k.TargetNames))
	for t, row := range k.Weights {
		v := k.Intercepts[t]
		for i, w := range row {
			v += w * features[i]
		}
		out[t] = v
	}
	if k.Softmax {
		softmaxInPlace(out)
	}
	return out, nil
}

func softmaxInPlace(v []float64) {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - max)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// NewExplainer builds an explainer for the kernel. Only linear kernels are
// explainable here; anything else reports its concrete type.
func NewExplainer(k Kernel) (Explainer, error) {
	lk, ok := k.(*LinearKernel)
	if !ok {
		return nil, fmt.Errorf("kernel %T has no explainer", k)
	}
	return &linearExplainer{kernel: lk}, nil
}

// linearExplainer attributes w*(x - mean) per feature, which is the exact
// Shapley decomposition of a linear model around the feature means.
type linearExplainer struct {
	kernel *LinearKernel
}

func (e *linearExplainer) Explain(features []float64) ([]report.TargetExplanation, error) {
	k := e.kernel
	if len(features) != len(k.FeatureNames) {
		return nil, fmt.Errorf("explainer expects %d features, got %d", len(k.FeatureNames), len(features))
	}
	pred, err := k.Predict(features)
	if err != nil {
		return nil, err
	}

	means := k.FeatureMeans
	if len(means) == 0 {
		means = make([]float64, len(k.FeatureNames))
	}

	out := make([]report.TargetExplanation, len(k.TargetNames))
	for t, row := range k.Weights {
		base := k.Intercepts[t]
		for i, w := range row {
			base += w * means[i]
		}

		contribs := make([]report.FeatureContribution, len(row))
		for i, w := range row {
			c := w * (features[i] - means[i])
			effect := report.EffectPositive
			if c < 0 {
				effect = report.EffectNegative
			}
			contribs[i] = report.FeatureContribution{
				Feature:      k.FeatureNames[i],
				Value:        report.F(features[i]),
				Contribution: report.F(c),
				Effect:       effect,
			}
		}
		sort.SliceStable(contribs, func(a, b int) bool {
			return math.Abs(*contribs[a].Contribution) > math.Abs(*contribs[b].Contribution)
		})
		if len(contribs) > topFeatures {
			contribs = contribs[:topFeatures]
		}

		out[t] = report.TargetExplanation{
			TargetName:        k.TargetNames[t],
			BaseValue:         report.F(base),
			PredictionOutcome: report.F(pred[t]),
			TopFeatures:       contribs,
		}
	}
	return out, nil
}
