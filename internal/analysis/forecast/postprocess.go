package forecast

import (
	"fmt"
	"math"

	"github.com/stockrun/stockrun/internal/models"
)

// Pipeline applies a task's post-processors to prediction vectors, in
// registration order. Processors mutate the vector in place.
type Pipeline struct {
	procs []processor
}

type processor func(pred []float64, basePrice float64)

// ResolvePipeline binds processor specs to the kernel's target layout.
// Unknown processor names are configuration errors.
func ResolvePipeline(specs []models.ProcessorSpec, targets []string) (Pipeline, error) {
	idx := make(map[string]int, len(targets))
	for i, t := range targets {
		idx[t] = i
	}

	procs := make([]processor, 0, len(specs))
	for _, spec := range specs {
		switch spec.Name {
		case "distribution_constraints":
			p, err := distributionConstraints(idx)
			if err != nil {
				return Pipeline{}, err
			}
			procs = append(procs, p)
		case "denormalize":
			procs = append(procs, denormalize(targets))
		case "round":
			digits := 4.0
			if spec.Params != nil {
				if d, ok := spec.Params["digits"]; ok {
					digits = d
				}
			}
			procs = append(procs, roundTo(int(digits)))
		default:
			return Pipeline{}, fmt.Errorf("unknown post-processor %q", spec.Name)
		}
	}
	return Pipeline{procs: procs}, nil
}

// Apply runs the pipeline over pred. basePrice is the close the forecast
// was made from; only de-normalization reads it.
func (p Pipeline) Apply(pred []float64, basePrice float64) {
	for _, proc := range p.procs {
		proc(pred, basePrice)
	}
}

// Len reports how many processors the pipeline holds.
func (p Pipeline) Len() int { return len(p.procs) }

// distributionConstraints repairs a distribution forecast so its targets
// are mutually consistent: std is never negative, min never exceeds max,
// and mean and the quartiles stay inside [min, max] with q25 ≤ q75.
func distributionConstraints(idx map[string]int) (processor, error) {
	required := []string{"mean", "std", "min", "max", "q25", "q75"}
	pos := make([]int, len(required))
	for i, name := range required {
		j, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("distribution constraints: kernel has no %q target", name)
		}
		pos[i] = j
	}
	mean, std, min, max, q25, q75 := pos[0], pos[1], pos[2], pos[3], pos[4], pos[5]

	return func(pred []float64, _ float64) {
		if pred[std] < 0 {
			pred[std] = 0
		}
		if pred[min] > pred[max] {
			m := (pred[min] + pred[max]) / 2
			pred[min], pred[max] = m, m
		}
		clip := func(i int) {
			if pred[i] < pred[min] {
				pred[i] = pred[min]
			}
			if pred[i] > pred[max] {
				pred[i] = pred[max]
			}
		}
		clip(mean)
		clip(q25)
		clip(q75)
		if pred[q25] > pred[q75] {
			m := (pred[q25] + pred[q75]) / 2
			pred[q25], pred[q75] = m, m
		}
	}, nil
}

// denormalize maps percent-space forecasts onto absolute price levels.
// Dispersion targets scale with the base; everything else shifts it.
func denormalize(targets []string) processor {
	return func(pred []float64, basePrice float64) {
		if basePrice == 0 {
			return
		}
		for i, name := range targets {
			if name == "std" {
				pred[i] = basePrice * pred[i] / 100
				continue
			}
			pred[i] = basePrice * (1 + pred[i]/100)
		}
	}
}

func roundTo(digits int) processor {
	scale := math.Pow(10, float64(digits))
	return func(pred []float64, _ float64) {
		for i, v := range pred {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pred[i] = math.Round(v*scale) / scale
		}
	}
}
