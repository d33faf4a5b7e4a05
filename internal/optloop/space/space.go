// Package space declares the optimization domain: an ordered sequence of
// named parameters that bounds every candidate point the engine proposes or
// accepts.
package space

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/harmonlabs/optloop/internal/optloop"
)

// Parameter is a single dimension of the search space. Implementations
// decide which float64 values are valid for their dimension and how an
// out-of-space value is projected back in.
type Parameter interface {
	// Name returns the unique parameter name.
	Name() string

	// Validate reports whether v is a valid value for this parameter.
	Validate(v float64) error

	// Clip projects v onto the nearest valid value.
	Clip(v float64) float64

	// Sample draws a uniformly random valid value.
	Sample(rng *rand.Rand) float64

	// Bounds returns the numeric range covering all valid values. The
	// acquisition optimizer searches within these bounds and relies on
	// Clip to land on a valid value.
	Bounds() (min, max float64)
}

// Continuous is a real-valued parameter on the closed interval [min, max].
type Continuous struct {
	name     string
	min, max float64
}

// NewContinuous creates a continuous parameter. Panics if the interval is
// empty or not finite, matching the constructor discipline of the kernels.
func NewContinuous(name string, min, max float64) *Continuous {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		panic(fmt.Sprintf("space: bounds for %q must be finite, got [%v, %v]", name, min, max))
	}
	if min >= max {
		panic(fmt.Sprintf("space: empty interval for %q: [%v, %v]", name, min, max))
	}
	return &Continuous{name: name, min: min, max: max}
}

func (p *Continuous) Name() string { return p.name }

func (p *Continuous) Validate(v float64) error {
	if math.IsNaN(v) || v < p.min || v > p.max {
		return fmt.Errorf("parameter %q: value %v outside [%v, %v]", p.name, v, p.min, p.max)
	}
	return nil
}

func (p *Continuous) Clip(v float64) float64 {
	return math.Max(p.min, math.Min(v, p.max))
}

func (p *Continuous) Sample(rng *rand.Rand) float64 {
	return p.min + rng.Float64()*(p.max-p.min)
}

func (p *Continuous) Bounds() (float64, float64) { return p.min, p.max }

// Discrete is a parameter restricted to an explicit, ordered value set.
type Discrete struct {
	name   string
	values []float64
}

// NewDiscrete creates a discrete parameter over the given value set.
func NewDiscrete(name string, values []float64) *Discrete {
	if len(values) == 0 {
		panic(fmt.Sprintf("space: discrete parameter %q needs at least one value", name))
	}
	return &Discrete{name: name, values: append([]float64(nil), values...)}
}

func (p *Discrete) Name() string { return p.name }

// Values returns a copy of the value set.
func (p *Discrete) Values() []float64 {
	return append([]float64(nil), p.values...)
}

func (p *Discrete) Validate(v float64) error {
	for _, allowed := range p.values {
		if v == allowed {
			return nil
		}
	}
	return fmt.Errorf("parameter %q: value %v not in the discrete value set", p.name, v)
}

// Clip snaps v to the nearest value in the set.
func (p *Discrete) Clip(v float64) float64 {
	best := p.values[0]
	bestDist := math.Abs(v - best)
	for _, allowed := range p.values[1:] {
		if d := math.Abs(v - allowed); d < bestDist {
			best, bestDist = allowed, d
		}
	}
	return best
}

func (p *Discrete) Sample(rng *rand.Rand) float64 {
	return p.values[rng.Intn(len(p.values))]
}

func (p *Discrete) Bounds() (float64, float64) {
	min, max := p.values[0], p.values[0]
	for _, v := range p.values[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

// Categorical is a parameter over an enumerated label set. Points carry the
// category index as a float64; the index must be integral and in range.
type Categorical struct {
	name   string
	labels []string
}

// NewCategorical creates a categorical parameter over the given labels.
func NewCategorical(name string, labels []string) *Categorical {
	if len(labels) == 0 {
		panic(fmt.Sprintf("space: categorical parameter %q needs at least one label", name))
	}
	return &Categorical{name: name, labels: append([]string(nil), labels...)}
}

func (p *Categorical) Name() string { return p.name }

// Labels returns a copy of the label set.
func (p *Categorical) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Label returns the label for a valid category index.
func (p *Categorical) Label(v float64) (string, error) {
	if err := p.Validate(v); err != nil {
		return "", err
	}
	return p.labels[int(v)], nil
}

func (p *Categorical) Validate(v float64) error {
	idx := int(v)
	if float64(idx) != v || idx < 0 || idx >= len(p.labels) {
		return fmt.Errorf("parameter %q: %v is not a category index in [0, %d]", p.name, v, len(p.labels)-1)
	}
	return nil
}

func (p *Categorical) Clip(v float64) float64 {
	idx := math.Round(v)
	if idx < 0 {
		idx = 0
	}
	if idx > float64(len(p.labels)-1) {
		idx = float64(len(p.labels) - 1)
	}
	return idx
}

func (p *Categorical) Sample(rng *rand.Rand) float64 {
	return float64(rng.Intn(len(p.labels)))
}

func (p *Categorical) Bounds() (float64, float64) {
	return 0, float64(len(p.labels) - 1)
}

// Space is an ordered sequence of parameters. The dimensionality of every
// point handed to the model or returned to the caller equals the number of
// parameters, in declared order. A Space is immutable after construction.
type Space struct {
	params []Parameter
	byName map[string]int
}

// New creates a Space from the given parameters. Parameter names must be
// unique and the space must not be empty.
func New(params ...Parameter) (*Space, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("space: at least one parameter is required")
	}
	byName := make(map[string]int, len(params))
	for i, p := range params {
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("space: parameter %d has an empty name", i)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("space: duplicate parameter name %q", name)
		}
		byName[name] = i
	}
	return &Space{params: append([]Parameter(nil), params...), byName: byName}, nil
}

// Dim returns the number of parameters.
func (s *Space) Dim() int { return len(s.params) }

// Parameters returns the parameters in declared order.
func (s *Space) Parameters() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Validate checks that point has one valid value per parameter, in declared
// order. Dimension disagreement is a shape mismatch.
func (s *Space) Validate(point []float64) error {
	const op = "Space.Validate"
	if len(point) != len(s.params) {
		return optloop.ShapeMismatch(op, "point has %d values, space has %d parameters", len(point), len(s.params))
	}
	for i, p := range s.params {
		if err := p.Validate(point[i]); err != nil {
			return optloop.ShapeMismatch(op, "%v", err)
		}
	}
	return nil
}

// Clip projects point onto the space, dimension by dimension. The input is
// not modified. Panics if the dimensionality disagrees; callers that accept
// external points must Validate first.
func (s *Space) Clip(point []float64) []float64 {
	if len(point) != len(s.params) {
		panic(fmt.Sprintf("space: cannot clip a %d-dimensional point in a %d-dimensional space", len(point), len(s.params)))
	}
	out := make([]float64, len(point))
	for i, p := range s.params {
		out[i] = p.Clip(point[i])
	}
	return out
}

// Sample draws a uniformly random in-space point.
func (s *Space) Sample(rng *rand.Rand) []float64 {
	out := make([]float64, len(s.params))
	for i, p := range s.params {
		out[i] = p.Sample(rng)
	}
	return out
}

// Bounds returns the numeric [min, max] per dimension.
func (s *Space) Bounds() [][2]float64 {
	out := make([][2]float64, len(s.params))
	for i, p := range s.params {
		min, max := p.Bounds()
		out[i] = [2]float64{min, max}
	}
	return out
}
