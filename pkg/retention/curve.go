// Package retention : âge (jours depuis l'installation) → fraction de la cohorte
// encore active.
package retention

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"abtest-cohorts/pkg/models"
)

var (
	ErrEmptyCurve    = errors.New("retention curve has no benchmark points")
	ErrBadAge        = errors.New("benchmark age must be positive")
	ErrFractionRange = errors.New("retention fraction must be within [0, 1]")
	ErrNotMonotonic  = errors.New("retention fraction increases with age")
	ErrUnknownKind   = errors.New("unknown retention curve kind")
)

// Curve retourne la fraction retenue à un âge donné (en jours).
// Toute implémentation vaut exactement 1.0 à l'âge 0.
type Curve interface {
	Fraction(age int) float64
}

const (
	KindBenchmarks  = "benchmarks"
	KindExponential = "exponential"
)

// Interpolation : comment résoudre un âge entre deux benchmarks.
type Interpolation string

const (
	Step   Interpolation = "step"
	Linear Interpolation = "linear"
)

// Benchmarks est une courbe définie à quelques âges (D1, D3, D7, D14 ...).
// Au-delà du dernier benchmark, la dernière fraction est conservée.
type Benchmarks struct {
	ages      []int
	fractions []float64
	interp    Interpolation
}

// NewBenchmarks valide les points et construit la courbe.
func NewBenchmarks(points map[int]float64, interp Interpolation) (*Benchmarks, error) {
	if len(points) == 0 {
		return nil, ErrEmptyCurve
	}
	switch interp {
	case "":
		interp = Step
	case Step, Linear:
	default:
		return nil, fmt.Errorf("interpolation %q: %w", interp, ErrUnknownKind)
	}

	ages := make([]int, 0, len(points))
	for age := range points {
		ages = append(ages, age)
	}
	sort.Ints(ages)

	fractions := make([]float64, len(ages))
	prev := 1.0
	for i, age := range ages {
		f := points[age]
		if age <= 0 {
			return nil, fmt.Errorf("age %d: %w", age, ErrBadAge)
		}
		if math.IsNaN(f) || f < 0 || f > 1 {
			return nil, fmt.Errorf("D%d=%v: %w", age, f, ErrFractionRange)
		}
		if f > prev {
			return nil, fmt.Errorf("D%d=%v > %v: %w", age, f, prev, ErrNotMonotonic)
		}
		fractions[i] = f
		prev = f
	}
	return &Benchmarks{ages: ages, fractions: fractions, interp: interp}, nil
}

// Fraction implémente Curve.
//
// Step : on garde le dernier benchmark ≤ age (l'âge 0 compte comme un
// benchmark à 1.0). Linear : segment entre les deux benchmarks voisins.
func (b *Benchmarks) Fraction(age int) float64 {
	if age <= 0 {
		return 1.0
	}
	// plus grand i tel que ages[i] <= age, -1 sinon
	i := sort.SearchInts(b.ages, age+1) - 1
	if i == len(b.ages)-1 {
		return b.fractions[i]
	}

	prevAge, prevFrac := 0, 1.0
	if i >= 0 {
		prevAge, prevFrac = b.ages[i], b.fractions[i]
	}
	if b.interp == Step || prevAge == age {
		return prevFrac
	}
	nextAge, nextFrac := b.ages[i+1], b.fractions[i+1]
	return prevFrac + (nextFrac-prevFrac)*float64(age-prevAge)/float64(nextAge-prevAge)
}

// Exponential = Initial × e^(−Decay × (age−1)) à partir de D1.
type Exponential struct {
	Initial float64
	Decay   float64
}

// NewExponential valide les paramètres.
func NewExponential(initial, decay float64) (Exponential, error) {
	if math.IsNaN(initial) || initial < 0 || initial > 1 {
		return Exponential{}, fmt.Errorf("initial=%v: %w", initial, ErrFractionRange)
	}
	if math.IsNaN(decay) || decay < 0 {
		return Exponential{}, fmt.Errorf("decay=%v: %w", decay, ErrNotMonotonic)
	}
	return Exponential{Initial: initial, Decay: decay}, nil
}

// Fraction implémente Curve.
func (e Exponential) Fraction(age int) float64 {
	if age <= 0 {
		return 1.0
	}
	return e.Initial * math.Exp(-e.Decay*float64(age-1))
}

// FromSpec construit la courbe décrite par un bloc de configuration.
func FromSpec(spec models.CurveSpec) (Curve, error) {
	switch spec.Kind {
	case "", KindBenchmarks:
		return NewBenchmarks(spec.Points, Interpolation(spec.Interpolation))
	case KindExponential:
		return NewExponential(spec.Initial, spec.Decay)
	default:
		return nil, fmt.Errorf("kind %q: %w", spec.Kind, ErrUnknownKind)
	}
}
