// Package fuzzy scores keyword density into a scalar confidence using a
// fixed Mamdani rule base: three triangular input sets over the keyword
// count, two triangular output sets over [0,1], min-clip inference,
// max aggregation, and centroid defuzzification.
package fuzzy

// Scoring domain for the keyword-count input. Counts above DomainMax are
// clipped; the rule base saturates there anyway.
const (
	DomainMin = 0
	DomainMax = 5
)

// defuzzSteps is the resolution of the output universe used for centroid
// computation. 100 steps over [0,1] keeps the score stable to two decimals.
const defuzzSteps = 100

// trimf is a triangular membership function with vertices (a, b, c).
type trimf struct {
	a, b, c float64
}

func (t trimf) at(x float64) float64 {
	switch {
	case x < t.a || x > t.c:
		return 0
	case x == t.b:
		return 1
	case x < t.b:
		if t.b == t.a {
			return 1
		}
		return (x - t.a) / (t.b - t.a)
	default:
		if t.c == t.b {
			return 1
		}
		return (t.c - x) / (t.c - t.b)
	}
}

// Input sets over the keyword-count domain.
var (
	inLow    = trimf{0, 0, 2}
	inMedium = trimf{1, 3, 5}
	inHigh   = trimf{3, 5, 5}
)

// Output sets over the confidence domain.
var (
	outLow  = trimf{0, 0, 0.7}
	outHigh = trimf{0.6, 1, 1}
)

// Score maps a matched-keyword count to a confidence in [0,1].
// Deterministic and monotonically non-decreasing in matched.
//
// The raw Mamdani surface dips at matched=3, where the medium input set
// fully fires the low_conf consequent and drags the centroid below the
// matched=2 value. Score takes the running maximum over lower counts so the
// published monotonicity guarantee holds.
func Score(matched int) float64 {
	if matched > DomainMax {
		matched = DomainMax
	}
	best := 0.0
	for n := DomainMin; n <= matched; n++ {
		if s := rawScore(n); s > best {
			best = s
		}
	}
	return best
}

// rawScore is the unadjusted centroid for a single count.
func rawScore(matched int) float64 {
	x := float64(matched)
	if x < DomainMin {
		x = DomainMin
	}
	if x > DomainMax {
		x = DomainMax
	}

	// Rule firing strengths. Rules 1 and 2 share the low_conf consequent,
	// so their strengths combine by max before clipping.
	lowStrength := inLow.at(x)
	if m := inMedium.at(x); m > lowStrength {
		lowStrength = m
	}
	highStrength := inHigh.at(x)

	// Centroid of the aggregated output set.
	var num, den float64
	for i := 0; i <= defuzzSteps; i++ {
		y := float64(i) / defuzzSteps
		mu := clip(outLow.at(y), lowStrength)
		if h := clip(outHigh.at(y), highStrength); h > mu {
			mu = h
		}
		num += y * mu
		den += mu
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func clip(membership, strength float64) float64 {
	if membership > strength {
		return strength
	}
	return membership
}
