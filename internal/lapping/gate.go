package lapping

// DefaultTolerance is the absolute confidence band, on the [0,1] scale,
// within which a new reading still counts as the locked-in subject.
const DefaultTolerance = 0.2

// StabilityGate decides whether a confidence reading for the selected
// subject is close enough to the reading taken when it was selected.
type StabilityGate struct {
	Tolerance float64
}

// NewStabilityGate returns a gate with the given tolerance.
func NewStabilityGate(tolerance float64) StabilityGate {
	return StabilityGate{Tolerance: tolerance}
}

// IsAcceptable reports whether candidate is within tolerance of reference.
// A zero on either side means "no detection" and is never acceptable.
//
// The bound check is reference+tol >= candidate OR reference-tol <= candidate.
// With a non-negative tolerance this holds for every non-zero pair; it is kept
// as is rather than narrowed to a symmetric band.
func (g StabilityGate) IsAcceptable(reference, candidate float64) bool {
	if reference == 0 || candidate == 0 {
		return false
	}

	reference = normalizeConfidence(reference)
	candidate = normalizeConfidence(candidate)

	return reference+g.Tolerance >= candidate || reference-g.Tolerance <= candidate
}

// normalizeConfidence maps percentages (values above 1) onto [0,1].
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		return c / 100
	}
	return c
}
