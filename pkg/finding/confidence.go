package finding

// Confidence grades how sure the engine is that a resource is waste.
type Confidence string

const (
	ConfidenceLow      Confidence = "low"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceHigh     Confidence = "high"
	ConfidenceCritical Confidence = "critical"
)

var confidenceRank = map[Confidence]int{
	ConfidenceLow:      0,
	ConfidenceMedium:   1,
	ConfidenceHigh:     2,
	ConfidenceCritical: 3,
}

// Rank orders confidence levels; unknown values rank below low.
func (c Confidence) Rank() int {
	if r, ok := confidenceRank[c]; ok {
		return r
	}
	return -1
}

// MaxConfidence returns the stronger of the two grades.
func MaxConfidence(a, b Confidence) Confidence {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Ladder maps resource age to a confidence floor. Thresholds are in days
// and come from the per-resource-type rule set.
type Ladder struct {
	MediumDays   int
	HighDays     int
	CriticalDays int
}

// ForAge grades by age alone. The result is a floor: scenarios may raise
// the grade on stronger evidence but never lower it.
func (l Ladder) ForAge(days int) Confidence {
	switch {
	case l.CriticalDays > 0 && days >= l.CriticalDays:
		return ConfidenceCritical
	case l.HighDays > 0 && days >= l.HighDays:
		return ConfidenceHigh
	case l.MediumDays > 0 && days >= l.MediumDays:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ApplyFloor raises the finding's confidence to the age-derived floor when
// the scenario graded it lower (or not at all).
func (f *Finding) ApplyFloor(l Ladder) {
	floor := l.ForAge(f.Metadata.AgeDays)
	f.Metadata.Confidence = MaxConfidence(f.Metadata.Confidence, floor)
}
