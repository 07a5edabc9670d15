package scheduling

import "time"

// Window is a half-open [Start, End) time span.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses the half-open overlap predicate: touching windows do not
// overlap.
func (w Window) Overlaps(other Window) bool {
	return other.Start.Before(w.End) && other.End.After(w.Start)
}

// Adjacent means touching without overlapping.
func (w Window) Adjacent(other Window) bool {
	return other.End.Equal(w.Start) || other.Start.Equal(w.End)
}

// Candidate is one calendar item considered by the analyzer.
type Candidate struct {
	ItemID  string
	Subject string
	Window  Window
}

// Analysis is recomputed on demand for create/get responses; it is never
// persisted.
type Analysis struct {
	Conflicting []Candidate
	Adjacent    []Candidate
}

func (a Analysis) ConflictingCount() int { return len(a.Conflicting) }
func (a Analysis) AdjacentCount() int    { return len(a.Adjacent) }

// Analyze classifies every candidate against the window. The same item
// can never be both conflicting and adjacent.
func Analyze(window Window, candidates []Candidate) Analysis {
	var analysis Analysis
	for _, candidate := range candidates {
		switch {
		case window.Overlaps(candidate.Window):
			analysis.Conflicting = append(analysis.Conflicting, candidate)
		case window.Adjacent(candidate.Window):
			analysis.Adjacent = append(analysis.Adjacent, candidate)
		}
	}
	return analysis
}
