package core

// Outcome is the decision taken for a single event on a single mapping.
type Outcome int

const (
	// OutcomeNone means the mapping is mapped but building is disabled.
	OutcomeNone Outcome = iota
	OutcomeBuild
	OutcomeDelayed
	OutcomeSkipped
	OutcomeNotMapped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeBuild:
		return "build"
	case OutcomeDelayed:
		return "delayed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNotMapped:
		return "not_mapped"
	default:
		return "unknown"
	}
}
