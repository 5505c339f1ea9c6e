package trace

// TraceSummary aggregates statistics from an InstanceTrace.
type TraceSummary struct {
	TotalSteps       int
	AcceptedSteps    int
	RefusedSteps     int
	StatusCounts     map[string]int // status → number of step calls
	Sent             int
	Received         int
	LastAcceptedTime float64
}

// Summarize computes aggregate statistics from an InstanceTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(it *InstanceTrace) *TraceSummary {
	summary := &TraceSummary{
		StatusCounts: make(map[string]int),
	}
	if it == nil {
		return summary
	}

	summary.TotalSteps = len(it.Steps)
	for _, s := range it.Steps {
		summary.StatusCounts[s.Status]++
		if accepted(s.Status) {
			summary.AcceptedSteps++
			if s.Time > summary.LastAcceptedTime {
				summary.LastAcceptedTime = s.Time
			}
		} else {
			summary.RefusedSteps++
		}
	}
	for _, e := range it.Exchanges {
		switch e.Direction {
		case Sent:
			summary.Sent++
		case Received:
			summary.Received++
		}
	}
	return summary
}

// accepted reports whether a step with this status advanced the run. A
// warning is the step that reached the stop time.
func accepted(status string) bool {
	return status == "ok" || status == "warning"
}
