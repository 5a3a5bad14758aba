package pool

// Strategy chooses which of several equally-eligible candidate
// sources should serve the next acquisition, per §4.4.
type Strategy int

const (
	// RoundRobin cycles through candidates in order.
	RoundRobin Strategy = iota
	// LeastConnections prefers the candidate with the fewest active
	// connections outstanding.
	LeastConnections
	// ThrottleAware prefers candidates that are not currently
	// throttled (per internal/throttle), falling back to
	// LeastConnections among the untroubled set.
	ThrottleAware
)

// throttleChecker is the minimal view of internal/throttle.Tracker
// the ThrottleAware strategy needs, kept narrow to avoid an import
// cycle between pool and throttle.
type throttleChecker interface {
	IsThrottled(source string) bool
}

func selectLeastConnections(candidates []string, active map[string]int32) string {
	best := candidates[0]
	bestActive := active[best]
	for _, c := range candidates[1:] {
		if active[c] < bestActive {
			best = c
			bestActive = active[c]
		}
	}
	return best
}

func selectThrottleAware(candidates []string, active map[string]int32, throttle throttleChecker) string {
	var available []string
	for _, c := range candidates {
		if throttle == nil || !throttle.IsThrottled(c) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		available = candidates
	}
	return selectLeastConnections(available, active)
}
