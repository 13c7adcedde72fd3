package domain

// Priority hints for admission order.
// Lower number = higher priority
const (
	PriorityCritical = 1 // Parent archives other entries are extracted from
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
	PriorityDefault  = PriorityNormal
)

// PriorityName returns a human-readable name for the priority level
func PriorityName(priority int) string {
	switch priority {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// NormalizePriority maps zero or out-of-range hints to PriorityDefault.
func NormalizePriority(priority int) int {
	if priority < PriorityCritical || priority > PriorityLow {
		return PriorityDefault
	}
	return priority
}
