package domain

var allowedTransitions = map[Status][]Status{
	StatusPendingReview: {StatusProcessing, StatusManualReview, StatusRejected},
	StatusManualReview:  {StatusProcessing, StatusRejected},
	StatusProcessing:    {StatusCompleted, StatusFailed},
	StatusFailed:        {StatusProcessing},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusRejected
}

// HoldsSlot reports whether a record in s blocks a new request for the same
// booking and method.
func HoldsSlot(s Status) bool {
	return s != StatusRejected
}
