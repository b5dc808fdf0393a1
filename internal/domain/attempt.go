package domain

// Outcome is the terminal classification of an execution attempt.
type Outcome string

const (
	// OutcomeFilled means the buy transaction was confirmed on-chain.
	OutcomeFilled Outcome = "FILLED"
	// OutcomeFailed means submission was rejected after exhausting retries.
	OutcomeFailed Outcome = "FAILED"
	// OutcomeTimedOut means no confirmation was observed before the deadline.
	// Ambiguous: the transaction may still land later.
	OutcomeTimedOut Outcome = "TIMED_OUT"
	// OutcomeSkippedStale means the opportunity aged past the staleness bound
	// before submission and was discarded without touching the network.
	OutcomeSkippedStale Outcome = "SKIPPED_STALE"
	// OutcomeSkippedDuplicate means the pool was already acted upon.
	OutcomeSkippedDuplicate Outcome = "SKIPPED_DUPLICATE"
)

// Terminal reports whether the outcome is a final classification.
// All defined outcomes are terminal; the zero value is not.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeFilled, OutcomeFailed, OutcomeTimedOut, OutcomeSkippedStale, OutcomeSkippedDuplicate:
		return true
	}
	return false
}

// ExecutionAttempt records one execution of an accepted opportunity.
// The terminal outcome is persisted for audit and resume.
type ExecutionAttempt struct {
	AttemptID   string  // unique attempt identifier
	Pool        string  // opportunity identifier
	BaseMint    string  // token bought
	Outcome     Outcome // terminal classification
	Retries     int     // submission retries consumed
	TxSignature string  // signature of the submitted transaction, if any
	LastError   string  // last submission/confirmation error, if any
	Score       float64 // score the opportunity carried into execution
	StartedAt   int64   // Unix timestamp in milliseconds
	FinishedAt  int64   // Unix timestamp in milliseconds
}
