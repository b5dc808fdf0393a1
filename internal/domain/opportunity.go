package domain

// Verdict is the filter outcome for a pool event.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictReject Verdict = "REJECT"
)

// Opportunity is a scored, filtered candidate derived from a pool event.
// Accepted opportunities are eligible for execution while still fresh.
type Opportunity struct {
	Event        *PoolEvent
	Verdict      Verdict
	RejectedBy   string  // name of the first rejecting rule, empty on accept
	Score        float64 // 0 on reject, weighted rule sub-scores on accept
	DiscoveredAt int64   // Unix timestamp in milliseconds
}

// Accepted reports whether the opportunity passed all rules.
func (o *Opportunity) Accepted() bool {
	return o.Verdict == VerdictAccept
}
