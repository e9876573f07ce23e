package model

// Outcome classifies the authority's response to a single submission. It is
// the only channel by which the submitter communicates results; callers never
// inspect raw status codes.
type Outcome int

const (
	// OutcomeCreated means the authority persisted a new record.
	OutcomeCreated Outcome = iota
	// OutcomeAlreadyApplied means the idempotency key was seen before; the
	// record is confirmed and must be dequeued, same as Created.
	OutcomeAlreadyApplied
	// OutcomeConflicted means the authority holds semantically incompatible
	// state (e.g. the target shift is already closed).
	OutcomeConflicted
	// OutcomeRejected means a validation failure; retrying can never succeed.
	OutcomeRejected
	// OutcomeTransportFailed means the authority was unreachable; the record
	// stays queued for the next pass.
	OutcomeTransportFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeConflicted:
		return "conflicted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}

// SyncStatus describes how a sync pass terminated.
type SyncStatus string

const (
	SyncCompleted         SyncStatus = "completed"
	SyncSkippedConcurrent SyncStatus = "skipped_concurrent"
	SyncSkippedOffline    SyncStatus = "skipped_offline"
)

// RecordFailure carries enough detail for the UI to surface a non-retryable
// failure so the vendor can correct and recapture it.
type RecordFailure struct {
	LocalID string `json:"local_id"`
	Kind    string `json:"kind"` // "sale" or "action"
	Ref     string `json:"ref"`  // client or order reference
	Reason  string `json:"reason"`
}

// SyncReport aggregates the result of one sync pass.
type SyncReport struct {
	Status       SyncStatus      `json:"status"`
	Succeeded    int             `json:"succeeded"`
	StillPending int             `json:"still_pending"`
	Stalled      int             `json:"stalled"` // past the retry policy's max attempts, kept queued
	Rejected     []RecordFailure `json:"rejected,omitempty"`
	Conflicted   []RecordFailure `json:"conflicted,omitempty"`
}
