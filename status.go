package admsrelay

// Status represents the lifecycle state of a delivery attempt.
// Delivered attempts are deleted, so there is no processed state.
type Status int16

const (
	// StatusPending indicates the attempt is eligible for redelivery.
	StatusPending Status = 0
	// StatusDead indicates the attempt exhausted its retries and is dead-lettered.
	StatusDead Status = -1
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}
