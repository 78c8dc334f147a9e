package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	// StatusDead marks an event whose subscribers kept failing after the
	// bus-level retry budget; the stream continues past it and an operator
	// follows up.
	StatusDead Status = "dead"
)

// Event is one durably staged domain event. Rows are written in the same
// transaction as the aggregate mutation they describe and drained by the
// relay, so state change and event emission cannot diverge.
type Event struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	Sequence      int64
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

// Staged is the write-side view: what a repository appends to the outbox
// table inside the aggregate's transaction.
type Staged struct {
	EventID     string
	Type        string
	Sequence    int64
	Payload     []byte
	Headers     map[string]string
	Traceparent string
}
