package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// MaxAttempts is how many failed dispatches an event gets before it stays failed.
const MaxAttempts = 10

// Event is one outbox row. Payload is the JSON body published as the message
// value and AggregateID becomes the message key.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
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

// LastAttempt reports whether a failed dispatch now would park the event for good.
func (e Event) LastAttempt() bool {
	return e.RetryCount+1 >= MaxAttempts
}
