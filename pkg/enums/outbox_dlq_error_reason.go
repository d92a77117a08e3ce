package enums

// OutboxDLQErrorReason records why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// Transient publish failures exhausted the retry budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// The broker or publisher rejected the message permanently.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// No descriptor matches the row's event type and aggregate.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
	// The envelope or typed payload failed to decode.
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
)

// IsValid reports whether r is a known reason.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable,
		OutboxDLQReasonUnroutable, OutboxDLQReasonMalformedPayload:
		return true
	}
	return false
}
