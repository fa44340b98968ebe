package enums

// OutboxAggregateType maps to the aggregate_type column on outbox_events.
type OutboxAggregateType string

const (
	AggregateMatch   OutboxAggregateType = "match"
	AggregateListing OutboxAggregateType = "waste_listing"
	AggregateAccount OutboxAggregateType = "account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMatch,
	AggregateListing,
	AggregateAccount,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type column on outbox_events.
type OutboxEventType string

const (
	EventListingPosted   OutboxEventType = "listing_posted"
	EventListingRecycled OutboxEventType = "listing_recycled"
	EventMatchRequested  OutboxEventType = "match_requested"
	EventMatchAccepted   OutboxEventType = "match_accepted"
	EventMatchRejected   OutboxEventType = "match_rejected"
	EventMatchCompleted  OutboxEventType = "match_completed"
	EventRewardAwarded   OutboxEventType = "reward_awarded"
	EventCreditsDebited  OutboxEventType = "credits_debited"
)

var validOutboxEventTypes = []OutboxEventType{
	EventListingPosted,
	EventListingRecycled,
	EventMatchRequested,
	EventMatchAccepted,
	EventMatchRejected,
	EventMatchCompleted,
	EventRewardAwarded,
	EventCreditsDebited,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}

// OutboxDLQErrorReason explains why the publisher parked an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return contains(validOutboxDLQErrorReasons, r)
}

// ParseOutboxDLQErrorReason converts raw input into OutboxDLQErrorReason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse(validOutboxDLQErrorReasons, value, "dead-letter reason")
}
