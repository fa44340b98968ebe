package enums

// MatchStatus tracks a collector's request against a listing.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusAccepted  MatchStatus = "accepted"
	MatchStatusRejected  MatchStatus = "rejected"
	MatchStatusCompleted MatchStatus = "completed"
)

var validMatchStatuses = []MatchStatus{
	MatchStatusPending,
	MatchStatusAccepted,
	MatchStatusRejected,
	MatchStatusCompleted,
}

// String implements fmt.Stringer.
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known MatchStatus.
func (s MatchStatus) IsValid() bool {
	return contains(validMatchStatuses, s)
}

// IsTerminal reports whether no further event can move the match.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusRejected || s == MatchStatusCompleted
}

// ParseMatchStatus converts raw input into a MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, error) {
	return parse(validMatchStatuses, value, "match status")
}
