package enums

// ListingStatus tracks the lifecycle of a waste listing.
type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available"
	ListingStatusClaimed   ListingStatus = "claimed"
	ListingStatusCollected ListingStatus = "collected"
	ListingStatusRecycled  ListingStatus = "recycled"
)

var validListingStatuses = []ListingStatus{
	ListingStatusAvailable,
	ListingStatusClaimed,
	ListingStatusCollected,
	ListingStatusRecycled,
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ListingStatus.
func (s ListingStatus) IsValid() bool {
	return contains(validListingStatuses, s)
}

// ParseListingStatus converts raw input into a ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	return parse(validListingStatuses, value, "listing status")
}
