package enums

// AccountType describes the participant behind an account.
type AccountType string

const (
	AccountTypeHousehold AccountType = "household"
	AccountTypeFarmer    AccountType = "farmer"
	AccountTypeCollector AccountType = "collector"
	AccountTypeRecycler  AccountType = "recycler"
)

var validAccountTypes = []AccountType{
	AccountTypeHousehold,
	AccountTypeFarmer,
	AccountTypeCollector,
	AccountTypeRecycler,
}

// String implements fmt.Stringer.
func (a AccountType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AccountType.
func (a AccountType) IsValid() bool {
	return contains(validAccountTypes, a)
}

// CanCollect reports whether accounts of this type may request matches.
func (a AccountType) CanCollect() bool {
	return a == AccountTypeCollector || a == AccountTypeRecycler
}

// ParseAccountType converts raw input into an AccountType.
func ParseAccountType(value string) (AccountType, error) {
	return parse(validAccountTypes, value, "account type")
}
