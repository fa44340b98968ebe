package enums

// LedgerEntryKind maps to the kind column on ledger_entries.
type LedgerEntryKind string

const (
	LedgerEntryCredit LedgerEntryKind = "credit"
	LedgerEntryDebit  LedgerEntryKind = "debit"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerEntryCredit,
	LedgerEntryDebit,
}

// IsValid reports whether the value matches a known ledger entry kind.
func (k LedgerEntryKind) IsValid() bool {
	return contains(validLedgerEntryKinds, k)
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	return parse(validLedgerEntryKinds, value, "ledger entry kind")
}
