package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

// amountScale is the number of fractional digits a ledger amount may carry.
const amountScale = 2

// Service defines the credit ledger. Mutating operations run inside the
// caller's transaction and never commit on their own.
type Service interface {
	OpenAccount(ctx context.Context, input OpenAccountInput) (*models.Account, error)
	Account(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Account, error)
	LockAccounts(ctx context.Context, tx *gorm.DB, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	Credit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, reason string) (*models.LedgerEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, reason string) (*models.LedgerEntry, error)
	BalanceOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	HistoryOf(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error)
	AccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type service struct {
	repo Repository
}

// OpenAccountInput captures the data needed to register a participant.
type OpenAccountInput struct {
	DisplayName string            `json:"display_name"`
	Type        enums.AccountType `json:"type"`
	Location    string            `json:"location"`
}

// Reconciliation compares the cached balance with the sum of ledger entries.
type Reconciliation struct {
	AccountID   uuid.UUID       `json:"account_id"`
	CachedTotal decimal.Decimal `json:"cached_total"`
	Credits     decimal.Decimal `json:"credits"`
	Debits      decimal.Decimal `json:"debits"`
	LedgerTotal decimal.Decimal `json:"ledger_total"`
	EntryCount  int             `json:"entry_count"`
	Consistent  bool            `json:"consistent"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) OpenAccount(ctx context.Context, input OpenAccountInput) (*models.Account, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid account type %q", input.Type))
	}

	account := &models.Account{
		DisplayName:  name,
		Type:         input.Type,
		Location:     strings.TrimSpace(input.Location),
		BalanceCache: decimal.Zero,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, dbpkg.Classify(err, "create account")
	}
	return account, nil
}

// Account reads an account without locking it. A nil tx reads outside any transaction.
func (s *service) Account(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Account, error) {
	account, err := s.repo.WithTx(tx).FindAccount(ctx, id)
	if err != nil {
		return nil, dbpkg.Classify(err, "account not found")
	}
	return account, nil
}

// LockAccounts takes row locks on the given accounts in ascending id order so
// two transactions touching the same pair cannot deadlock.
func (s *service) LockAccounts(ctx context.Context, tx *gorm.DB, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	ordered := uniqueSorted(ids)
	repo := s.repo.WithTx(tx)
	locked := make(map[uuid.UUID]*models.Account, len(ordered))
	for _, id := range ordered {
		account, err := repo.FindAccountForUpdate(ctx, id)
		if err != nil {
			return nil, dbpkg.Classify(err, "account not found")
		}
		locked[id] = account
	}
	return locked, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, reason string) (*models.LedgerEntry, error) {
	return s.post(ctx, tx, accountID, amount, reason, enums.LedgerEntryCredit)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, reason string) (*models.LedgerEntry, error) {
	return s.post(ctx, tx, accountID, amount, reason, enums.LedgerEntryDebit)
}

func (s *service) post(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, reason string, kind enums.LedgerEntryKind) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	repo := s.repo.WithTx(tx)
	account, err := repo.FindAccountForUpdate(ctx, accountID)
	if err != nil {
		return nil, dbpkg.Classify(err, "account not found")
	}

	signed := amount
	if kind == enums.LedgerEntryDebit {
		if account.BalanceCache.LessThan(amount) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance").WithDetails(map[string]any{
				"balance": account.BalanceCache.StringFixed(amountScale),
				"amount":  amount.StringFixed(amountScale),
			})
		}
		signed = amount.Neg()
	}

	entry := &models.LedgerEntry{
		AccountID: accountID,
		Amount:    signed,
		Kind:      kind,
		Reason:    reason,
	}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, dbpkg.Classify(err, "append ledger entry")
	}
	if err := repo.UpdateBalance(ctx, accountID, account.BalanceCache.Add(signed)); err != nil {
		return nil, dbpkg.Classify(err, "update balance")
	}
	return entry, nil
}

func (s *service) BalanceOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, dbpkg.Classify(err, "account not found")
	}
	return account.BalanceCache, nil
}

// HistoryOf returns the account's entries newest first. A non-positive limit
// returns the full history.
func (s *service) HistoryOf(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if _, err := s.repo.FindAccount(ctx, accountID); err != nil {
		return nil, dbpkg.Classify(err, "account not found")
	}
	entries, err := s.repo.ListEntries(ctx, accountID, limit)
	if err != nil {
		return nil, dbpkg.Classify(err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error) {
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		return nil, dbpkg.Classify(err, "account not found")
	}
	entries, err := s.repo.ListEntries(ctx, accountID, 0)
	if err != nil {
		return nil, dbpkg.Classify(err, "list ledger entries")
	}

	credits, debits := decimal.Zero, decimal.Zero
	for _, entry := range entries {
		switch entry.Kind {
		case enums.LedgerEntryCredit:
			credits = credits.Add(entry.Amount.Abs())
		case enums.LedgerEntryDebit:
			debits = debits.Add(entry.Amount.Abs())
		}
	}
	total := credits.Sub(debits)
	return &Reconciliation{
		AccountID:   accountID,
		CachedTotal: account.BalanceCache,
		Credits:     credits,
		Debits:      debits,
		LedgerTotal: total,
		EntryCount:  len(entries),
		Consistent:  total.Equal(account.BalanceCache),
	}, nil
}

// AccountIDs returns up to limit account ids greater than after, ascending.
func (s *service) AccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListAccountIDs(ctx, after, limit)
	if err != nil {
		return nil, dbpkg.Classify(err, "list accounts")
	}
	return ids, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !amount.Round(amountScale).Equal(amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimal places")
	}
	return nil
}

func uniqueSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
