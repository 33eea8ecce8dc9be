/*
Package ledger is the transactional core of the personal-finance tracker.

PURPOSE:
  This package contains the data model and the engine that applies
  user-submitted transactions to it: validation of per-split business
  rules, atomic balance and loan mutation, exact reversal on delete,
  internal account-to-account transfers, and the merged activity feed.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amount, two decimal places, never float
  - Account / Contact / Loan / Transaction: the persisted entities
  - SplitType: the closed set of movement kinds (see rules.go)
  - Drafts: client-submitted shapes before validation

DESIGN PRINCIPLES:
  1. Explicit ownership: every operation takes the acting UserID; there
     is no ambient "current user". Cross-user references are validation
     errors, not panics or silent leaks.
  2. Precision: shopspring/decimal for all money, never float64.
  3. Reversibility: every mutation has an exact inverse (see engine.go).
  4. One rule table: split semantics live in rules.go, nowhere else.

SEE ALSO:
  - rules.go:    per-split-type rule table
  - validate.go: the Validation Engine
  - engine.go:   the Balance & Loan Mutator
  - activity.go: the merged activity feed
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a decimal amount with two decimal places. A type alias keeps
// decimal's full arithmetic API available without wrapping.
type Money = decimal.Decimal

// NewMoney builds a Money from an integer number of whole units.
func NewMoney(units int64) Money {
	return decimal.NewFromInt(units)
}

// MustMoney parses a decimal string and panics on failure. Test and
// fixture use only.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID           string
	AccountID        string
	ContactID        string
	ContactAccountID string
	LoanID           string
	CategoryID       string
	SourceID         string
	TransactionID    string
	TransferID       string
)

// =============================================================================
// OWNERS AND COUNTERPARTIES
// =============================================================================

// User owns every other entity, directly or transitively.
type User struct {
	ID        UserID
	Name      string
	Email     string
	APIKey    string
	CreatedAt time.Time
}

// CashBankName is the reserved bank name of the wallet account that is
// auto-created for every user. That account cannot be edited or deleted.
const CashBankName = "CASH"

// CashWalletName is the display name given to the auto-created wallet.
const CashWalletName = "Cash Wallet"

// Account is a user-owned money account. Balance never goes negative as
// a result of ledger operations; that is enforced by validation plus a
// commit-time recheck, not by a database trigger.
type Account struct {
	ID            AccountID
	UserID        UserID
	BankName      string
	AccountName   string
	AccountNumber string
	IBAN          string
	Balance       Money
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsCashWallet reports whether this is the reserved wallet account.
func (a *Account) IsCashWallet() bool {
	return a.BankName == CashBankName
}

// Contact is a counterparty for loans and contact-scoped transactions.
// Unique per user on (first name, last name).
type Contact struct {
	ID        ContactID
	UserID    UserID
	FirstName string
	LastName  string
	Phone     string
	Phone2    string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName is the display name used in feeds and error messages.
func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// ContactAccount is a bank account belonging to a contact, used as the
// counterpart of loan/contact money movements. Unique per contact on
// (account number, bank name); at most one CASH wallet per contact.
type ContactAccount struct {
	ID            ContactAccountID
	ContactID     ContactID
	BankName      string
	AccountNumber string
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ExpenseCategory classifies EXPENSE splits. Name unique per user,
// case-insensitive.
type ExpenseCategory struct {
	ID     CategoryID
	UserID UserID
	Name   string
}

// IncomeSource classifies INCOME splits. Name unique per user,
// case-insensitive.
type IncomeSource struct {
	ID     SourceID
	UserID UserID
	Name   string
}

// =============================================================================
// LOANS
// =============================================================================

// LoanType says which direction the outstanding balance points.
type LoanType string

const (
	// LoanTaken: the user owes the contact.
	LoanTaken LoanType = "TAKEN"
	// LoanLent: the contact owes the user.
	LoanLent LoanType = "LENT"
)

// Loan is a running balance owed by or to a contact.
//
// INVARIANTS:
//   - 0 <= RemainingAmount <= TotalAmount
//   - IsClosed == (RemainingAmount <= 0)
//   - TotalAmount only grows via LOAN_TAKEN / MONEY_LENT splits
type Loan struct {
	ID              LoanID
	UserID          UserID
	ContactID       ContactID
	Type            LoanType
	TotalAmount     Money
	RemainingAmount Money
	Description     string
	IsClosed        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// SplitType is the closed set of money-movement kinds. Each type's
// requirements and balance/loan effects are defined once, in rules.go.
type SplitType string

const (
	SplitIncome        SplitType = "INCOME"
	SplitExpense       SplitType = "EXPENSE"
	SplitLoanTaken     SplitType = "LOAN_TAKEN"
	SplitMoneyLent     SplitType = "MONEY_LENT"
	SplitLoanRepayment SplitType = "LOAN_REPAYMENT"
	SplitReimbursement SplitType = "REIMBURSEMENT"
)

// TransferTypeName tags internal transfers in the activity feed.
const TransferTypeName = "TRANSFER"

// TransactionSplit is the atomic unit of ledger movement: one typed,
// positive amount against one account.
type TransactionSplit struct {
	ID                string
	Type              SplitType
	Amount            Money
	LoanID            *LoanID
	ExpenseCategoryID *CategoryID
	IncomeSourceID    *SourceID
	Note              string
}

// TransactionAccount groups the splits of one transaction that hit one
// of the user's accounts.
type TransactionAccount struct {
	ID        string
	AccountID AccountID
	Splits    []TransactionSplit
}

// Transaction is a dated event owned by a user. A regular transaction
// has one or more account entries; a transfer shadow record has none and
// points at its InternalTransaction instead.
type Transaction struct {
	ID               TransactionID
	UserID           UserID
	ContactID        *ContactID
	ContactAccountID *ContactAccountID
	TransferID       *TransferID
	Date             time.Time
	CreatedAt        time.Time
	Accounts         []TransactionAccount
}

// IsTransferShadow reports whether this row only mirrors an internal
// transfer into the activity feed.
func (t *Transaction) IsTransferShadow() bool {
	return t.TransferID != nil
}

// TotalAmount is the sum of all split amounts. Zero for shadow records.
func (t *Transaction) TotalAmount() Money {
	total := decimal.Zero
	for _, acc := range t.Accounts {
		for _, sp := range acc.Splits {
			total = total.Add(sp.Amount)
		}
	}
	return total
}

// InternalTransaction moves money between two accounts of the same
// user. Each one has a linked shadow Transaction for the activity feed.
type InternalTransaction struct {
	ID            TransferID
	UserID        UserID
	FromAccountID AccountID
	ToAccountID   AccountID
	Amount        Money
	Note          string
	Date          time.Time
	CreatedAt     time.Time
}

// =============================================================================
// DRAFTS - client-submitted shapes, validated before any mutation
// =============================================================================

// SplitDraft is one proposed split.
type SplitDraft struct {
	Type              SplitType
	Amount            Money
	LoanID            *LoanID
	ExpenseCategoryID *CategoryID
	IncomeSourceID    *SourceID
	Note              string
}

// AccountDraft is one proposed account entry with its splits.
type AccountDraft struct {
	AccountID AccountID
	Splits    []SplitDraft
}

// TransactionDraft is a proposed transaction.
type TransactionDraft struct {
	ContactID        *ContactID
	ContactAccountID *ContactAccountID
	Date             time.Time
	Accounts         []AccountDraft
}

// TransferDraft is a proposed internal transfer.
type TransferDraft struct {
	FromAccountID AccountID
	ToAccountID   AccountID
	Amount        Money
	Note          string
	Date          time.Time
}
