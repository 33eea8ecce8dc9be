/*
store.go - Persistence interface consumed by the engine

PURPOSE:
  The engine never talks to a database directly; it talks to this
  interface. WithTx scopes a callback to one atomic unit of work: every
  store call made through the callback's Store either all commit or all
  roll back. store/sqlite implements it.

OWNERSHIP DISCIPLINE:
  Every lookup takes the acting UserID and resolves only entities on
  that user's ownership chain. A row owned by someone else is
  indistinguishable from a missing row (ErrNotFound).

SEE ALSO:
  - engine.go:       the only writer through this interface
  - activity.go:     read-only consumer of the feed queries
  - store/sqlite:    the implementation
*/
package ledger

import (
	"context"
	"time"
)

// ActivityFilter restricts the feed queries. Zero values mean "no
// restriction". Search matches notes and contact names, case-insensitive.
type ActivityFilter struct {
	From      *time.Time
	To        *time.Time
	ContactID *ContactID
	AccountID *AccountID
	Search    string
}

// Store is the persistence surface the ledger engine requires.
type Store interface {
	// WithTx runs fn inside one atomic unit of work. Any error from fn
	// rolls the whole unit back. Nested WithTx is not supported.
	WithTx(ctx context.Context, fn func(Store) error) error

	// --- accounts ---

	GetAccount(ctx context.Context, user UserID, id AccountID) (*Account, error)

	// AdjustBalance applies a signed delta to an account balance inside
	// the current unit of work. It re-reads the stored balance before
	// writing and fails with ErrInsufficientBalance when the result
	// would be negative. This is the commit-time recheck: validation's
	// earlier balance read may be stale under concurrency.
	AdjustBalance(ctx context.Context, user UserID, id AccountID, delta Money) error

	DeleteAccountRow(ctx context.Context, user UserID, id AccountID) error

	// --- counterparties ---

	GetContact(ctx context.Context, user UserID, id ContactID) (*Contact, error)
	GetContactAccount(ctx context.Context, user UserID, id ContactAccountID) (*ContactAccount, error)
	DeleteContactRows(ctx context.Context, user UserID, id ContactID) error

	// --- classification ---

	GetExpenseCategory(ctx context.Context, user UserID, id CategoryID) (*ExpenseCategory, error)
	GetIncomeSource(ctx context.Context, user UserID, id SourceID) (*IncomeSource, error)

	// --- loans ---

	GetLoan(ctx context.Context, user UserID, id LoanID) (*Loan, error)
	// FindOpenLoan returns the open loan matching (user, contact, type),
	// or nil when none exists. This is the auto-vivification match key.
	FindOpenLoan(ctx context.Context, user UserID, contact ContactID, t LoanType) (*Loan, error)
	InsertLoan(ctx context.Context, loan *Loan) error
	UpdateLoan(ctx context.Context, loan *Loan) error
	ListLoans(ctx context.Context, user UserID, contact *ContactID) ([]Loan, error)

	// --- transactions ---

	InsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, user UserID, id TransactionID) (*Transaction, error)
	// DeleteTransactionRows removes the header and its account/split
	// children. Balance/loan reversal is the engine's job and must run
	// first, inside the same unit of work.
	DeleteTransactionRows(ctx context.Context, user UserID, id TransactionID) error
	// TransactionIDsByAccount lists transactions with at least one
	// account entry against the given account, for the delete cascade.
	TransactionIDsByAccount(ctx context.Context, user UserID, id AccountID) ([]TransactionID, error)
	ListTransactions(ctx context.Context, user UserID, f ActivityFilter) ([]Transaction, error)

	// --- internal transfers ---

	InsertTransfer(ctx context.Context, tr *InternalTransaction, shadow *Transaction) error
	GetTransfer(ctx context.Context, user UserID, id TransferID) (*InternalTransaction, error)
	// DeleteTransferRows removes the transfer and its shadow transaction.
	DeleteTransferRows(ctx context.Context, user UserID, id TransferID) error
	TransferIDsByAccount(ctx context.Context, user UserID, id AccountID) ([]TransferID, error)
	ListTransfers(ctx context.Context, user UserID, f ActivityFilter) ([]InternalTransaction, error)
}
