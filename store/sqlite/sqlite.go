/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store plus the entity CRUD the HTTP layer needs,
  using database/sql with mattn/go-sqlite3. The same patterns apply to
  PostgreSQL with minor dialect changes.

KEY TABLES:
  users                 Owner identities (with API keys)
  accounts              User money accounts, authoritative balance column
  contacts              Counterparties
  contact_accounts      Bank accounts belonging to contacts
  expense_categories    EXPENSE classification, unique per user (nocase)
  income_sources        INCOME classification, unique per user (nocase)
  loans                 Running balances owed by/to contacts
  transactions          Transaction headers (regular or transfer shadow)
  transaction_accounts  Per-account entries under a transaction
  transaction_splits    The atomic ledger movements
  internal_transactions Account-to-account transfers

CONCURRENCY:
  A sync.RWMutex serializes writers; WithTx holds the write lock for
  the whole unit of work, so a unit's read-modify-write sequences (for
  balances and loan amounts) cannot interleave with another writer.
  SQLite's WAL mode keeps readers unblocked.

MONEY AND TIME:
  Money is stored as decimal strings (never floats); timestamps as
  RFC3339 strings.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool.

SEE ALSO:
  - ledger/store.go:   the interface this package implements
  - ledger_store.go:   the ledger.Store methods
  - entities.go:       user/account/contact/category CRUD
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/paisatrack/ledger/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same query
// code runs inside and outside a unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.Store and the entity CRUD using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		api_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		bank_name TEXT NOT NULL,
		account_name TEXT NOT NULL,
		account_number TEXT NOT NULL DEFAULT '',
		iban TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Account number unique per user+bank. The reserved CASH wallet has
	-- an empty number, which also caps it at one per user.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_user_bank_number
		ON accounts(user_id, bank_name, account_number);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		phone2 TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_user_name
		ON contacts(user_id, first_name, last_name);

	CREATE TABLE IF NOT EXISTS contact_accounts (
		id TEXT PRIMARY KEY,
		contact_id TEXT NOT NULL REFERENCES contacts(id),
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_contact_accounts_unique
		ON contact_accounts(contact_id, account_number, bank_name);

	CREATE TABLE IF NOT EXISTS expense_categories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL COLLATE NOCASE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_expense_categories_user_name
		ON expense_categories(user_id, name);

	CREATE TABLE IF NOT EXISTS income_sources (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL COLLATE NOCASE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_income_sources_user_name
		ON income_sources(user_id, name);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		contact_id TEXT NOT NULL REFERENCES contacts(id),
		type TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_closed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Auto-vivification match key: (user, contact, type, open).
	CREATE INDEX IF NOT EXISTS idx_loans_match
		ON loans(user_id, contact_id, type, is_closed);

	CREATE TABLE IF NOT EXISTS internal_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		from_account_id TEXT NOT NULL REFERENCES accounts(id),
		to_account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_internal_transactions_user_date
		ON internal_transactions(user_id, date DESC, created_at DESC);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		contact_id TEXT REFERENCES contacts(id),
		contact_account_id TEXT REFERENCES contact_accounts(id),
		transfer_id TEXT UNIQUE REFERENCES internal_transactions(id),
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, date DESC, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_contact
		ON transactions(contact_id);

	CREATE TABLE IF NOT EXISTS transaction_accounts (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		account_id TEXT NOT NULL REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_accounts_tx
		ON transaction_accounts(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_transaction_accounts_account
		ON transaction_accounts(account_id);

	CREATE TABLE IF NOT EXISTS transaction_splits (
		id TEXT PRIMARY KEY,
		transaction_account_id TEXT NOT NULL REFERENCES transaction_accounts(id),
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		loan_id TEXT REFERENCES loans(id),
		expense_category_id TEXT REFERENCES expense_categories(id),
		income_source_id TEXT REFERENCES income_sources(id),
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_splits_ta
		ON transaction_splits(transaction_account_id);
	CREATE INDEX IF NOT EXISTS idx_transaction_splits_loan
		ON transaction_splits(loan_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE - ledger.Store.WithTx
// =============================================================================

// WithTx executes fn within one database transaction, holding the
// writer lock for the duration so read-modify-write sequences inside
// the unit cannot race another writer.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore scopes every store call to one *sql.Tx. The parent's writer
// lock is already held; methods delegate to the unexported cores.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

// WithTx on a txStore joins the current unit of work.
func (ts *txStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return fn(ts)
}

func (ts *txStore) GetAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID) (*ledger.Account, error) {
	return ts.parent.getAccount(ctx, ts.tx, user, id)
}

func (ts *txStore) AdjustBalance(ctx context.Context, user ledger.UserID, id ledger.AccountID, delta ledger.Money) error {
	return ts.parent.adjustBalance(ctx, ts.tx, user, id, delta)
}

func (ts *txStore) DeleteAccountRow(ctx context.Context, user ledger.UserID, id ledger.AccountID) error {
	return ts.parent.deleteAccountRow(ctx, ts.tx, user, id)
}

func (ts *txStore) GetContact(ctx context.Context, user ledger.UserID, id ledger.ContactID) (*ledger.Contact, error) {
	return ts.parent.getContact(ctx, ts.tx, user, id)
}

func (ts *txStore) GetContactAccount(ctx context.Context, user ledger.UserID, id ledger.ContactAccountID) (*ledger.ContactAccount, error) {
	return ts.parent.getContactAccount(ctx, ts.tx, user, id)
}

func (ts *txStore) DeleteContactRows(ctx context.Context, user ledger.UserID, id ledger.ContactID) error {
	return ts.parent.deleteContactRows(ctx, ts.tx, user, id)
}

func (ts *txStore) GetExpenseCategory(ctx context.Context, user ledger.UserID, id ledger.CategoryID) (*ledger.ExpenseCategory, error) {
	return ts.parent.getExpenseCategory(ctx, ts.tx, user, id)
}

func (ts *txStore) GetIncomeSource(ctx context.Context, user ledger.UserID, id ledger.SourceID) (*ledger.IncomeSource, error) {
	return ts.parent.getIncomeSource(ctx, ts.tx, user, id)
}

func (ts *txStore) GetLoan(ctx context.Context, user ledger.UserID, id ledger.LoanID) (*ledger.Loan, error) {
	return ts.parent.getLoan(ctx, ts.tx, user, id)
}

func (ts *txStore) FindOpenLoan(ctx context.Context, user ledger.UserID, contact ledger.ContactID, t ledger.LoanType) (*ledger.Loan, error) {
	return ts.parent.findOpenLoan(ctx, ts.tx, user, contact, t)
}

func (ts *txStore) InsertLoan(ctx context.Context, loan *ledger.Loan) error {
	return ts.parent.insertLoan(ctx, ts.tx, loan)
}

func (ts *txStore) UpdateLoan(ctx context.Context, loan *ledger.Loan) error {
	return ts.parent.updateLoan(ctx, ts.tx, loan)
}

func (ts *txStore) ListLoans(ctx context.Context, user ledger.UserID, contact *ledger.ContactID) ([]ledger.Loan, error) {
	return ts.parent.listLoans(ctx, ts.tx, user, contact)
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	return ts.parent.insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) GetTransaction(ctx context.Context, user ledger.UserID, id ledger.TransactionID) (*ledger.Transaction, error) {
	return ts.parent.getTransaction(ctx, ts.tx, user, id)
}

func (ts *txStore) DeleteTransactionRows(ctx context.Context, user ledger.UserID, id ledger.TransactionID) error {
	return ts.parent.deleteTransactionRows(ctx, ts.tx, user, id)
}

func (ts *txStore) TransactionIDsByAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID) ([]ledger.TransactionID, error) {
	return ts.parent.transactionIDsByAccount(ctx, ts.tx, user, id)
}

func (ts *txStore) ListTransactions(ctx context.Context, user ledger.UserID, f ledger.ActivityFilter) ([]ledger.Transaction, error) {
	return ts.parent.listTransactions(ctx, ts.tx, user, f)
}

func (ts *txStore) InsertTransfer(ctx context.Context, tr *ledger.InternalTransaction, shadow *ledger.Transaction) error {
	return ts.parent.insertTransfer(ctx, ts.tx, tr, shadow)
}

func (ts *txStore) GetTransfer(ctx context.Context, user ledger.UserID, id ledger.TransferID) (*ledger.InternalTransaction, error) {
	return ts.parent.getTransfer(ctx, ts.tx, user, id)
}

func (ts *txStore) DeleteTransferRows(ctx context.Context, user ledger.UserID, id ledger.TransferID) error {
	return ts.parent.deleteTransferRows(ctx, ts.tx, user, id)
}

func (ts *txStore) TransferIDsByAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID) ([]ledger.TransferID, error) {
	return ts.parent.transferIDsByAccount(ctx, ts.tx, user, id)
}

func (ts *txStore) ListTransfers(ctx context.Context, user ledger.UserID, f ledger.ActivityFilter) ([]ledger.InternalTransaction, error) {
	return ts.parent.listTransfers(ctx, ts.tx, user, f)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func parseMoney(s string) ledger.Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFoundErr(entity, id string) error {
	return &ledger.NotFoundError{Entity: entity, ID: id}
}
