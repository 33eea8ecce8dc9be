/*
entities.go - user, account, contact and classification CRUD

PURPOSE:
  The non-ledger persistence surface: creating and listing the entities
  that transactions reference. Ledger-affecting deletes (accounts,
  contacts) route through the engine instead, which reverses balances
  before calling the row-level deletes in ledger_store.go.

OWNERSHIP:
  Every operation is scoped by UserID in the WHERE clause. A row that
  exists but belongs to another user is indistinguishable from a row
  that does not exist.
*/
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisatrack/ledger/ledger"
)

// newAPIKey returns a 64-char hex token.
func newAPIKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser registers a user, mints their API key and auto-creates
// the reserved CASH wallet account, all in one transaction.
func (s *Store) CreateUser(ctx context.Context, name, email string) (*ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	user := &ledger.User{
		ID:        ledger.UserID(uuid.NewString()),
		Name:      name,
		Email:     email,
		APIKey:    newAPIKey(),
		CreatedAt: now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, api_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.APIKey, formatTime(now),
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("email already registered: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, bank_name, account_name, account_number, iban, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', '', '0', ?, ?)`,
		uuid.NewString(), user.ID, ledger.CashBankName, ledger.CashWalletName,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cash wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserWhere(ctx, `id = ?`, string(id))
}

// GetUserByAPIKey resolves the authenticated user for a request.
func (s *Store) GetUserByAPIKey(ctx context.Context, key string) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserWhere(ctx, `api_key = ?`, key)
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg string) (*ledger.User, error) {
	var (
		u         ledger.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, api_key, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.APIKey, &createdAt)

	if err == sql.ErrNoRows {
		return nil, notFoundErr("user", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountParams are the editable account fields. Balance is not among
// them; it only moves through ledger operations.
type AccountParams struct {
	BankName      string
	AccountName   string
	AccountNumber string
	IBAN          string
}

// CreateAccount opens an account with the given opening balance. The
// reserved CASH bank name is not accepted; the wallet already exists.
func (s *Store) CreateAccount(ctx context.Context, user ledger.UserID, p AccountParams, opening ledger.Money) (*ledger.Account, error) {
	if p.BankName == ledger.CashBankName {
		return nil, ledger.ErrCashWalletProtected
	}
	if opening.IsNegative() {
		return nil, ledger.NewValidationError("balance", "opening balance cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	account := &ledger.Account{
		ID:            ledger.AccountID(uuid.NewString()),
		UserID:        user,
		BankName:      p.BankName,
		AccountName:   p.AccountName,
		AccountNumber: p.AccountNumber,
		IBAN:          p.IBAN,
		Balance:       opening,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, bank_name, account_name, account_number, iban, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.UserID, account.BankName, account.AccountName,
		account.AccountNumber, account.IBAN, account.Balance.String(),
		formatTime(now), formatTime(now),
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("account number already exists for this bank: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return account, nil
}

// UpdateAccount edits account metadata. The CASH wallet is immutable
// and balances never change here.
func (s *Store) UpdateAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID, p AccountParams) (*ledger.Account, error) {
	if p.BankName == ledger.CashBankName {
		return nil, ledger.ErrCashWalletProtected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.getAccount(ctx, s.db, user, id)
	if err != nil {
		return nil, err
	}
	if account.IsCashWallet() {
		return nil, ledger.ErrCashWalletProtected
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE accounts SET bank_name = ?, account_name = ?, account_number = ?, iban = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.BankName, p.AccountName, p.AccountNumber, p.IBAN, formatTime(now), id, user,
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("account number already exists for this bank: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	account.BankName = p.BankName
	account.AccountName = p.AccountName
	account.AccountNumber = p.AccountNumber
	account.IBAN = p.IBAN
	account.UpdatedAt = now
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context, user ledger.UserID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, bank_name, account_name, account_number, iban, balance, created_at, updated_at
		 FROM accounts WHERE user_id = ? ORDER BY created_at ASC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			a                  ledger.Account
			balance            string
			createdAt, updated string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.BankName, &a.AccountName, &a.AccountNumber,
			&a.IBAN, &balance, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Balance = parseMoney(balance)
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updated)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// TotalBalance sums the balances of all the user's accounts.
func (s *Store) TotalBalance(ctx context.Context, user ledger.UserID) (ledger.Money, error) {
	accounts, err := s.ListAccounts(ctx, user)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}

// =============================================================================
// CONTACTS
// =============================================================================

// ContactParams are the editable contact fields.
type ContactParams struct {
	FirstName string
	LastName  string
	Phone     string
	Phone2    string
	Email     string
}

func (s *Store) CreateContact(ctx context.Context, user ledger.UserID, p ContactParams) (*ledger.Contact, error) {
	if p.FirstName == "" {
		return nil, ledger.NewValidationError("first_name", "This field is required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	contact := &ledger.Contact{
		ID:        ledger.ContactID(uuid.NewString()),
		UserID:    user,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		Phone2:    p.Phone2,
		Email:     p.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, user_id, first_name, last_name, phone, phone2, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contact.ID, contact.UserID, contact.FirstName, contact.LastName,
		contact.Phone, contact.Phone2, contact.Email, formatTime(now), formatTime(now),
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("contact with this name already exists: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert contact: %w", err)
	}
	return contact, nil
}

func (s *Store) UpdateContact(ctx context.Context, user ledger.UserID, id ledger.ContactID, p ContactParams) (*ledger.Contact, error) {
	if p.FirstName == "" {
		return nil, ledger.NewValidationError("first_name", "This field is required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contact, err := s.getContact(ctx, s.db, user, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE contacts SET first_name = ?, last_name = ?, phone = ?, phone2 = ?, email = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.FirstName, p.LastName, p.Phone, p.Phone2, p.Email, formatTime(now), id, user,
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("contact with this name already exists: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	contact.FirstName = p.FirstName
	contact.LastName = p.LastName
	contact.Phone = p.Phone
	contact.Phone2 = p.Phone2
	contact.Email = p.Email
	contact.UpdatedAt = now
	return contact, nil
}

func (s *Store) ListContacts(ctx context.Context, user ledger.UserID) ([]ledger.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, first_name, last_name, phone, phone2, email, created_at, updated_at
		 FROM contacts WHERE user_id = ? ORDER BY first_name ASC, last_name ASC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []ledger.Contact
	for rows.Next() {
		var (
			c                  ledger.Contact
			createdAt, updated string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Phone, &c.Phone2,
			&c.Email, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updated)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// =============================================================================
// CONTACT ACCOUNTS
// =============================================================================

// CreateContactAccount adds a bank account under a contact. At most one
// CASH-type account is allowed per contact.
func (s *Store) CreateContactAccount(ctx context.Context, user ledger.UserID, contact ledger.ContactID, bankName, accountNumber string) (*ledger.ContactAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getContact(ctx, s.db, user, contact); err != nil {
		return nil, err
	}

	if bankName == ledger.CashBankName {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM contact_accounts WHERE contact_id = ? AND bank_name = ?`,
			contact, ledger.CashBankName,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count cash accounts: %w", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("contact already has a cash account: %w", ledger.ErrDuplicate)
		}
	}

	ca := &ledger.ContactAccount{
		ID:            ledger.ContactAccountID(uuid.NewString()),
		ContactID:     contact,
		BankName:      bankName,
		AccountNumber: accountNumber,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_accounts (id, contact_id, bank_name, account_number) VALUES (?, ?, ?, ?)`,
		ca.ID, ca.ContactID, ca.BankName, ca.AccountNumber,
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("account number already exists for this contact: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert contact account: %w", err)
	}
	return ca, nil
}

func (s *Store) ListContactAccounts(ctx context.Context, user ledger.UserID, contact ledger.ContactID) ([]ledger.ContactAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getContact(ctx, s.db, user, contact); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, bank_name, account_number FROM contact_accounts
		 WHERE contact_id = ? ORDER BY bank_name ASC`,
		contact,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.ContactAccount
	for rows.Next() {
		var ca ledger.ContactAccount
		if err := rows.Scan(&ca.ID, &ca.ContactID, &ca.BankName, &ca.AccountNumber); err != nil {
			return nil, fmt.Errorf("failed to scan contact account: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// DeleteContactAccount removes a contact's bank account unless a
// transaction still references it.
func (s *Store) DeleteContactAccount(ctx context.Context, user ledger.UserID, id ledger.ContactAccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getContactAccount(ctx, s.db, user, id); err != nil {
		return err
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE contact_account_id = ?`, id,
	).Scan(&n); err != nil {
		return fmt.Errorf("failed to count references: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("contact account is referenced by transactions: %w", ledger.ErrInUse)
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM contact_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact account: %w", err)
	}
	return nil
}

// =============================================================================
// EXPENSE CATEGORIES / INCOME SOURCES
// =============================================================================

func (s *Store) CreateExpenseCategory(ctx context.Context, user ledger.UserID, name string) (*ledger.ExpenseCategory, error) {
	if name == "" {
		return nil, ledger.NewValidationError("name", "This field is required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := &ledger.ExpenseCategory{
		ID:     ledger.CategoryID(uuid.NewString()),
		UserID: user,
		Name:   name,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expense_categories (id, user_id, name) VALUES (?, ?, ?)`,
		c.ID, c.UserID, c.Name,
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("category already exists: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert expense category: %w", err)
	}
	return c, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context, user ledger.UserID) ([]ledger.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM expense_categories WHERE user_id = ? ORDER BY name ASC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expense categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.ExpenseCategory
	for rows.Next() {
		var c ledger.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan expense category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteExpenseCategory removes a category unless a split references it.
func (s *Store) DeleteExpenseCategory(ctx context.Context, user ledger.UserID, id ledger.CategoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getExpenseCategory(ctx, s.db, user, id); err != nil {
		return err
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_splits WHERE expense_category_id = ?`, id,
	).Scan(&n); err != nil {
		return fmt.Errorf("failed to count references: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("category is referenced by transactions: %w", ledger.ErrInUse)
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM expense_categories WHERE id = ? AND user_id = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete expense category: %w", err)
	}
	return nil
}

func (s *Store) CreateIncomeSource(ctx context.Context, user ledger.UserID, name string) (*ledger.IncomeSource, error) {
	if name == "" {
		return nil, ledger.NewValidationError("name", "This field is required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := &ledger.IncomeSource{
		ID:     ledger.SourceID(uuid.NewString()),
		UserID: user,
		Name:   name,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO income_sources (id, user_id, name) VALUES (?, ?, ?)`,
		src.ID, src.UserID, src.Name,
	)
	if isUniqueConstraintError(err) {
		return nil, fmt.Errorf("income source already exists: %w", ledger.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert income source: %w", err)
	}
	return src, nil
}

func (s *Store) ListIncomeSources(ctx context.Context, user ledger.UserID) ([]ledger.IncomeSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM income_sources WHERE user_id = ? ORDER BY name ASC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list income sources: %w", err)
	}
	defer rows.Close()

	var out []ledger.IncomeSource
	for rows.Next() {
		var src ledger.IncomeSource
		if err := rows.Scan(&src.ID, &src.UserID, &src.Name); err != nil {
			return nil, fmt.Errorf("failed to scan income source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteIncomeSource removes a source unless a split references it.
func (s *Store) DeleteIncomeSource(ctx context.Context, user ledger.UserID, id ledger.SourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getIncomeSource(ctx, s.db, user, id); err != nil {
		return err
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_splits WHERE income_source_id = ?`, id,
	).Scan(&n); err != nil {
		return fmt.Errorf("failed to count references: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("income source is referenced by transactions: %w", ledger.ErrInUse)
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM income_sources WHERE id = ? AND user_id = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete income source: %w", err)
	}
	return nil
}
