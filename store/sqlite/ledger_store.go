/*
ledger_store.go - ledger.Store implementation

PURPOSE:
  The query cores behind both the exported Store methods and the
  txStore delegations. Every core takes an explicit querier so the
  identical SQL runs against *sql.DB (with locking) or *sql.Tx (inside
  a unit of work, lock already held).

BALANCE DISCIPLINE:
  adjustBalance is the only statement that writes accounts.balance for
  ledger operations. It re-reads the stored value before writing and
  refuses to go negative, which is the commit-time recheck the engine
  relies on under concurrency.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paisatrack/ledger/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// GetAccount resolves an account on the user's ownership chain.
func (s *Store) GetAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccount(ctx, s.db, user, id)
}

func (s *Store) getAccount(ctx context.Context, q querier, user ledger.UserID, id ledger.AccountID) (*ledger.Account, error) {
	var (
		a                  ledger.Account
		balance            string
		createdAt, updated string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, bank_name, account_name, account_number, iban, balance, created_at, updated_at
		 FROM accounts WHERE id = ? AND user_id = ?`,
		id, user,
	).Scan(&a.ID, &a.UserID, &a.BankName, &a.AccountName, &a.AccountNumber, &a.IBAN,
		&balance, &createdAt, &updated)

	if err == sql.ErrNoRows {
		return nil, notFoundErr("account", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	a.Balance = parseMoney(balance)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

// AdjustBalance applies a signed delta after re-reading the stored
// balance. A result below zero fails with InsufficientBalanceError and
// writes nothing.
func (s *Store) AdjustBalance(ctx context.Context, user ledger.UserID, id ledger.AccountID, delta ledger.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustBalance(ctx, s.db, user, id, delta)
}

func (s *Store) adjustBalance(ctx context.Context, q querier, user ledger.UserID, id ledger.AccountID, delta ledger.Money) error {
	account, err := s.getAccount(ctx, q, user, id)
	if err != nil {
		return err
	}

	next := account.Balance.Add(delta)
	if next.IsNegative() {
		return &ledger.InsufficientBalanceError{
			AccountID:   account.ID,
			AccountName: account.AccountName,
			Balance:     account.Balance,
			Requested:   delta.Neg(),
		}
	}

	_, err = q.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		next.String(), formatTime(time.Now()), id, user,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

// DeleteAccountRow removes the account row only; the engine's cascade
// has already reversed and removed all ledger rows touching it.
func (s *Store) DeleteAccountRow(ctx context.Context, user ledger.UserID, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteAccountRow(ctx, s.db, user, id)
}

func (s *Store) deleteAccountRow(ctx context.Context, q querier, user ledger.UserID, id ledger.AccountID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("account", string(id))
	}
	return nil
}

// =============================================================================
// CONTACTS
// =============================================================================

// GetContact resolves a contact on the user's ownership chain.
func (s *Store) GetContact(ctx context.Context, user ledger.UserID, id ledger.ContactID) (*ledger.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContact(ctx, s.db, user, id)
}

func (s *Store) getContact(ctx context.Context, q querier, user ledger.UserID, id ledger.ContactID) (*ledger.Contact, error) {
	var (
		c                  ledger.Contact
		createdAt, updated string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, first_name, last_name, phone, phone2, email, created_at, updated_at
		 FROM contacts WHERE id = ? AND user_id = ?`,
		id, user,
	).Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Phone, &c.Phone2, &c.Email,
		&createdAt, &updated)

	if err == sql.ErrNoRows {
		return nil, notFoundErr("contact", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// GetContactAccount resolves a contact's bank account; ownership runs
// through the contact to the user.
func (s *Store) GetContactAccount(ctx context.Context, user ledger.UserID, id ledger.ContactAccountID) (*ledger.ContactAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContactAccount(ctx, s.db, user, id)
}

func (s *Store) getContactAccount(ctx context.Context, q querier, user ledger.UserID, id ledger.ContactAccountID) (*ledger.ContactAccount, error) {
	var ca ledger.ContactAccount
	err := q.QueryRowContext(ctx,
		`SELECT ca.id, ca.contact_id, ca.bank_name, ca.account_number
		 FROM contact_accounts ca
		 JOIN contacts c ON c.id = ca.contact_id
		 WHERE ca.id = ? AND c.user_id = ?`,
		id, user,
	).Scan(&ca.ID, &ca.ContactID, &ca.BankName, &ca.AccountNumber)

	if err == sql.ErrNoRows {
		return nil, notFoundErr("contact_account", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact account: %w", err)
	}
	return &ca, nil
}

// DeleteContactRows removes a contact with its contact accounts and
// loans, nulling references from surviving ledger rows. The engine has
// already verified no loan is outstanding.
func (s *Store) DeleteContactRows(ctx context.Context, user ledger.UserID, id ledger.ContactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteContactRows(ctx, s.db, user, id)
}

func (s *Store) deleteContactRows(ctx context.Context, q querier, user ledger.UserID, id ledger.ContactID) error {
	steps := []struct {
		query string
		args  []any
	}{
		{`UPDATE transaction_splits SET loan_id = NULL
		  WHERE loan_id IN (SELECT id FROM loans WHERE contact_id = ? AND user_id = ?)`, []any{id, user}},
		{`UPDATE transactions SET contact_id = NULL, contact_account_id = NULL
		  WHERE contact_id = ? AND user_id = ?`, []any{id, user}},
		{`DELETE FROM loans WHERE contact_id = ? AND user_id = ?`, []any{id, user}},
		{`DELETE FROM contact_accounts WHERE contact_id = ?`, []any{id}},
	}
	for _, step := range steps {
		if _, err := q.ExecContext(ctx, step.query, step.args...); err != nil {
			return fmt.Errorf("failed to delete contact rows: %w", err)
		}
	}

	res, err := q.ExecContext(ctx, `DELETE FROM contacts WHERE id = ? AND user_id = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("contact", string(id))
	}
	return nil
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func (s *Store) GetExpenseCategory(ctx context.Context, user ledger.UserID, id ledger.CategoryID) (*ledger.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getExpenseCategory(ctx, s.db, user, id)
}

func (s *Store) getExpenseCategory(ctx context.Context, q querier, user ledger.UserID, id ledger.CategoryID) (*ledger.ExpenseCategory, error) {
	var c ledger.ExpenseCategory
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM expense_categories WHERE id = ? AND user_id = ?`,
		id, user,
	).Scan(&c.ID, &c.UserID, &c.Name)

	if err == sql.ErrNoRows {
		return nil, notFoundErr("expense_category", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense category: %w", err)
	}
	return &c, nil
}

func (s *Store) GetIncomeSource(ctx context.Context, user ledger.UserID, id ledger.SourceID) (*ledger.IncomeSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getIncomeSource(ctx, s.db, user, id)
}

func (s *Store) getIncomeSource(ctx context.Context, q querier, user ledger.UserID, id ledger.SourceID) (*ledger.IncomeSource, error) {
	var src ledger.IncomeSource
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM income_sources WHERE id = ? AND user_id = ?`,
		id, user,
	).Scan(&src.ID, &src.UserID, &src.Name)

	if err == sql.ErrNoRows {
		return nil, notFoundErr("income_source", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get income source: %w", err)
	}
	return &src, nil
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) GetLoan(ctx context.Context, user ledger.UserID, id ledger.LoanID) (*ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLoan(ctx, s.db, user, id)
}

const loanColumns = `id, user_id, contact_id, type, total_amount, remaining_amount, description, is_closed, created_at, updated_at`

func scanLoan(row interface{ Scan(...any) error }) (*ledger.Loan, error) {
	var (
		l                    ledger.Loan
		total, remaining     string
		createdAt, updatedAt string
	)
	err := row.Scan(&l.ID, &l.UserID, &l.ContactID, &l.Type, &total, &remaining,
		&l.Description, &l.IsClosed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.TotalAmount = parseMoney(total)
	l.RemainingAmount = parseMoney(remaining)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func (s *Store) getLoan(ctx context.Context, q querier, user ledger.UserID, id ledger.LoanID) (*ledger.Loan, error) {
	loan, err := scanLoan(q.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = ? AND user_id = ?`, id, user))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("loan", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// FindOpenLoan returns the open loan matching (user, contact, type),
// the auto-vivification match key, or nil when none exists.
func (s *Store) FindOpenLoan(ctx context.Context, user ledger.UserID, contact ledger.ContactID, t ledger.LoanType) (*ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findOpenLoan(ctx, s.db, user, contact, t)
}

func (s *Store) findOpenLoan(ctx context.Context, q querier, user ledger.UserID, contact ledger.ContactID, t ledger.LoanType) (*ledger.Loan, error) {
	loan, err := scanLoan(q.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE user_id = ? AND contact_id = ? AND type = ? AND is_closed = 0
		 ORDER BY created_at ASC LIMIT 1`,
		user, contact, t))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open loan: %w", err)
	}
	return loan, nil
}

func (s *Store) InsertLoan(ctx context.Context, loan *ledger.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLoan(ctx, s.db, loan)
}

func (s *Store) insertLoan(ctx context.Context, q querier, loan *ledger.Loan) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.UserID, loan.ContactID, loan.Type,
		loan.TotalAmount.String(), loan.RemainingAmount.String(),
		loan.Description, loan.IsClosed,
		formatTime(loan.CreatedAt), formatTime(loan.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

func (s *Store) UpdateLoan(ctx context.Context, loan *ledger.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLoan(ctx, s.db, loan)
}

func (s *Store) updateLoan(ctx context.Context, q querier, loan *ledger.Loan) error {
	res, err := q.ExecContext(ctx,
		`UPDATE loans SET total_amount = ?, remaining_amount = ?, is_closed = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		loan.TotalAmount.String(), loan.RemainingAmount.String(), loan.IsClosed,
		formatTime(loan.UpdatedAt), loan.ID, loan.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("loan", string(loan.ID))
	}
	return nil
}

func (s *Store) ListLoans(ctx context.Context, user ledger.UserID, contact *ledger.ContactID) ([]ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLoans(ctx, s.db, user, contact)
}

func (s *Store) listLoans(ctx context.Context, q querier, user ledger.UserID, contact *ledger.ContactID) ([]ledger.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ?`
	args := []any{user}
	if contact != nil {
		query += ` AND contact_id = ?`
		args = append(args, *contact)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []ledger.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTransaction(ctx, s.db, tx)
}

func (s *Store) insertTransaction(ctx context.Context, q querier, tx *ledger.Transaction) error {
	var contactID, contactAccountID, transferID sql.NullString
	if tx.ContactID != nil {
		contactID = nullString(string(*tx.ContactID))
	}
	if tx.ContactAccountID != nil {
		contactAccountID = nullString(string(*tx.ContactAccountID))
	}
	if tx.TransferID != nil {
		transferID = nullString(string(*tx.TransferID))
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, contact_id, contact_account_id, transfer_id, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, contactID, contactAccountID, transferID,
		formatTime(tx.Date), formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, ta := range tx.Accounts {
		_, err := q.ExecContext(ctx,
			`INSERT INTO transaction_accounts (id, transaction_id, account_id) VALUES (?, ?, ?)`,
			ta.ID, tx.ID, ta.AccountID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction account: %w", err)
		}

		for _, sp := range ta.Splits {
			var loanID, categoryID, sourceID sql.NullString
			if sp.LoanID != nil {
				loanID = nullString(string(*sp.LoanID))
			}
			if sp.ExpenseCategoryID != nil {
				categoryID = nullString(string(*sp.ExpenseCategoryID))
			}
			if sp.IncomeSourceID != nil {
				sourceID = nullString(string(*sp.IncomeSourceID))
			}

			_, err := q.ExecContext(ctx,
				`INSERT INTO transaction_splits
				 (id, transaction_account_id, type, amount, loan_id, expense_category_id, income_source_id, note)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sp.ID, ta.ID, sp.Type, sp.Amount.String(), loanID, categoryID, sourceID, sp.Note,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction split: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, user ledger.UserID, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTransaction(ctx, s.db, user, id)
}

func scanTransactionHeader(row interface{ Scan(...any) error }) (*ledger.Transaction, error) {
	var (
		tx                                      ledger.Transaction
		contactID, contactAccountID, transferID sql.NullString
		date, createdAt                         string
	)
	err := row.Scan(&tx.ID, &tx.UserID, &contactID, &contactAccountID, &transferID, &date, &createdAt)
	if err != nil {
		return nil, err
	}
	if contactID.Valid {
		v := ledger.ContactID(contactID.String)
		tx.ContactID = &v
	}
	if contactAccountID.Valid {
		v := ledger.ContactAccountID(contactAccountID.String)
		tx.ContactAccountID = &v
	}
	if transferID.Valid {
		v := ledger.TransferID(transferID.String)
		tx.TransferID = &v
	}
	tx.Date = parseTime(date)
	tx.CreatedAt = parseTime(createdAt)
	return &tx, nil
}

func (s *Store) getTransaction(ctx context.Context, q querier, user ledger.UserID, id ledger.TransactionID) (*ledger.Transaction, error) {
	tx, err := scanTransactionHeader(q.QueryRowContext(ctx,
		`SELECT id, user_id, contact_id, contact_account_id, transfer_id, date, created_at
		 FROM transactions WHERE id = ? AND user_id = ?`, id, user))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("transaction", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if err := s.loadTransactionChildren(ctx, q, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) loadTransactionChildren(ctx context.Context, q querier, tx *ledger.Transaction) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, account_id FROM transaction_accounts WHERE transaction_id = ? ORDER BY rowid`,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load transaction accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ta ledger.TransactionAccount
		if err := rows.Scan(&ta.ID, &ta.AccountID); err != nil {
			return fmt.Errorf("failed to scan transaction account: %w", err)
		}
		tx.Accounts = append(tx.Accounts, ta)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range tx.Accounts {
		ta := &tx.Accounts[i]
		splitRows, err := q.QueryContext(ctx,
			`SELECT id, type, amount, loan_id, expense_category_id, income_source_id, note
			 FROM transaction_splits WHERE transaction_account_id = ? ORDER BY rowid`,
			ta.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to load transaction splits: %w", err)
		}

		for splitRows.Next() {
			var (
				sp                           ledger.TransactionSplit
				amount                       string
				loanID, categoryID, sourceID sql.NullString
			)
			if err := splitRows.Scan(&sp.ID, &sp.Type, &amount, &loanID, &categoryID, &sourceID, &sp.Note); err != nil {
				splitRows.Close()
				return fmt.Errorf("failed to scan transaction split: %w", err)
			}
			sp.Amount = parseMoney(amount)
			if loanID.Valid {
				v := ledger.LoanID(loanID.String)
				sp.LoanID = &v
			}
			if categoryID.Valid {
				v := ledger.CategoryID(categoryID.String)
				sp.ExpenseCategoryID = &v
			}
			if sourceID.Valid {
				v := ledger.SourceID(sourceID.String)
				sp.IncomeSourceID = &v
			}
			ta.Splits = append(ta.Splits, sp)
		}
		if err := splitRows.Err(); err != nil {
			splitRows.Close()
			return err
		}
		splitRows.Close()
	}
	return nil
}

func (s *Store) DeleteTransactionRows(ctx context.Context, user ledger.UserID, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteTransactionRows(ctx, s.db, user, id)
}

func (s *Store) deleteTransactionRows(ctx context.Context, q querier, user ledger.UserID, id ledger.TransactionID) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM transaction_splits WHERE transaction_account_id IN
		   (SELECT id FROM transaction_accounts WHERE transaction_id = ?)`, id); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM transaction_accounts WHERE transaction_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete transaction accounts: %w", err)
	}

	res, err := q.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("transaction", string(id))
	}
	return nil
}

func (s *Store) TransactionIDsByAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID) ([]ledger.TransactionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactionIDsByAccount(ctx, s.db, user, id)
}

func (s *Store) transactionIDsByAccount(ctx context.Context, q querier, user ledger.UserID, id ledger.AccountID) ([]ledger.TransactionID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT t.id FROM transactions t
		 JOIN transaction_accounts ta ON ta.transaction_id = t.id
		 WHERE ta.account_id = ? AND t.user_id = ?`,
		id, user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by account: %w", err)
	}
	defer rows.Close()

	var ids []ledger.TransactionID
	for rows.Next() {
		var txID ledger.TransactionID
		if err := rows.Scan(&txID); err != nil {
			return nil, err
		}
		ids = append(ids, txID)
	}
	return ids, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, user ledger.UserID, f ledger.ActivityFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransactions(ctx, s.db, user, f)
}

func (s *Store) listTransactions(ctx context.Context, q querier, user ledger.UserID, f ledger.ActivityFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT t.id, t.user_id, t.contact_id, t.contact_account_id, t.transfer_id, t.date, t.created_at
		FROM transactions t
		LEFT JOIN contacts c ON c.id = t.contact_id
		WHERE t.user_id = ?`
	args := []any{user}

	if f.From != nil {
		query += ` AND t.date >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND t.date <= ?`
		args = append(args, formatTime(*f.To))
	}
	if f.ContactID != nil {
		query += ` AND t.contact_id = ?`
		args = append(args, *f.ContactID)
	}
	if f.AccountID != nil {
		query += ` AND EXISTS (SELECT 1 FROM transaction_accounts ta
			WHERE ta.transaction_id = t.id AND ta.account_id = ?)`
		args = append(args, *f.AccountID)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query += ` AND (
			EXISTS (SELECT 1 FROM transaction_splits sp
				JOIN transaction_accounts ta ON ta.id = sp.transaction_account_id
				WHERE ta.transaction_id = t.id AND sp.note LIKE ?)
			OR (c.first_name || ' ' || c.last_name) LIKE ?)`
		args = append(args, like, like)
	}
	query += ` ORDER BY t.date DESC, t.created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransactionHeader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range txs {
		if err := s.loadTransactionChildren(ctx, q, &txs[i]); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

// =============================================================================
// INTERNAL TRANSFERS
// =============================================================================

func (s *Store) InsertTransfer(ctx context.Context, tr *ledger.InternalTransaction, shadow *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTransfer(ctx, s.db, tr, shadow)
}

func (s *Store) insertTransfer(ctx context.Context, q querier, tr *ledger.InternalTransaction, shadow *ledger.Transaction) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO internal_transactions (id, user_id, from_account_id, to_account_id, amount, note, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.UserID, tr.FromAccountID, tr.ToAccountID,
		tr.Amount.String(), tr.Note, formatTime(tr.Date), formatTime(tr.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return s.insertTransaction(ctx, q, shadow)
}

func (s *Store) GetTransfer(ctx context.Context, user ledger.UserID, id ledger.TransferID) (*ledger.InternalTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTransfer(ctx, s.db, user, id)
}

func scanTransfer(row interface{ Scan(...any) error }) (*ledger.InternalTransaction, error) {
	var (
		tr              ledger.InternalTransaction
		amount          string
		date, createdAt string
	)
	err := row.Scan(&tr.ID, &tr.UserID, &tr.FromAccountID, &tr.ToAccountID,
		&amount, &tr.Note, &date, &createdAt)
	if err != nil {
		return nil, err
	}
	tr.Amount = parseMoney(amount)
	tr.Date = parseTime(date)
	tr.CreatedAt = parseTime(createdAt)
	return &tr, nil
}

func (s *Store) getTransfer(ctx context.Context, q querier, user ledger.UserID, id ledger.TransferID) (*ledger.InternalTransaction, error) {
	tr, err := scanTransfer(q.QueryRowContext(ctx,
		`SELECT id, user_id, from_account_id, to_account_id, amount, note, date, created_at
		 FROM internal_transactions WHERE id = ? AND user_id = ?`, id, user))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("internal_transaction", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return tr, nil
}

func (s *Store) DeleteTransferRows(ctx context.Context, user ledger.UserID, id ledger.TransferID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteTransferRows(ctx, s.db, user, id)
}

func (s *Store) deleteTransferRows(ctx context.Context, q querier, user ledger.UserID, id ledger.TransferID) error {
	// The shadow transaction has no account entries or splits.
	if _, err := q.ExecContext(ctx,
		`DELETE FROM transactions WHERE transfer_id = ? AND user_id = ?`, id, user); err != nil {
		return fmt.Errorf("failed to delete shadow transaction: %w", err)
	}

	res, err := q.ExecContext(ctx,
		`DELETE FROM internal_transactions WHERE id = ? AND user_id = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("internal_transaction", string(id))
	}
	return nil
}

func (s *Store) TransferIDsByAccount(ctx context.Context, user ledger.UserID, id ledger.AccountID) ([]ledger.TransferID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transferIDsByAccount(ctx, s.db, user, id)
}

func (s *Store) transferIDsByAccount(ctx context.Context, q querier, user ledger.UserID, id ledger.AccountID) ([]ledger.TransferID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM internal_transactions
		 WHERE user_id = ? AND (from_account_id = ? OR to_account_id = ?)`,
		user, id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers by account: %w", err)
	}
	defer rows.Close()

	var ids []ledger.TransferID
	for rows.Next() {
		var trID ledger.TransferID
		if err := rows.Scan(&trID); err != nil {
			return nil, err
		}
		ids = append(ids, trID)
	}
	return ids, rows.Err()
}

func (s *Store) ListTransfers(ctx context.Context, user ledger.UserID, f ledger.ActivityFilter) ([]ledger.InternalTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransfers(ctx, s.db, user, f)
}

func (s *Store) listTransfers(ctx context.Context, q querier, user ledger.UserID, f ledger.ActivityFilter) ([]ledger.InternalTransaction, error) {
	// Transfers have no counterparty; a contact filter matches none.
	if f.ContactID != nil {
		return nil, nil
	}

	query := `
		SELECT id, user_id, from_account_id, to_account_id, amount, note, date, created_at
		FROM internal_transactions WHERE user_id = ?`
	args := []any{user}

	if f.From != nil {
		query += ` AND date >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND date <= ?`
		args = append(args, formatTime(*f.To))
	}
	if f.AccountID != nil {
		query += ` AND (from_account_id = ? OR to_account_id = ?)`
		args = append(args, *f.AccountID, *f.AccountID)
	}
	if f.Search != "" {
		query += ` AND note LIKE ?`
		args = append(args, "%"+f.Search+"%")
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []ledger.InternalTransaction
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, *tr)
	}
	return transfers, rows.Err()
}
