package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paisatrack/ledger/ledger"
	"github.com/paisatrack/ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *sqlite.Store, ledger.UserID) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user, err := store.CreateUser(context.Background(), "Asha", "asha@example.com")
	require.NoError(t, err)

	return ledger.NewEngine(store), store, user.ID
}

func newAccount(t *testing.T, store *sqlite.Store, user ledger.UserID, name, opening string) *ledger.Account {
	account, err := store.CreateAccount(context.Background(), user, sqlite.AccountParams{
		BankName:      "NBL",
		AccountName:   name,
		AccountNumber: name + "-001",
	}, ledger.MustMoney(opening))
	require.NoError(t, err)
	return account
}

func newContactWithAccount(t *testing.T, store *sqlite.Store, user ledger.UserID, first string) (*ledger.Contact, *ledger.ContactAccount) {
	ctx := context.Background()
	contact, err := store.CreateContact(ctx, user, sqlite.ContactParams{FirstName: first, LastName: "Shrestha"})
	require.NoError(t, err)

	ca, err := store.CreateContactAccount(ctx, user, contact.ID, "NBL", first+"-999")
	require.NoError(t, err)
	return contact, ca
}

func newCategory(t *testing.T, store *sqlite.Store, user ledger.UserID, name string) *ledger.ExpenseCategory {
	c, err := store.CreateExpenseCategory(context.Background(), user, name)
	require.NoError(t, err)
	return c
}

func newSource(t *testing.T, store *sqlite.Store, user ledger.UserID, name string) *ledger.IncomeSource {
	src, err := store.CreateIncomeSource(context.Background(), user, name)
	require.NoError(t, err)
	return src
}

func expenseDraft(account ledger.AccountID, category ledger.CategoryID, amount string) ledger.TransactionDraft {
	return ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account,
			Splits: []ledger.SplitDraft{{
				Type:              ledger.SplitExpense,
				Amount:            ledger.MustMoney(amount),
				ExpenseCategoryID: &category,
				Note:              "groceries",
			}},
		}},
	}
}

func loanDraft(splitType ledger.SplitType, account ledger.AccountID, contact ledger.ContactID, contactAccount ledger.ContactAccountID, amount string, loanID *ledger.LoanID) ledger.TransactionDraft {
	return ledger.TransactionDraft{
		ContactID:        &contact,
		ContactAccountID: &contactAccount,
		Accounts: []ledger.AccountDraft{{
			AccountID: account,
			Splits: []ledger.SplitDraft{{
				Type:   splitType,
				Amount: ledger.MustMoney(amount),
				LoanID: loanID,
			}},
		}},
	}
}

func accountBalance(t *testing.T, store *sqlite.Store, user ledger.UserID, id ledger.AccountID) ledger.Money {
	account, err := store.GetAccount(context.Background(), user, id)
	require.NoError(t, err)
	return account.Balance
}

func assertMoney(t *testing.T, want string, got ledger.Money) {
	t.Helper()
	assert.True(t, got.Equal(ledger.MustMoney(want)),
		"expected %s, got %s", want, got)
}

// =============================================================================
// EXPENSE / INCOME
// =============================================================================

func TestCreateTransaction_Expense_DebitsBalance(t *testing.T) {
	// GIVEN: An account holding 1000
	// WHEN: An EXPENSE split of 150 is applied
	// THEN: The balance drops to 850

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	tx, err := engine.CreateTransaction(ctx, user, expenseDraft(account.ID, category.ID, "150"))
	require.NoError(t, err)
	require.Len(t, tx.Accounts, 1)
	require.Len(t, tx.Accounts[0].Splits, 1)

	assertMoney(t, "850", accountBalance(t, store, user, account.ID))
}

func TestCreateTransaction_Income_CreditsBalance(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "100")
	source := newSource(t, store, user, "Salary")

	_, err := engine.CreateTransaction(ctx, user, ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{{
				Type:           ledger.SplitIncome,
				Amount:         ledger.MustMoney("2500.50"),
				IncomeSourceID: &source.ID,
			}},
		}},
	})
	require.NoError(t, err)

	assertMoney(t, "2600.50", accountBalance(t, store, user, account.ID))
}

func TestCreateTransaction_InsufficientBalance_Rejected(t *testing.T) {
	// GIVEN: An account holding 1000
	// WHEN: An EXPENSE split of 1500 is submitted
	// THEN: Validation rejects it and the balance is untouched

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	_, err := engine.CreateTransaction(ctx, user, expenseDraft(account.ID, category.ID, "1500"))

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "accounts[0].splits[0].amount")

	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))
}

func TestCreateTransaction_MultiSplit_CannotOverdrawItself(t *testing.T) {
	// Two EXPENSE splits that each fit the balance alone but not
	// together must fail validation, not surface as a conflict.

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	_, err := engine.CreateTransaction(ctx, user, ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{
				{Type: ledger.SplitExpense, Amount: ledger.MustMoney("700"), ExpenseCategoryID: &category.ID},
				{Type: ledger.SplitExpense, Amount: ledger.MustMoney("600"), ExpenseCategoryID: &category.ID},
			},
		}},
	})

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "accounts[0].splits[1].amount")

	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))
}

func TestCreateTransaction_ExpenseWithoutCategory_Rejected(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")

	_, err := engine.CreateTransaction(ctx, user, ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{{
				Type:   ledger.SplitExpense,
				Amount: ledger.MustMoney("50"),
			}},
		}},
	})

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "accounts[0].splits[0].expense_category")
}

func TestCreateTransaction_ContactAccountMismatch_Rejected(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, _ := newContactWithAccount(t, store, user, "Bibek")
	_, otherAccount := newContactWithAccount(t, store, user, "Gita")

	// Another contact's bank account cannot be attached to this header.
	_, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, otherAccount.ID, "100", nil))

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "contact_account")

	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))
}

func TestCreateTransaction_TooManyDecimalPlaces_Rejected(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	_, err := engine.CreateTransaction(ctx, user, expenseDraft(account.ID, category.ID, "10.999"))

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
}

// =============================================================================
// LOANS
// =============================================================================

func TestCreateTransaction_MoneyLent_AutoVivifiesLoan(t *testing.T) {
	// GIVEN: No loan exists for the contact
	// WHEN: A MONEY_LENT split of 500 is applied
	// THEN: A LENT loan appears with total=remaining=500 and the
	//       account is debited

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	tx, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)

	assertMoney(t, "500", accountBalance(t, store, user, account.ID))

	require.NotNil(t, tx.Accounts[0].Splits[0].LoanID)
	loan, err := store.GetLoan(ctx, user, *tx.Accounts[0].Splits[0].LoanID)
	require.NoError(t, err)
	assert.Equal(t, ledger.LoanLent, loan.Type)
	assert.Equal(t, contact.ID, loan.ContactID)
	assertMoney(t, "500", loan.TotalAmount)
	assertMoney(t, "500", loan.RemainingAmount)
	assert.False(t, loan.IsClosed)
}

func TestCreateTransaction_MoneyLent_ReusesOpenLoan(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	tx1, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	tx2, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "300", nil))
	require.NoError(t, err)

	// Same loan, accumulated principal.
	assert.Equal(t, *tx1.Accounts[0].Splits[0].LoanID, *tx2.Accounts[0].Splits[0].LoanID)

	loan, err := store.GetLoan(ctx, user, *tx1.Accounts[0].Splits[0].LoanID)
	require.NoError(t, err)
	assertMoney(t, "800", loan.TotalAmount)
	assertMoney(t, "800", loan.RemainingAmount)

	loans, err := store.ListLoans(ctx, user, &contact.ID)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func TestCreateTransaction_Reimbursement_ClosesLoan(t *testing.T) {
	// GIVEN: A LENT loan with 500 remaining
	// WHEN: A REIMBURSEMENT of 500 references it
	// THEN: Remaining hits zero, the loan closes, the account is
	//       credited; total stays at the original principal

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	tx, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	loanID := *tx.Accounts[0].Splits[0].LoanID

	_, err = engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitReimbursement, account.ID, contact.ID, contactAccount.ID, "500", &loanID))
	require.NoError(t, err)

	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))

	loan, err := store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assertMoney(t, "500", loan.TotalAmount)
	assertMoney(t, "0", loan.RemainingAmount)
	assert.True(t, loan.IsClosed)
}

func TestCreateTransaction_Reimbursement_ExceedsRemaining_Rejected(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	tx, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	loanID := *tx.Accounts[0].Splits[0].LoanID

	_, err = engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitReimbursement, account.ID, contact.ID, contactAccount.ID, "600", &loanID))

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "accounts[0].splits[0].amount")

	loan, err := store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assertMoney(t, "500", loan.RemainingAmount)
	assertMoney(t, "500", accountBalance(t, store, user, account.ID))
}

func TestCreateTransaction_LoanRepayment_RequiresTakenLoan(t *testing.T) {
	// A LOAN_REPAYMENT pointed at a LENT loan must be rejected; it
	// settles debts the user owes, not debts owed to the user.

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	tx, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	lentLoanID := *tx.Accounts[0].Splits[0].LoanID

	_, err = engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitLoanRepayment, account.ID, contact.ID, contactAccount.ID, "100", &lentLoanID))

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "accounts[0].splits[0].loan")
}

func TestCreateTransaction_LoanTaken_CreditsAndRepays(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "100")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	tx, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitLoanTaken, account.ID, contact.ID, contactAccount.ID, "400", nil))
	require.NoError(t, err)
	assertMoney(t, "500", accountBalance(t, store, user, account.ID))

	loanID := *tx.Accounts[0].Splits[0].LoanID
	loan, err := store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assert.Equal(t, ledger.LoanTaken, loan.Type)

	_, err = engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitLoanRepayment, account.ID, contact.ID, contactAccount.ID, "150", &loanID))
	require.NoError(t, err)

	assertMoney(t, "350", accountBalance(t, store, user, account.ID))
	loan, err = store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assertMoney(t, "400", loan.TotalAmount)
	assertMoney(t, "250", loan.RemainingAmount)
	assert.False(t, loan.IsClosed)
}

func TestCreateTransaction_LoanSplit_WithoutContact_Rejected(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")

	_, err := engine.CreateTransaction(ctx, user, ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{{
				Type:   ledger.SplitMoneyLent,
				Amount: ledger.MustMoney("100"),
			}},
		}},
	})

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "accounts[0].splits[0].type")
}

// =============================================================================
// DELETE / REVERSAL
// =============================================================================

func TestDeleteTransaction_Expense_RestoresBalance(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	tx, err := engine.CreateTransaction(ctx, user, expenseDraft(account.ID, category.ID, "150"))
	require.NoError(t, err)
	assertMoney(t, "850", accountBalance(t, store, user, account.ID))

	require.NoError(t, engine.DeleteTransaction(ctx, user, tx.ID))

	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))
	_, err = store.GetTransaction(ctx, user, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeleteTransaction_Settlement_ReopensLoan(t *testing.T) {
	// Deleting a reimbursement puts the remaining amount back and may
	// reopen a closed loan.

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	lent, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	loanID := *lent.Accounts[0].Splits[0].LoanID

	reimb, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitReimbursement, account.ID, contact.ID, contactAccount.ID, "500", &loanID))
	require.NoError(t, err)

	loan, err := store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	require.True(t, loan.IsClosed)

	require.NoError(t, engine.DeleteTransaction(ctx, user, reimb.ID))

	loan, err = store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assert.False(t, loan.IsClosed)
	assertMoney(t, "500", loan.RemainingAmount)
	assertMoney(t, "500", accountBalance(t, store, user, account.ID))
}

func TestDeleteTransaction_Origination_BlockedByRepayments(t *testing.T) {
	// GIVEN: A 500 loan with 200 already reimbursed (remaining 300)
	// WHEN: Deleting the originating MONEY_LENT transaction
	// THEN: Rejected, because remaining would go to -200

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	lent, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	loanID := *lent.Accounts[0].Splits[0].LoanID

	_, err = engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitReimbursement, account.ID, contact.ID, contactAccount.ID, "200", &loanID))
	require.NoError(t, err)

	err = engine.DeleteTransaction(ctx, user, lent.ID)
	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)

	// Nothing moved.
	loan, err := store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assertMoney(t, "300", loan.RemainingAmount)
	assertMoney(t, "700", accountBalance(t, store, user, account.ID))
}

func TestDeleteTransaction_RoundTrip_RestoresEverything(t *testing.T) {
	// Full lifecycle: lend, reimburse, then delete both in reverse
	// order. Balance and loan book return to the initial state.

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	lent, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	loanID := *lent.Accounts[0].Splits[0].LoanID

	reimb, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitReimbursement, account.ID, contact.ID, contactAccount.ID, "500", &loanID))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteTransaction(ctx, user, reimb.ID))
	require.NoError(t, engine.DeleteTransaction(ctx, user, lent.ID))

	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))
	loan, err := store.GetLoan(ctx, user, loanID)
	require.NoError(t, err)
	assertMoney(t, "0", loan.TotalAmount)
	assertMoney(t, "0", loan.RemainingAmount)
	assert.True(t, loan.IsClosed)
}

func TestDeleteTransaction_ReversalWouldOverdraw_Rejected(t *testing.T) {
	// Income was received and then spent; deleting the income would
	// push the balance negative and must be refused.

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "0")
	source := newSource(t, store, user, "Salary")
	category := newCategory(t, store, user, "Food")

	income, err := engine.CreateTransaction(ctx, user, ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{{
				Type:           ledger.SplitIncome,
				Amount:         ledger.MustMoney("100"),
				IncomeSourceID: &source.ID,
			}},
		}},
	})
	require.NoError(t, err)

	_, err = engine.CreateTransaction(ctx, user, expenseDraft(account.ID, category.ID, "80"))
	require.NoError(t, err)

	err = engine.DeleteTransaction(ctx, user, income.ID)
	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)

	assertMoney(t, "20", accountBalance(t, store, user, account.ID))
}

// =============================================================================
// CASCADES
// =============================================================================

func TestDeleteAccount_CashWallet_Refused(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	accounts, err := store.ListAccounts(ctx, user)
	require.NoError(t, err)
	require.Len(t, accounts, 1) // the auto-created wallet
	require.True(t, accounts[0].IsCashWallet())

	err = engine.DeleteAccount(ctx, user, accounts[0].ID)
	assert.ErrorIs(t, err, ledger.ErrCashWalletProtected)
}

func TestDeleteAccount_ReversesHistory(t *testing.T) {
	// Deleting an account reverses its transactions and transfers, so
	// counterpart accounts return to their pre-history balances.

	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	a := newAccount(t, store, user, "checking", "1000")
	b := newAccount(t, store, user, "savings", "200")
	category := newCategory(t, store, user, "Food")

	_, err := engine.CreateTransfer(ctx, user, ledger.TransferDraft{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        ledger.MustMoney("300"),
	})
	require.NoError(t, err)
	_, err = engine.CreateTransaction(ctx, user, expenseDraft(a.ID, category.ID, "100"))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteAccount(ctx, user, a.ID))

	_, err = store.GetAccount(ctx, user, a.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	// The transfer into savings was reversed with the account.
	assertMoney(t, "200", accountBalance(t, store, user, b.ID))
}

func TestDeleteContact_OpenLoan_Refused(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	_, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)

	err = engine.DeleteContact(ctx, user, contact.ID)
	assert.ErrorIs(t, err, ledger.ErrInUse)
}

func TestDeleteContact_SettledLoans_HistorySurvives(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	contact, contactAccount := newContactWithAccount(t, store, user, "Bibek")

	lent, err := engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitMoneyLent, account.ID, contact.ID, contactAccount.ID, "500", nil))
	require.NoError(t, err)
	loanID := *lent.Accounts[0].Splits[0].LoanID

	_, err = engine.CreateTransaction(ctx, user,
		loanDraft(ledger.SplitReimbursement, account.ID, contact.ID, contactAccount.ID, "500", &loanID))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteContact(ctx, user, contact.ID))

	_, err = store.GetContact(ctx, user, contact.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	// The transaction rows survive with the contact reference cleared
	// and the balance untouched.
	tx, err := store.GetTransaction(ctx, user, lent.ID)
	require.NoError(t, err)
	assert.Nil(t, tx.ContactID)
	assertMoney(t, "1000", accountBalance(t, store, user, account.ID))
}

// =============================================================================
// DATES
// =============================================================================

func TestCreateTransaction_KeepsSubmittedDate(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	account := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	date := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	draft := expenseDraft(account.ID, category.ID, "50")
	draft.Date = date

	tx, err := engine.CreateTransaction(ctx, user, draft)
	require.NoError(t, err)

	got, err := store.GetTransaction(ctx, user, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(date))
}
