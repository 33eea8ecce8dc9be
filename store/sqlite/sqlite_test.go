package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paisatrack/ledger/ledger"
	"github.com/paisatrack/ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) (*sqlite.Store, *ledger.User) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user, err := store.CreateUser(context.Background(), "Asha", "asha@example.com")
	require.NoError(t, err)
	return store, user
}

// =============================================================================
// USERS
// =============================================================================

func TestCreateUser_AutoCreatesCashWallet(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	require.NotEmpty(t, user.APIKey)

	accounts, err := store.ListAccounts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsCashWallet())
	assert.Equal(t, ledger.CashWalletName, accounts[0].AccountName)
	assert.True(t, accounts[0].Balance.IsZero())
}

func TestCreateUser_DuplicateEmail_Rejected(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.CreateUser(context.Background(), "Other", "asha@example.com")
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestGetUserByAPIKey(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetUserByAPIKey(ctx, user.APIKey)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.GetUserByAPIKey(ctx, "no-such-key")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestCreateAccount_DuplicateNumberPerBank_Rejected(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	params := sqlite.AccountParams{BankName: "NBL", AccountName: "checking", AccountNumber: "111"}
	_, err := store.CreateAccount(ctx, user.ID, params, ledger.NewMoney(0))
	require.NoError(t, err)

	params.AccountName = "another"
	_, err = store.CreateAccount(ctx, user.ID, params, ledger.NewMoney(0))
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	// Same number at a different bank is fine.
	params.BankName = "SCB"
	_, err = store.CreateAccount(ctx, user.ID, params, ledger.NewMoney(0))
	assert.NoError(t, err)
}

func TestCreateAccount_CashBankName_Refused(t *testing.T) {
	store, user := newTestStore(t)

	_, err := store.CreateAccount(context.Background(), user.ID,
		sqlite.AccountParams{BankName: ledger.CashBankName, AccountName: "second wallet"},
		ledger.NewMoney(0))
	assert.ErrorIs(t, err, ledger.ErrCashWalletProtected)
}

func TestUpdateAccount_CashWallet_Refused(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	accounts, err := store.ListAccounts(ctx, user.ID)
	require.NoError(t, err)

	_, err = store.UpdateAccount(ctx, user.ID, accounts[0].ID,
		sqlite.AccountParams{BankName: "NBL", AccountName: "renamed"})
	assert.ErrorIs(t, err, ledger.ErrCashWalletProtected)
}

func TestAdjustBalance_RefusesNegativeResult(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, user.ID,
		sqlite.AccountParams{BankName: "NBL", AccountName: "checking", AccountNumber: "111"},
		ledger.MustMoney("100"))
	require.NoError(t, err)

	err = store.AdjustBalance(ctx, user.ID, account.ID, ledger.MustMoney("150").Neg())
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var ib *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, account.ID, ib.AccountID)

	got, err := store.GetAccount(ctx, user.ID, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(ledger.MustMoney("100")))
}

func TestGetAccount_OtherUsersAccount_NotFound(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	other, err := store.CreateUser(ctx, "Bibek", "bibek@example.com")
	require.NoError(t, err)
	account, err := store.CreateAccount(ctx, other.ID,
		sqlite.AccountParams{BankName: "NBL", AccountName: "private", AccountNumber: "222"},
		ledger.NewMoney(50))
	require.NoError(t, err)

	_, err = store.GetAccount(ctx, user.ID, account.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// CONTACTS AND CONTACT ACCOUNTS
// =============================================================================

func TestCreateContact_DuplicateName_Rejected(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	params := sqlite.ContactParams{FirstName: "Bibek", LastName: "Shrestha"}
	_, err := store.CreateContact(ctx, user.ID, params)
	require.NoError(t, err)

	_, err = store.CreateContact(ctx, user.ID, params)
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestCreateContactAccount_SingleCashPerContact(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	contact, err := store.CreateContact(ctx, user.ID, sqlite.ContactParams{FirstName: "Bibek"})
	require.NoError(t, err)

	_, err = store.CreateContactAccount(ctx, user.ID, contact.ID, ledger.CashBankName, "")
	require.NoError(t, err)

	_, err = store.CreateContactAccount(ctx, user.ID, contact.ID, ledger.CashBankName, "x")
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestDeleteContactAccount_Unreferenced_Deletes(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	contact, err := store.CreateContact(ctx, user.ID, sqlite.ContactParams{FirstName: "Bibek"})
	require.NoError(t, err)
	ca, err := store.CreateContactAccount(ctx, user.ID, contact.ID, "NBL", "999")
	require.NoError(t, err)

	require.NoError(t, store.DeleteContactAccount(ctx, user.ID, ca.ID))

	_, err = store.GetContactAccount(ctx, user.ID, ca.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeleteContactAccount_Referenced_Refused(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	engine := ledger.NewEngine(store)
	account, err := store.CreateAccount(ctx, user.ID,
		sqlite.AccountParams{BankName: "NBL", AccountName: "checking", AccountNumber: "111"},
		ledger.MustMoney("1000"))
	require.NoError(t, err)
	contact, err := store.CreateContact(ctx, user.ID, sqlite.ContactParams{FirstName: "Bibek"})
	require.NoError(t, err)
	ca, err := store.CreateContactAccount(ctx, user.ID, contact.ID, "NBL", "999")
	require.NoError(t, err)

	_, err = engine.CreateTransaction(ctx, user.ID, ledger.TransactionDraft{
		ContactID:        &contact.ID,
		ContactAccountID: &ca.ID,
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{{
				Type:   ledger.SplitMoneyLent,
				Amount: ledger.MustMoney("100"),
			}},
		}},
	})
	require.NoError(t, err)

	err = store.DeleteContactAccount(ctx, user.ID, ca.ID)
	assert.ErrorIs(t, err, ledger.ErrInUse)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestCreateExpenseCategory_CaseInsensitiveUnique(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateExpenseCategory(ctx, user.ID, "Food")
	require.NoError(t, err)

	_, err = store.CreateExpenseCategory(ctx, user.ID, "food")
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestDeleteExpenseCategory_Referenced_Refused(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	engine := ledger.NewEngine(store)
	account, err := store.CreateAccount(ctx, user.ID,
		sqlite.AccountParams{BankName: "NBL", AccountName: "checking", AccountNumber: "111"},
		ledger.MustMoney("1000"))
	require.NoError(t, err)
	category, err := store.CreateExpenseCategory(ctx, user.ID, "Food")
	require.NoError(t, err)

	_, err = engine.CreateTransaction(ctx, user.ID, ledger.TransactionDraft{
		Accounts: []ledger.AccountDraft{{
			AccountID: account.ID,
			Splits: []ledger.SplitDraft{{
				Type:              ledger.SplitExpense,
				Amount:            ledger.MustMoney("10"),
				ExpenseCategoryID: &category.ID,
			}},
		}},
	})
	require.NoError(t, err)

	err = store.DeleteExpenseCategory(ctx, user.ID, category.ID)
	assert.ErrorIs(t, err, ledger.ErrInUse)
}

func TestCreateIncomeSource_EmptyName_Rejected(t *testing.T) {
	store, user := newTestStore(t)

	_, err := store.CreateIncomeSource(context.Background(), user.ID, "")
	var ve *ledger.ValidationError
	assert.ErrorAs(t, err, &ve)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, user.ID,
		sqlite.AccountParams{BankName: "NBL", AccountName: "checking", AccountNumber: "111"},
		ledger.MustMoney("100"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.AdjustBalance(ctx, user.ID, account.ID, ledger.MustMoney("50")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetAccount(ctx, user.ID, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(ledger.MustMoney("100")), "adjustment must roll back")
}
