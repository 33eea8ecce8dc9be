package ledger_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paisatrack/ledger/ledger"
	"github.com/paisatrack/ledger/store/sqlite"
)

// seedActivity creates one expense, one income and one transfer on
// distinct dates and returns the engine/store pair.
func seedActivity(t *testing.T) (*ledger.Engine, *sqlite.Store, ledger.UserID, ledger.AccountID) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	a := newAccount(t, store, user, "checking", "1000")
	b := newAccount(t, store, user, "savings", "0")
	category := newCategory(t, store, user, "Food")
	source := newSource(t, store, user, "Salary")

	day := func(d int) time.Time {
		return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
	}

	expense := expenseDraft(a.ID, category.ID, "150")
	expense.Date = day(1)
	_, err := engine.CreateTransaction(ctx, user, expense)
	require.NoError(t, err)

	_, err = engine.CreateTransaction(ctx, user, ledger.TransactionDraft{
		Date: day(2),
		Accounts: []ledger.AccountDraft{{
			AccountID: a.ID,
			Splits: []ledger.SplitDraft{{
				Type:           ledger.SplitIncome,
				Amount:         ledger.MustMoney("2500"),
				IncomeSourceID: &source.ID,
				Note:           "march salary",
			}},
		}},
	})
	require.NoError(t, err)

	_, err = engine.CreateTransfer(ctx, user, ledger.TransferDraft{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        ledger.MustMoney("400"),
		Note:          "to savings",
		Date:          day(3),
	})
	require.NoError(t, err)

	return engine, store, user, a.ID
}

func TestActivity_MergesTransactionsAndTransfers(t *testing.T) {
	engine, _, user, _ := seedActivity(t)

	page, err := engine.Activity(context.Background(), user, ledger.ActivityQuery{})
	require.NoError(t, err)

	// Three items: the transfer appears once, not again through its
	// shadow transaction.
	require.Equal(t, 3, page.Count)
	require.Len(t, page.Results, 3)

	// Default ordering is date descending: transfer, income, expense.
	assert.Equal(t, ledger.TransferTypeName, page.Results[0].Type)
	assert.True(t, page.Results[0].IsInternal)
	assert.Equal(t, string(ledger.SplitIncome), page.Results[1].Type)
	assert.Equal(t, string(ledger.SplitExpense), page.Results[2].Type)
}

func TestActivity_OrderByAmount(t *testing.T) {
	engine, _, user, _ := seedActivity(t)

	page, err := engine.Activity(context.Background(), user, ledger.ActivityQuery{Ordering: "amount"})
	require.NoError(t, err)
	require.Len(t, page.Results, 3)

	assertMoney(t, "150", page.Results[0].Amount)
	assertMoney(t, "400", page.Results[1].Amount)
	assertMoney(t, "2500", page.Results[2].Amount)
}

func TestActivity_EqualDates_NewestCreatedFirst(t *testing.T) {
	engine, store, user := newTestEngine(t)
	ctx := context.Background()

	a := newAccount(t, store, user, "checking", "1000")
	category := newCategory(t, store, user, "Food")

	date := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	first := expenseDraft(a.ID, category.ID, "10")
	first.Date = date
	tx1, err := engine.CreateTransaction(ctx, user, first)
	require.NoError(t, err)

	second := expenseDraft(a.ID, category.ID, "20")
	second.Date = date
	tx2, err := engine.CreateTransaction(ctx, user, second)
	require.NoError(t, err)

	page, err := engine.Activity(ctx, user, ledger.ActivityQuery{})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)

	assert.Equal(t, string(tx2.ID), page.Results[0].ID)
	assert.Equal(t, string(tx1.ID), page.Results[1].ID)
}

func TestActivity_TypeFilter(t *testing.T) {
	engine, _, user, _ := seedActivity(t)
	ctx := context.Background()

	transfers, err := engine.Activity(ctx, user, ledger.ActivityQuery{Type: ledger.TransferTypeName})
	require.NoError(t, err)
	require.Len(t, transfers.Results, 1)
	assert.True(t, transfers.Results[0].IsInternal)

	expenses, err := engine.Activity(ctx, user, ledger.ActivityQuery{Type: string(ledger.SplitExpense)})
	require.NoError(t, err)
	require.Len(t, expenses.Results, 1)
	assert.Equal(t, string(ledger.SplitExpense), expenses.Results[0].Type)
}

func TestActivity_DateRangeFilter(t *testing.T) {
	engine, _, user, _ := seedActivity(t)

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 2, 23, 59, 59, 0, time.UTC)
	page, err := engine.Activity(context.Background(), user, ledger.ActivityQuery{
		Filter: ledger.ActivityFilter{From: &from, To: &to},
	})
	require.NoError(t, err)

	require.Len(t, page.Results, 1)
	assert.Equal(t, string(ledger.SplitIncome), page.Results[0].Type)
}

func TestActivity_AccountFilter(t *testing.T) {
	engine, store, user, _ := seedActivity(t)
	ctx := context.Background()

	accounts, err := store.ListAccounts(ctx, user)
	require.NoError(t, err)
	var savings ledger.AccountID
	for _, acc := range accounts {
		if acc.AccountName == "savings" {
			savings = acc.ID
		}
	}
	require.NotEmpty(t, savings)

	// Only the transfer touches savings.
	page, err := engine.Activity(ctx, user, ledger.ActivityQuery{
		Filter: ledger.ActivityFilter{AccountID: &savings},
	})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.True(t, page.Results[0].IsInternal)
}

func TestActivity_SearchOnNotes(t *testing.T) {
	engine, _, user, _ := seedActivity(t)

	page, err := engine.Activity(context.Background(), user, ledger.ActivityQuery{
		Filter: ledger.ActivityFilter{Search: "salary"},
	})
	require.NoError(t, err)

	require.Len(t, page.Results, 1)
	assert.Equal(t, string(ledger.SplitIncome), page.Results[0].Type)
}

func TestActivity_Pagination(t *testing.T) {
	engine, _, user, _ := seedActivity(t)
	ctx := context.Background()

	page1, err := engine.Activity(ctx, user, ledger.ActivityQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page1.Count)
	assert.Len(t, page1.Results, 2)

	page2, err := engine.Activity(ctx, user, ledger.ActivityQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page2.Count)
	assert.Len(t, page2.Results, 1)

	// Past the end: empty results, same count.
	page3, err := engine.Activity(ctx, user, ledger.ActivityQuery{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, page3.Results)
	assert.Equal(t, 3, page3.Count)
}

func TestActivity_HugePageNumber(t *testing.T) {
	engine, _, user, _ := seedActivity(t)

	// The page offset must not wrap around when the page number is at
	// the integer ceiling; out of range means an empty page.
	page, err := engine.Activity(context.Background(), user, ledger.ActivityQuery{
		Page:     math.MaxInt,
		PageSize: 20,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Equal(t, 3, page.Count)
}

func TestActivityAll_ReturnsEverything(t *testing.T) {
	engine, _, user, _ := seedActivity(t)

	items, err := engine.ActivityAll(context.Background(), user, ledger.ActivityQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}
