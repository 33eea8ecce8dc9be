/*
activity.go - The Activity Aggregator

PURPOSE:
  Produces one time-ordered, paginated feed combining regular
  transactions (annotated with the sum of their split amounts) and
  internal transfers (tagged is_internal=true, type=TRANSFER). A pure
  read-side merge: never mutates state, tolerates either sub-collection
  being empty.

ORDERING:
  By date or amount, ascending or descending ("date", "-date",
  "amount", "-amount"); ties always break by creation timestamp
  descending. Default is "-date".
*/
package ledger

import (
	"context"
	"sort"
	"time"
)

// Feed pagination bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ActivityQuery selects, orders and pages the merged feed.
type ActivityQuery struct {
	Filter   ActivityFilter
	Type     string // "" = everything, "TRANSFER" = transfers only, a split type = transactions containing it
	Ordering string // "date", "-date", "amount", "-amount"
	Page     int
	PageSize int
}

// ActivityItem is one row of the merged feed.
type ActivityItem struct {
	ID            string
	TransactionID TransactionID // underlying transaction row; empty for transfers, which carry their own ID
	IsInternal    bool
	Type          string // TRANSFER for transfers, first split's type otherwise
	Amount        Money
	Date          time.Time
	CreatedAt     time.Time
	Note          string
	ContactID     *ContactID
	AccountIDs    []AccountID // touched accounts (from/to for transfers)
	FromAccountID *AccountID
	ToAccountID   *AccountID
}

// ActivityPage is one page of the feed plus the total match count.
type ActivityPage struct {
	Count    int
	Page     int
	PageSize int
	Results  []ActivityItem
}

// Activity merges the user's transactions and transfers into one
// ordered, paginated feed.
func (e *Engine) Activity(ctx context.Context, user UserID, q ActivityQuery) (*ActivityPage, error) {
	items, err := e.collectActivity(ctx, user, q)
	if err != nil {
		return nil, err
	}
	sortActivity(items, q.Ordering)
	return paginateActivity(items, q.Page, q.PageSize), nil
}

// ActivityAll returns the full ordered feed without pagination, for
// read-only consumers such as exports.
func (e *Engine) ActivityAll(ctx context.Context, user UserID, q ActivityQuery) ([]ActivityItem, error) {
	items, err := e.collectActivity(ctx, user, q)
	if err != nil {
		return nil, err
	}
	sortActivity(items, q.Ordering)
	return items, nil
}

func (e *Engine) collectActivity(ctx context.Context, user UserID, q ActivityQuery) ([]ActivityItem, error) {
	fetchTransactions := q.Type != TransferTypeName
	fetchTransfers := q.Type == "" || q.Type == TransferTypeName

	var items []ActivityItem

	if fetchTransactions {
		txs, err := e.store.ListTransactions(ctx, user, q.Filter)
		if err != nil {
			return nil, err
		}
		for i := range txs {
			tx := &txs[i]
			if tx.IsTransferShadow() {
				// Transfers enter the feed through their own listing
				// with full from/to detail.
				continue
			}
			item := transactionItem(tx)
			if q.Type != "" && q.Type != item.Type && !containsSplitType(tx, SplitType(q.Type)) {
				continue
			}
			items = append(items, item)
		}
	}

	if fetchTransfers {
		trs, err := e.store.ListTransfers(ctx, user, q.Filter)
		if err != nil {
			return nil, err
		}
		for i := range trs {
			items = append(items, transferItem(&trs[i]))
		}
	}

	return items, nil
}

func transactionItem(tx *Transaction) ActivityItem {
	item := ActivityItem{
		ID:            string(tx.ID),
		TransactionID: tx.ID,
		Amount:        tx.TotalAmount(),
		Date:          tx.Date,
		CreatedAt:     tx.CreatedAt,
		ContactID:     tx.ContactID,
	}
	for _, ta := range tx.Accounts {
		item.AccountIDs = append(item.AccountIDs, ta.AccountID)
		for _, sp := range ta.Splits {
			if item.Type == "" {
				item.Type = string(sp.Type)
			}
			if item.Note == "" {
				item.Note = sp.Note
			}
		}
	}
	return item
}

func transferItem(tr *InternalTransaction) ActivityItem {
	from, to := tr.FromAccountID, tr.ToAccountID
	return ActivityItem{
		ID:            string(tr.ID),
		IsInternal:    true,
		Type:          TransferTypeName,
		Amount:        tr.Amount,
		Date:          tr.Date,
		CreatedAt:     tr.CreatedAt,
		Note:          tr.Note,
		AccountIDs:    []AccountID{from, to},
		FromAccountID: &from,
		ToAccountID:   &to,
	}
}

func containsSplitType(tx *Transaction, t SplitType) bool {
	for _, ta := range tx.Accounts {
		for _, sp := range ta.Splits {
			if sp.Type == t {
				return true
			}
		}
	}
	return false
}

func sortActivity(items []ActivityItem, ordering string) {
	field := "date"
	desc := true
	switch ordering {
	case "", "-date":
	case "date":
		desc = false
	case "amount":
		field, desc = "amount", false
	case "-amount":
		field = "amount"
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var less, eq bool
		if field == "amount" {
			cmp := a.Amount.Cmp(b.Amount)
			less, eq = cmp < 0, cmp == 0
		} else {
			less, eq = a.Date.Before(b.Date), a.Date.Equal(b.Date)
		}
		if eq {
			// Ties always break newest-created first.
			return a.CreatedAt.After(b.CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})
}

func paginateActivity(items []ActivityItem, page, pageSize int) *ActivityPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	// Huge page numbers can overflow the offset arithmetic; anything out
	// of range is an empty page, not a panic.
	start := (page - 1) * pageSize
	if start < 0 || start > len(items) {
		start = len(items)
	}
	end := start + pageSize
	if end < start || end > len(items) {
		end = len(items)
	}

	return &ActivityPage{
		Count:    len(items),
		Page:     page,
		PageSize: pageSize,
		Results:  items[start:end],
	}
}
