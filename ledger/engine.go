/*
engine.go - The Balance & Loan Mutator

PURPOSE:
  Applies an already-validated transaction as a single all-or-nothing
  unit of work, and applies the exact inverse on deletion. This is the
  only code path that moves account balances or loan amounts.

APPLY (create):
  1. Validate the draft against current state (validate.go).
  2. Inside one unit of work, in submitted split order:
     - resolve or auto-create the referenced loan
     - update loan total/remaining and recompute is_closed
     - adjust the account balance through the store's guarded update
  3. Persist the transaction tree. Any failure rolls back everything:
     no partial splits, no partial balances, no orphaned loans.

DELETE (reverse):
  The exact inverse delta for every split, then the rows are removed.
  Reversal may reopen a closed loan; remaining_amount >= 0 is the only
  floor enforced, at commit time.

CONFLICTS:
  A balance or loan precondition that held at validation time but fails
  inside the unit of work means a concurrent writer got there first.
  That surfaces as ErrConflict and the caller should retry.

SEE ALSO:
  - validate.go: the gate in front of this code
  - transfer.go: the two-account sibling of this logic
  - store.go:    AdjustBalance, the commit-time balance recheck
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine is the ledger's single write path. All operations take the
// acting user explicitly and scope every lookup to that user.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func newID() string { return uuid.NewString() }

// =============================================================================
// CREATE
// =============================================================================

// CreateTransaction validates and applies a transaction draft. On
// success the fully persisted transaction (with minted IDs) is
// returned; on any failure nothing was mutated.
func (e *Engine) CreateTransaction(ctx context.Context, user UserID, draft TransactionDraft) (*Transaction, error) {
	if err := validateTransactionDraft(ctx, e.store, user, draft); err != nil {
		return nil, err
	}

	var created *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := e.applyDraft(ctx, s, user, draft)
		if err != nil {
			return err
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// applyDraft runs inside the unit of work. Splits are applied in
// submitted order; the store's AdjustBalance re-checks sufficiency
// against committed state, so a stale validation read cannot overdraw.
func (e *Engine) applyDraft(ctx context.Context, s Store, user UserID, draft TransactionDraft) (*Transaction, error) {
	now := e.now()
	date := draft.Date
	if date.IsZero() {
		date = now
	}

	tx := &Transaction{
		ID:               TransactionID(newID()),
		UserID:           user,
		ContactID:        draft.ContactID,
		ContactAccountID: draft.ContactAccountID,
		Date:             date,
		CreatedAt:        now,
	}

	for _, accDraft := range draft.Accounts {
		ta := TransactionAccount{
			ID:        newID(),
			AccountID: accDraft.AccountID,
		}

		for _, sp := range accDraft.Splits {
			rule, _ := ruleFor(sp.Type)

			loan, err := e.resolveLoan(ctx, s, user, draft, sp, rule, now)
			if err != nil {
				return nil, err
			}

			if loan != nil {
				if err := applyLoanDelta(loan, rule.LoanEffect, sp.Amount, now); err != nil {
					return nil, err
				}
				if err := s.UpdateLoan(ctx, loan); err != nil {
					return nil, err
				}
			}

			if err := s.AdjustBalance(ctx, user, accDraft.AccountID, balanceDelta(rule, sp.Amount)); err != nil {
				if errors.Is(err, ErrInsufficientBalance) {
					// Validation saw enough balance; a concurrent
					// writer spent it in between.
					return nil, fmt.Errorf("balance changed since validation: %w", ErrConflict)
				}
				return nil, err
			}

			split := TransactionSplit{
				ID:                newID(),
				Type:              sp.Type,
				Amount:            sp.Amount,
				ExpenseCategoryID: sp.ExpenseCategoryID,
				IncomeSourceID:    sp.IncomeSourceID,
				Note:              sp.Note,
			}
			if loan != nil {
				id := loan.ID
				split.LoanID = &id
			}
			ta.Splits = append(ta.Splits, split)
		}

		tx.Accounts = append(tx.Accounts, ta)
	}

	if err := s.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// resolveLoan returns the loan a split operates on: the explicit
// reference when given, otherwise the open (user, contact, type) loan,
// otherwise a freshly created one. Lookup-or-create runs inside the
// same unit of work as the split it serves, so concurrent submissions
// cannot vivify duplicate loans.
func (e *Engine) resolveLoan(ctx context.Context, s Store, user UserID, draft TransactionDraft, sp SplitDraft, rule splitRule, now time.Time) (*Loan, error) {
	if sp.LoanID != nil {
		loan, err := s.GetLoan(ctx, user, *sp.LoanID)
		if isNotFound(err) {
			return nil, fmt.Errorf("loan disappeared since validation: %w", ErrConflict)
		}
		return loan, err
	}

	if !rule.AutoLoan || draft.ContactID == nil {
		return nil, nil
	}

	loanType := autoLoanType(sp.Type)
	loan, err := s.FindOpenLoan(ctx, user, *draft.ContactID, loanType)
	if err != nil {
		return nil, err
	}
	if loan != nil {
		return loan, nil
	}

	loan = &Loan{
		ID:              LoanID(newID()),
		UserID:          user,
		ContactID:       *draft.ContactID,
		Type:            loanType,
		TotalAmount:     decimal.Zero,
		RemainingAmount: decimal.Zero,
		Description:     sp.Note,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.InsertLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// applyLoanDelta moves a loan's amounts forward for one split.
// Origination grows total and remaining; settlement shrinks remaining
// only. Total is cumulative principal and never grows on settlement.
func applyLoanDelta(loan *Loan, effect loanEffect, amount Money, now time.Time) error {
	switch effect {
	case loanOpen:
		loan.TotalAmount = loan.TotalAmount.Add(amount)
		loan.RemainingAmount = loan.RemainingAmount.Add(amount)
	case loanSettle:
		loan.RemainingAmount = loan.RemainingAmount.Sub(amount)
		if loan.RemainingAmount.IsNegative() {
			// Validation saw enough remaining; concurrent settlement
			// got there first.
			return fmt.Errorf("loan remaining amount changed since validation: %w", ErrConflict)
		}
	}
	loan.IsClosed = !loan.RemainingAmount.IsPositive()
	loan.UpdatedAt = now
	return nil
}

// balanceDelta returns the signed account-balance delta for one split.
func balanceDelta(rule splitRule, amount Money) Money {
	if rule.Credit {
		return amount
	}
	return amount.Neg()
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteTransaction reverses every balance and loan delta the
// transaction applied, then removes its rows, all in one unit of work.
// Deleting a transfer's shadow record delegates to transfer deletion so
// balances are always reversed through one code path.
func (e *Engine) DeleteTransaction(ctx context.Context, user UserID, id TransactionID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		return e.deleteTransactionIn(ctx, s, user, id)
	})
}

func (e *Engine) deleteTransactionIn(ctx context.Context, s Store, user UserID, id TransactionID) error {
	tx, err := s.GetTransaction(ctx, user, id)
	if err != nil {
		return err
	}
	if tx.IsTransferShadow() {
		return e.deleteTransferIn(ctx, s, user, *tx.TransferID)
	}

	now := e.now()
	for _, ta := range tx.Accounts {
		for _, sp := range ta.Splits {
			rule, _ := ruleFor(sp.Type)

			if sp.LoanID != nil {
				loan, err := s.GetLoan(ctx, user, *sp.LoanID)
				if err != nil {
					return err
				}
				if err := reverseLoanDelta(loan, rule.LoanEffect, sp.Amount, now); err != nil {
					return err
				}
				if err := s.UpdateLoan(ctx, loan); err != nil {
					return err
				}
			}

			// Inverse sign: credits become debits and vice versa.
			if err := s.AdjustBalance(ctx, user, ta.AccountID, balanceDelta(rule, sp.Amount).Neg()); err != nil {
				if errors.Is(err, ErrInsufficientBalance) {
					return NewValidationError("accounts",
						"reversal would make an account balance negative; the money has since been spent")
				}
				return err
			}
		}
	}

	return s.DeleteTransactionRows(ctx, user, id)
}

// reverseLoanDelta is the exact inverse of applyLoanDelta. Reversal may
// reopen a closed loan; remaining_amount >= 0 is the only floor.
func reverseLoanDelta(loan *Loan, effect loanEffect, amount Money, now time.Time) error {
	switch effect {
	case loanOpen:
		loan.TotalAmount = loan.TotalAmount.Sub(amount)
		loan.RemainingAmount = loan.RemainingAmount.Sub(amount)
		if loan.RemainingAmount.IsNegative() {
			return NewValidationError("loan",
				"reversal would make the loan's remaining amount negative; delete the repayments first")
		}
	case loanSettle:
		loan.RemainingAmount = loan.RemainingAmount.Add(amount)
	}
	loan.IsClosed = !loan.RemainingAmount.IsPositive()
	loan.UpdatedAt = now
	return nil
}

// =============================================================================
// CASCADES
// =============================================================================

// DeleteAccount removes an account after reversing and deleting every
// transaction and transfer that touches it, as one atomic unit. The
// reserved CASH wallet is never deletable.
func (e *Engine) DeleteAccount(ctx context.Context, user UserID, id AccountID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		account, err := s.GetAccount(ctx, user, id)
		if err != nil {
			return err
		}
		if account.IsCashWallet() {
			return ErrCashWalletProtected
		}

		// Transfers first: their shadow transactions have no account
		// entries, so the transaction listing below won't see them.
		transferIDs, err := s.TransferIDsByAccount(ctx, user, id)
		if err != nil {
			return err
		}
		for _, trID := range transferIDs {
			if err := e.deleteTransferIn(ctx, s, user, trID); err != nil {
				return err
			}
		}

		txIDs, err := s.TransactionIDsByAccount(ctx, user, id)
		if err != nil {
			return err
		}
		for _, txID := range txIDs {
			if err := e.deleteTransactionIn(ctx, s, user, txID); err != nil {
				return err
			}
		}

		return s.DeleteAccountRow(ctx, user, id)
	})
}

// DeleteContact removes a contact, its contact accounts and its settled
// loans. A contact with any outstanding loan is not deletable; existing
// transactions keep a nulled contact reference.
func (e *Engine) DeleteContact(ctx context.Context, user UserID, id ContactID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetContact(ctx, user, id); err != nil {
			return err
		}
		loans, err := s.ListLoans(ctx, user, &id)
		if err != nil {
			return err
		}
		for _, loan := range loans {
			if loan.RemainingAmount.IsPositive() {
				return fmt.Errorf("contact has an open loan: %w", ErrInUse)
			}
		}
		return s.DeleteContactRows(ctx, user, id)
	})
}
