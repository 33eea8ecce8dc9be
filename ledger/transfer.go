/*
transfer.go - The Internal Transfer Handler

PURPOSE:
  Atomically moves an amount between two accounts of the same user and
  creates the shadow Transaction that makes the transfer visible in the
  unified activity feed. Deletion is the exact inverse balance
  adjustment plus removal of both rows.

SEE ALSO:
  - validate.go: validateTransferDraft
  - engine.go:   DeleteTransaction delegates shadow deletes here
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// CreateTransfer validates and applies an internal transfer. The shadow
// Transaction is stamped with the same date and creation time as the
// transfer itself and carries no splits.
func (e *Engine) CreateTransfer(ctx context.Context, user UserID, draft TransferDraft) (*InternalTransaction, error) {
	if err := validateTransferDraft(ctx, e.store, user, draft); err != nil {
		return nil, err
	}

	var created *InternalTransaction
	err := e.store.WithTx(ctx, func(s Store) error {
		now := e.now()
		date := draft.Date
		if date.IsZero() {
			date = now
		}

		if err := s.AdjustBalance(ctx, user, draft.FromAccountID, draft.Amount.Neg()); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return fmt.Errorf("balance changed since validation: %w", ErrConflict)
			}
			return err
		}
		if err := s.AdjustBalance(ctx, user, draft.ToAccountID, draft.Amount); err != nil {
			return err
		}

		tr := &InternalTransaction{
			ID:            TransferID(newID()),
			UserID:        user,
			FromAccountID: draft.FromAccountID,
			ToAccountID:   draft.ToAccountID,
			Amount:        draft.Amount,
			Note:          draft.Note,
			Date:          date,
			CreatedAt:     now,
		}
		trID := tr.ID
		shadow := &Transaction{
			ID:         TransactionID(newID()),
			UserID:     user,
			TransferID: &trID,
			Date:       date,
			CreatedAt:  now,
		}
		if err := s.InsertTransfer(ctx, tr, shadow); err != nil {
			return err
		}
		created = tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteTransfer reverses both balance adjustments and removes the
// transfer together with its shadow transaction.
func (e *Engine) DeleteTransfer(ctx context.Context, user UserID, id TransferID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		return e.deleteTransferIn(ctx, s, user, id)
	})
}

func (e *Engine) deleteTransferIn(ctx context.Context, s Store, user UserID, id TransferID) error {
	tr, err := s.GetTransfer(ctx, user, id)
	if err != nil {
		return err
	}

	if err := s.AdjustBalance(ctx, user, tr.FromAccountID, tr.Amount); err != nil {
		return err
	}
	if err := s.AdjustBalance(ctx, user, tr.ToAccountID, tr.Amount.Neg()); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return NewValidationError("to_account",
				"reversal would make the destination account balance negative; the money has since been spent")
		}
		return err
	}

	return s.DeleteTransferRows(ctx, user, id)
}
