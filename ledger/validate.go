/*
validate.go - The Validation Engine

PURPOSE:
  Decides accept/reject for a proposed transaction or transfer BEFORE
  any balance or loan mutation, against database state as it exists at
  validation time. Pure read-and-check: no side effects.

ERROR SHAPE:
  Every violated rule lands in a FieldErrors map under the offending
  path, e.g. "accounts[0].splits[1].amount". All violations of one
  request are accumulated and returned together.

STALENESS:
  Validation and mutation are not atomic with respect to each other.
  Balance sufficiency is therefore re-checked by the store inside the
  unit of work (Store.AdjustBalance); a recheck failure after a passed
  validation surfaces as ErrConflict.

SEE ALSO:
  - rules.go:  the requirement columns read here
  - engine.go: the mutation that follows a passed validation
*/
package ledger

import (
	"context"
	"fmt"
)

// maxMoneyPlaces caps money precision at two decimal places.
const maxMoneyPlaces = 2

// validAmount checks positivity and precision, recording violations
// under the given path.
func validAmount(f FieldErrors, path string, amount Money) bool {
	if !amount.IsPositive() {
		f.Add(path, "amount must be greater than 0")
		return false
	}
	if amount.Exponent() < -maxMoneyPlaces {
		f.Add(path, "amount supports at most 2 decimal places")
		return false
	}
	return true
}

// validateTransactionDraft enforces the per-split rule table plus the
// structural rules: at least one account entry, at least one split per
// entry, ownership of every referenced entity.
func validateTransactionDraft(ctx context.Context, s Store, user UserID, d TransactionDraft) error {
	f := FieldErrors{}

	// Header references resolve first; split rules depend on them.
	var contact *Contact
	if d.ContactID != nil {
		c, err := s.GetContact(ctx, user, *d.ContactID)
		switch {
		case isNotFound(err):
			f.Add("contact", "contact not found")
		case err != nil:
			return err
		default:
			contact = c
		}
	}

	if d.ContactAccountID != nil {
		ca, err := s.GetContactAccount(ctx, user, *d.ContactAccountID)
		switch {
		case isNotFound(err):
			f.Add("contact_account", "contact account not found")
		case err != nil:
			return err
		default:
			if contact != nil && ca.ContactID != contact.ID {
				f.Add("contact_account", "contact account does not belong to the selected contact")
			}
		}
	}

	if len(d.Accounts) == 0 {
		f.Add("accounts", "at least one account entry is required")
		return &ValidationError{Fields: f}
	}

	for i, acc := range d.Accounts {
		accPath := fmt.Sprintf("accounts[%d]", i)

		account, err := s.GetAccount(ctx, user, acc.AccountID)
		if isNotFound(err) {
			f.Add(accPath+".account", "account not found")
		} else if err != nil {
			return err
		}

		if len(acc.Splits) == 0 {
			f.Add(accPath+".splits", "at least one split is required")
			continue
		}

		// Projected balance across this entry's splits, in submitted
		// order, so a draft cannot overdraw itself split by split.
		var projected Money
		if account != nil {
			projected = account.Balance
		}

		for j, sp := range acc.Splits {
			spPath := fmt.Sprintf("%s.splits[%d]", accPath, j)

			rule, known := ruleFor(sp.Type)
			if !known {
				if sp.Type == "" {
					f.Add(spPath+".type", "split type is required")
				} else {
					f.Addf(spPath+".type", "unknown split type %q", sp.Type)
				}
				continue
			}

			if !validAmount(f, spPath+".amount", sp.Amount) {
				continue
			}

			if rule.RequiresSource && sp.IncomeSourceID == nil {
				f.Add(spPath+".income_source", "income source is required for income splits")
			}
			if rule.RequiresCategory && sp.ExpenseCategoryID == nil {
				f.Add(spPath+".expense_category", "expense category is required for expense splits")
			}
			if sp.IncomeSourceID != nil {
				if _, err := s.GetIncomeSource(ctx, user, *sp.IncomeSourceID); isNotFound(err) {
					f.Add(spPath+".income_source", "income source not found")
				} else if err != nil {
					return err
				}
			}
			if sp.ExpenseCategoryID != nil {
				if _, err := s.GetExpenseCategory(ctx, user, *sp.ExpenseCategoryID); isNotFound(err) {
					f.Add(spPath+".expense_category", "expense category not found")
				} else if err != nil {
					return err
				}
			}

			if rule.RequiresContact {
				if d.ContactID == nil {
					f.Addf(spPath+".type", "contact is required for %s splits", sp.Type)
				}
				if d.ContactAccountID == nil {
					f.Addf(spPath+".type", "contact account is required for %s splits", sp.Type)
				}
			}

			if rule.RequiresLoan && sp.LoanID == nil {
				f.Addf(spPath+".loan", "loan is required for %s splits", sp.Type)
			}

			if sp.LoanID != nil {
				loan, err := s.GetLoan(ctx, user, *sp.LoanID)
				switch {
				case isNotFound(err):
					f.Add(spPath+".loan", "loan not found")
				case err != nil:
					return err
				default:
					if rule.LoanEffect == loanSettle {
						if contact != nil && loan.ContactID != contact.ID {
							f.Add(spPath+".loan", "loan must belong to the selected contact")
						}
						if rule.WantLoanType != "" && loan.Type != rule.WantLoanType {
							f.Addf(spPath+".loan", "%s applies only to %s loans", sp.Type, rule.WantLoanType)
						} else if sp.Amount.GreaterThan(loan.RemainingAmount) {
							f.Addf(spPath+".amount", "amount %s exceeds remaining loan amount %s",
								sp.Amount, loan.RemainingAmount)
						}
					}
				}
			}

			if account != nil {
				if rule.ChecksBalance && sp.Amount.GreaterThan(projected) {
					f.Addf(spPath+".amount", "insufficient balance in account %q: current balance %s",
						account.AccountName, projected)
				}
				if rule.Credit {
					projected = projected.Add(sp.Amount)
				} else {
					projected = projected.Sub(sp.Amount)
				}
			}
		}
	}

	if !f.Empty() {
		return &ValidationError{Fields: f}
	}
	return nil
}

// validateTransferDraft enforces the internal-transfer rules: distinct
// accounts, positive amount, sufficient source balance.
func validateTransferDraft(ctx context.Context, s Store, user UserID, d TransferDraft) error {
	f := FieldErrors{}

	if d.FromAccountID == d.ToAccountID {
		f.Add("to_account", "from account and to account cannot be the same")
	}
	validAmount(f, "amount", d.Amount)

	from, err := s.GetAccount(ctx, user, d.FromAccountID)
	if isNotFound(err) {
		f.Add("from_account", "account not found")
	} else if err != nil {
		return err
	}
	if _, err := s.GetAccount(ctx, user, d.ToAccountID); isNotFound(err) {
		f.Add("to_account", "account not found")
	} else if err != nil {
		return err
	}

	if from != nil && d.Amount.IsPositive() && from.Balance.LessThan(d.Amount) {
		f.Addf("amount", "insufficient balance in account %q: current balance %s",
			from.AccountName, from.Balance)
	}

	if !f.Empty() {
		return &ValidationError{Fields: f}
	}
	return nil
}
