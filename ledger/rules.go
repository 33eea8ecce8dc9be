/*
rules.go - The split-type rule table

PURPOSE:
  SplitType drives divergent validation and mutation behavior. All of
  it is defined here, in one closed table, so adding or auditing a type
  touches exactly one place. validate.go reads the requirement columns;
  engine.go reads the effect columns.

THE TABLE (mirrors the operation contract):

  Type            contact  loan      category/source  balance check  loan check
  INCOME          no       no        income source    no             -
  EXPENSE         no       no        expense category yes            -
  LOAN_TAKEN      yes      auto      no               no             -
  MONEY_LENT      yes      auto      no               yes            -
  LOAN_REPAYMENT  yes      required  no               yes            type TAKEN, amount <= remaining
  REIMBURSEMENT   yes      required  no               no             type LENT,  amount <= remaining

BALANCE SIGN:
  INCOME / LOAN_TAKEN / REIMBURSEMENT credit the account;
  EXPENSE / MONEY_LENT / LOAN_REPAYMENT debit it.

LOAN EFFECT:
  LOAN_TAKEN / MONEY_LENT grow total and remaining; LOAN_REPAYMENT /
  REIMBURSEMENT shrink remaining only. Total is cumulative principal
  and never grows on a settlement split.
*/
package ledger

// loanEffect says how a split moves the referenced loan's amounts.
type loanEffect int

const (
	loanNone   loanEffect = iota // no loan involvement
	loanOpen                     // total += amount; remaining += amount
	loanSettle                   // remaining -= amount
)

// splitRule is one row of the type table.
type splitRule struct {
	RequiresContact  bool     // contact + contact account on the header
	RequiresLoan     bool     // explicit loan reference on the split
	AutoLoan         bool     // loan may be auto-created when absent
	RequiresCategory bool     // expense category reference
	RequiresSource   bool     // income source reference
	ChecksBalance    bool     // reject when amount > account balance
	WantLoanType     LoanType // required type of the referenced loan ("" = any)
	Credit           bool     // true: balance += amount; false: balance -= amount
	LoanEffect       loanEffect
}

var splitRules = map[SplitType]splitRule{
	SplitIncome: {
		RequiresSource: true,
		Credit:         true,
	},
	SplitExpense: {
		RequiresCategory: true,
		ChecksBalance:    true,
	},
	SplitLoanTaken: {
		RequiresContact: true,
		AutoLoan:        true,
		Credit:          true,
		LoanEffect:      loanOpen,
	},
	SplitMoneyLent: {
		RequiresContact: true,
		AutoLoan:        true,
		ChecksBalance:   true,
		LoanEffect:      loanOpen,
	},
	SplitLoanRepayment: {
		RequiresContact: true,
		RequiresLoan:    true,
		ChecksBalance:   true,
		WantLoanType:    LoanTaken,
		LoanEffect:      loanSettle,
	},
	SplitReimbursement: {
		RequiresContact: true,
		RequiresLoan:    true,
		WantLoanType:    LoanLent,
		Credit:          true,
		LoanEffect:      loanSettle,
	},
}

// ruleFor returns the rule row for a split type and whether the type is
// part of the closed set.
func ruleFor(t SplitType) (splitRule, bool) {
	r, ok := splitRules[t]
	return r, ok
}

// autoLoanType maps an origination split type to the loan type it opens.
func autoLoanType(t SplitType) LoanType {
	if t == SplitLoanTaken {
		return LoanTaken
	}
	return LoanLent
}
