/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  The JSON contract. Domain types never cross the wire directly:
  handlers decode into request DTOs, convert to drafts/params, and
  encode entities back out through response DTOs.

CONVENTIONS:
  - Money travels as decimal strings ("150.00"), never JSON numbers.
  - Dates accept "2006-01-02" or RFC3339; responses emit RFC3339.
  - Validation failures return {"errors": {"path": ["msg", ...]}}.

SEE ALSO:
  - handlers.go: where these are decoded and encoded
  - ledger/errors.go: the FieldErrors payload behind 400 responses
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paisatrack/ledger/ledger"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AccountRequest struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IBAN          string `json:"iban"`
	Balance       string `json:"balance"` // create only; opening balance
}

type ContactRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Phone2    string `json:"phone2"`
	Email     string `json:"email"`
}

type ContactAccountRequest struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type SplitRequest struct {
	Type              string  `json:"type"`
	Amount            string  `json:"amount"`
	LoanID            *string `json:"loan_id"`
	ExpenseCategoryID *string `json:"expense_category_id"`
	IncomeSourceID    *string `json:"income_source_id"`
	Note              string  `json:"note"`
}

type AccountEntryRequest struct {
	AccountID string         `json:"account_id"`
	Splits    []SplitRequest `json:"splits"`
}

type TransactionRequest struct {
	ContactID        *string               `json:"contact_id"`
	ContactAccountID *string               `json:"contact_account_id"`
	Date             string                `json:"date"`
	Accounts         []AccountEntryRequest `json:"accounts"`
}

type TransferRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Note          string `json:"note"`
	Date          string `json:"date"`
}

// =============================================================================
// REQUEST CONVERSION
// =============================================================================

// parseDate accepts a bare date or a full RFC3339 timestamp. Empty
// means now.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseAmount parses a decimal amount string. Shape errors surface as
// field errors; range rules are the validation engine's job.
func parseAmount(s string, path string, fields ledger.FieldErrors) ledger.Money {
	if s == "" {
		fields.Add(path, "This field is required.")
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		fields.Add(path, "A valid number is required.")
		return decimal.Zero
	}
	return d
}

// toDraft converts the wire shape into a TransactionDraft. Only shape
// problems (bad numbers, bad dates) are reported here.
func (req *TransactionRequest) toDraft(now time.Time) (ledger.TransactionDraft, error) {
	fields := ledger.FieldErrors{}

	date, err := parseDate(req.Date, now)
	if err != nil {
		fields.Add("date", "Date has wrong format. Use YYYY-MM-DD or RFC3339.")
	}

	draft := ledger.TransactionDraft{Date: date}
	if req.ContactID != nil {
		id := ledger.ContactID(*req.ContactID)
		draft.ContactID = &id
	}
	if req.ContactAccountID != nil {
		id := ledger.ContactAccountID(*req.ContactAccountID)
		draft.ContactAccountID = &id
	}

	for i, acc := range req.Accounts {
		entry := ledger.AccountDraft{AccountID: ledger.AccountID(acc.AccountID)}
		for j, sp := range acc.Splits {
			path := fmt.Sprintf("accounts[%d].splits[%d].amount", i, j)
			split := ledger.SplitDraft{
				Type:   ledger.SplitType(sp.Type),
				Amount: parseAmount(sp.Amount, path, fields),
				Note:   sp.Note,
			}
			if sp.LoanID != nil {
				id := ledger.LoanID(*sp.LoanID)
				split.LoanID = &id
			}
			if sp.ExpenseCategoryID != nil {
				id := ledger.CategoryID(*sp.ExpenseCategoryID)
				split.ExpenseCategoryID = &id
			}
			if sp.IncomeSourceID != nil {
				id := ledger.SourceID(*sp.IncomeSourceID)
				split.IncomeSourceID = &id
			}
			entry.Splits = append(entry.Splits, split)
		}
		draft.Accounts = append(draft.Accounts, entry)
	}

	if !fields.Empty() {
		return draft, &ledger.ValidationError{Fields: fields}
	}
	return draft, nil
}

func (req *TransferRequest) toDraft(now time.Time) (ledger.TransferDraft, error) {
	fields := ledger.FieldErrors{}

	date, err := parseDate(req.Date, now)
	if err != nil {
		fields.Add("date", "Date has wrong format. Use YYYY-MM-DD or RFC3339.")
	}

	draft := ledger.TransferDraft{
		FromAccountID: ledger.AccountID(req.FromAccountID),
		ToAccountID:   ledger.AccountID(req.ToAccountID),
		Amount:        parseAmount(req.Amount, "amount", fields),
		Note:          req.Note,
		Date:          date,
	}

	if !fields.Empty() {
		return draft, &ledger.ValidationError{Fields: fields}
	}
	return draft, nil
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	APIKey    string `json:"api_key,omitempty"` // returned once, at registration
	CreatedAt string `json:"created_at"`
}

type AccountDTO struct {
	ID            string `json:"id"`
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IBAN          string `json:"iban"`
	Balance       string `json:"balance"`
	IsCashWallet  bool   `json:"is_cash_wallet"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type ContactDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	Phone2    string `json:"phone2"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type ContactAccountDTO struct {
	ID            string `json:"id"`
	ContactID     string `json:"contact_id"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
}

type CategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LoanDTO struct {
	ID              string `json:"id"`
	ContactID       string `json:"contact_id"`
	Type            string `json:"type"`
	TotalAmount     string `json:"total_amount"`
	RemainingAmount string `json:"remaining_amount"`
	Description     string `json:"description"`
	IsClosed        bool   `json:"is_closed"`
	CreatedAt       string `json:"created_at"`
}

type SplitDTO struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Amount            string  `json:"amount"`
	LoanID            *string `json:"loan_id"`
	ExpenseCategoryID *string `json:"expense_category_id"`
	IncomeSourceID    *string `json:"income_source_id"`
	Note              string  `json:"note"`
}

type AccountEntryDTO struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Splits    []SplitDTO `json:"splits"`
}

type TransactionDTO struct {
	ID               string            `json:"id"`
	ContactID        *string           `json:"contact_id"`
	ContactAccountID *string           `json:"contact_account_id"`
	TransferID       *string           `json:"transfer_id"`
	Date             string            `json:"date"`
	CreatedAt        string            `json:"created_at"`
	TotalAmount      string            `json:"total_amount"`
	Accounts         []AccountEntryDTO `json:"accounts"`
}

type TransferDTO struct {
	ID            string `json:"id"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Note          string `json:"note"`
	Date          string `json:"date"`
	CreatedAt     string `json:"created_at"`
}

type ActivityItemDTO struct {
	ID            string   `json:"id"`
	TransactionID string   `json:"transaction_id,omitempty"`
	IsInternal    bool     `json:"is_internal"`
	Type          string   `json:"type"`
	Amount        string   `json:"amount"`
	Date          string   `json:"date"`
	CreatedAt     string   `json:"created_at"`
	Note          string   `json:"note"`
	ContactID     *string  `json:"contact_id"`
	AccountIDs    []string `json:"account_ids"`
	FromAccountID *string  `json:"from_account_id"`
	ToAccountID   *string  `json:"to_account_id"`
}

type ActivityPageDTO struct {
	Count    int               `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Results  []ActivityItemDTO `json:"results"`
}

// ErrorResponse is the generic error envelope for non-field errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// FieldErrorResponse is the 400 envelope for validation failures.
type FieldErrorResponse struct {
	Errors ledger.FieldErrors `json:"errors"`
}

// =============================================================================
// RESPONSE CONVERSION
// =============================================================================

func toUserDTO(u *ledger.User, includeKey bool) UserDTO {
	dto := UserDTO{
		ID:        string(u.ID),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if includeKey {
		dto.APIKey = u.APIKey
	}
	return dto
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:            string(a.ID),
		BankName:      a.BankName,
		AccountName:   a.AccountName,
		AccountNumber: a.AccountNumber,
		IBAN:          a.IBAN,
		Balance:       a.Balance.StringFixed(2),
		IsCashWallet:  a.IsCashWallet(),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toContactDTO(c *ledger.Contact) ContactDTO {
	return ContactDTO{
		ID:        string(c.ID),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		FullName:  c.FullName(),
		Phone:     c.Phone,
		Phone2:    c.Phone2,
		Email:     c.Email,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toContactAccountDTO(ca *ledger.ContactAccount) ContactAccountDTO {
	return ContactAccountDTO{
		ID:            string(ca.ID),
		ContactID:     string(ca.ContactID),
		BankName:      ca.BankName,
		AccountNumber: ca.AccountNumber,
	}
}

func toLoanDTO(l *ledger.Loan) LoanDTO {
	return LoanDTO{
		ID:              string(l.ID),
		ContactID:       string(l.ContactID),
		Type:            string(l.Type),
		TotalAmount:     l.TotalAmount.StringFixed(2),
		RemainingAmount: l.RemainingAmount.StringFixed(2),
		Description:     l.Description,
		IsClosed:        l.IsClosed,
		CreatedAt:       l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTransactionDTO(t *ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(t.ID),
		Date:        t.Date.UTC().Format(time.RFC3339),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		TotalAmount: t.TotalAmount().StringFixed(2),
		Accounts:    []AccountEntryDTO{},
	}
	if t.ContactID != nil {
		dto.ContactID = strPtr(string(*t.ContactID))
	}
	if t.ContactAccountID != nil {
		dto.ContactAccountID = strPtr(string(*t.ContactAccountID))
	}
	if t.TransferID != nil {
		dto.TransferID = strPtr(string(*t.TransferID))
	}

	for _, acc := range t.Accounts {
		entry := AccountEntryDTO{
			ID:        acc.ID,
			AccountID: string(acc.AccountID),
			Splits:    []SplitDTO{},
		}
		for _, sp := range acc.Splits {
			split := SplitDTO{
				ID:     sp.ID,
				Type:   string(sp.Type),
				Amount: sp.Amount.StringFixed(2),
				Note:   sp.Note,
			}
			if sp.LoanID != nil {
				split.LoanID = strPtr(string(*sp.LoanID))
			}
			if sp.ExpenseCategoryID != nil {
				split.ExpenseCategoryID = strPtr(string(*sp.ExpenseCategoryID))
			}
			if sp.IncomeSourceID != nil {
				split.IncomeSourceID = strPtr(string(*sp.IncomeSourceID))
			}
			entry.Splits = append(entry.Splits, split)
		}
		dto.Accounts = append(dto.Accounts, entry)
	}
	return dto
}

func toTransferDTO(tr *ledger.InternalTransaction) TransferDTO {
	return TransferDTO{
		ID:            string(tr.ID),
		FromAccountID: string(tr.FromAccountID),
		ToAccountID:   string(tr.ToAccountID),
		Amount:        tr.Amount.StringFixed(2),
		Note:          tr.Note,
		Date:          tr.Date.UTC().Format(time.RFC3339),
		CreatedAt:     tr.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toActivityItemDTO(it ledger.ActivityItem) ActivityItemDTO {
	dto := ActivityItemDTO{
		ID:            it.ID,
		TransactionID: string(it.TransactionID),
		IsInternal:    it.IsInternal,
		Type:          it.Type,
		Amount:        it.Amount.StringFixed(2),
		Date:          it.Date.UTC().Format(time.RFC3339),
		CreatedAt:     it.CreatedAt.UTC().Format(time.RFC3339),
		Note:          it.Note,
		AccountIDs:    []string{},
	}
	if it.ContactID != nil {
		dto.ContactID = strPtr(string(*it.ContactID))
	}
	for _, id := range it.AccountIDs {
		dto.AccountIDs = append(dto.AccountIDs, string(id))
	}
	if it.FromAccountID != nil {
		dto.FromAccountID = strPtr(string(*it.FromAccountID))
	}
	if it.ToAccountID != nil {
		dto.ToAccountID = strPtr(string(*it.ToAccountID))
	}
	return dto
}

// =============================================================================
// RESPONSE WRITERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine/store errors onto HTTP statuses:
// conflict 409, client errors 400 with a field map, everything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	if ledger.IsRetryable(err) {
		writeError(w, http.StatusConflict, "Conflict, please retry", err)
		return
	}
	if fields, ok := ledger.AsFieldErrors(err); ok {
		writeJSON(w, http.StatusBadRequest, FieldErrorResponse{Errors: fields})
		return
	}
	writeError(w, http.StatusInternalServerError, "Internal error", err)
}

// writeLookupError is for single-entity GETs, where a missing row is a
// 404 rather than a field error.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", err)
		return
	}
	writeDomainError(w, err)
}

func strPtr(s string) *string { return &s }
