/*
handlers.go - HTTP API handlers for the personal-finance tracker

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                  Register (returns the API key once)
    GET    /api/users/me               Current user

  Accounts:
    GET    /api/accounts               List accounts with balances
    POST   /api/accounts               Open an account
    GET    /api/accounts/total-balance Sum across all accounts
    GET    /api/accounts/{id}          Account details
    PUT    /api/accounts/{id}          Edit metadata (not balance)
    DELETE /api/accounts/{id}          Delete with full ledger reversal

  Contacts:
    GET/POST /api/contacts             List / create
    GET/PUT/DELETE /api/contacts/{id}  Details / edit / delete
    GET/POST /api/contacts/{id}/accounts  Contact bank accounts
    DELETE /api/contact-accounts/{id}

  Classification:
    GET/POST/DELETE /api/expense-categories[/{id}]
    GET/POST/DELETE /api/income-sources[/{id}]

  Loans (read-only; balances move via transactions):
    GET /api/loans?contact_id=...
    GET /api/loans/{id}

  Ledger:
    GET    /api/transactions           List (filters as /api/activity)
    POST   /api/transactions           Validate and apply a draft
    GET    /api/transactions/{id}
    DELETE /api/transactions/{id}      Exact reversal
    GET    /api/internal-transactions  List
    POST   /api/internal-transactions  Transfer between own accounts
    GET    /api/internal-transactions/{id}
    DELETE /api/internal-transactions/{id}

  Activity:
    GET /api/activity                  Merged paginated feed
    GET /api/activity/export           CSV download

ERROR HANDLING:
  - 400: validation failures, as {"errors": {path: [messages]}}
  - 401: missing/unknown API key
  - 404: single-entity GET misses
  - 409: commit-time conflicts, retryable
  - 500: store failures

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
  - ledger/: the engine these handlers delegate to
*/
package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paisatrack/ledger/ledger"
	"github.com/paisatrack/ledger/store/sqlite"
)

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// CreateUser registers a user. The response includes the API key; it is
// not retrievable afterwards.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Email == "" {
		writeDomainError(w, ledger.NewValidationError("name", "name and email are required"))
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Name, req.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user, true))
}

// GetCurrentUser returns the authenticated user.
// GET /api/users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserDTO(currentUser(r), false))
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// ListAccounts returns all accounts with current balances.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	accounts, err := h.Store.ListAccounts(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, 0, len(accounts))
	for i := range accounts {
		dtos = append(dtos, toAccountDTO(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount opens an account with an optional opening balance.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	opening := ledger.NewMoney(0)
	if req.Balance != "" {
		fields := ledger.FieldErrors{}
		opening = parseAmount(req.Balance, "balance", fields)
		if !fields.Empty() {
			writeDomainError(w, &ledger.ValidationError{Fields: fields})
			return
		}
	}

	account, err := h.Store.CreateAccount(r.Context(), user.ID, sqlite.AccountParams{
		BankName:      req.BankName,
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		IBAN:          req.IBAN,
	}, opening)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns one account.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.AccountID(chi.URLParam(r, "id"))

	account, err := h.Store.GetAccount(r.Context(), user.ID, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetTotalBalance sums balances across all the user's accounts.
// GET /api/accounts/total-balance
func (h *Handler) GetTotalBalance(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	total, err := h.Store.TotalBalance(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute total balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"total_balance": total.StringFixed(2)})
}

// UpdateAccount edits account metadata. Balance is not editable; the
// CASH wallet is not editable at all.
// PUT /api/accounts/{id}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := h.Store.UpdateAccount(r.Context(), user.ID, id, sqlite.AccountParams{
		BankName:      req.BankName,
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		IBAN:          req.IBAN,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// DeleteAccount removes an account after reversing every transaction
// and transfer that touched it.
// DELETE /api/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.AccountID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteAccount(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CONTACT ENDPOINTS
// =============================================================================

// ListContacts returns all contacts.
// GET /api/contacts
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	contacts, err := h.Store.ListContacts(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contacts", err)
		return
	}

	dtos := make([]ContactDTO, 0, len(contacts))
	for i := range contacts {
		dtos = append(dtos, toContactDTO(&contacts[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContact adds a counterparty.
// POST /api/contacts
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	contact, err := h.Store.CreateContact(r.Context(), user.ID, sqlite.ContactParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Phone2:    req.Phone2,
		Email:     req.Email,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContactDTO(contact))
}

// GetContact returns one contact.
// GET /api/contacts/{id}
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.ContactID(chi.URLParam(r, "id"))

	contact, err := h.Store.GetContact(r.Context(), user.ID, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactDTO(contact))
}

// UpdateContact edits contact fields.
// PUT /api/contacts/{id}
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.ContactID(chi.URLParam(r, "id"))

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	contact, err := h.Store.UpdateContact(r.Context(), user.ID, id, sqlite.ContactParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Phone2:    req.Phone2,
		Email:     req.Email,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactDTO(contact))
}

// DeleteContact removes a contact. Refused while any of their loans has
// an outstanding balance; transaction history survives with the contact
// reference cleared.
// DELETE /api/contacts/{id}
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.ContactID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteContact(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListContactAccounts returns a contact's bank accounts.
// GET /api/contacts/{id}/accounts
func (h *Handler) ListContactAccounts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	contactID := ledger.ContactID(chi.URLParam(r, "id"))

	accounts, err := h.Store.ListContactAccounts(r.Context(), user.ID, contactID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	dtos := make([]ContactAccountDTO, 0, len(accounts))
	for i := range accounts {
		dtos = append(dtos, toContactAccountDTO(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContactAccount adds a bank account under a contact.
// POST /api/contacts/{id}/accounts
func (h *Handler) CreateContactAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	contactID := ledger.ContactID(chi.URLParam(r, "id"))

	var req ContactAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ca, err := h.Store.CreateContactAccount(r.Context(), user.ID, contactID, req.BankName, req.AccountNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContactAccountDTO(ca))
}

// DeleteContactAccount removes a contact's bank account unless
// transactions still reference it.
// DELETE /api/contact-accounts/{id}
func (h *Handler) DeleteContactAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.ContactAccountID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteContactAccount(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLASSIFICATION ENDPOINTS
// =============================================================================

// ListExpenseCategories returns all expense categories.
// GET /api/expense-categories
func (h *Handler) ListExpenseCategories(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	categories, err := h.Store.ListExpenseCategories(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryDTO{ID: string(c.ID), Name: c.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpenseCategory adds a category (unique per user, case-insensitive).
// POST /api/expense-categories
func (h *Handler) CreateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Store.CreateExpenseCategory(r.Context(), user.ID, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{ID: string(c.ID), Name: c.Name})
}

// DeleteExpenseCategory removes a category unless splits reference it.
// DELETE /api/expense-categories/{id}
func (h *Handler) DeleteExpenseCategory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.CategoryID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteExpenseCategory(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIncomeSources returns all income sources.
// GET /api/income-sources
func (h *Handler) ListIncomeSources(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	sources, err := h.Store.ListIncomeSources(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sources", err)
		return
	}

	dtos := make([]CategoryDTO, 0, len(sources))
	for _, src := range sources {
		dtos = append(dtos, CategoryDTO{ID: string(src.ID), Name: src.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateIncomeSource adds a source (unique per user, case-insensitive).
// POST /api/income-sources
func (h *Handler) CreateIncomeSource(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	src, err := h.Store.CreateIncomeSource(r.Context(), user.ID, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{ID: string(src.ID), Name: src.Name})
}

// DeleteIncomeSource removes a source unless splits reference it.
// DELETE /api/income-sources/{id}
func (h *Handler) DeleteIncomeSource(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.SourceID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteIncomeSource(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LOAN ENDPOINTS
// =============================================================================

// ListLoans returns loans, optionally filtered by contact. Loans are
// read-only here: their balances only move through transactions.
// GET /api/loans?contact_id=...
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var contact *ledger.ContactID
	if v := r.URL.Query().Get("contact_id"); v != "" {
		id := ledger.ContactID(v)
		contact = &id
	}

	loans, err := h.Store.ListLoans(r.Context(), user.ID, contact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loans", err)
		return
	}

	dtos := make([]LoanDTO, 0, len(loans))
	for i := range loans {
		dtos = append(dtos, toLoanDTO(&loans[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLoan returns one loan.
// GET /api/loans/{id}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.LoanID(chi.URLParam(r, "id"))

	loan, err := h.Store.GetLoan(r.Context(), user.ID, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// CreateTransaction validates and applies a transaction draft
// atomically: balances, loans and rows all move or nothing does.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	draft, err := req.toDraft(time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	tx, err := h.Engine.CreateTransaction(r.Context(), user.ID, draft)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ListTransactions returns the user's transactions, newest first.
// Shadow rows backing internal transfers are included; clients that
// want the merged view use /api/activity instead.
// GET /api/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	q, err := activityQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	txs, err := h.Store.ListTransactions(r.Context(), user.ID, q.Filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]TransactionDTO, 0, len(txs))
	for i := range txs {
		out = append(out, toTransactionDTO(&txs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTransaction returns one transaction with its account entries and
// splits.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	tx, err := h.Store.GetTransaction(r.Context(), user.ID, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction reverses every balance and loan effect, then
// removes the rows. Deleting a transfer's shadow row deletes the
// transfer.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteTransaction(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INTERNAL TRANSFER ENDPOINTS
// =============================================================================

// CreateTransfer moves money between two of the user's accounts.
// POST /api/internal-transactions
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	draft, err := req.toDraft(time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	tr, err := h.Engine.CreateTransfer(r.Context(), user.ID, draft)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferDTO(tr))
}

// ListTransfers returns the user's internal transfers, newest first.
// GET /api/internal-transactions
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	q, err := activityQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	trs, err := h.Store.ListTransfers(r.Context(), user.ID, q.Filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]TransferDTO, 0, len(trs))
	for i := range trs {
		out = append(out, toTransferDTO(&trs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTransfer returns one internal transfer.
// GET /api/internal-transactions/{id}
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.TransferID(chi.URLParam(r, "id"))

	tr, err := h.Store.GetTransfer(r.Context(), user.ID, id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferDTO(tr))
}

// DeleteTransfer reverses both balance moves and removes the transfer
// with its shadow transaction.
// DELETE /api/internal-transactions/{id}
func (h *Handler) DeleteTransfer(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := ledger.TransferID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteTransfer(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACTIVITY ENDPOINTS
// =============================================================================

// activityQuery builds an ActivityQuery from request parameters.
func activityQuery(r *http.Request) (ledger.ActivityQuery, error) {
	params := r.URL.Query()
	fields := ledger.FieldErrors{}

	q := ledger.ActivityQuery{
		Type:     params.Get("type"),
		Ordering: params.Get("ordering"),
	}

	if v := params.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields.Add("page", "A valid positive integer is required.")
		}
		q.Page = n
	}
	if v := params.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields.Add("page_size", "A valid positive integer is required.")
		}
		q.PageSize = n
	}
	if v := params.Get("date_from"); v != "" {
		t, err := parseDate(v, time.Time{})
		if err != nil {
			fields.Add("date_from", "Date has wrong format. Use YYYY-MM-DD or RFC3339.")
		}
		q.Filter.From = &t
	}
	if v := params.Get("date_to"); v != "" {
		t, err := parseDate(v, time.Time{})
		if err != nil {
			fields.Add("date_to", "Date has wrong format. Use YYYY-MM-DD or RFC3339.")
		}
		q.Filter.To = &t
	}
	if v := params.Get("contact_id"); v != "" {
		id := ledger.ContactID(v)
		q.Filter.ContactID = &id
	}
	if v := params.Get("account_id"); v != "" {
		id := ledger.AccountID(v)
		q.Filter.AccountID = &id
	}
	q.Filter.Search = params.Get("search")

	if !fields.Empty() {
		return q, &ledger.ValidationError{Fields: fields}
	}
	return q, nil
}

// GetActivity returns the merged transaction/transfer feed, filtered,
// ordered and paginated.
// GET /api/activity
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	q, err := activityQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, err := h.Engine.Activity(r.Context(), user.ID, q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := ActivityPageDTO{
		Count:    page.Count,
		Page:     page.Page,
		PageSize: page.PageSize,
		Results:  make([]ActivityItemDTO, 0, len(page.Results)),
	}
	for _, it := range page.Results {
		dto.Results = append(dto.Results, toActivityItemDTO(it))
	}
	writeJSON(w, http.StatusOK, dto)
}

// ExportActivity streams the full filtered feed as CSV.
// GET /api/activity/export
func (h *Handler) ExportActivity(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	q, err := activityQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items, err := h.Engine.ActivityAll(r.Context(), user.ID, q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="activity.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "type", "internal", "amount", "date", "note", "contact_id"})
	for _, it := range items {
		contact := ""
		if it.ContactID != nil {
			contact = string(*it.ContactID)
		}
		cw.Write([]string{
			it.ID,
			it.Type,
			strconv.FormatBool(it.IsInternal),
			it.Amount.StringFixed(2),
			it.Date.UTC().Format(time.RFC3339),
			it.Note,
			contact,
		})
	}
	cw.Flush()
}
