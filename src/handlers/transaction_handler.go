// src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/services"
)

type TransactionHandler struct {
	transactionService services.TransactionService
}

func NewTransactionHandler(transactionService services.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parseBoolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.TransactionFilter{
		SourceType:      q.Get("source_type"),
		TransactionType: q.Get("transaction_type"),
		Search:          q.Get("search"),
		IncludeExcluded: parseBoolParam(r, "excluded"),
		Uncategorized:   parseBoolParam(r, "uncategorized"),
		Limit:           100,
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			sendJSONError(w, "Invalid 'start' date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.DateFrom = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			sendJSONError(w, "Invalid 'end' date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.DateTo = &t
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			sendJSONError(w, "Invalid 'category_id'", http.StatusBadRequest)
			return
		}
		filter.CategoryID = &id
	}
	if v := q.Get("merchant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			sendJSONError(w, "Invalid 'merchant_id'", http.StatusBadRequest)
			return
		}
		filter.MerchantID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			sendJSONError(w, "Invalid 'limit'", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendJSONError(w, "Invalid 'offset'", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}

	transactions, err := h.transactionService.ListTransactions(filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list transactions", "error", err)
		sendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []*models.Transaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

func (h *TransactionHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	detail, err := h.transactionService.GetTransactionWithHistory(id)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			sendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to load transaction", "transactionID", id, "error", err)
		sendJSONError(w, "Failed to load transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

func (h *TransactionHandler) HandleSetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		CategoryID *int64 `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.transactionService.SetManualCategory(id, payload.CategoryID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			sendJSONError(w, "Transaction not found", http.StatusNotFound)
		case errors.Is(err, services.ErrCategoryNotFound):
			sendJSONError(w, "Category not found", http.StatusBadRequest)
		default:
			logger.FromContext(r.Context()).Error("Failed to set category", "transactionID", id, "error", err)
			sendJSONError(w, "Failed to update transaction", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *TransactionHandler) HandleSetExclusion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	var payload struct {
		IsExcluded bool `json:"is_excluded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.transactionService.SetExclusion(id, payload.IsExcluded)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			sendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to set exclusion", "transactionID", id, "error", err)
		sendJSONError(w, "Failed to update transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *TransactionHandler) HandleListSplits(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	splits, err := h.transactionService.ListSplits(id)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			sendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to list splits", "transactionID", id, "error", err)
		sendJSONError(w, "Failed to list splits", http.StatusInternalServerError)
		return
	}
	if splits == nil {
		splits = []*models.TransactionSplit{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(splits)
}

func (h *TransactionHandler) HandleListSourceFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.transactionService.ListSourceFiles()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list source files", "error", err)
		sendJSONError(w, "Failed to list source files", http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []*models.SourceFile{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

func (h *TransactionHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	dryRun := parseBoolParam(r, "dry_run")

	toleranceDays := 0
	if v := r.URL.Query().Get("tolerance_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendJSONError(w, "Invalid 'tolerance_days'", http.StatusBadRequest)
			return
		}
		toleranceDays = n
	}

	ctxLogger.Info("Handling reconcile request", "dryRun", dryRun, "toleranceDays", toleranceDays)

	result, err := h.transactionService.Reconcile(toleranceDays, dryRun)
	if err != nil {
		ctxLogger.Error("Reconciliation failed", "error", err)
		sendJSONError(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
