// src/handlers/rule_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/security/validation"
	"github.com/username/finledger/backend/src/services"
)

type RuleHandler struct {
	ruleService services.RuleService
}

func NewRuleHandler(ruleService services.RuleService) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
	}
}

func (h *RuleHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.ruleService.ListRules()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list rules", "error", err)
		sendJSONError(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []*models.CategorizationRule{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rules)
}

func (h *RuleHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	// Absent priority keeps the default; an explicit 0 is respected.
	req := services.CreateRuleRequest{Priority: 50}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = validation.SanitizeText(strings.TrimSpace(req.Name))
	if req.Name == "" {
		sendJSONError(w, "Rule name is required", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(req.Name, validation.MaxRuleNameLength, "Rule name"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MerchantID == 0 {
		sendJSONError(w, "'merchant_id' is required", http.StatusBadRequest)
		return
	}

	result, err := h.ruleService.CreateRuleAndApply(req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMerchantNotFound):
			sendJSONError(w, "Merchant not found", http.StatusBadRequest)
		case errors.Is(err, services.ErrInvalidConditions):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			ctxLogger.Error("Failed to create rule", "name", req.Name, "error", err)
			sendJSONError(w, "Failed to create rule", http.StatusInternalServerError)
		}
		return
	}

	ctxLogger.Info("Rule created", "ruleID", result.RuleID, "name", result.RuleName,
		"applied", req.ApplyImmediately, "updated", result.TransactionsUpdated)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *RuleHandler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid rule ID", http.StatusBadRequest)
		return
	}

	var patch services.RulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if patch.Name != nil {
		sanitized := validation.SanitizeText(strings.TrimSpace(*patch.Name))
		if sanitized == "" {
			sendJSONError(w, "Rule name cannot be empty", http.StatusBadRequest)
			return
		}
		if err := validation.ValidateStringMaxLength(sanitized, validation.MaxRuleNameLength, "Rule name"); err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		patch.Name = &sanitized
	}

	rule, err := h.ruleService.UpdateRule(id, patch)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRuleNotFound):
			sendJSONError(w, "Rule not found", http.StatusNotFound)
		case errors.Is(err, services.ErrMerchantNotFound):
			sendJSONError(w, "Merchant not found", http.StatusBadRequest)
		case errors.Is(err, services.ErrInvalidConditions):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.FromContext(r.Context()).Error("Failed to update rule", "ruleID", id, "error", err)
			sendJSONError(w, "Failed to update rule", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rule)
}

func (h *RuleHandler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid rule ID", http.StatusBadRequest)
		return
	}

	if err := h.ruleService.DeleteRule(id); err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			sendJSONError(w, "Rule not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to delete rule", "ruleID", id, "error", err)
		sendJSONError(w, "Failed to delete rule", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) HandlePreviewRule(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Conditions json.RawMessage `json:"conditions"`
		MerchantID *int64          `json:"merchant_id"`
		Page       int             `json:"page"`
		PageSize   int             `json:"page_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.Conditions) == 0 {
		sendJSONError(w, "'conditions' is required", http.StatusBadRequest)
		return
	}

	preview, err := h.ruleService.PreviewRuleMatches(payload.Conditions, payload.MerchantID, payload.Page, payload.PageSize)
	if err != nil {
		if errors.Is(err, services.ErrInvalidConditions) {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to preview rule", "error", err)
		sendJSONError(w, "Failed to preview rule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

func (h *RuleHandler) HandleRuleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			sendJSONError(w, "Invalid 'limit'", http.StatusBadRequest)
			return
		}
		limit = n
	}

	suggestions, err := h.ruleService.GenerateRuleSuggestions(limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to generate rule suggestions", "error", err)
		sendJSONError(w, "Failed to generate rule suggestions", http.StatusInternalServerError)
		return
	}
	if suggestions == nil {
		suggestions = []services.PatternSuggestion{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(suggestions)
}

// HandleSuggestRuleForTransaction responds with null when no sensible rule can
// be derived from the transaction's description.
func (h *RuleHandler) HandleSuggestRuleForTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	suggestion, err := h.ruleService.SuggestRuleFromTransaction(id)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			sendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to suggest rule", "transactionID", id, "error", err)
		sendJSONError(w, "Failed to suggest rule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(suggestion)
}

func (h *RuleHandler) HandleRecategorize(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	dryRun := parseBoolParam(r, "dry_run")

	var payload struct {
		MerchantID *int64 `json:"merchant_id"`
		CategoryID *int64 `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Handling bulk recategorize request", "dryRun", dryRun,
		"merchantID", payload.MerchantID, "categoryID", payload.CategoryID)

	result, err := h.ruleService.BulkRecategorize(payload.MerchantID, payload.CategoryID, dryRun)
	if err != nil {
		ctxLogger.Error("Bulk recategorize failed", "error", err)
		sendJSONError(w, "Bulk recategorize failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
