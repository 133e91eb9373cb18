// src/services/interfaces.go
package services

import (
	"encoding/json"
	"errors"

	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/parsers"
	"github.com/username/finledger/backend/src/processors"
)

// Define common service errors
var (
	ErrParserNotFound      = errors.New("parser not found")
	ErrParsingFailed       = errors.New("file parsing failed")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMerchantNotFound    = errors.New("merchant not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrInvalidConditions   = errors.New("invalid rule conditions")
)

// ImportResult summarizes one import call: how many rows were created, how
// many incoming rows were dropped or upgraded as duplicates, and the
// shared-ledger counters where they apply.
type ImportResult struct {
	SourceFileID    int64    `json:"source_file_id"`
	Created         int      `json:"created"`
	Duplicates      int      `json:"duplicates"`
	Upgraded        int      `json:"upgraded"`
	Updated         int      `json:"updated"`
	PersonsImported int      `json:"persons_imported"`
	AutoCreated     int      `json:"auto_created"`
	Processed       int      `json:"processed"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
}

// ImportService runs a parser over uploaded content and lands the result in
// the database, then feeds the new rows through the processing pipeline.
type ImportService interface {
	ImportFile(parserName, filename string, content []byte) (*ImportResult, error)
	ListParsers() []parsers.ParserInfo
}

// TransactionDetail is a transaction together with its audit trail.
type TransactionDetail struct {
	Transaction *models.Transaction             `json:"transaction"`
	History     []*models.TransformationHistory `json:"history"`
}

// TransactionService covers the read and manual-edit surface over stored
// transactions, plus reconciliation.
type TransactionService interface {
	ListTransactions(filter models.TransactionFilter) ([]*models.Transaction, error)
	GetTransactionWithHistory(id int64) (*TransactionDetail, error)
	SetManualCategory(id int64, categoryID *int64) (*models.Transaction, error)
	SetExclusion(id int64, excluded bool) (*models.Transaction, error)
	ListSplits(id int64) ([]*models.TransactionSplit, error)
	ListSourceFiles() ([]*models.SourceFile, error)
	Reconcile(dateToleranceDays int, dryRun bool) (*processors.ReconcileResult, error)
}

type RulePreviewSample struct {
	ID                int64   `json:"id"`
	Date              string  `json:"date"`
	Description       string  `json:"description"`
	Amount            float64 `json:"amount"`
	CurrentCategoryID *int64  `json:"current_category_id"`
	IsManual          bool    `json:"is_manual"`
}

type RulePreviewStats struct {
	TotalAmount       float64        `json:"total_amount"`
	CurrentCategories map[string]int `json:"current_categories"`
	ManualCount       int            `json:"manual_count"`
	AutoCount         int            `json:"auto_count"`
}

type RulePreview struct {
	TotalMatches       int                 `json:"total_matches"`
	Page               int                 `json:"page"`
	PageSize           int                 `json:"page_size"`
	TargetMerchantName *string             `json:"target_merchant_name"`
	TargetCategoryName *string             `json:"target_category_name"`
	SampleTransactions []RulePreviewSample `json:"sample_transactions"`
	Statistics         RulePreviewStats    `json:"statistics"`
}

type CreateRuleRequest struct {
	Name             string          `json:"name"`
	Conditions       json.RawMessage `json:"conditions"`
	MerchantID       int64           `json:"merchant_id"`
	Priority         int             `json:"priority"`
	ApplyImmediately bool            `json:"apply_immediately"`
}

type RuleApplication struct {
	RuleID              int64  `json:"rule_id"`
	RuleName            string `json:"rule_name"`
	Category            string `json:"category"`
	Merchant            string `json:"merchant"`
	TransactionsUpdated int    `json:"transactions_updated"`
	TransactionsSkipped int    `json:"transactions_skipped"`
}

// RulePatch carries partial rule updates; nil fields stay untouched.
type RulePatch struct {
	Name       *string         `json:"name"`
	Priority   *int            `json:"priority"`
	Conditions json.RawMessage `json:"conditions"`
	MerchantID *int64          `json:"merchant_id"`
	IsActive   *bool           `json:"is_active"`
}

type RuleSuggestion struct {
	SuggestedPattern   string              `json:"suggested_pattern"`
	Operator           string              `json:"operator"`
	Field              string              `json:"field"`
	MerchantID         int64               `json:"merchant_id"`
	WouldAffect        int                 `json:"would_affect"`
	SampleTransactions []RulePreviewSample `json:"sample_transactions"`
	Conditions         map[string]any      `json:"conditions"`
}

type DateRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// PatternSuggestion is one candidate rule mined from uncategorized rows.
type PatternSuggestion struct {
	Pattern            string     `json:"pattern"`
	TransactionCount   int        `json:"transaction_count"`
	TotalAmount        float64    `json:"total_amount"`
	AvgAmount          float64    `json:"avg_amount"`
	SampleDescriptions []string   `json:"sample_descriptions"`
	DateRange          *DateRange `json:"date_range"`
	Score              float64    `json:"score"`
}

type RecategorizeChange struct {
	TransactionID  int64  `json:"transaction_id"`
	Description    string `json:"description"`
	BeforeCategory *int64 `json:"before_category"`
	AfterCategory  *int64 `json:"after_category"`
	RuleApplied    string `json:"rule_applied"`
}

type RecategorizeResult struct {
	TotalChecked int                  `json:"total_checked"`
	Changed      int                  `json:"changed"`
	Changes      []RecategorizeChange `json:"changes"`
	DryRun       bool                 `json:"dry_run"`
}

// RuleService covers rule CRUD plus the preview, suggestion and batch
// recategorization operations built on the rule engine.
type RuleService interface {
	ListRules() ([]*models.CategorizationRule, error)
	UpdateRule(id int64, patch RulePatch) (*models.CategorizationRule, error)
	DeleteRule(id int64) error
	PreviewRuleMatches(conditions json.RawMessage, merchantID *int64, page, pageSize int) (*RulePreview, error)
	CreateRuleAndApply(req CreateRuleRequest) (*RuleApplication, error)
	SuggestRuleFromTransaction(transactionID int64) (*RuleSuggestion, error)
	GenerateRuleSuggestions(limit int) ([]PatternSuggestion, error)
	BulkRecategorize(merchantID, categoryID *int64, dryRun bool) (*RecategorizeResult, error)
}
