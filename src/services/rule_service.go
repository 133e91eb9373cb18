// src/services/rule_service.go
package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/processors"
)

const (
	ckRuleSuggestions      = "agg_rule_suggestions"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// suggestionStopwords are transfer-rail markers and filler words that never
// identify a merchant.
var suggestionStopwords = map[string]bool{
	"UPI": true, "IMPS": true, "NEFT": true, "RTGS": true,
	"THE": true, "AND": true, "OR": true, "TO": true,
	"FROM": true, "FOR": true, "WITH": true,
}

var patternStopwords = map[string]bool{
	"THE": true, "AND": true, "OR": true, "TO": true,
	"FROM": true, "FOR": true, "WITH": true,
}

// patternBlocklist holds generic banking tokens too common to seed a rule.
var patternBlocklist = map[string]bool{
	"TRANSFER": true, "PAYMENT": true, "CASH": true, "DEBIT": true,
	"CREDIT": true, "REVERSAL": true, "REFUND": true, "SELF": true,
	"MOBILE": true, "ONLINE": true, "INTEREST": true, "BANK": true,
	"CHARGES": true, "WITHDRAWAL": true, "DEPOSIT": true, "ATM": true,
}

var descriptionPrefixes = []string{"UPI-", "IMPS-", "NEFT-", "RTGS-", "ACH-"}

type ruleServiceImpl struct {
	db        *sql.DB
	ruleCache *cache.Cache
}

func NewRuleService(db *sql.DB, ruleCache *cache.Cache) RuleService {
	return &ruleServiceImpl{db: db, ruleCache: ruleCache}
}

func (s *ruleServiceImpl) ListRules() ([]*models.CategorizationRule, error) {
	return models.ListRules(s.db)
}

func (s *ruleServiceImpl) UpdateRule(id int64, patch RulePatch) (*models.CategorizationRule, error) {
	rule, err := models.GetRuleByID(s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
		}
		return nil, err
	}

	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if len(patch.Conditions) > 0 {
		if _, err := models.ParseConditions(patch.Conditions); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
		}
		rule.Conditions = patch.Conditions
	}
	if patch.MerchantID != nil {
		merchant, err := models.GetMerchantByID(s.db, *patch.MerchantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %d", ErrMerchantNotFound, *patch.MerchantID)
			}
			return nil, err
		}
		rule.MerchantID = merchant.ID
		rule.CategoryID = merchant.DefaultCategoryID
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}

	if err := rule.Update(s.db); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *ruleServiceImpl) DeleteRule(id int64) error {
	if _, err := models.GetRuleByID(s.db, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
		}
		return err
	}
	return models.DeleteRule(s.db, id)
}

// PreviewRuleMatches evaluates candidate conditions against every stored
// transaction without writing anything.
func (s *ruleServiceImpl) PreviewRuleMatches(conditions json.RawMessage, merchantID *int64, page, pageSize int) (*RulePreview, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	node, err := models.ParseConditions(conditions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}

	allTxns, err := models.ListTransactions(s.db, models.TransactionFilter{IncludeExcluded: true})
	if err != nil {
		return nil, err
	}
	merchantMap, err := s.loadMerchantMap(s.db)
	if err != nil {
		return nil, err
	}
	categoryNames, err := s.loadCategoryNames(s.db)
	if err != nil {
		return nil, err
	}

	var matches []*models.Transaction
	for _, tx := range allTxns {
		var merchant *models.Merchant
		if tx.MerchantID != nil {
			merchant = merchantMap[*tx.MerchantID]
		}
		if processors.EvaluateRule(tx, node, merchant) {
			matches = append(matches, tx)
		}
	}

	stats := RulePreviewStats{CurrentCategories: map[string]int{}}
	for _, tx := range matches {
		stats.TotalAmount += tx.Amount.InexactFloat64()
		if tx.IsCategoryAuto {
			stats.AutoCount++
		} else {
			stats.ManualCount++
		}
		if tx.CategoryID == nil {
			stats.CurrentCategories["Uncategorized"]++
		} else if name, ok := categoryNames[*tx.CategoryID]; ok {
			stats.CurrentCategories[name]++
		} else {
			stats.CurrentCategories["Unknown"]++
		}
	}

	var targetMerchantName, targetCategoryName *string
	if merchantID != nil {
		merchant, err := models.GetMerchantByID(s.db, *merchantID)
		if err == nil {
			targetMerchantName = &merchant.Name
			categoryName := "Unknown"
			if merchant.DefaultCategoryID != nil {
				if name, ok := categoryNames[*merchant.DefaultCategoryID]; ok {
					categoryName = name
				}
			}
			targetCategoryName = &categoryName
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	start := (page - 1) * pageSize
	if start > len(matches) {
		start = len(matches)
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}

	samples := make([]RulePreviewSample, 0, end-start)
	for _, tx := range matches[start:end] {
		samples = append(samples, previewSample(tx))
	}

	return &RulePreview{
		TotalMatches:       len(matches),
		Page:               page,
		PageSize:           pageSize,
		TargetMerchantName: targetMerchantName,
		TargetCategoryName: targetCategoryName,
		SampleTransactions: samples,
		Statistics:         stats,
	}, nil
}

// CreateRuleAndApply persists a rule and, when requested, immediately
// recategorizes every matching auto-categorized transaction. Rows someone
// categorized by hand are counted as skipped, never overwritten.
func (s *ruleServiceImpl) CreateRuleAndApply(req CreateRuleRequest) (*RuleApplication, error) {
	merchant, err := models.GetMerchantByID(s.db, req.MerchantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrMerchantNotFound, req.MerchantID)
		}
		return nil, err
	}

	categoryName := "Unknown"
	if merchant.DefaultCategoryID != nil {
		category, err := models.GetCategoryByID(s.db, *merchant.DefaultCategoryID)
		if err == nil {
			categoryName = category.Name
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	conditions := req.Conditions
	if len(conditions) == 0 {
		conditions = json.RawMessage("{}")
	}
	node, err := models.ParseConditions(conditions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	rule := &models.CategorizationRule{
		Name:       req.Name,
		RuleType:   models.RuleTypeDescriptionPattern,
		Conditions: conditions,
		CategoryID: merchant.DefaultCategoryID,
		MerchantID: req.MerchantID,
		Priority:   req.Priority,
		IsActive:   true,
	}
	if err := rule.Insert(dbTx); err != nil {
		return nil, fmt.Errorf("error inserting rule: %w", err)
	}

	updated := 0
	skipped := 0
	if req.ApplyImmediately {
		allTxns, err := models.ListTransactions(dbTx, models.TransactionFilter{IncludeExcluded: true})
		if err != nil {
			return nil, err
		}
		merchantMap, err := s.loadMerchantMap(dbTx)
		if err != nil {
			return nil, err
		}

		for _, tx := range allTxns {
			var txMerchant *models.Merchant
			if tx.MerchantID != nil {
				txMerchant = merchantMap[*tx.MerchantID]
			}
			if !processors.EvaluateRule(tx, node, txMerchant) {
				continue
			}
			if !tx.IsCategoryAuto {
				skipped++
				continue
			}

			oldCategory := tx.CategoryID
			merchantID := req.MerchantID
			ruleID := rule.ID
			tx.MerchantID = &merchantID
			tx.CategoryID = merchant.DefaultCategoryID
			tx.IsCategoryAuto = true
			tx.AppliedRuleID = &ruleID

			hist := &models.TransformationHistory{
				TransactionID: tx.ID,
				StepName:      "rule_application",
				StepOrder:     99,
				InputData:     map[string]any{"category_id": oldCategory},
				OutputData:    map[string]any{"category_id": tx.CategoryID, "merchant_id": tx.MerchantID},
				RuleApplied:   req.Name,
			}
			if err := hist.Insert(dbTx); err != nil {
				return nil, fmt.Errorf("error recording rule application: %w", err)
			}
			if err := tx.Update(dbTx); err != nil {
				return nil, fmt.Errorf("error applying rule to transaction %d: %w", tx.ID, err)
			}
			updated++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing rule creation: %w", err)
	}
	s.ruleCache.Delete(ckRuleSuggestions)

	logger.L.Info("Rule created", "ruleID", rule.ID, "name", req.Name, "updated", updated, "skipped", skipped)
	return &RuleApplication{
		RuleID:              rule.ID,
		RuleName:            req.Name,
		Category:            categoryName,
		Merchant:            merchant.Name,
		TransactionsUpdated: updated,
		TransactionsSkipped: skipped,
	}, nil
}

// SuggestRuleFromTransaction proposes a contains-rule for the transaction's
// first significant keyword, but only when at least three stored transactions
// would match it. Returns nil when there is nothing worth suggesting.
func (s *ruleServiceImpl) SuggestRuleFromTransaction(transactionID int64) (*RuleSuggestion, error) {
	tx, err := models.GetTransactionByID(s.db, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, transactionID)
		}
		return nil, err
	}

	description := tx.CleanedDescription
	if description == "" {
		description = tx.OriginalDescription
	}

	var keyword string
	for _, word := range strings.Fields(strings.ToUpper(description)) {
		if len(word) > 3 && !suggestionStopwords[word] {
			keyword = word
			break
		}
	}
	if keyword == "" {
		return nil, nil
	}
	if tx.MerchantID == nil {
		return nil, nil
	}

	conditions := map[string]any{
		"rules": []any{
			map[string]any{"field": "description", "operator": "contains", "value": keyword},
		},
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, err
	}

	preview, err := s.PreviewRuleMatches(conditionsJSON, tx.MerchantID, 1, 20)
	if err != nil {
		return nil, err
	}
	if preview.TotalMatches < 3 {
		return nil, nil
	}

	samples := preview.SampleTransactions
	if len(samples) > 5 {
		samples = samples[:5]
	}

	return &RuleSuggestion{
		SuggestedPattern:   keyword,
		Operator:           "contains",
		Field:              "description",
		MerchantID:         *tx.MerchantID,
		WouldAffect:        preview.TotalMatches,
		SampleTransactions: samples,
		Conditions:         conditions,
	}, nil
}

// BulkRecategorize reruns the categorizer over auto-categorized rows,
// optionally narrowed by merchant or category. With dryRun the work happens
// inside a transaction that is rolled back, so the report shows what would
// change without changing it.
func (s *ruleServiceImpl) BulkRecategorize(merchantID, categoryID *int64, dryRun bool) (*RecategorizeResult, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	transactions, err := models.ListTransactions(dbTx, models.TransactionFilter{
		OnlyAuto:        true,
		MerchantID:      merchantID,
		CategoryID:      categoryID,
		IncludeExcluded: true,
	})
	if err != nil {
		return nil, err
	}

	var changes []RecategorizeChange
	for _, tx := range transactions {
		var before *int64
		if tx.CategoryID != nil {
			v := *tx.CategoryID
			before = &v
		}

		stepResult, err := processors.ApplyCategorization(dbTx, tx)
		if err != nil {
			return nil, err
		}
		if err := tx.Update(dbTx); err != nil {
			return nil, fmt.Errorf("error updating transaction %d: %w", tx.ID, err)
		}

		if !int64PtrEqual(before, tx.CategoryID) {
			description := tx.CleanedDescription
			if description == "" {
				description = tx.OriginalDescription
			}
			changes = append(changes, RecategorizeChange{
				TransactionID:  tx.ID,
				Description:    description,
				BeforeCategory: before,
				AfterCategory:  tx.CategoryID,
				RuleApplied:    stepResult.Rule,
			})
		}
	}

	if !dryRun {
		if err := dbTx.Commit(); err != nil {
			return nil, fmt.Errorf("error committing recategorization: %w", err)
		}
		s.ruleCache.Delete(ckRuleSuggestions)
	}

	limited := changes
	if len(limited) > 50 {
		limited = limited[:50]
	}
	logger.L.Info("Bulk recategorize finished", "checked", len(transactions), "changed", len(changes), "dryRun", dryRun)
	return &RecategorizeResult{
		TotalChecked: len(transactions),
		Changed:      len(changes),
		Changes:      limited,
		DryRun:       dryRun,
	}, nil
}

// GenerateRuleSuggestions mines uncategorized, merchant-less transactions for
// recurring description tokens and ranks them by how much volume a rule on
// that token would cover. Results are cached until the next import or rule
// application changes the underlying rows.
func (s *ruleServiceImpl) GenerateRuleSuggestions(limit int) ([]PatternSuggestion, error) {
	if limit <= 0 {
		limit = 20
	}

	if cached, found := s.ruleCache.Get(ckRuleSuggestions); found {
		suggestions := cached.([]PatternSuggestion)
		if len(suggestions) > limit {
			suggestions = suggestions[:limit]
		}
		return suggestions, nil
	}

	suggestions, err := s.computeRuleSuggestions()
	if err != nil {
		return nil, err
	}
	s.ruleCache.Set(ckRuleSuggestions, suggestions, DefaultCacheExpiration)

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (s *ruleServiceImpl) computeRuleSuggestions() ([]PatternSuggestion, error) {
	uncategorized, err := models.ListTransactions(s.db, models.TransactionFilter{
		Uncategorized:   true,
		NoMerchant:      true,
		IncludeExcluded: true,
	})
	if err != nil {
		return nil, err
	}
	if len(uncategorized) == 0 {
		return []PatternSuggestion{}, nil
	}

	tokenGroups := make(map[string][]*models.Transaction)
	for _, tx := range uncategorized {
		description := tx.CleanedDescription
		if description == "" {
			description = tx.OriginalDescription
		}
		token := extractPatternFromDescription(description)
		if token == "" || patternBlocklist[token] || isAllDigits(token) {
			continue
		}
		tokenGroups[token] = append(tokenGroups[token], tx)
	}

	// Biggest groups become merge leaders; ties break lexically so runs
	// over the same data produce the same leaders.
	sortedTokens := make([]string, 0, len(tokenGroups))
	for token := range tokenGroups {
		sortedTokens = append(sortedTokens, token)
	}
	sort.Slice(sortedTokens, func(i, j int) bool {
		si, sj := len(tokenGroups[sortedTokens[i]]), len(tokenGroups[sortedTokens[j]])
		if si != sj {
			return si > sj
		}
		return sortedTokens[i] < sortedTokens[j]
	})

	var leaders []string
	mergedGroups := make(map[string][]*models.Transaction)
	for _, token := range sortedTokens {
		leader := ""
		for _, existing := range leaders {
			if tokenSimilarity(token, existing) >= 80 {
				leader = existing
				break
			}
		}
		if leader != "" {
			mergedGroups[leader] = append(mergedGroups[leader], tokenGroups[token]...)
		} else {
			leaders = append(leaders, token)
			mergedGroups[token] = append([]*models.Transaction(nil), tokenGroups[token]...)
		}
	}

	suggestions := []PatternSuggestion{}
	for _, pattern := range leaders {
		group := mergedGroups[pattern]
		if len(group) < 3 {
			continue
		}

		expenseTotal := 0.0
		incomeTotal := 0.0
		for _, tx := range group {
			amount := tx.Amount.InexactFloat64()
			if tx.TransactionType == models.KindIncome {
				incomeTotal += amount
			} else {
				expenseTotal += amount
			}
		}
		// Net spend for display, gross volume for ranking.
		totalAmount := expenseTotal - incomeTotal
		avgAmount := totalAmount / float64(len(group))
		grossAmount := expenseTotal + incomeTotal

		seen := make(map[string]bool)
		var sampleDescriptions []string
		for _, tx := range group {
			description := tx.CleanedDescription
			if description == "" {
				description = tx.OriginalDescription
			}
			if description == "" || seen[description] {
				continue
			}
			sampleDescriptions = append(sampleDescriptions, description)
			seen[description] = true
			if len(sampleDescriptions) >= 5 {
				break
			}
		}

		earliest := group[0].TransactionDate
		latest := group[0].TransactionDate
		for _, tx := range group[1:] {
			if tx.TransactionDate.Before(earliest) {
				earliest = tx.TransactionDate
			}
			if tx.TransactionDate.After(latest) {
				latest = tx.TransactionDate
			}
		}

		suggestions = append(suggestions, PatternSuggestion{
			Pattern:            pattern,
			TransactionCount:   len(group),
			TotalAmount:        totalAmount,
			AvgAmount:          avgAmount,
			SampleDescriptions: sampleDescriptions,
			DateRange: &DateRange{
				Earliest: earliest.Format("2006-01-02"),
				Latest:   latest.Format("2006-01-02"),
			},
			Score: float64(len(group))*0.6 + grossAmount/1000*0.4,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].TransactionCount > suggestions[j].TransactionCount
	})
	return suggestions, nil
}

func (s *ruleServiceImpl) loadMerchantMap(db models.DBTX) (map[int64]*models.Merchant, error) {
	merchants, err := models.ListMerchants(db)
	if err != nil {
		return nil, err
	}
	merchantMap := make(map[int64]*models.Merchant, len(merchants))
	for _, m := range merchants {
		merchantMap[m.ID] = m
	}
	return merchantMap, nil
}

func (s *ruleServiceImpl) loadCategoryNames(db models.DBTX) (map[int64]string, error) {
	categories, err := models.ListCategories(db)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}

func previewSample(tx *models.Transaction) RulePreviewSample {
	description := tx.CleanedDescription
	if description == "" {
		description = tx.OriginalDescription
	}
	return RulePreviewSample{
		ID:                tx.ID,
		Date:              tx.TransactionDate.Format("2006-01-02"),
		Description:       description,
		Amount:            tx.Amount.InexactFloat64(),
		CurrentCategoryID: tx.CategoryID,
		IsManual:          !tx.IsCategoryAuto,
	}
}

// extractPatternFromDescription pulls the token most likely to identify the
// counterparty: the first word longer than three characters after stripping a
// transfer-rail prefix, skipping filler words.
func extractPatternFromDescription(description string) string {
	if description == "" {
		return ""
	}

	desc := strings.ToUpper(description)
	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(desc, prefix) {
			desc = desc[len(prefix):]
			break
		}
	}

	words := strings.Fields(desc)
	for _, word := range words {
		if len(word) > 3 && !patternStopwords[word] {
			return word
		}
	}
	if len(words) > 0 {
		return words[0]
	}
	return ""
}

// tokenSimilarity scores two tokens 0-100 by Levenshtein distance relative
// to the longer token's length.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 100
	}
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 100 * (1 - float64(distance)/float64(maxLen))
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
