// src/services/rule_service_test.go
package services

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finledger/backend/src/models"
)

func insertCategory(t *testing.T, db models.DBTX, name string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name}
	require.NoError(t, c.Insert(db))
	return c
}

func insertMerchant(t *testing.T, db models.DBTX, name string, defaultCategoryID *int64) *models.Merchant {
	t.Helper()
	m := &models.Merchant{Name: name, DefaultCategoryID: defaultCategoryID}
	require.NoError(t, m.Insert(db))
	return m
}

func insertTx(t *testing.T, db models.DBTX, tx *models.Transaction) *models.Transaction {
	t.Helper()
	if tx.SourceType == "" {
		tx.SourceType = models.SourceBankCSV
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = date(2024, 6, 1)
	}
	if tx.Amount.IsZero() {
		tx.Amount = dec("100.00")
	}
	require.NoError(t, tx.Insert(db))
	return tx
}

func TestCreateRuleAndApply_UpdatesMatchingAutoRows(t *testing.T) {
	db := newTestDB(t)
	ruleCache := newTestCache()
	svc := NewRuleService(db, ruleCache)

	food := insertCategory(t, db, "Food")
	other := insertCategory(t, db, "Gifts")
	zomato := insertMerchant(t, db, "Zomato", &food.ID)

	auto1 := insertTx(t, db, &models.Transaction{OriginalDescription: "ZOMATO ORDER 1", IsCategoryAuto: true})
	auto2 := insertTx(t, db, &models.Transaction{OriginalDescription: "UPI ZOMATO 2", IsCategoryAuto: true})
	manual := insertTx(t, db, &models.Transaction{OriginalDescription: "zomato treat", CategoryID: &other.ID, IsCategoryAuto: false})
	unrelated := insertTx(t, db, &models.Transaction{OriginalDescription: "SWIGGY ORDER", IsCategoryAuto: true})

	// A stale entry must be dropped once the rule changes what matches.
	ruleCache.Set(ckRuleSuggestions, []PatternSuggestion{}, DefaultCacheExpiration)

	result, err := svc.CreateRuleAndApply(CreateRuleRequest{
		Name:             "zomato orders",
		Conditions:       json.RawMessage(`{"rules": [{"value": "zomato"}]}`),
		MerchantID:       zomato.ID,
		Priority:         10,
		ApplyImmediately: true,
	})
	require.NoError(t, err)

	assert.NotZero(t, result.RuleID)
	assert.Equal(t, "zomato orders", result.RuleName)
	assert.Equal(t, "Food", result.Category)
	assert.Equal(t, "Zomato", result.Merchant)
	assert.Equal(t, 2, result.TransactionsUpdated)
	assert.Equal(t, 1, result.TransactionsSkipped)

	rule, err := models.GetRuleByID(db, result.RuleID)
	require.NoError(t, err)
	assert.Equal(t, 10, rule.Priority)
	assert.True(t, rule.IsActive)
	require.NotNil(t, rule.CategoryID)
	assert.Equal(t, food.ID, *rule.CategoryID)

	for _, id := range []int64{auto1.ID, auto2.ID} {
		stored, err := models.GetTransactionByID(db, id)
		require.NoError(t, err)
		require.NotNil(t, stored.CategoryID)
		assert.Equal(t, food.ID, *stored.CategoryID)
		require.NotNil(t, stored.MerchantID)
		assert.Equal(t, zomato.ID, *stored.MerchantID)
		require.NotNil(t, stored.AppliedRuleID)
		assert.Equal(t, result.RuleID, *stored.AppliedRuleID)
	}

	storedManual, err := models.GetTransactionByID(db, manual.ID)
	require.NoError(t, err)
	require.NotNil(t, storedManual.CategoryID)
	assert.Equal(t, other.ID, *storedManual.CategoryID, "a manual choice survives rule application")
	assert.Nil(t, storedManual.AppliedRuleID)

	storedUnrelated, err := models.GetTransactionByID(db, unrelated.ID)
	require.NoError(t, err)
	assert.Nil(t, storedUnrelated.CategoryID)

	history, err := models.ListHistoryByTransaction(db, auto1.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "rule_application", history[0].StepName)
	assert.Equal(t, 99, history[0].StepOrder)
	assert.Equal(t, "zomato orders", history[0].RuleApplied)
	assert.EqualValues(t, food.ID, history[0].OutputData["category_id"])

	_, found := ruleCache.Get(ckRuleSuggestions)
	assert.False(t, found)
}

func TestCreateRuleAndApply_WithoutApply(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	food := insertCategory(t, db, "Food")
	zomato := insertMerchant(t, db, "Zomato", &food.ID)
	tx := insertTx(t, db, &models.Transaction{OriginalDescription: "ZOMATO ORDER", IsCategoryAuto: true})

	result, err := svc.CreateRuleAndApply(CreateRuleRequest{
		Name:       "zomato orders",
		Conditions: json.RawMessage(`{"rules": [{"value": "zomato"}]}`),
		MerchantID: zomato.ID,
	})
	require.NoError(t, err)
	assert.Zero(t, result.TransactionsUpdated)
	assert.Zero(t, result.TransactionsSkipped)

	stored, err := models.GetTransactionByID(db, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CategoryID)
}

func TestCreateRuleAndApply_UnknownMerchant(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	_, err := svc.CreateRuleAndApply(CreateRuleRequest{Name: "orphan", MerchantID: 999})
	require.ErrorIs(t, err, ErrMerchantNotFound)
}

func TestCreateRuleAndApply_InvalidConditions(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	merchant := insertMerchant(t, db, "Zomato", nil)

	_, err := svc.CreateRuleAndApply(CreateRuleRequest{
		Name:       "broken",
		Conditions: json.RawMessage(`{bad`),
		MerchantID: merchant.ID,
	})
	require.ErrorIs(t, err, ErrInvalidConditions)
}

func TestPreviewRuleMatches(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	entertainment := insertCategory(t, db, "Entertainment")
	netflix := insertMerchant(t, db, "Netflix", &entertainment.ID)

	for i := 0; i < 3; i++ {
		insertTx(t, db, &models.Transaction{OriginalDescription: "NETFLIX SUBSCRIPTION", IsCategoryAuto: true})
	}
	insertTx(t, db, &models.Transaction{OriginalDescription: "NETFLIX ANNUAL", CategoryID: &entertainment.ID, IsCategoryAuto: false})
	insertTx(t, db, &models.Transaction{OriginalDescription: "NETFLIX UPGRADE", CategoryID: &entertainment.ID, IsCategoryAuto: true})
	insertTx(t, db, &models.Transaction{OriginalDescription: "NETFLIX EXTRA", IsCategoryAuto: true, IsExcluded: true})
	insertTx(t, db, &models.Transaction{OriginalDescription: "HOTSTAR", IsCategoryAuto: true})

	preview, err := svc.PreviewRuleMatches(json.RawMessage(`{"rules": [{"value": "netflix"}]}`), &netflix.ID, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 6, preview.TotalMatches, "excluded rows still count in a preview")
	assert.Equal(t, 1, preview.Page)
	assert.Equal(t, 20, preview.PageSize)
	assert.Len(t, preview.SampleTransactions, 6)

	assert.InDelta(t, 600.0, preview.Statistics.TotalAmount, 0.001)
	assert.Equal(t, 5, preview.Statistics.AutoCount)
	assert.Equal(t, 1, preview.Statistics.ManualCount)
	assert.Equal(t, 4, preview.Statistics.CurrentCategories["Uncategorized"])
	assert.Equal(t, 2, preview.Statistics.CurrentCategories["Entertainment"])

	require.NotNil(t, preview.TargetMerchantName)
	assert.Equal(t, "Netflix", *preview.TargetMerchantName)
	require.NotNil(t, preview.TargetCategoryName)
	assert.Equal(t, "Entertainment", *preview.TargetCategoryName)
}

func TestPreviewRuleMatches_Pagination(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	for i := 0; i < 5; i++ {
		insertTx(t, db, &models.Transaction{OriginalDescription: "METRO RECHARGE", IsCategoryAuto: true})
	}

	page2, err := svc.PreviewRuleMatches(json.RawMessage(`{"rules": [{"value": "metro"}]}`), nil, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page2.TotalMatches)
	assert.Len(t, page2.SampleTransactions, 2)

	page3, err := svc.PreviewRuleMatches(json.RawMessage(`{"rules": [{"value": "metro"}]}`), nil, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3.SampleTransactions, 1)

	beyond, err := svc.PreviewRuleMatches(json.RawMessage(`{"rules": [{"value": "metro"}]}`), nil, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond.SampleTransactions)
}

func TestPreviewRuleMatches_InvalidConditions(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	_, err := svc.PreviewRuleMatches(json.RawMessage(`{bad`), nil, 1, 20)
	require.ErrorIs(t, err, ErrInvalidConditions)
}

func TestUpdateRule(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	food := insertCategory(t, db, "Food")
	groceries := insertCategory(t, db, "Groceries")
	zomato := insertMerchant(t, db, "Zomato", &food.ID)
	dmart := insertMerchant(t, db, "DMart", &groceries.ID)

	rule := &models.CategorizationRule{
		Name:       "zomato orders",
		Conditions: json.RawMessage(`{"rules": [{"value": "zomato"}]}`),
		MerchantID: zomato.ID,
		CategoryID: &food.ID,
		Priority:   10,
		IsActive:   true,
	}
	require.NoError(t, rule.Insert(db))

	newName := "dmart runs"
	newPriority := 5
	inactive := false
	updated, err := svc.UpdateRule(rule.ID, RulePatch{
		Name:       &newName,
		Priority:   &newPriority,
		Conditions: json.RawMessage(`{"rules": [{"value": "dmart"}]}`),
		MerchantID: &dmart.ID,
		IsActive:   &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "dmart runs", updated.Name)
	assert.Equal(t, 5, updated.Priority)
	assert.False(t, updated.IsActive)
	assert.Equal(t, dmart.ID, updated.MerchantID)
	require.NotNil(t, updated.CategoryID)
	assert.Equal(t, groceries.ID, *updated.CategoryID, "switching merchant follows its default category")

	stored, err := models.GetRuleByID(db, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "dmart runs", stored.Name)
	assert.JSONEq(t, `{"rules": [{"value": "dmart"}]}`, string(stored.Conditions))
}

func TestUpdateRule_PartialPatchLeavesRestAlone(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	merchant := insertMerchant(t, db, "Zomato", nil)
	rule := &models.CategorizationRule{
		Name:       "zomato orders",
		Conditions: json.RawMessage(`{"rules": [{"value": "zomato"}]}`),
		MerchantID: merchant.ID,
		Priority:   10,
		IsActive:   true,
	}
	require.NoError(t, rule.Insert(db))

	newPriority := 3
	updated, err := svc.UpdateRule(rule.ID, RulePatch{Priority: &newPriority})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Priority)
	assert.Equal(t, "zomato orders", updated.Name)
	assert.True(t, updated.IsActive)
}

func TestUpdateRule_Errors(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	merchant := insertMerchant(t, db, "Zomato", nil)
	rule := &models.CategorizationRule{Name: "r", MerchantID: merchant.ID, IsActive: true}
	require.NoError(t, rule.Insert(db))

	_, err := svc.UpdateRule(999, RulePatch{})
	require.ErrorIs(t, err, ErrRuleNotFound)

	_, err = svc.UpdateRule(rule.ID, RulePatch{Conditions: json.RawMessage(`{bad`)})
	require.ErrorIs(t, err, ErrInvalidConditions)

	missing := int64(999)
	_, err = svc.UpdateRule(rule.ID, RulePatch{MerchantID: &missing})
	require.ErrorIs(t, err, ErrMerchantNotFound)
}

func TestDeleteRule(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	merchant := insertMerchant(t, db, "Zomato", nil)
	rule := &models.CategorizationRule{Name: "r", MerchantID: merchant.ID, IsActive: true}
	require.NoError(t, rule.Insert(db))

	require.NoError(t, svc.DeleteRule(rule.ID))

	_, err := models.GetRuleByID(db, rule.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = svc.DeleteRule(rule.ID)
	require.ErrorIs(t, err, ErrRuleNotFound)
}

func TestSuggestRuleFromTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	food := insertCategory(t, db, "Food")
	zomato := insertMerchant(t, db, "Zomato", &food.ID)

	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "ZOMATO ORDER 2841",
		CleanedDescription:  "ZOMATO ORDER 2841",
		MerchantID:          &zomato.ID,
		IsCategoryAuto:      true,
	})
	insertTx(t, db, &models.Transaction{OriginalDescription: "ZOMATO ORDER 2905", IsCategoryAuto: true})
	insertTx(t, db, &models.Transaction{OriginalDescription: "UPI ZOMATO DINNER", IsCategoryAuto: true})

	suggestion, err := svc.SuggestRuleFromTransaction(tx.ID)
	require.NoError(t, err)
	require.NotNil(t, suggestion)

	assert.Equal(t, "ZOMATO", suggestion.SuggestedPattern)
	assert.Equal(t, "contains", suggestion.Operator)
	assert.Equal(t, "description", suggestion.Field)
	assert.Equal(t, zomato.ID, suggestion.MerchantID)
	assert.Equal(t, 3, suggestion.WouldAffect)
	assert.NotEmpty(t, suggestion.SampleTransactions)
	assert.Contains(t, suggestion.Conditions, "rules")
}

func TestSuggestRuleFromTransaction_TooFewMatches(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	merchant := insertMerchant(t, db, "DMart", nil)
	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "DMART VASHI 1201",
		MerchantID:          &merchant.ID,
		IsCategoryAuto:      true,
	})

	suggestion, err := svc.SuggestRuleFromTransaction(tx.ID)
	require.NoError(t, err)
	assert.Nil(t, suggestion)
}

func TestSuggestRuleFromTransaction_NoMerchant(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	tx := insertTx(t, db, &models.Transaction{OriginalDescription: "ZOMATO ORDER", IsCategoryAuto: true})
	for i := 0; i < 3; i++ {
		insertTx(t, db, &models.Transaction{OriginalDescription: "ZOMATO AGAIN", IsCategoryAuto: true})
	}

	suggestion, err := svc.SuggestRuleFromTransaction(tx.ID)
	require.NoError(t, err)
	assert.Nil(t, suggestion)
}

func TestSuggestRuleFromTransaction_NoKeyword(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	merchant := insertMerchant(t, db, "Misc", nil)
	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "NEFT FOR THE",
		MerchantID:          &merchant.ID,
		IsCategoryAuto:      true,
	})

	suggestion, err := svc.SuggestRuleFromTransaction(tx.ID)
	require.NoError(t, err)
	assert.Nil(t, suggestion)
}

func TestSuggestRuleFromTransaction_Missing(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	_, err := svc.SuggestRuleFromTransaction(12345)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestBulkRecategorize(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	groceries := insertCategory(t, db, "Groceries")
	dmart := insertMerchant(t, db, "DMart", &groceries.ID)

	gained := insertTx(t, db, &models.Transaction{
		OriginalDescription: "DMART POWAI",
		MerchantID:          &dmart.ID,
		IsCategoryAuto:      true,
	})
	untouched := insertTx(t, db, &models.Transaction{OriginalDescription: "RANDOM SPEND", IsCategoryAuto: true})
	manual := insertTx(t, db, &models.Transaction{OriginalDescription: "DMART GIFT", MerchantID: &dmart.ID, CategoryID: &groceries.ID, IsCategoryAuto: false})

	result, err := svc.BulkRecategorize(nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalChecked, "manual rows are out of scope")
	assert.Equal(t, 1, result.Changed)
	assert.False(t, result.DryRun)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, gained.ID, result.Changes[0].TransactionID)
	assert.Nil(t, result.Changes[0].BeforeCategory)
	require.NotNil(t, result.Changes[0].AfterCategory)
	assert.Equal(t, groceries.ID, *result.Changes[0].AfterCategory)
	assert.Equal(t, "merchant_default:DMart", result.Changes[0].RuleApplied)

	stored, err := models.GetTransactionByID(db, gained.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, groceries.ID, *stored.CategoryID)

	storedUntouched, err := models.GetTransactionByID(db, untouched.ID)
	require.NoError(t, err)
	assert.Nil(t, storedUntouched.CategoryID)

	storedManual, err := models.GetTransactionByID(db, manual.ID)
	require.NoError(t, err)
	assert.False(t, storedManual.IsCategoryAuto)
}

func TestBulkRecategorize_DryRun(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	groceries := insertCategory(t, db, "Groceries")
	dmart := insertMerchant(t, db, "DMart", &groceries.ID)
	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "DMART POWAI",
		MerchantID:          &dmart.ID,
		IsCategoryAuto:      true,
	})

	result, err := svc.BulkRecategorize(nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)
	assert.True(t, result.DryRun)

	stored, err := models.GetTransactionByID(db, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CategoryID, "a dry run must not persist anything")
}

func TestBulkRecategorize_MerchantFilter(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, newTestCache())

	groceries := insertCategory(t, db, "Groceries")
	food := insertCategory(t, db, "Food")
	dmart := insertMerchant(t, db, "DMart", &groceries.ID)
	zomato := insertMerchant(t, db, "Zomato", &food.ID)

	insertTx(t, db, &models.Transaction{OriginalDescription: "DMART", MerchantID: &dmart.ID, IsCategoryAuto: true})
	insertTx(t, db, &models.Transaction{OriginalDescription: "ZOMATO", MerchantID: &zomato.ID, IsCategoryAuto: true})

	result, err := svc.BulkRecategorize(&dmart.ID, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalChecked)
}

func TestGenerateRuleSuggestions(t *testing.T) {
	db := newTestDB(t)
	ruleCache := newTestCache()
	svc := NewRuleService(db, ruleCache)

	// Three sightings of the same counterparty, one behind a rail prefix.
	insertTx(t, db, &models.Transaction{OriginalDescription: "UPI-RELIANCE FRESH 1201", IsCategoryAuto: true, Amount: dec("500.00"), TransactionDate: date(2024, 6, 1)})
	insertTx(t, db, &models.Transaction{OriginalDescription: "RELIANCE FRESH 1202", IsCategoryAuto: true, Amount: dec("700.00"), TransactionDate: date(2024, 6, 10)})
	insertTx(t, db, &models.Transaction{OriginalDescription: "RELIANCE SMART 77", IsCategoryAuto: true, Amount: dec("300.00"), TransactionDate: date(2024, 6, 20)})

	// Generic banking words never become suggestions.
	for i := 0; i < 3; i++ {
		insertTx(t, db, &models.Transaction{OriginalDescription: "PAYMENT GATEWAY X1", IsCategoryAuto: true})
	}

	// Too few sightings to be worth a rule.
	insertTx(t, db, &models.Transaction{OriginalDescription: "AIRTEL RECHARGE", IsCategoryAuto: true, Amount: dec("199.00")})
	insertTx(t, db, &models.Transaction{OriginalDescription: "AIRTEL PREPAID", IsCategoryAuto: true, Amount: dec("199.00")})

	suggestions, err := svc.GenerateRuleSuggestions(20)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	reliance := suggestions[0]
	assert.Equal(t, "RELIANCE", reliance.Pattern)
	assert.Equal(t, 3, reliance.TransactionCount)
	assert.InDelta(t, 1500.0, reliance.TotalAmount, 0.001)
	assert.InDelta(t, 500.0, reliance.AvgAmount, 0.001)
	assert.InDelta(t, 3*0.6+1500.0/1000*0.4, reliance.Score, 0.001)
	require.NotNil(t, reliance.DateRange)
	assert.Equal(t, "2024-06-01", reliance.DateRange.Earliest)
	assert.Equal(t, "2024-06-20", reliance.DateRange.Latest)
	assert.Len(t, reliance.SampleDescriptions, 3)
}

func TestGenerateRuleSuggestions_Caching(t *testing.T) {
	db := newTestDB(t)
	ruleCache := newTestCache()
	svc := NewRuleService(db, ruleCache)

	for _, desc := range []string{"AIRTEL RECHARGE", "AIRTEL PREPAID", "AIRTEL BROADBAND"} {
		insertTx(t, db, &models.Transaction{OriginalDescription: desc, IsCategoryAuto: true, Amount: dec("199.00")})
	}

	first, err := svc.GenerateRuleSuggestions(20)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, found := ruleCache.Get(ckRuleSuggestions)
	assert.True(t, found)

	// New rows are invisible until something invalidates the cache.
	for _, desc := range []string{"RELIANCE A", "RELIANCE B", "RELIANCE C"} {
		insertTx(t, db, &models.Transaction{OriginalDescription: desc, IsCategoryAuto: true, Amount: dec("800.00")})
	}
	stale, err := svc.GenerateRuleSuggestions(20)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	ruleCache.Delete(ckRuleSuggestions)
	fresh, err := svc.GenerateRuleSuggestions(20)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, "RELIANCE", fresh[0].Pattern, "higher gross volume ranks first")
	assert.Equal(t, "AIRTEL", fresh[1].Pattern)

	limited, err := svc.GenerateRuleSuggestions(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "RELIANCE", limited[0].Pattern)
}
