// src/processors/categorizer.go
package processors

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/username/finledger/backend/src/models"
)

// ApplyCategorization assigns a category in priority order: a manual choice
// is never touched, then the merchant's default category, then active rules
// lowest priority number first. The category a matching rule assigns is its
// merchant's default, which keeps rule and merchant bookkeeping in one
// place.
func ApplyCategorization(db models.DBTX, t *models.Transaction) (StepResult, error) {
	before := map[string]any{
		"category_id":      int64OrNil(t.CategoryID),
		"is_category_auto": t.IsCategoryAuto,
		"applied_rule_id":  int64OrNil(t.AppliedRuleID),
	}

	// 1. Respect manual user choice.
	if t.CategoryID != nil && !t.IsCategoryAuto {
		return StepResult{Before: before, After: before}, nil
	}

	var merchant *models.Merchant
	if t.MerchantID != nil {
		var err error
		merchant, err = models.GetMerchantByID(db, *t.MerchantID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return StepResult{}, err
		}

		// 2. Merchant default category.
		if merchant != nil && merchant.DefaultCategoryID != nil {
			t.CategoryID = merchant.DefaultCategoryID
			t.IsCategoryAuto = true
			t.AppliedRuleID = nil
			return StepResult{
				Before: before,
				After: map[string]any{
					"category_id":      *merchant.DefaultCategoryID,
					"is_category_auto": true,
					"applied_rule_id":  nil,
				},
				Rule: fmt.Sprintf("merchant_default:%s", merchant.Name),
			}, nil
		}
	}

	// 3. Active rules in priority order.
	rules, err := models.ListActiveRulesOrdered(db)
	if err != nil {
		return StepResult{}, err
	}
	for _, rule := range rules {
		if !EvaluateRuleJSON(t, rule.Conditions, merchant) {
			continue
		}
		if rule.MerchantID == 0 {
			continue
		}
		merchantID := rule.MerchantID
		t.MerchantID = &merchantID
		ruleMerchant, err := models.GetMerchantByID(db, rule.MerchantID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return StepResult{}, err
		}
		if ruleMerchant != nil {
			t.CategoryID = ruleMerchant.DefaultCategoryID
		}
		t.IsCategoryAuto = true
		ruleID := rule.ID
		t.AppliedRuleID = &ruleID
		return StepResult{
			Before: before,
			After: map[string]any{
				"category_id":      int64OrNil(t.CategoryID),
				"is_category_auto": true,
				"applied_rule_id":  ruleID,
			},
			Rule: rule.Name,
		}, nil
	}

	// 4. Nothing matched; drop any stale rule reference.
	t.AppliedRuleID = nil
	after := map[string]any{
		"category_id":      int64OrNil(t.CategoryID),
		"is_category_auto": t.IsCategoryAuto,
		"applied_rule_id":  nil,
	}
	return StepResult{Before: before, After: after}, nil
}
