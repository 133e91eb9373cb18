// src/processors/rule_engine.go
package processors

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/username/finledger/backend/src/models"
)

// EvaluateRuleJSON parses a conditions document and evaluates it against the
// transaction. Any malformed document evaluates to no-match.
func EvaluateRuleJSON(t *models.Transaction, conditions json.RawMessage, merchant *models.Merchant) bool {
	node, err := models.ParseConditions(conditions)
	if err != nil {
		return false
	}
	return EvaluateRule(t, node, merchant)
}

// EvaluateRule walks a condition tree. Groups combine their children with
// AND/OR logic; an empty group never matches. An empty legacy node matches
// everything.
func EvaluateRule(t *models.Transaction, node *models.ConditionNode, merchant *models.Merchant) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case models.ConditionGroup:
		if len(node.Children) == 0 {
			return false
		}
		if node.Logic == "OR" {
			for _, child := range node.Children {
				if EvaluateRule(t, child, merchant) {
					return true
				}
			}
			return false
		}
		for _, child := range node.Children {
			if !EvaluateRule(t, child, merchant) {
				return false
			}
		}
		return true
	case models.ConditionLeaf:
		return evaluateLeaf(t, node, merchant)
	case models.ConditionLegacy:
		return evaluateLegacy(t, node)
	default:
		return false
	}
}

func evaluateLeaf(t *models.Transaction, node *models.ConditionNode, merchant *models.Merchant) bool {
	if node.Value == nil {
		return false
	}

	fieldVal := fieldValue(t, node.Field, merchant)

	switch node.Operator {
	case "contains", "starts_with", "ends_with", "equals", "not_contains":
		fieldStr := stringify(fieldVal)
		valueStr := stringify(node.Value)
		if !node.CaseSensitive {
			fieldStr = strings.ToUpper(fieldStr)
			valueStr = strings.ToUpper(valueStr)
		}
		switch node.Operator {
		case "contains":
			return strings.Contains(fieldStr, valueStr)
		case "starts_with":
			return strings.HasPrefix(fieldStr, valueStr)
		case "ends_with":
			return strings.HasSuffix(fieldStr, valueStr)
		case "equals":
			return fieldStr == valueStr
		case "not_contains":
			return !strings.Contains(fieldStr, valueStr)
		}

	case "regex":
		pattern := stringify(node.Value)
		if !node.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(fieldVal))

	case "greater_than", "less_than", "equals_number", "between":
		fieldNum, ok := coerceFloat(fieldVal)
		if !ok {
			return false
		}
		switch node.Operator {
		case "greater_than":
			bound, ok := coerceFloat(node.Value)
			return ok && fieldNum > bound
		case "less_than":
			bound, ok := coerceFloat(node.Value)
			return ok && fieldNum < bound
		case "equals_number":
			bound, ok := coerceFloat(node.Value)
			// float comparison tolerance
			return ok && math.Abs(fieldNum-bound) < 0.01
		case "between":
			bounds, ok := node.Value.([]any)
			if !ok || len(bounds) != 2 {
				return false
			}
			low, okLow := coerceFloat(bounds[0])
			high, okHigh := coerceFloat(bounds[1])
			return okLow && okHigh && low <= fieldNum && fieldNum <= high
		}
	}

	return false
}

func evaluateLegacy(t *models.Transaction, node *models.ConditionNode) bool {
	if node.MerchantID != nil {
		if t.MerchantID == nil || *t.MerchantID != *node.MerchantID {
			return false
		}
	}

	if node.Pattern != "" {
		desc := t.CleanedDescription
		if desc == "" {
			desc = t.OriginalDescription
		}
		if !strings.Contains(strings.ToUpper(desc), strings.ToUpper(node.Pattern)) {
			return false
		}
	}

	if node.MinAmount != nil && t.Amount.LessThan(*node.MinAmount) {
		return false
	}
	if node.MaxAmount != nil && t.Amount.GreaterThan(*node.MaxAmount) {
		return false
	}

	return true
}

func fieldValue(t *models.Transaction, field string, merchant *models.Merchant) any {
	switch field {
	case "description":
		desc := t.CleanedDescription
		if desc == "" {
			desc = t.OriginalDescription
		}
		return strings.TrimSpace(desc)
	case "original_description":
		return strings.TrimSpace(t.OriginalDescription)
	case "merchant_name":
		if merchant != nil {
			return merchant.Name
		}
		return ""
	case "amount":
		return t.Amount
	case "source_type":
		return t.SourceType
	case "currency":
		return t.Currency
	default:
		return ""
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64(), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
