// src/models/rule.go
package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const RuleTypeDescriptionPattern = "DESCRIPTION_PATTERN"

type CategorizationRule struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	RuleType   string          `json:"rule_type"`
	Priority   int             `json:"priority"`
	Conditions json.RawMessage `json:"conditions"`
	MerchantID int64           `json:"merchant_id"`
	CategoryID *int64          `json:"category_id"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Condition node kinds.
const (
	ConditionGroup  = "group"
	ConditionLeaf   = "leaf"
	ConditionLegacy = "legacy"
)

// ConditionNode is the parsed form of a rule's conditions document. A group
// combines children with AND/OR logic and may nest further groups. A leaf is
// a single field test. A legacy node is the flat object form kept for rules
// created before structured conditions existed.
type ConditionNode struct {
	Kind string

	// group
	Logic    string
	Children []*ConditionNode

	// leaf
	Field         string
	Operator      string
	Value         any
	CaseSensitive bool

	// legacy
	MerchantID *int64
	Pattern    string
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
}

// ParseConditions decodes a conditions document into its node tree. An
// object carrying a "rules" key is a group; one carrying "field" or
// "operator" is a bare leaf; any other object is a legacy node, and an
// empty legacy node matches every transaction.
func ParseConditions(raw json.RawMessage) (*ConditionNode, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return parseConditionObject(doc), nil
}

func parseConditionObject(doc map[string]any) *ConditionNode {
	if _, ok := doc["rules"]; ok {
		return parseGroup(doc)
	}
	_, hasField := doc["field"]
	_, hasOperator := doc["operator"]
	if hasField || hasOperator {
		return parseLeaf(doc)
	}
	return parseLegacy(doc)
}

func parseGroup(doc map[string]any) *ConditionNode {
	node := &ConditionNode{Kind: ConditionGroup, Logic: "AND"}
	if logic, ok := doc["logic"].(string); ok && logic != "" {
		node.Logic = strings.ToUpper(logic)
	}
	entries, _ := doc["rules"].([]any)
	for _, entry := range entries {
		child, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if _, nested := child["rules"]; nested {
			node.Children = append(node.Children, parseGroup(child))
		} else {
			node.Children = append(node.Children, parseLeaf(child))
		}
	}
	return node
}

func parseLeaf(doc map[string]any) *ConditionNode {
	node := &ConditionNode{
		Kind:     ConditionLeaf,
		Field:    "description",
		Operator: "contains",
	}
	if field, ok := doc["field"].(string); ok && field != "" {
		node.Field = field
	}
	if op, ok := doc["operator"].(string); ok && op != "" {
		node.Operator = op
	}
	node.Value = doc["value"]
	if cs, ok := doc["case_sensitive"].(bool); ok {
		node.CaseSensitive = cs
	}
	return node
}

func parseLegacy(doc map[string]any) *ConditionNode {
	node := &ConditionNode{Kind: ConditionLegacy}
	if v, ok := doc["merchant_id"].(float64); ok && v != 0 {
		id := int64(v)
		node.MerchantID = &id
	}
	if pattern, ok := doc["pattern"].(string); ok {
		node.Pattern = pattern
	}
	node.MinAmount = legacyAmount(doc["min_amount"])
	node.MaxAmount = legacyAmount(doc["max_amount"])
	return node
}

func legacyAmount(v any) *decimal.Decimal {
	switch n := v.(type) {
	case float64:
		d := decimal.NewFromFloat(n)
		return &d
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

func (r *CategorizationRule) Insert(db DBTX) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.RuleType == "" {
		r.RuleType = RuleTypeDescriptionPattern
	}
	if len(r.Conditions) == 0 {
		r.Conditions = json.RawMessage("{}")
	}

	query := `
	INSERT INTO categorization_rules (name, rule_type, priority, conditions, merchant_id, category_id, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query, r.Name, r.RuleType, r.Priority, string(r.Conditions),
		r.MerchantID, nullInt64(r.CategoryID), r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (r *CategorizationRule) Update(db DBTX) error {
	r.UpdatedAt = time.Now()

	query := `
	UPDATE categorization_rules SET name = ?, rule_type = ?, priority = ?, conditions = ?,
		merchant_id = ?, category_id = ?, is_active = ?, updated_at = ?
	WHERE id = ?`
	_, err := db.Exec(query, r.Name, r.RuleType, r.Priority, string(r.Conditions),
		r.MerchantID, nullInt64(r.CategoryID), r.IsActive, r.UpdatedAt, r.ID)
	return err
}

const ruleColumns = `id, name, rule_type, priority, conditions, merchant_id, category_id, is_active, created_at, updated_at`

func scanRule(row rowScanner) (*CategorizationRule, error) {
	var r CategorizationRule
	var conditions string
	var categoryID sql.NullInt64
	err := row.Scan(&r.ID, &r.Name, &r.RuleType, &r.Priority, &conditions,
		&r.MerchantID, &categoryID, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Conditions = json.RawMessage(conditions)
	r.CategoryID = int64Ptr(categoryID)
	return &r, nil
}

func GetRuleByID(db DBTX, id int64) (*CategorizationRule, error) {
	row := db.QueryRow(`SELECT `+ruleColumns+` FROM categorization_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return r, nil
}

// ListActiveRulesOrdered returns active rules in evaluation order: lowest
// priority number first, ties broken by id.
func ListActiveRulesOrdered(db DBTX) ([]*CategorizationRule, error) {
	return queryRules(db, `SELECT `+ruleColumns+` FROM categorization_rules WHERE is_active = 1 ORDER BY priority, id`)
}

func ListRules(db DBTX) ([]*CategorizationRule, error) {
	return queryRules(db, `SELECT `+ruleColumns+` FROM categorization_rules ORDER BY priority, id`)
}

func queryRules(db DBTX, query string, args ...any) ([]*CategorizationRule, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*CategorizationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func DeleteRule(db DBTX, id int64) error {
	_, err := db.Exec(`DELETE FROM categorization_rules WHERE id = ?`, id)
	return err
}
