// src/models/history.go
package models

import (
	"database/sql"
	"time"
)

// TransformationHistory is one audit row per pipeline step per transaction.
// Input and output snapshots are point-in-time copies, never live references.
type TransformationHistory struct {
	ID              int64          `json:"id"`
	TransactionID   int64          `json:"transaction_id"`
	StepName        string         `json:"step_name"`
	StepOrder       int            `json:"step_order"`
	InputData       map[string]any `json:"input_data"`
	OutputData      map[string]any `json:"output_data"`
	RuleApplied     string         `json:"rule_applied"`
	ConfidenceScore *float64       `json:"confidence_score"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (h *TransformationHistory) Insert(db DBTX) error {
	h.CreatedAt = time.Now()

	var confidence any
	if h.ConfidenceScore != nil {
		confidence = *h.ConfidenceScore
	}

	query := `
	INSERT INTO transformation_history (transaction_id, step_name, step_order, input_data, output_data, rule_applied, confidence_score, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query, h.TransactionID, h.StepName, h.StepOrder,
		marshalJSONMap(h.InputData), marshalJSONMap(h.OutputData),
		nullString(h.RuleApplied), confidence, h.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = id
	return nil
}

func ListHistoryByTransaction(db DBTX, transactionID int64) ([]*TransformationHistory, error) {
	query := `
	SELECT id, transaction_id, step_name, step_order, input_data, output_data, rule_applied, confidence_score, created_at
	FROM transformation_history
	WHERE transaction_id = ?
	ORDER BY step_order, id`
	rows, err := db.Query(query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*TransformationHistory
	for rows.Next() {
		var h TransformationHistory
		var inputData, outputData, ruleApplied sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&h.ID, &h.TransactionID, &h.StepName, &h.StepOrder,
			&inputData, &outputData, &ruleApplied, &confidence, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.InputData = unmarshalJSONMap(inputData.String)
		h.OutputData = unmarshalJSONMap(outputData.String)
		h.RuleApplied = ruleApplied.String
		if confidence.Valid {
			c := confidence.Float64
			h.ConfidenceScore = &c
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}
