// src/processors/pipeline.go
package processors

import (
	"github.com/username/finledger/backend/src/models"
)

// Pipeline step names in execution order.
const (
	StepNormalize     = "normalize"
	StepDedupe        = "dedupe"
	StepMatchMerchant = "match_merchant"
	StepCategorize    = "categorize"
)

func recordHistory(db models.DBTX, t *models.Transaction, stepName string, order int, payload StepResult) error {
	hist := &models.TransformationHistory{
		TransactionID:   t.ID,
		StepName:        stepName,
		StepOrder:       order,
		InputData:       payload.Before,
		OutputData:      payload.After,
		RuleApplied:     payload.Rule,
		ConfidenceScore: payload.Confidence,
	}
	return hist.Insert(db)
}

// ProcessTransactions runs normalize, dedupe, merchant match and categorize
// over already-inserted transactions, writing one audit row per step. The
// caller owns the surrounding transaction, so a failure anywhere leaves no
// partial batch behind.
func ProcessTransactions(db models.DBTX, transactions []*models.Transaction) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}

	for _, t := range transactions {
		normPayload := ApplyNormalization(t)
		if err := recordHistory(db, t, StepNormalize, 1, normPayload); err != nil {
			return 0, err
		}

		dedupPayload := ApplyDedupHash(t)
		if err := recordHistory(db, t, StepDedupe, 2, dedupPayload); err != nil {
			return 0, err
		}

		merchantPayload, err := MatchMerchant(db, t, normPayload.MerchantHint)
		if err != nil {
			return 0, err
		}
		if err := recordHistory(db, t, StepMatchMerchant, 3, merchantPayload); err != nil {
			return 0, err
		}

		catPayload, err := ApplyCategorization(db, t)
		if err != nil {
			return 0, err
		}
		if err := recordHistory(db, t, StepCategorize, 4, catPayload); err != nil {
			return 0, err
		}

		if err := t.Update(db); err != nil {
			return 0, err
		}
	}

	return len(transactions), nil
}
