// src/processors/deduplicator.go
package processors

import (
	"github.com/username/finledger/backend/src/models"
)

// ApplyDedupHash recomputes the transaction's dedup hash from its current
// fields and returns the audit payload for the step.
func ApplyDedupHash(t *models.Transaction) StepResult {
	before := map[string]any{"dedup_hash": t.DedupHash}
	t.DedupHash = models.ComputeDedupHash(t.TransactionDate, t.Amount, t.OriginalDescription, t.TransactionType)
	after := map[string]any{"dedup_hash": t.DedupHash}
	return StepResult{Before: before, After: after}
}
