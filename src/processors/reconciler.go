// src/processors/reconciler.go
package processors

import (
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/username/finledger/backend/src/models"
)

type ReconcileOptions struct {
	DateToleranceDays int
	DryRun            bool
}

type ReconcileResult struct {
	TotalPairs      int              `json:"total_pairs"`
	ExpensePairs    int              `json:"expense_pairs"`
	SettlementPairs int              `json:"settlement_pairs"`
	Changes         []map[string]any `json:"changes"`
}

func withinDateTolerance(a, b *models.Transaction, toleranceDays int) bool {
	delta := a.TransactionDate.Sub(b.TransactionDate)
	if delta < 0 {
		delta = -delta
	}
	return int(delta.Hours()/24) <= toleranceDays
}

// isPotentialMatch decides whether a shared-ledger expense and a bank row
// are likely the same purchase: same amount, dates within tolerance.
func isPotentialMatch(a, b *models.Transaction, toleranceDays int) bool {
	if a.ID == b.ID {
		return false
	}
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	return withinDateTolerance(a, b, toleranceDays)
}

func isSettlementMatch(shared, bank *models.Transaction, toleranceDays int) bool {
	if !shared.IsPayment {
		return false
	}
	if !shared.Amount.Equal(bank.Amount) {
		return false
	}
	return withinDateTolerance(shared, bank, toleranceDays)
}

func userPaidFromMetadata(metadata map[string]any) bool {
	raw, _ := metadata["raw"].(map[string]any)
	rawMeta, _ := raw["metadata"].(map[string]any)
	paid, _ := rawMeta["user_paid"].(bool)
	return paid
}

// ReconcileSharedAgainstBank pairs shared-ledger rows with the bank rows
// they duplicate. A settlement pair marks both sides reconciled and zeroes
// the bank row's effective amount; an expense pair propagates the user's
// share onto the bank row and excludes the shared-ledger side from totals.
// Dry run computes the same pairs without touching the database.
func ReconcileSharedAgainstBank(db *sql.DB, opts ReconcileOptions) (*ReconcileResult, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sharedTxns, err := models.ListUnreconciledSharedLedger(tx)
	if err != nil {
		return nil, err
	}
	bankTxns, err := models.ListUnreconciledBank(tx)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Changes: []map[string]any{}}
	paired := make(map[int64]bool)

	for _, shared := range sharedTxns {
		userPaid := userPaidFromMetadata(shared.Metadata)
		if !shared.IsPayment && !userPaid {
			continue
		}

		for _, bank := range bankTxns {
			// each bank row pairs at most once per pass, dry run included
			if paired[bank.ID] {
				continue
			}

			if shared.IsPayment {
				if !isSettlementMatch(shared, bank, opts.DateToleranceDays) {
					continue
				}

				result.Changes = append(result.Changes, map[string]any{
					"type":        "settlement",
					"shared_id":   shared.ID,
					"bank_id":     bank.ID,
					"amount":      shared.Amount.InexactFloat64(),
					"shared_desc": shared.OriginalDescription,
					"bank_desc":   bank.OriginalDescription,
				})

				if !opts.DryRun {
					shared.IsReconciled = true
					shared.ReconciledWithID = &bank.ID
					shared.IsExcluded = true
					bank.IsReconciled = true
					bank.ReconciledWithID = &shared.ID
					zero := decimal.Zero
					bank.EffectiveAmount = &zero
					bank.TransactionType = models.KindPayment
					if err := shared.Update(tx); err != nil {
						return nil, err
					}
					if err := bank.Update(tx); err != nil {
						return nil, err
					}
				}

				paired[bank.ID] = true
				result.SettlementPairs++
				break
			}

			// user paid the full bill; find the matching bank charge
			if !isPotentialMatch(shared, bank, opts.DateToleranceDays) {
				continue
			}

			effective := shared.Amount
			if shared.EffectiveAmount != nil {
				effective = *shared.EffectiveAmount
			}

			result.Changes = append(result.Changes, map[string]any{
				"type":             "expense",
				"shared_id":        shared.ID,
				"bank_id":          bank.ID,
				"full_amount":      shared.Amount.InexactFloat64(),
				"effective_amount": effective.InexactFloat64(),
				"shared_desc":      shared.OriginalDescription,
				"bank_desc":        bank.OriginalDescription,
			})

			if !opts.DryRun {
				shared.IsReconciled = true
				shared.ReconciledWithID = &bank.ID
				shared.IsExcluded = true
				bank.IsReconciled = true
				bank.ReconciledWithID = &shared.ID
				bank.EffectiveAmount = &effective
				if err := shared.Update(tx); err != nil {
					return nil, err
				}
				if err := bank.Update(tx); err != nil {
					return nil, err
				}
			}

			paired[bank.ID] = true
			result.ExpensePairs++
			break
		}
	}

	result.TotalPairs = result.ExpensePairs + result.SettlementPairs

	if result.TotalPairs > 0 && !opts.DryRun {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}

	return result, nil
}
