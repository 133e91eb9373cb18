// src/processors/merchant_matcher.go
package processors

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/username/finledger/backend/src/models"
)

// MatchMerchant assigns a merchant via alias lookup. A transaction that
// already carries a merchant keeps it. Without a hint or a matching alias
// the transaction stays unassigned; new merchants are only ever created
// explicitly or through rules.
func MatchMerchant(db models.DBTX, t *models.Transaction, hint string) (StepResult, error) {
	before := map[string]any{"merchant_id": int64OrNil(t.MerchantID)}

	if t.MerchantID != nil {
		return StepResult{
			Before: before,
			After:  map[string]any{"merchant_id": *t.MerchantID},
			Rule:   "existing",
		}, nil
	}

	if hint != "" {
		alias, err := models.FindAliasContaining(db, hint)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return StepResult{}, err
		}
		if alias != nil {
			t.MerchantID = &alias.MerchantID
			return StepResult{
				Before: before,
				After:  map[string]any{"merchant_id": alias.MerchantID},
				Rule:   fmt.Sprintf("alias:%s", alias.Alias),
			}, nil
		}
	}

	return StepResult{
		Before: before,
		After:  map[string]any{"merchant_id": nil},
		Rule:   "no-match",
	}, nil
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
