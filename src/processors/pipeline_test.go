// src/processors/pipeline_test.go
package processors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finledger/backend/src/models"
)

func TestProcessTransactions_FullChain(t *testing.T) {
	db := newTestDB(t)

	food := insertCategory(t, db, "Food Delivery")
	swiggy := insertMerchant(t, db, "Swiggy", &food.ID)
	require.NoError(t, (&models.MerchantAlias{MerchantID: swiggy.ID, Alias: "swiggy@icici"}).Insert(db))

	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "  UPI-swiggy@icici   order 42 ",
		IsCategoryAuto:      true,
	})

	count, err := ProcessTransactions(db, []*models.Transaction{tx})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, "UPI-swiggy@icici order 42", tx.CleanedDescription)
	require.NotNil(t, tx.MerchantID)
	assert.Equal(t, swiggy.ID, *tx.MerchantID)
	require.NotNil(t, tx.CategoryID)
	assert.Equal(t, food.ID, *tx.CategoryID)
	assert.True(t, tx.IsCategoryAuto)

	// The processed state is persisted, not just mutated in memory.
	stored, err := models.GetTransactionByID(db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "UPI-swiggy@icici order 42", stored.CleanedDescription)
	assert.Equal(t, tx.DedupHash, stored.DedupHash)
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, food.ID, *stored.CategoryID)

	sub, ok := stored.Metadata["normalizer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "swiggy@icici", sub["upi_handle"])
}

func TestProcessTransactions_WritesAuditTrail(t *testing.T) {
	db := newTestDB(t)

	food := insertCategory(t, db, "Food Delivery")
	swiggy := insertMerchant(t, db, "Swiggy", &food.ID)
	require.NoError(t, (&models.MerchantAlias{MerchantID: swiggy.ID, Alias: "swiggy@icici"}).Insert(db))

	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "UPI-swiggy@icici dinner",
		IsCategoryAuto:      true,
	})

	_, err := ProcessTransactions(db, []*models.Transaction{tx})
	require.NoError(t, err)

	history, err := models.ListHistoryByTransaction(db, tx.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, StepNormalize, history[0].StepName)
	assert.Equal(t, StepDedupe, history[1].StepName)
	assert.Equal(t, StepMatchMerchant, history[2].StepName)
	assert.Equal(t, StepCategorize, history[3].StepName)
	for i, h := range history {
		assert.Equal(t, i+1, h.StepOrder)
		assert.Equal(t, tx.ID, h.TransactionID)
	}

	assert.Equal(t, "alias:swiggy@icici", history[2].RuleApplied)
	assert.Equal(t, "merchant_default:Swiggy", history[3].RuleApplied)
	assert.Equal(t, tx.DedupHash, history[1].OutputData["dedup_hash"])
}

func TestProcessTransactions_RuleAssignsMerchant(t *testing.T) {
	db := newTestDB(t)

	travelCat := insertCategory(t, db, "Travel")
	irctc := insertMerchant(t, db, "IRCTC", &travelCat.ID)
	rule := &models.CategorizationRule{
		Name:       "rail bookings",
		Conditions: json.RawMessage(`{"rules": [{"value": "irctc"}]}`),
		MerchantID: irctc.ID,
		Priority:   10,
		IsActive:   true,
	}
	require.NoError(t, rule.Insert(db))

	tx := insertTx(t, db, &models.Transaction{
		OriginalDescription: "IRCTC RAIL TICKET 8812",
		IsCategoryAuto:      true,
	})

	_, err := ProcessTransactions(db, []*models.Transaction{tx})
	require.NoError(t, err)

	require.NotNil(t, tx.MerchantID)
	assert.Equal(t, irctc.ID, *tx.MerchantID)
	require.NotNil(t, tx.CategoryID)
	assert.Equal(t, travelCat.ID, *tx.CategoryID)
	require.NotNil(t, tx.AppliedRuleID)
	assert.Equal(t, rule.ID, *tx.AppliedRuleID)

	history, err := models.ListHistoryByTransaction(db, tx.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "rail bookings", history[3].RuleApplied)
}

func TestProcessTransactions_EmptyBatch(t *testing.T) {
	db := newTestDB(t)

	count, err := ProcessTransactions(db, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}
