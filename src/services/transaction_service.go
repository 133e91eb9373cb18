// src/services/transaction_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/processors"
)

type transactionServiceImpl struct {
	db                   *sql.DB
	defaultToleranceDays int
}

func NewTransactionService(db *sql.DB, defaultToleranceDays int) TransactionService {
	return &transactionServiceImpl{
		db:                   db,
		defaultToleranceDays: defaultToleranceDays,
	}
}

func (s *transactionServiceImpl) ListTransactions(filter models.TransactionFilter) ([]*models.Transaction, error) {
	return models.ListTransactions(s.db, filter)
}

func (s *transactionServiceImpl) GetTransactionWithHistory(id int64) (*TransactionDetail, error) {
	tx, err := models.GetTransactionByID(s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		return nil, err
	}
	history, err := models.ListHistoryByTransaction(s.db, id)
	if err != nil {
		return nil, err
	}
	return &TransactionDetail{Transaction: tx, History: history}, nil
}

// SetManualCategory pins the category by hand. Manual assignments survive
// every automated pass until the user clears them, so the auto flag drops and
// any rule attribution is removed.
func (s *transactionServiceImpl) SetManualCategory(id int64, categoryID *int64) (*models.Transaction, error) {
	tx, err := models.GetTransactionByID(s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		return nil, err
	}

	if categoryID != nil {
		if _, err := models.GetCategoryByID(s.db, *categoryID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %d", ErrCategoryNotFound, *categoryID)
			}
			return nil, err
		}
	}

	tx.CategoryID = categoryID
	tx.IsCategoryAuto = false
	tx.AppliedRuleID = nil
	if err := tx.Update(s.db); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *transactionServiceImpl) SetExclusion(id int64, excluded bool) (*models.Transaction, error) {
	tx, err := models.GetTransactionByID(s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		return nil, err
	}

	tx.IsExcluded = excluded
	if err := tx.Update(s.db); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *transactionServiceImpl) ListSplits(id int64) ([]*models.TransactionSplit, error) {
	if _, err := models.GetTransactionByID(s.db, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		return nil, err
	}
	return models.ListSplitsByTransaction(s.db, id)
}

func (s *transactionServiceImpl) ListSourceFiles() ([]*models.SourceFile, error) {
	return models.ListSourceFiles(s.db)
}

func (s *transactionServiceImpl) Reconcile(dateToleranceDays int, dryRun bool) (*processors.ReconcileResult, error) {
	if dateToleranceDays <= 0 {
		dateToleranceDays = s.defaultToleranceDays
	}
	logger.L.Info("Reconcile START", "toleranceDays", dateToleranceDays, "dryRun", dryRun)
	result, err := processors.ReconcileSharedAgainstBank(s.db, processors.ReconcileOptions{
		DateToleranceDays: dateToleranceDays,
		DryRun:            dryRun,
	})
	if err != nil {
		return nil, err
	}
	logger.L.Info("Reconcile END", "pairs", result.TotalPairs, "expense", result.ExpensePairs, "settlement", result.SettlementPairs)
	return result, nil
}
