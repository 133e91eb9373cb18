// src/models/transaction.go
package models

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds.
const (
	KindExpense  = "expense"
	KindIncome   = "income"
	KindTransfer = "transfer"
	KindPayment  = "payment"
)

// Source types.
const (
	SourceBankCSV       = "bank_csv"
	SourceBankPDF       = "bank_pdf"
	SourceCreditCardPDF = "credit_card_pdf"
	SourceSharedLedger  = "shared_ledger"
	SourceManual        = "manual"
)

const dedupDescriptionRunes = 50

type Transaction struct {
	ID                  int64            `json:"id"`
	SourceFileID        *int64           `json:"source_file_id"`
	SourceLineNumber    *int             `json:"source_line_number"`
	SourceType          string           `json:"source_type"`
	ExternalID          *string          `json:"external_id"`
	TransactionDate     time.Time        `json:"transaction_date"`
	PostedDate          *time.Time       `json:"posted_date"`
	Amount              decimal.Decimal  `json:"amount"`
	EffectiveAmount     *decimal.Decimal `json:"effective_amount"`
	Currency            string           `json:"currency"`
	TransactionType     string           `json:"transaction_type"`
	OriginalDescription string           `json:"original_description"`
	CleanedDescription  string           `json:"cleaned_description"`
	MerchantID          *int64           `json:"merchant_id"`
	CategoryID          *int64           `json:"category_id"`
	IsCategoryAuto      bool             `json:"is_category_auto"`
	AppliedRuleID       *int64           `json:"applied_rule_id"`
	DedupHash           string           `json:"dedup_hash"`
	Notes               string           `json:"notes"`
	IsExcluded          bool             `json:"is_excluded"`
	SharedExpenseID     *int64           `json:"shared_expense_id"`
	SharedGroupID       *int64           `json:"shared_group_id"`
	IsPayment           bool             `json:"is_payment"`
	IsProvisional       bool             `json:"is_provisional"`
	IsReconciled        bool             `json:"is_reconciled"`
	ReconciledWithID    *int64           `json:"reconciled_with_id"`
	Metadata            map[string]any   `json:"metadata"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// ComputeDedupHash derives the duplicate-detection fingerprint of a
// transaction from its date, two-decimal amount, whitespace-collapsed
// description truncated to 50 runes, and kind.
func ComputeDedupHash(date time.Time, amount decimal.Decimal, originalDescription, transactionType string) string {
	desc := strings.Join(strings.Fields(originalDescription), " ")
	runes := []rune(desc)
	if len(runes) > dedupDescriptionRunes {
		runes = runes[:dedupDescriptionRunes]
	}
	payload := fmt.Sprintf("%s|%s|%s|%s", date.Format(dateLayout), amount.StringFixed(2), string(runes), transactionType)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

const txColumns = `id, source_file_id, source_line_number, source_type, external_id,
	transaction_date, posted_date, amount, effective_amount, currency, transaction_type,
	original_description, cleaned_description, merchant_id, category_id, is_category_auto,
	applied_rule_id, dedup_hash, notes, is_excluded, shared_expense_id, shared_group_id,
	is_payment, is_provisional, is_reconciled, reconciled_with_id, metadata_json,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var sourceFileID, sourceLineNumber, merchantID, categoryID, appliedRuleID sql.NullInt64
	var sharedExpenseID, sharedGroupID, reconciledWithID sql.NullInt64
	var externalID, postedDate, effectiveAmount, cleanedDescription, notes, metadataJSON sql.NullString
	var transactionDate, amount string

	err := row.Scan(
		&t.ID, &sourceFileID, &sourceLineNumber, &t.SourceType, &externalID,
		&transactionDate, &postedDate, &amount, &effectiveAmount, &t.Currency, &t.TransactionType,
		&t.OriginalDescription, &cleanedDescription, &merchantID, &categoryID, &t.IsCategoryAuto,
		&appliedRuleID, &t.DedupHash, &notes, &t.IsExcluded, &sharedExpenseID, &sharedGroupID,
		&t.IsPayment, &t.IsProvisional, &t.IsReconciled, &reconciledWithID, &metadataJSON,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.SourceFileID = int64Ptr(sourceFileID)
	t.SourceLineNumber = intPtr(sourceLineNumber)
	t.ExternalID = stringPtr(externalID)
	t.TransactionDate = parseDate(transactionDate)
	if postedDate.Valid && postedDate.String != "" {
		pd := parseDate(postedDate.String)
		t.PostedDate = &pd
	}
	t.Amount = parseAmount(amount)
	if effectiveAmount.Valid {
		ea := parseAmount(effectiveAmount.String)
		t.EffectiveAmount = &ea
	}
	t.CleanedDescription = cleanedDescription.String
	t.MerchantID = int64Ptr(merchantID)
	t.CategoryID = int64Ptr(categoryID)
	t.AppliedRuleID = int64Ptr(appliedRuleID)
	t.Notes = notes.String
	t.SharedExpenseID = int64Ptr(sharedExpenseID)
	t.SharedGroupID = int64Ptr(sharedGroupID)
	t.ReconciledWithID = int64Ptr(reconciledWithID)
	t.Metadata = unmarshalJSONMap(metadataJSON.String)

	return &t, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (t *Transaction) Insert(db DBTX) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Currency == "" {
		t.Currency = "INR"
	}
	if t.TransactionType == "" {
		t.TransactionType = KindExpense
	}
	if t.DedupHash == "" {
		t.DedupHash = ComputeDedupHash(t.TransactionDate, t.Amount, t.OriginalDescription, t.TransactionType)
	}

	query := `
	INSERT INTO transactions (source_file_id, source_line_number, source_type, external_id,
		transaction_date, posted_date, amount, effective_amount, currency, transaction_type,
		original_description, cleaned_description, merchant_id, category_id, is_category_auto,
		applied_rule_id, dedup_hash, notes, is_excluded, shared_expense_id, shared_group_id,
		is_payment, is_provisional, is_reconciled, reconciled_with_id, metadata_json,
		created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var lineNumber any
	if t.SourceLineNumber != nil {
		lineNumber = *t.SourceLineNumber
	}
	var externalID any
	if t.ExternalID != nil {
		externalID = *t.ExternalID
	}

	res, err := db.Exec(query,
		nullInt64(t.SourceFileID), lineNumber, t.SourceType, externalID,
		dateString(t.TransactionDate), nullDateString(t.PostedDate),
		amountString(t.Amount), nullAmountString(t.EffectiveAmount),
		t.Currency, t.TransactionType,
		t.OriginalDescription, nullString(t.CleanedDescription),
		nullInt64(t.MerchantID), nullInt64(t.CategoryID), t.IsCategoryAuto,
		nullInt64(t.AppliedRuleID), t.DedupHash, nullString(t.Notes), t.IsExcluded,
		nullInt64(t.SharedExpenseID), nullInt64(t.SharedGroupID),
		t.IsPayment, t.IsProvisional, t.IsReconciled, nullInt64(t.ReconciledWithID),
		marshalJSONMap(t.Metadata),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (t *Transaction) Update(db DBTX) error {
	t.UpdatedAt = time.Now()

	query := `
	UPDATE transactions SET source_file_id = ?, source_line_number = ?, source_type = ?,
		external_id = ?, transaction_date = ?, posted_date = ?, amount = ?,
		effective_amount = ?, currency = ?, transaction_type = ?, original_description = ?,
		cleaned_description = ?, merchant_id = ?, category_id = ?, is_category_auto = ?,
		applied_rule_id = ?, dedup_hash = ?, notes = ?, is_excluded = ?,
		shared_expense_id = ?, shared_group_id = ?, is_payment = ?, is_provisional = ?,
		is_reconciled = ?, reconciled_with_id = ?, metadata_json = ?, updated_at = ?
	WHERE id = ?`

	var lineNumber any
	if t.SourceLineNumber != nil {
		lineNumber = *t.SourceLineNumber
	}
	var externalID any
	if t.ExternalID != nil {
		externalID = *t.ExternalID
	}

	_, err := db.Exec(query,
		nullInt64(t.SourceFileID), lineNumber, t.SourceType, externalID,
		dateString(t.TransactionDate), nullDateString(t.PostedDate),
		amountString(t.Amount), nullAmountString(t.EffectiveAmount),
		t.Currency, t.TransactionType,
		t.OriginalDescription, nullString(t.CleanedDescription),
		nullInt64(t.MerchantID), nullInt64(t.CategoryID), t.IsCategoryAuto,
		nullInt64(t.AppliedRuleID), t.DedupHash, nullString(t.Notes), t.IsExcluded,
		nullInt64(t.SharedExpenseID), nullInt64(t.SharedGroupID),
		t.IsPayment, t.IsProvisional, t.IsReconciled, nullInt64(t.ReconciledWithID),
		marshalJSONMap(t.Metadata), t.UpdatedAt,
		t.ID,
	)
	return err
}

func GetTransactionByID(db DBTX, id int64) (*Transaction, error) {
	row := db.QueryRow(`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return t, nil
}

func GetTransactionBySharedExpenseID(db DBTX, sharedExpenseID int64) (*Transaction, error) {
	row := db.QueryRow(`SELECT `+txColumns+` FROM transactions WHERE shared_expense_id = ?`, sharedExpenseID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return t, nil
}

// FindDuplicateCandidates returns stored transactions sharing the exact date,
// two-decimal amount and kind of an incoming row. Amounts are persisted in
// normalized text form, so string equality is reliable here.
func FindDuplicateCandidates(db DBTX, dateStr, amountStr, transactionType string) ([]*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
	WHERE transaction_date = ? AND amount = ? AND transaction_type = ?
	ORDER BY id`
	return queryTransactions(db, query, dateStr, amountStr, transactionType)
}

// ListUnreconciledSharedLedger returns shared-ledger rows still awaiting
// reconciliation. Excluded rows are skipped on this side only.
func ListUnreconciledSharedLedger(db DBTX) ([]*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
	WHERE source_type = ? AND is_reconciled = 0 AND is_excluded = 0
	ORDER BY transaction_date, id`
	return queryTransactions(db, query, SourceSharedLedger)
}

// ListUnreconciledBank returns non-shared-ledger rows still awaiting
// reconciliation. Excluded rows remain eligible on the bank side.
func ListUnreconciledBank(db DBTX) ([]*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
	WHERE source_type != ? AND is_reconciled = 0
	ORDER BY transaction_date, id`
	return queryTransactions(db, query, SourceSharedLedger)
}

type TransactionFilter struct {
	SourceType      string
	TransactionType string
	MerchantID      *int64
	NoMerchant      bool
	CategoryID      *int64
	Uncategorized   bool
	OnlyAuto        bool
	IncludeExcluded bool
	DateFrom        *time.Time
	DateTo          *time.Time
	Search          string
	Limit           int
	Offset          int
}

func ListTransactions(db DBTX, filter TransactionFilter) ([]*Transaction, error) {
	var conditions []string
	var args []any

	if filter.SourceType != "" {
		conditions = append(conditions, "source_type = ?")
		args = append(args, filter.SourceType)
	}
	if filter.TransactionType != "" {
		conditions = append(conditions, "transaction_type = ?")
		args = append(args, filter.TransactionType)
	}
	if filter.MerchantID != nil {
		conditions = append(conditions, "merchant_id = ?")
		args = append(args, *filter.MerchantID)
	}
	if filter.NoMerchant {
		conditions = append(conditions, "merchant_id IS NULL")
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.Uncategorized {
		conditions = append(conditions, "category_id IS NULL")
	}
	if filter.OnlyAuto {
		conditions = append(conditions, "is_category_auto = 1")
	}
	if !filter.IncludeExcluded {
		conditions = append(conditions, "is_excluded = 0")
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "transaction_date >= ?")
		args = append(args, dateString(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "transaction_date <= ?")
		args = append(args, dateString(*filter.DateTo))
	}
	if filter.Search != "" {
		conditions = append(conditions, "(instr(lower(original_description), lower(?)) > 0 OR instr(lower(cleaned_description), lower(?)) > 0)")
		args = append(args, filter.Search, filter.Search)
	}

	query := `SELECT ` + txColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY transaction_date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return queryTransactions(db, query, args...)
}

func queryTransactions(db DBTX, query string, args ...any) ([]*Transaction, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

type TransactionSplit struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	FromPersonID  int64           `json:"from_person_id"`
	ToPersonID    int64           `json:"to_person_id"`
	Amount        decimal.Decimal `json:"amount"`
	SharedGroupID *int64          `json:"shared_group_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (s *TransactionSplit) Insert(db DBTX) error {
	s.CreatedAt = time.Now()

	query := `
	INSERT INTO transaction_splits (transaction_id, from_person_id, to_person_id, amount, shared_group_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query,
		s.TransactionID, s.FromPersonID, s.ToPersonID,
		amountString(s.Amount), nullInt64(s.SharedGroupID), s.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

func ListSplitsByTransaction(db DBTX, transactionID int64) ([]*TransactionSplit, error) {
	query := `
	SELECT id, transaction_id, from_person_id, to_person_id, amount, shared_group_id, created_at
	FROM transaction_splits
	WHERE transaction_id = ?
	ORDER BY id`
	rows, err := db.Query(query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var splits []*TransactionSplit
	for rows.Next() {
		var s TransactionSplit
		var sharedGroupID sql.NullInt64
		var amount string
		if err := rows.Scan(&s.ID, &s.TransactionID, &s.FromPersonID, &s.ToPersonID, &amount, &sharedGroupID, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Amount = parseAmount(amount)
		s.SharedGroupID = int64Ptr(sharedGroupID)
		splits = append(splits, &s)
	}
	return splits, rows.Err()
}
