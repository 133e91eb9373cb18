// src/services/import_service_test.go
package services

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finledger/backend/src/database"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/parsers"
	"github.com/username/finledger/backend/src/parsers/bankcsv"
	"github.com/username/finledger/backend/src/parsers/sharedledger"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if logger.L == nil {
		logger.InitLogger("error")
	}
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestCache() *cache.Cache {
	return cache.New(DefaultCacheExpiration, CacheCleanupInterval)
}

func newImportService(t *testing.T, db *sql.DB) (ImportService, *cache.Cache) {
	t.Helper()
	registry := parsers.NewRegistry()
	registry.Register(bankcsv.NewParser())
	registry.Register(sharedledger.NewParser())
	ruleCache := newTestCache()
	return NewImportService(db, registry, ruleCache), ruleCache
}

const bankFixture = `Date,Description,Amount,Type,Reference
2024-05-01,UPI-SWIGGY@icici lunch order,450.00,expense,UTR001
2024-05-02,SALARY CREDIT ACME CORP,-85000.00,,UTR002
2024-05-03,ATM WDL MG ROAD,2000,expense,
`

func TestImportFile_BankCSV(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	result, err := svc.ImportFile("bankcsv", "statement.csv", []byte(bankFixture))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Zero(t, result.Duplicates)
	assert.Zero(t, result.Upgraded)
	assert.Equal(t, 3, result.Processed)
	assert.NotZero(t, result.SourceFileID)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)

	txns, err := models.ListTransactions(db, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 3)

	// Newest first.
	assert.Equal(t, "2024-05-03", txns[0].TransactionDate.Format("2006-01-02"))
	assert.Equal(t, models.KindIncome, txns[1].TransactionType, "a negative untyped row is money in")
	assert.True(t, txns[1].Amount.Equal(dec("85000.00")))

	lunch := txns[2]
	assert.Equal(t, "UPI-SWIGGY@icici lunch order", lunch.CleanedDescription)
	require.NotNil(t, lunch.ExternalID)
	assert.Equal(t, "UTR001", *lunch.ExternalID)
	require.NotNil(t, lunch.SourceFileID)
	assert.Equal(t, result.SourceFileID, *lunch.SourceFileID)

	history, err := models.ListHistoryByTransaction(db, lunch.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4, "every imported row runs the full pipeline")

	files, err := models.ListSourceFiles(db)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "statement.csv", files[0].Filename)
	assert.Equal(t, models.SourceBankCSV, files[0].SourceType)
	assert.Equal(t, 3, files[0].RecordCount)
}

func TestImportFile_UnknownParser(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	_, err := svc.ImportFile("quickenqfx", "statement.qfx", []byte("whatever"))
	require.ErrorIs(t, err, ErrParserNotFound)
}

func TestImportFile_MalformedHeader(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	_, err := svc.ImportFile("bankcsv", "statement.csv", []byte("Foo,Bar\n1,2\n"))
	require.ErrorIs(t, err, ErrParsingFailed)
}

func TestImportFile_ReimportIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	first, err := svc.ImportFile("bankcsv", "statement.csv", []byte(bankFixture))
	require.NoError(t, err)
	require.Equal(t, 3, first.Created)

	second, err := svc.ImportFile("bankcsv", "statement.csv", []byte(bankFixture))
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 3, second.Duplicates)
	assert.Zero(t, second.Processed)
	assert.Equal(t, first.SourceFileID, second.SourceFileID, "the same file lands on the same source record")

	txns, err := models.ListTransactions(db, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestImportFile_ReferenceSeparatesSameDayCharges(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	content := `Date,Description,Amount,Type,Reference
2024-05-05,UPI COFFEE SHOP,120.00,expense,AAA1
2024-05-05,UPI COFFEE SHOP,120.00,expense,AAA2
2024-05-05,UPI COFFEE SHOP,120.00,expense,AAA1
`
	result, err := svc.ImportFile("bankcsv", "coffee.csv", []byte(content))
	require.NoError(t, err)

	// Two identical-looking charges with distinct references are both real;
	// the repeated reference is the actual duplicate.
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Duplicates)
}

func TestImportFile_LeadingZerosInReference(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	_, err := svc.ImportFile("bankcsv", "a.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-06,POS BIG BAZAAR,999.00,expense,00042
`))
	require.NoError(t, err)

	result, err := svc.ImportFile("bankcsv", "b.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-06,POS BIG BAZAAR,999.00,expense,42
`))
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Duplicates)
}

func TestImportFile_SameReferenceMergesDespiteDescription(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	_, err := svc.ImportFile("bankcsv", "a.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-07,AMZN MKTP ORDER 1182,799.00,expense,TXN881
`))
	require.NoError(t, err)

	// The bank renders the same charge differently in another export; the
	// shared reference still pins it to the stored row.
	result, err := svc.ImportFile("bankcsv", "b.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-07,AMAZON PAY PURCHASE,799.00,expense,TXN881
`))
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Duplicates)

	txns, err := models.ListTransactions(db, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "AMZN MKTP ORDER 1182", txns[0].OriginalDescription)
}

func TestImportFile_SubstringDescriptionDedup(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	_, err := svc.ImportFile("bankcsv", "full.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-10,NEFT HDFC0001 RENT PAYMENT MAY,15000.00,expense,
`))
	require.NoError(t, err)

	// A shorter sighting of the same charge from another export.
	result, err := svc.ImportFile("bankcsv", "short.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-10,RENT PAYMENT MAY,15000.00,expense,
`))
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Duplicates)
}

func TestImportFile_CSVSightingUpgradesPDFRow(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	pdfRow := &models.Transaction{
		SourceType:          "bank_pdf",
		TransactionDate:     date(2024, 5, 20),
		Amount:              dec("450.00"),
		TransactionType:     models.KindExpense,
		OriginalDescription: "UPI-SWIGGY@icici lunch",
		CleanedDescription:  "UPI-SWIGGY@icici lunch",
		IsCategoryAuto:      true,
	}
	require.NoError(t, pdfRow.Insert(db))

	result, err := svc.ImportFile("bankcsv", "statement.csv", []byte(`Date,Description,Amount,Type,Reference
2024-05-20,UPI-SWIGGY@icici lunch order 42,450.00,expense,UTR777
`))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upgraded)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Duplicates)
	assert.Equal(t, 1, result.Processed, "the upgraded row reruns the pipeline")

	stored, err := models.GetTransactionByID(db, pdfRow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceBankCSV, stored.SourceType)
	assert.Equal(t, "UPI-SWIGGY@icici lunch order 42", stored.OriginalDescription)
	require.NotNil(t, stored.ExternalID)
	assert.Equal(t, "UTR777", *stored.ExternalID)
}

func TestImportFile_HeaderOnlyFile(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	result, err := svc.ImportFile("bankcsv", "empty.csv", []byte("Date,Description,Amount,Type,Reference\n"))
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.SourceFileID, "nothing to land means no source record")

	files, err := models.ListSourceFiles(db)
	require.NoError(t, err)
	assert.Empty(t, files)
}

const sharedFixtureTemplate = `{
  "user": {"id": 100, "first_name": "Asha", "last_name": "Rao", "email": "asha@example.com"},
  "friends": [
    {"id": 200, "first_name": "Alice", "last_name": "Friend", "email": "alice@example.com"},
    {"id": 300, "first_name": "Bob", "last_name": "Pal", "email": "bob@example.com"}
  ],
  "groups": [{"id": 51, "name": "Flatmates", "type": "apartment"}],
  "expenses": [
    {
      "id": 9001, "description": "Dinner at Mosaic", "cost": "1000.00", "currency_code": "INR",
      "payment": false, "group_id": 51, "date": "2024-07-10T18:30:00Z",
      "repayments": [
        {"from": 200, "to": 100, "amount": "250.00"},
        {"from": 300, "to": 100, "amount": "500.00"}
      ],
      "users": [
        {"user": {"id": 100}, "paid_share": "1000.00", "owed_share": "250.00", "net_balance": "750.00"},
        {"user": {"id": 200}, "paid_share": "0", "owed_share": "250.00", "net_balance": "-250.00"},
        {"user": {"id": 300}, "paid_share": "0", "owed_share": "500.00", "net_balance": "-500.00"}
      ]
    },
    {
      "id": 9002, "description": "Pizza night", "cost": "1000.00", "currency_code": "INR",
      "payment": false, "group_id": 51, "date": "2024-07-12T20:00:00Z",
      "repayments": [{"from": 100, "to": 200, "amount": "250.00"}],
      "users": [
        {"user": {"id": 100}, "paid_share": "0", "owed_share": "%s", "net_balance": "-250.00"},
        {"user": {"id": 200}, "paid_share": "1000.00", "owed_share": "750.00", "net_balance": "250.00"}
      ]
    },
    {
      "id": 9003, "description": "Asha paid Alice", "cost": "500.00", "currency_code": "INR",
      "payment": true, "group_id": null, "date": "2024-07-15T09:00:00Z",
      "repayments": [{"from": 100, "to": 200, "amount": "500.00"}],
      "users": [
        {"user": {"id": 100}, "paid_share": "500.00", "owed_share": "0", "net_balance": "500.00"},
        {"user": {"id": 200}, "paid_share": "0", "owed_share": "500.00", "net_balance": "-500.00"}
      ]
    },
    {
      "id": 9004, "description": "Alice and Bob only", "cost": "700.00",
      "payment": false, "date": "2024-07-16T10:00:00Z",
      "repayments": [{"from": 300, "to": 200, "amount": "350.00"}],
      "users": [
        {"user": {"id": 200}, "paid_share": "700.00", "owed_share": "350.00", "net_balance": "350.00"},
        {"user": {"id": 300}, "paid_share": "0", "owed_share": "350.00", "net_balance": "-350.00"}
      ]
    },
    {
      "id": 9005, "description": "Deleted one", "cost": "100.00",
      "payment": false, "date": "2024-07-17T10:00:00Z", "deleted_at": "2024-07-18T00:00:00Z",
      "users": [{"user": {"id": 100}, "paid_share": "100.00", "owed_share": "100.00", "net_balance": "0"}]
    }
  ]
}`

func sharedFixture(userOwed string) string {
	return fmt.Sprintf(sharedFixtureTemplate, userOwed)
}

func TestImportFile_SharedLedger(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	result, err := svc.ImportFile("sharedledger", "ledger.json", []byte(sharedFixture("250.00")))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.AutoCreated)
	assert.Equal(t, 3, result.PersonsImported)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 3, result.Processed)

	// Expense the user paid in full: full amount stored, own share effective.
	dinner, err := models.GetTransactionBySharedExpenseID(db, 9001)
	require.NoError(t, err)
	assert.True(t, dinner.Amount.Equal(dec("1000.00")))
	require.NotNil(t, dinner.EffectiveAmount)
	assert.True(t, dinner.EffectiveAmount.Equal(dec("250.00")))
	assert.Equal(t, models.KindExpense, dinner.TransactionType)
	assert.False(t, dinner.IsProvisional)
	require.NotNil(t, dinner.ExternalID)
	assert.Equal(t, "9001", *dinner.ExternalID)

	group, err := models.GetGroupByExternalID(db, 51)
	require.NoError(t, err)
	assert.Equal(t, "Flatmates", group.Name)
	require.NotNil(t, dinner.SharedGroupID)
	assert.Equal(t, group.ID, *dinner.SharedGroupID)

	alice, err := models.GetPersonByExternalID(db, 200)
	require.NoError(t, err)
	bob, err := models.GetPersonByExternalID(db, 300)
	require.NoError(t, err)

	splits, err := models.ListSplitsByTransaction(db, dinner.ID)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, alice.ID, splits[0].FromPersonID)
	assert.True(t, splits[0].Amount.Equal(dec("250.00")))
	assert.Equal(t, bob.ID, splits[1].FromPersonID)
	assert.True(t, splits[1].Amount.Equal(dec("500.00")))

	// Expense someone else paid: a provisional stand-in for the user's share.
	pizza, err := models.GetTransactionBySharedExpenseID(db, 9002)
	require.NoError(t, err)
	assert.True(t, pizza.Amount.Equal(dec("250.00")))
	require.NotNil(t, pizza.EffectiveAmount)
	assert.True(t, pizza.EffectiveAmount.Equal(dec("250.00")))
	assert.True(t, pizza.IsProvisional)

	// Settlement: money moved, nothing spent.
	settle, err := models.GetTransactionBySharedExpenseID(db, 9003)
	require.NoError(t, err)
	assert.Equal(t, models.KindPayment, settle.TransactionType)
	assert.True(t, settle.IsPayment)
	require.NotNil(t, settle.EffectiveAmount)
	assert.True(t, settle.EffectiveAmount.IsZero())

	// No share for the user, and deleted rows never land.
	_, err = models.GetTransactionBySharedExpenseID(db, 9004)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = models.GetTransactionBySharedExpenseID(db, 9005)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	current, err := models.GetPersonByExternalID(db, 100)
	require.NoError(t, err)
	assert.True(t, current.IsCurrentUser)

	// Counterparties become person merchants; the user does not.
	_, err = models.GetMerchantByNameAndKind(db, "Alice Friend", models.MerchantKindPerson)
	assert.NoError(t, err)
	_, err = models.GetMerchantByNameAndKind(db, "Bob Pal", models.MerchantKindPerson)
	assert.NoError(t, err)
	_, err = models.GetMerchantByNameAndKind(db, "Asha Rao", models.MerchantKindPerson)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestImportFile_SharedLedgerReimportRefreshesShare(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newImportService(t, db)

	_, err := svc.ImportFile("sharedledger", "ledger.json", []byte(sharedFixture("250.00")))
	require.NoError(t, err)

	// Identical file: nothing changes.
	same, err := svc.ImportFile("sharedledger", "ledger.json", []byte(sharedFixture("250.00")))
	require.NoError(t, err)
	assert.Zero(t, same.Created)
	assert.Zero(t, same.Updated)
	assert.Zero(t, same.AutoCreated)
	assert.Zero(t, same.Processed)

	// The ledger rebalanced the user's share of one expense.
	changed, err := svc.ImportFile("sharedledger", "ledger.json", []byte(sharedFixture("333.33")))
	require.NoError(t, err)
	assert.Zero(t, changed.Created)
	assert.Equal(t, 1, changed.Updated)

	pizza, err := models.GetTransactionBySharedExpenseID(db, 9002)
	require.NoError(t, err)
	require.NotNil(t, pizza.EffectiveAmount)
	assert.True(t, pizza.EffectiveAmount.Equal(dec("333.33")))
	assert.True(t, pizza.Amount.Equal(dec("250.00")), "the original amount stays; only the share refreshes")
}
