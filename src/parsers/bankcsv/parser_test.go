// src/parsers/bankcsv/parser_test.go
package bankcsv

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParse_HappyPath(t *testing.T) {
	input := `Date,Description,Amount,Type,Reference
2024-05-01,UPI-SWIGGY LUNCH ORDER,450.00,expense,UTR001
2024-05-02,SALARY CREDIT ACME,-85000.00,,UTR002
2024-05-03,CARD REFUND MYNTRA,-1250.50,income,UTR003
2024-05-04,SAVINGS SWEEP,3000,transfer,
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.True(t, result.Success())
	require.Equal(t, 4, result.RecordCount())
	assert.Empty(t, result.Warnings)
	assert.Equal(t, models.SourceBankCSV, result.SourceType)
	assert.Equal(t, 4, result.Metadata["total_rows_in_file"])

	first := result.Transactions[0]
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), first.TransactionDate)
	assert.Equal(t, "UPI-SWIGGY LUNCH ORDER", first.OriginalDescription)
	assert.True(t, first.Amount.Equal(d("450.00")))
	assert.Equal(t, models.KindExpense, first.TransactionType)
	assert.Equal(t, "UTR001", first.ExternalID)
	assert.Equal(t, "INR", first.Currency)
	require.NotNil(t, first.SourceLineNumber)
	assert.Equal(t, 2, *first.SourceLineNumber)

	// A negative amount with no explicit type is money in.
	salary := result.Transactions[1]
	assert.True(t, salary.Amount.Equal(d("85000.00")))
	assert.Equal(t, models.KindIncome, salary.TransactionType)

	// A negative amount that is already income keeps its type.
	refund := result.Transactions[2]
	assert.True(t, refund.Amount.Equal(d("1250.50")))
	assert.Equal(t, models.KindIncome, refund.TransactionType)

	sweep := result.Transactions[3]
	assert.Equal(t, models.KindTransfer, sweep.TransactionType)
	assert.Empty(t, sweep.ExternalID)
}

func TestParse_BadRowsBecomeWarnings(t *testing.T) {
	input := `Date,Description,Amount,Type,Reference
2024-99-01,BAD DATE ROW,100.00,expense,R1
2024-05-02,BAD AMOUNT ROW,12x.50,expense,R2
ONLY ONE FIELD
2024-05-04,UNKNOWN KIND ROW,100.00,chargeback,R4
2024-05-05,GOOD ROW,75.25,expense,R5
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)

	// Bad rows are reported but never abort the file.
	assert.True(t, result.Success())
	require.Len(t, result.Warnings, 4)
	assert.Equal(t, `line 2: bad date "2024-99-01"`, result.Warnings[0])
	assert.Equal(t, `line 3: bad amount "12x.50"`, result.Warnings[1])
	assert.Equal(t, "line 4: expected at least 3 fields, got 1", result.Warnings[2])
	assert.Equal(t, `line 5: unknown type "chargeback"`, result.Warnings[3])

	require.Equal(t, 1, result.RecordCount())
	assert.Equal(t, "GOOD ROW", result.Transactions[0].OriginalDescription)
	assert.Equal(t, 5, result.Metadata["total_rows_in_file"])
}

func TestParse_FormulaDescriptionKeptWithWarning(t *testing.T) {
	input := `Date,Description,Amount,Type,Reference
2024-05-01,=SUM(A1:A9),100.00,expense,F1
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "line 2: description starts with a spreadsheet formula character", result.Warnings[0])

	// The row itself survives; sanitization happens downstream.
	require.Equal(t, 1, result.RecordCount())
	assert.Equal(t, "=SUM(A1:A9)", result.Transactions[0].OriginalDescription)
}

func TestParse_OverlongDescriptionTruncated(t *testing.T) {
	long := strings.Repeat("X", 1030)
	input := "Date,Description,Amount,Type,Reference\n2024-05-01," + long + ",100.00,expense,L1\n"
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "line 2: description truncated to 1024 characters", result.Warnings[0])
	require.Equal(t, 1, result.RecordCount())
	assert.Len(t, result.Transactions[0].OriginalDescription, 1024)
}

func TestParse_HeaderIsCaseInsensitive(t *testing.T) {
	input := `date,DESCRIPTION,amount,Type,REFERENCE,Extra
2024-06-01,LOWER HEADER ROW,10.00,expense,
`
	result, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordCount())
}

func TestParse_RejectsUnknownHeader(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("Date,Description,Amount\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected header")

	_, err = NewParser().Parse(strings.NewReader("When,Description,Amount,Type,Reference\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected header column 0: got "When", want "Date"`)
}

func TestParse_HeaderOnly(t *testing.T) {
	result, err := NewParser().Parse(strings.NewReader("Date,Description,Amount,Type,Reference\n"))
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Zero(t, result.RecordCount())
	assert.Equal(t, 0, result.Metadata["total_rows_in_file"])
}

func TestParse_EmptyFile(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CSV header")
}
