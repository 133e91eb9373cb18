// src/parsers/bankcsv/parser.go
package bankcsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/parsers"
	"github.com/username/finledger/backend/src/security/validation"
)

// CSVParser reads bank statement exports with the header
// Date,Description,Amount,Type,Reference. Rows that fail to parse become
// warnings; a malformed row never aborts the file.
type CSVParser struct{}

func NewParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Name() string        { return "bankcsv" }
func (p *CSVParser) Description() string { return "Bank statement CSV export" }

func (p *CSVParser) Parse(file io.Reader) (*parsers.ParseResult, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("bankcsv parser: failed to read CSV header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, fmt.Errorf("bankcsv parser: %w", err)
	}

	result := &parsers.ParseResult{
		SourceType: models.SourceBankCSV,
		Metadata:   map[string]any{},
	}

	lineNumber := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNumber++
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %v", lineNumber, err))
			continue
		}
		if len(record) < 3 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: expected at least 3 fields, got %d", lineNumber, len(record)))
			continue
		}

		txnDate, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: bad date %q", lineNumber, record[0]))
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: bad amount %q", lineNumber, record[2]))
			continue
		}

		kind := models.KindExpense
		if len(record) > 3 {
			if k := strings.ToLower(strings.TrimSpace(record[3])); k != "" {
				kind = k
			}
		}
		// Negative amounts are money in; a plain expense row flips to income.
		if amount.IsNegative() {
			amount = amount.Abs()
			if kind == models.KindExpense {
				kind = models.KindIncome
			}
		}
		switch kind {
		case models.KindExpense, models.KindIncome, models.KindTransfer, models.KindPayment:
		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: unknown type %q", lineNumber, record[3]))
			continue
		}

		externalID := ""
		if len(record) > 4 {
			externalID = strings.TrimSpace(record[4])
		}

		description := strings.TrimSpace(record[1])
		if err := validation.CheckFormulaInjection(description, "description", fmt.Sprintf("line %d", lineNumber)); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: description starts with a spreadsheet formula character", lineNumber))
		}
		if err := validation.ValidateStringMaxLength(description, validation.MaxDescriptionLength, "Description"); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: description truncated to %d characters", lineNumber, validation.MaxDescriptionLength))
			description = string([]rune(description)[:validation.MaxDescriptionLength])
		}

		line := lineNumber
		result.Transactions = append(result.Transactions, models.RawTransaction{
			TransactionDate:     txnDate,
			Amount:              amount,
			OriginalDescription: description,
			SourceType:          models.SourceBankCSV,
			Currency:            "INR",
			TransactionType:     kind,
			ExternalID:          externalID,
			SourceLineNumber:    &line,
			Metadata:            map[string]any{},
		})
	}

	result.Metadata["total_rows_in_file"] = lineNumber - 1
	return result, nil
}

func checkHeader(header []string) error {
	expected := []string{"Date", "Description", "Amount", "Type", "Reference"}
	if len(header) < len(expected) {
		return fmt.Errorf("unexpected header %v", header)
	}
	for i, want := range expected {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return fmt.Errorf("unexpected header column %d: got %q, want %q", i, header[i], want)
		}
	}
	return nil
}
