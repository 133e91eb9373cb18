// src/services/import_service.go
package services

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/parsers"
	"github.com/username/finledger/backend/src/processors"
)

type importServiceImpl struct {
	db        *sql.DB
	registry  *parsers.Registry
	ruleCache *cache.Cache
}

func NewImportService(db *sql.DB, registry *parsers.Registry, ruleCache *cache.Cache) ImportService {
	return &importServiceImpl{
		db:        db,
		registry:  registry,
		ruleCache: ruleCache,
	}
}

func (s *importServiceImpl) ListParsers() []parsers.ParserInfo {
	return s.registry.List()
}

func (s *importServiceImpl) ImportFile(parserName, filename string, content []byte) (*ImportResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("ImportFile START", "parser", parserName, "filename", filename, "size", len(content))

	parser := s.registry.Get(parserName)
	if parser == nil {
		return nil, fmt.Errorf("%w: %s", ErrParserNotFound, parserName)
	}

	parseResult, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	sum := sha256.Sum256(content)
	fileHash := hex.EncodeToString(sum[:])

	result := &ImportResult{
		Errors:   parseResult.Errors,
		Warnings: parseResult.Warnings,
	}
	if len(parseResult.Transactions) == 0 {
		logger.L.Info("ImportFile END", "filename", filename, "created", 0, "duration", time.Since(overallStartTime))
		return result, nil
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	var landed []*models.Transaction
	if parseResult.SourceType == models.SourceSharedLedger {
		landed, err = s.importShared(dbTx, parseResult, filename, fileHash, int64(len(content)), result)
	} else {
		landed, err = s.importPlain(dbTx, parseResult, filename, fileHash, int64(len(content)), result)
	}
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing import: %w", err)
	}

	if len(landed) > 0 {
		pipeTx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("error beginning processing transaction: %w", err)
		}
		defer pipeTx.Rollback()
		processed, err := processors.ProcessTransactions(pipeTx, landed)
		if err != nil {
			return nil, fmt.Errorf("error processing imported transactions: %w", err)
		}
		if err := pipeTx.Commit(); err != nil {
			return nil, fmt.Errorf("error committing processing: %w", err)
		}
		result.Processed = processed
	}

	s.ruleCache.Delete(ckRuleSuggestions)

	logger.L.Info("ImportFile END",
		"filename", filename,
		"created", result.Created,
		"duplicates", result.Duplicates,
		"upgraded", result.Upgraded,
		"updated", result.Updated,
		"duration", time.Since(overallStartTime))
	return result, nil
}

func (s *importServiceImpl) getOrCreateSourceFile(dbTx models.DBTX, filename, fileHash, sourceType string, fileSize int64, recordCount int, metadata map[string]any) (*models.SourceFile, error) {
	existing, err := models.GetSourceFileByHash(dbTx, fileHash)
	if err == nil {
		if len(metadata) > 0 {
			existing.Metadata = models.MergeMetadata(existing.Metadata, metadata)
			if err := existing.Update(dbTx); err != nil {
				return nil, fmt.Errorf("error refreshing source file metadata: %w", err)
			}
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	sourceFile := &models.SourceFile{
		Filename:    filename,
		FileHash:    fileHash,
		SourceType:  sourceType,
		FileSize:    fileSize,
		RecordCount: recordCount,
		Metadata:    models.MergeMetadata(nil, metadata),
	}
	if err := sourceFile.Insert(dbTx); err != nil {
		return nil, fmt.Errorf("error inserting source file: %w", err)
	}
	return sourceFile, nil
}

// normalizeExternalID strips padding so references from different exports of
// the same feed compare equal. "0" stays "0" instead of collapsing to empty.
func normalizeExternalID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.TrimLeft(trimmed, "0")
	if normalized == "" {
		return "0"
	}
	return normalized
}

func normalizedDescription(desc string) string {
	return strings.Join(strings.Fields(desc), " ")
}

func strippedUpperDescription(desc string) string {
	return strings.ToUpper(strings.Join(strings.Fields(desc), ""))
}

// stagedKey indexes rows inserted earlier in the same import batch, which a
// candidate query against the database cannot see yet.
type stagedKey struct {
	date   string
	amount string
	kind   string
}

func (s *importServiceImpl) importPlain(dbTx models.DBTX, parseResult *parsers.ParseResult, filename, fileHash string, fileSize int64, result *ImportResult) ([]*models.Transaction, error) {
	sourceFile, err := s.getOrCreateSourceFile(dbTx, filename, fileHash, parseResult.SourceType, fileSize, len(parseResult.Transactions), parseResult.Metadata)
	if err != nil {
		return nil, err
	}
	result.SourceFileID = sourceFile.ID

	staged := make(map[stagedKey][]*models.Transaction)
	var pipelineRows []*models.Transaction

	for i := range parseResult.Transactions {
		raw := &parseResult.Transactions[i]
		dedupHash := models.ComputeDedupHash(raw.TransactionDate, raw.Amount, raw.OriginalDescription, raw.TransactionType)

		key := stagedKey{
			date:   raw.TransactionDate.Format("2006-01-02"),
			amount: raw.Amount.StringFixed(2),
			kind:   raw.TransactionType,
		}
		candidates, err := models.FindDuplicateCandidates(dbTx, key.date, key.amount, key.kind)
		if err != nil {
			return nil, fmt.Errorf("error querying duplicate candidates: %w", err)
		}
		candidates = append(candidates, staged[key]...)

		newExternalID := normalizeExternalID(raw.ExternalID)
		newDescNorm := strippedUpperDescription(raw.OriginalDescription)

		var duplicateOf *models.Transaction
		for _, candidate := range candidates {
			candidateExternalID := ""
			if candidate.ExternalID != nil {
				candidateExternalID = normalizeExternalID(*candidate.ExternalID)
			}

			// External ids settle the question when both sides carry one.
			// Different ids mean distinct transactions even when the
			// descriptions match, which keeps same-day same-amount pairs apart.
			if candidateExternalID != "" && newExternalID != "" {
				if candidateExternalID == newExternalID {
					duplicateOf = candidate
					break
				}
				continue
			}

			candidateDescNorm := strippedUpperDescription(candidate.OriginalDescription)
			if newDescNorm == candidateDescNorm {
				duplicateOf = candidate
				break
			}
			if len(newDescNorm) > 10 && len(candidateDescNorm) > 10 {
				if strings.Contains(candidateDescNorm, newDescNorm) || strings.Contains(newDescNorm, candidateDescNorm) {
					duplicateOf = candidate
					break
				}
			}
		}

		if duplicateOf != nil {
			// CSV feeds carry cleaner structured descriptions than PDF
			// extractions, so a CSV re-sighting of a PDF row takes over the
			// stored row instead of being dropped.
			if parseResult.SourceType == models.SourceBankCSV && duplicateOf.SourceType != models.SourceBankCSV {
				duplicateOf.OriginalDescription = raw.OriginalDescription
				duplicateOf.CleanedDescription = normalizedDescription(raw.OriginalDescription)
				duplicateOf.SourceType = parseResult.SourceType
				if raw.ExternalID != "" {
					externalID := raw.ExternalID
					duplicateOf.ExternalID = &externalID
				}
				duplicateOf.DedupHash = dedupHash
				if err := duplicateOf.Update(dbTx); err != nil {
					return nil, fmt.Errorf("error upgrading duplicate transaction: %w", err)
				}
				result.Upgraded++
				// the new description may resolve a merchant the old one could not
				pipelineRows = append(pipelineRows, duplicateOf)
				logger.L.Info("Upgraded stored transaction to bank CSV source", "transactionID", duplicateOf.ID, "filename", filename)
			} else {
				result.Duplicates++
				logger.L.Debug("Skipping duplicate transaction on import", "filename", filename, "description", raw.OriginalDescription)
			}
			continue
		}

		tx := &models.Transaction{
			SourceFileID:        &sourceFile.ID,
			SourceLineNumber:    raw.SourceLineNumber,
			SourceType:          parseResult.SourceType,
			TransactionDate:     raw.TransactionDate,
			PostedDate:          raw.PostedDate,
			Amount:              raw.Amount,
			Currency:            raw.Currency,
			TransactionType:     raw.TransactionType,
			OriginalDescription: raw.OriginalDescription,
			CleanedDescription:  normalizedDescription(raw.OriginalDescription),
			IsCategoryAuto:      true,
			DedupHash:           dedupHash,
			Metadata: map[string]any{
				"raw":             raw.ToMap(),
				"parser_metadata": models.MergeMetadata(nil, parseResult.Metadata),
			},
		}
		if raw.ExternalID != "" {
			externalID := raw.ExternalID
			tx.ExternalID = &externalID
		}
		if err := tx.Insert(dbTx); err != nil {
			return nil, fmt.Errorf("error inserting transaction: %w", err)
		}
		result.Created++
		pipelineRows = append(pipelineRows, tx)
		staged[key] = append(staged[key], tx)
	}

	return pipelineRows, nil
}

func (s *importServiceImpl) importShared(dbTx models.DBTX, parseResult *parsers.ParseResult, filename, fileHash string, fileSize int64, result *ImportResult) ([]*models.Transaction, error) {
	sourceFile, err := s.getOrCreateSourceFile(dbTx, filename, fileHash, parseResult.SourceType, fileSize, len(parseResult.Transactions), parseResult.Metadata)
	if err != nil {
		return nil, err
	}
	result.SourceFileID = sourceFile.ID

	personMap, err := s.upsertPersons(dbTx, parseResult.Persons)
	if err != nil {
		return nil, err
	}
	groupMap, err := s.upsertGroups(dbTx, parseResult.Groups)
	if err != nil {
		return nil, err
	}
	if err := s.upsertPersonMerchants(dbTx, personMap, parseResult.CurrentUserID); err != nil {
		return nil, err
	}
	result.PersonsImported = len(personMap)

	var createdRows []*models.Transaction

	for i := range parseResult.Transactions {
		raw := &parseResult.Transactions[i]

		// The expense id carries a unique constraint, so it is the primary
		// dedup key for shared-ledger rows.
		var existing *models.Transaction
		if raw.SharedExpenseID != nil {
			found, err := models.GetTransactionBySharedExpenseID(dbTx, *raw.SharedExpenseID)
			if err == nil {
				existing = found
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}

		userShare := userShareFromMetadata(raw.Metadata)
		userPaid, _ := raw.Metadata["user_paid"].(bool)

		var txAmount decimal.Decimal
		var effectiveAmount decimal.Decimal
		var txType string
		provisional := false

		switch {
		case raw.IsPayment:
			// Settlement either direction: money moved but nothing was spent.
			txAmount = raw.Amount
			effectiveAmount = decimal.Zero
			txType = models.KindPayment
		case userPaid:
			// Current user fronted the full amount; only their share counts.
			txAmount = raw.Amount
			if userShare != nil {
				effectiveAmount = *userShare
			} else {
				effectiveAmount = raw.Amount
			}
			txType = raw.TransactionType
		case userShare != nil && userShare.IsPositive():
			// Someone else paid. No bank debit will ever appear, so the row
			// stands in for the user's share until reconciliation says otherwise.
			txAmount = *userShare
			effectiveAmount = *userShare
			txType = models.KindExpense
			provisional = true
		default:
			// No share for the current user in this expense.
			continue
		}

		dedupHash := models.ComputeDedupHash(raw.TransactionDate, txAmount, raw.OriginalDescription, txType)

		if existing != nil {
			if existing.EffectiveAmount == nil || !existing.EffectiveAmount.Equal(effectiveAmount) {
				refreshed := effectiveAmount
				existing.EffectiveAmount = &refreshed
				if err := existing.Update(dbTx); err != nil {
					return nil, fmt.Errorf("error refreshing shared transaction: %w", err)
				}
				result.Updated++
			}
			continue
		}

		var groupDBID *int64
		if raw.SharedGroupID != nil {
			if group, ok := groupMap[*raw.SharedGroupID]; ok {
				groupDBID = &group.ID
			}
		}

		effective := effectiveAmount
		tx := &models.Transaction{
			SourceFileID:        &sourceFile.ID,
			SourceLineNumber:    raw.SourceLineNumber,
			SourceType:          parseResult.SourceType,
			TransactionDate:     raw.TransactionDate,
			PostedDate:          raw.PostedDate,
			Amount:              txAmount,
			EffectiveAmount:     &effective,
			Currency:            raw.Currency,
			TransactionType:     txType,
			OriginalDescription: raw.OriginalDescription,
			CleanedDescription:  normalizedDescription(raw.OriginalDescription),
			IsCategoryAuto:      true,
			SharedExpenseID:     raw.SharedExpenseID,
			SharedGroupID:       groupDBID,
			IsPayment:           raw.IsPayment,
			IsProvisional:       provisional,
			DedupHash:           dedupHash,
			Metadata: map[string]any{
				"raw":             raw.ToMap(),
				"parser_metadata": models.MergeMetadata(nil, parseResult.Metadata),
			},
		}
		if raw.ExternalID != "" {
			externalID := raw.ExternalID
			tx.ExternalID = &externalID
		}
		if err := tx.Insert(dbTx); err != nil {
			return nil, fmt.Errorf("error inserting shared transaction: %w", err)
		}
		result.Created++
		if provisional {
			result.AutoCreated++
		}
		createdRows = append(createdRows, tx)

		for _, rep := range raw.Repayments {
			fromPerson, fromOK := personMap[rep.FromPersonID]
			toPerson, toOK := personMap[rep.ToPersonID]
			if !fromOK || !toOK {
				continue
			}
			split := &models.TransactionSplit{
				TransactionID: tx.ID,
				FromPersonID:  fromPerson.ID,
				ToPersonID:    toPerson.ID,
				Amount:        rep.Amount,
				SharedGroupID: groupDBID,
			}
			if err := split.Insert(dbTx); err != nil {
				return nil, fmt.Errorf("error inserting transaction split: %w", err)
			}
		}
	}

	return createdRows, nil
}

func userShareFromMetadata(metadata map[string]any) *decimal.Decimal {
	value, ok := metadata["user_owed_share"].(string)
	if !ok || value == "" {
		return nil
	}
	share, err := decimal.NewFromString(value)
	if err != nil {
		return nil
	}
	return &share
}

func (s *importServiceImpl) upsertPersons(dbTx models.DBTX, records []models.PersonRecord) (map[int64]*models.ExpensePerson, error) {
	personMap := make(map[int64]*models.ExpensePerson, len(records))
	for i := range records {
		rec := &records[i]
		existing, err := models.GetPersonByExternalID(dbTx, rec.ExternalID)
		if err == nil {
			// Names and emails drift between exports; the current-user flag
			// does not get overwritten once set.
			existing.FirstName = rec.FirstName
			existing.LastName = rec.LastName
			existing.Email = rec.Email
			if err := existing.Update(dbTx); err != nil {
				return nil, fmt.Errorf("error updating person %d: %w", rec.ExternalID, err)
			}
			personMap[rec.ExternalID] = existing
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		person := &models.ExpensePerson{
			ExternalID:    rec.ExternalID,
			FirstName:     rec.FirstName,
			LastName:      rec.LastName,
			Email:         rec.Email,
			IsCurrentUser: rec.IsCurrentUser,
		}
		if err := person.Insert(dbTx); err != nil {
			return nil, fmt.Errorf("error inserting person %d: %w", rec.ExternalID, err)
		}
		personMap[rec.ExternalID] = person
	}
	return personMap, nil
}

func (s *importServiceImpl) upsertGroups(dbTx models.DBTX, records []models.GroupRecord) (map[int64]*models.ExpenseGroup, error) {
	groupMap := make(map[int64]*models.ExpenseGroup, len(records))
	for i := range records {
		rec := &records[i]
		existing, err := models.GetGroupByExternalID(dbTx, rec.ExternalID)
		if err == nil {
			existing.Name = rec.Name
			if err := existing.Update(dbTx); err != nil {
				return nil, fmt.Errorf("error updating group %d: %w", rec.ExternalID, err)
			}
			groupMap[rec.ExternalID] = existing
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		group := &models.ExpenseGroup{
			ExternalID: rec.ExternalID,
			Name:       rec.Name,
			GroupType:  rec.GroupType,
			Metadata:   rec.Metadata,
		}
		if err := group.Insert(dbTx); err != nil {
			return nil, fmt.Errorf("error inserting group %d: %w", rec.ExternalID, err)
		}
		groupMap[rec.ExternalID] = group
	}
	return groupMap, nil
}

// upsertPersonMerchants gives every counterparty a person-kind merchant so
// transfers to friends categorize like any other spend target.
func (s *importServiceImpl) upsertPersonMerchants(dbTx models.DBTX, personMap map[int64]*models.ExpensePerson, currentUserID int64) error {
	for externalID, person := range personMap {
		if externalID == currentUserID {
			continue
		}

		_, err := models.GetMerchantByPersonID(dbTx, person.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		name := person.FullName()
		byName, err := models.GetMerchantByNameAndKind(dbTx, name, models.MerchantKindPerson)
		if err == nil {
			byName.PersonID = &person.ID
			if err := byName.Update(dbTx); err != nil {
				return fmt.Errorf("error linking merchant to person %d: %w", person.ExternalID, err)
			}
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		merchant := &models.Merchant{
			Name:     name,
			Kind:     models.MerchantKindPerson,
			PersonID: &person.ID,
		}
		if err := merchant.Insert(dbTx); err != nil {
			return fmt.Errorf("error creating person merchant for %d: %w", person.ExternalID, err)
		}
	}
	return nil
}
