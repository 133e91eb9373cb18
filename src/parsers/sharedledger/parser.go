// src/parsers/sharedledger/parser.go
package sharedledger

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finledger/backend/src/models"
	"github.com/username/finledger/backend/src/parsers"
	"github.com/username/finledger/backend/src/security/validation"
)

// JSONParser reads a shared-expense ledger backup: a JSON document with
// "user", "friends", "groups" and "expenses" keys. Besides transactions it
// extracts every participant and group it sees, so the import can upsert
// them before resolving repayments.
type JSONParser struct {
	currentUserID int64
}

func NewParser() *JSONParser {
	return &JSONParser{}
}

// NewParserForUser pins the current user instead of reading it from the
// file's "user" block.
func NewParserForUser(userID int64) *JSONParser {
	return &JSONParser{currentUserID: userID}
}

func (p *JSONParser) Name() string        { return "sharedledger" }
func (p *JSONParser) Description() string { return "Shared-expense ledger JSON backup" }

type ledgerFile struct {
	User     ledgerUser      `json:"user"`
	Friends  []ledgerUser    `json:"friends"`
	Groups   []ledgerGroup   `json:"groups"`
	Expenses []ledgerExpense `json:"expenses"`
}

type ledgerUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type ledgerGroup struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	SimplifiedDebts json.RawMessage `json:"simplified_debts"`
	CreatedAt       string          `json:"created_at"`
}

type ledgerCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ledgerRepayment struct {
	From   int64       `json:"from"`
	To     int64       `json:"to"`
	Amount json.Number `json:"amount"`
}

type ledgerShare struct {
	User       ledgerUser  `json:"user"`
	PaidShare  json.Number `json:"paid_share"`
	OwedShare  json.Number `json:"owed_share"`
	NetBalance json.Number `json:"net_balance"`
}

type ledgerExpense struct {
	ID             int64             `json:"id"`
	Description    string            `json:"description"`
	Cost           json.Number       `json:"cost"`
	CurrencyCode   string            `json:"currency_code"`
	Payment        bool              `json:"payment"`
	GroupID        *int64            `json:"group_id"`
	Date           string            `json:"date"`
	CreatedAt      string            `json:"created_at"`
	DeletedAt      *string           `json:"deleted_at"`
	CreationMethod string            `json:"creation_method"`
	Details        string            `json:"details"`
	CommentsCount  int               `json:"comments_count"`
	Category       *ledgerCategory   `json:"category"`
	CreatedBy      *ledgerUser       `json:"created_by"`
	Repayments     []ledgerRepayment `json:"repayments"`
	Users          []ledgerShare     `json:"users"`
}

func (p *JSONParser) Parse(file io.Reader) (*parsers.ParseResult, error) {
	var data ledgerFile
	dec := json.NewDecoder(file)
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("sharedledger parser: invalid JSON: %w", err)
	}

	if p.currentUserID == 0 {
		p.currentUserID = data.User.ID
	}

	result := &parsers.ParseResult{
		SourceType:    models.SourceSharedLedger,
		CurrentUserID: p.currentUserID,
	}

	seen := make(map[int64]bool)
	addPerson := func(u ledgerUser, current bool) {
		if u.ID == 0 || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		result.Persons = append(result.Persons, models.PersonRecord{
			ExternalID:    u.ID,
			FirstName:     u.FirstName,
			LastName:      u.LastName,
			Email:         u.Email,
			IsCurrentUser: current,
		})
	}

	if p.currentUserID != 0 {
		addPerson(data.User, data.User.ID == p.currentUserID)
	}
	for _, group := range data.Groups {
		if group.ID == 0 {
			continue
		}
		result.Groups = append(result.Groups, models.GroupRecord{
			ExternalID: group.ID,
			Name:       group.Name,
			GroupType:  group.Type,
			Metadata: map[string]any{
				"simplified_debts": json.RawMessage(group.SimplifiedDebts),
				"created_at":       group.CreatedAt,
			},
		})
	}
	for _, friend := range data.Friends {
		addPerson(friend, false)
	}

	for idx, expense := range data.Expenses {
		txn, err := p.parseExpense(&expense, idx)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to parse expense %d: %v", expense.ID, err))
			continue
		}
		if txn == nil {
			continue
		}
		result.Transactions = append(result.Transactions, *txn)
		if expense.CreatedBy != nil {
			addPerson(*expense.CreatedBy, expense.CreatedBy.ID == p.currentUserID)
		}
		for _, share := range expense.Users {
			addPerson(share.User, share.User.ID == p.currentUserID)
		}
	}

	result.Metadata = map[string]any{
		"current_user_id":        p.currentUserID,
		"total_expenses_in_file": len(data.Expenses),
	}
	return result, nil
}

func (p *JSONParser) parseExpense(expense *ledgerExpense, idx int) (*models.RawTransaction, error) {
	if expense.DeletedAt != nil && *expense.DeletedAt != "" {
		return nil, nil
	}

	amount, err := parseNumber(expense.Cost)
	if err != nil {
		return nil, fmt.Errorf("bad cost %q", expense.Cost)
	}

	txnDate := parseLedgerDate(expense.Date)

	kind := models.KindExpense
	if expense.Payment {
		kind = models.KindPayment
	} else if amount.IsNegative() {
		kind = models.KindIncome
		amount = amount.Abs()
	}

	repayments := make([]models.Repayment, 0, len(expense.Repayments))
	for _, rep := range expense.Repayments {
		repAmount, err := parseNumber(rep.Amount)
		if err != nil {
			repAmount = decimal.Zero
		}
		repayments = append(repayments, models.Repayment{
			FromPersonID: rep.From,
			ToPersonID:   rep.To,
			Amount:       repAmount,
		})
	}

	shares := make([]models.UserShare, 0, len(expense.Users))
	for _, share := range expense.Users {
		shares = append(shares, models.UserShare{
			UserID:     share.User.ID,
			FirstName:  share.User.FirstName,
			LastName:   share.User.LastName,
			PaidShare:  numberOrZero(share.PaidShare),
			OwedShare:  numberOrZero(share.OwedShare),
			NetBalance: numberOrZero(share.NetBalance),
		})
	}

	userShare := p.computeUserShare(expense)
	userPaid := p.didCurrentUserPay(expense)

	var categoryID, categoryName any
	if expense.Category != nil {
		categoryID = expense.Category.ID
		categoryName = expense.Category.Name
	}
	var createdBy any
	if expense.CreatedBy != nil {
		createdBy = expense.CreatedBy.ID
	}
	var userOwedShare any
	if userShare != nil {
		userOwedShare = userShare.String()
	}

	metadata := map[string]any{
		"category_id":     categoryID,
		"category_name":   categoryName,
		"creation_method": expense.CreationMethod,
		"details":         expense.Details,
		"created_at":      expense.CreatedAt,
		"created_by":      createdBy,
		"comments_count":  expense.CommentsCount,
		"user_owed_share": userOwedShare,
		"user_paid":       userPaid,
	}

	line := idx
	expenseID := expense.ID
	return &models.RawTransaction{
		TransactionDate:     txnDate,
		Amount:              amount,
		OriginalDescription: expense.Description,
		SourceType:          models.SourceSharedLedger,
		Currency:            currencyOrDefault(expense.CurrencyCode),
		TransactionType:     kind,
		ExternalID:          strconv.FormatInt(expenseID, 10),
		SourceLineNumber:    &line,
		SharedExpenseID:     &expenseID,
		SharedGroupID:       expense.GroupID,
		IsPayment:           expense.Payment,
		Repayments:          repayments,
		UsersShares:         shares,
		Metadata:            metadata,
	}, nil
}

// computeUserShare reads the current user's owed share from the users
// array, falling back to the repayments when the user is not listed.
func (p *JSONParser) computeUserShare(expense *ledgerExpense) *decimal.Decimal {
	for _, share := range expense.Users {
		if share.User.ID == p.currentUserID {
			owed, err := parseNumber(share.OwedShare)
			if err != nil {
				owed = decimal.Zero
			}
			return &owed
		}
	}
	return p.shareFromRepayments(expense)
}

// shareFromRepayments estimates the user's share when the users array does
// not list them. If others owe the user, the share is the total minus what
// they owe; if the user owes someone, it is what the user owes.
func (p *JSONParser) shareFromRepayments(expense *ledgerExpense) *decimal.Decimal {
	totalCost, err := parseNumber(expense.Cost)
	if err != nil || totalCost.IsZero() {
		zero := decimal.Zero
		return &zero
	}
	userOwes := decimal.Zero
	userOwed := decimal.Zero
	for _, rep := range expense.Repayments {
		amount, err := parseNumber(rep.Amount)
		if err != nil {
			continue
		}
		if rep.From == p.currentUserID {
			userOwes = userOwes.Add(amount)
		}
		if rep.To == p.currentUserID {
			userOwed = userOwed.Add(amount)
		}
	}
	if userOwed.IsPositive() {
		share := totalCost.Sub(userOwed)
		return &share
	}
	if userOwes.IsPositive() {
		return &userOwes
	}
	return nil
}

func (p *JSONParser) didCurrentUserPay(expense *ledgerExpense) bool {
	for _, share := range expense.Users {
		if share.User.ID == p.currentUserID {
			paid, err := parseNumber(share.PaidShare)
			if err != nil {
				return false
			}
			return paid.IsPositive()
		}
	}
	return false
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

func numberOrZero(n json.Number) string {
	if n == "" {
		return "0"
	}
	return n.String()
}

func currencyOrDefault(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" || validation.ValidateCurrencyCode(trimmed) != nil {
		return "INR"
	}
	return trimmed
}

func parseLedgerDate(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Now().UTC()
}
