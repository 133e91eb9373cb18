// src/models/raw.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is the normalized exchange form every parser emits,
// regardless of source format. An empty ExternalID means absent.
type RawTransaction struct {
	TransactionDate     time.Time
	Amount              decimal.Decimal
	OriginalDescription string
	SourceType          string
	PostedDate          *time.Time
	Currency            string
	TransactionType     string
	ExternalID          string
	SourceLineNumber    *int

	// Shared-ledger specific
	SharedExpenseID *int64
	SharedGroupID   *int64
	IsPayment       bool
	Repayments      []Repayment
	UsersShares     []UserShare

	Metadata map[string]any
}

// Repayment records who owes whom for one shared expense.
type Repayment struct {
	FromPersonID int64           `json:"from_person_id"`
	ToPersonID   int64           `json:"to_person_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// UserShare is one participant's slice of a shared expense. Share values
// stay in the source's string form.
type UserShare struct {
	UserID     int64  `json:"user_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	PaidShare  string `json:"paid_share"`
	OwedShare  string `json:"owed_share"`
	NetBalance string `json:"net_balance"`
}

// PersonRecord is a ledger participant extracted at parse time.
type PersonRecord struct {
	ExternalID    int64
	FirstName     string
	LastName      string
	Email         string
	IsCurrentUser bool
}

// GroupRecord is a sharing group extracted at parse time.
type GroupRecord struct {
	ExternalID int64
	Name       string
	GroupType  string
	Metadata   map[string]any
}

// ToMap renders the raw transaction for storage under the transaction's
// "raw" metadata key. Keys are stable; absent optionals become nil.
func (r *RawTransaction) ToMap() map[string]any {
	repayments := make([]any, 0, len(r.Repayments))
	for _, rep := range r.Repayments {
		repayments = append(repayments, map[string]any{
			"from_person_id": rep.FromPersonID,
			"to_person_id":   rep.ToPersonID,
			"amount":         rep.Amount.String(),
		})
	}
	shares := make([]any, 0, len(r.UsersShares))
	for _, share := range r.UsersShares {
		shares = append(shares, map[string]any{
			"user_id":     share.UserID,
			"first_name":  share.FirstName,
			"last_name":   share.LastName,
			"paid_share":  share.PaidShare,
			"owed_share":  share.OwedShare,
			"net_balance": share.NetBalance,
		})
	}

	var postedDate any
	if r.PostedDate != nil {
		postedDate = r.PostedDate.Format(dateLayout)
	}
	var externalID any
	if r.ExternalID != "" {
		externalID = r.ExternalID
	}
	var lineNumber any
	if r.SourceLineNumber != nil {
		lineNumber = *r.SourceLineNumber
	}
	var sharedExpenseID any
	if r.SharedExpenseID != nil {
		sharedExpenseID = *r.SharedExpenseID
	}
	var sharedGroupID any
	if r.SharedGroupID != nil {
		sharedGroupID = *r.SharedGroupID
	}
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return map[string]any{
		"transaction_date":     r.TransactionDate.Format(dateLayout),
		"amount":               r.Amount.String(),
		"original_description": r.OriginalDescription,
		"source_type":          r.SourceType,
		"posted_date":          postedDate,
		"currency":             r.Currency,
		"transaction_type":     r.TransactionType,
		"external_id":          externalID,
		"source_line_number":   lineNumber,
		"shared_expense_id":    sharedExpenseID,
		"shared_group_id":      sharedGroupID,
		"is_payment":           r.IsPayment,
		"repayments":           repayments,
		"users_shares":         shares,
		"metadata":             metadata,
	}
}
