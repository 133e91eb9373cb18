// src/models/merchant.go
package models

import (
	"database/sql"
	"errors"
	"time"
)

// Merchant kinds.
const (
	MerchantKindBusiness = "business"
	MerchantKindPerson   = "person"
)

type Merchant struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Kind              string    `json:"kind"`
	DefaultCategoryID *int64    `json:"default_category_id"`
	PersonID          *int64    `json:"person_id"`
	IsReviewed        bool      `json:"is_reviewed"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type MerchantAlias struct {
	ID         int64     `json:"id"`
	MerchantID int64     `json:"merchant_id"`
	Alias      string    `json:"alias"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m *Merchant) Insert(db DBTX) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Kind == "" {
		m.Kind = MerchantKindBusiness
	}

	query := `
	INSERT INTO merchants (name, kind, default_category_id, person_id, is_reviewed, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query, m.Name, m.Kind, nullInt64(m.DefaultCategoryID), nullInt64(m.PersonID), m.IsReviewed, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (m *Merchant) Update(db DBTX) error {
	m.UpdatedAt = time.Now()

	query := `
	UPDATE merchants SET name = ?, kind = ?, default_category_id = ?, person_id = ?, is_reviewed = ?, updated_at = ?
	WHERE id = ?`
	_, err := db.Exec(query, m.Name, m.Kind, nullInt64(m.DefaultCategoryID), nullInt64(m.PersonID), m.IsReviewed, m.UpdatedAt, m.ID)
	return err
}

const merchantColumns = `id, name, kind, default_category_id, person_id, is_reviewed, created_at, updated_at`

func scanMerchant(row rowScanner) (*Merchant, error) {
	var m Merchant
	var defaultCategoryID, personID sql.NullInt64
	err := row.Scan(&m.ID, &m.Name, &m.Kind, &defaultCategoryID, &personID, &m.IsReviewed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.DefaultCategoryID = int64Ptr(defaultCategoryID)
	m.PersonID = int64Ptr(personID)
	return &m, nil
}

func GetMerchantByID(db DBTX, id int64) (*Merchant, error) {
	row := db.QueryRow(`SELECT `+merchantColumns+` FROM merchants WHERE id = ?`, id)
	m, err := scanMerchant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return m, nil
}

func GetMerchantByPersonID(db DBTX, personID int64) (*Merchant, error) {
	row := db.QueryRow(`SELECT `+merchantColumns+` FROM merchants WHERE person_id = ?`, personID)
	m, err := scanMerchant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return m, nil
}

func GetMerchantByNameAndKind(db DBTX, name, kind string) (*Merchant, error) {
	row := db.QueryRow(`SELECT `+merchantColumns+` FROM merchants WHERE name = ? AND kind = ?`, name, kind)
	m, err := scanMerchant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return m, nil
}

func ListMerchants(db DBTX) ([]*Merchant, error) {
	rows, err := db.Query(`SELECT ` + merchantColumns + ` FROM merchants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []*Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

func (a *MerchantAlias) Insert(db DBTX) error {
	a.CreatedAt = time.Now()

	query := `INSERT INTO merchant_aliases (merchant_id, alias, created_at) VALUES (?, ?, ?)`
	res, err := db.Exec(query, a.MerchantID, a.Alias, a.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// FindAliasContaining returns the first alias row whose alias text contains
// the hint, case-insensitively. Rows are ordered by id so older aliases win.
func FindAliasContaining(db DBTX, hint string) (*MerchantAlias, error) {
	query := `
	SELECT id, merchant_id, alias, created_at
	FROM merchant_aliases
	WHERE instr(lower(alias), lower(?)) > 0
	ORDER BY id
	LIMIT 1`
	row := db.QueryRow(query, hint)
	var a MerchantAlias
	err := row.Scan(&a.ID, &a.MerchantID, &a.Alias, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &a, nil
}
