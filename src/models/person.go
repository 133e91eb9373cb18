// src/models/person.go
package models

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ExpensePerson is a participant from a shared-expense ledger export,
// keyed by the external service's id.
type ExpensePerson struct {
	ID            int64     `json:"id"`
	ExternalID    int64     `json:"external_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	IsCurrentUser bool      `json:"is_current_user"`
	CreatedAt     time.Time `json:"created_at"`
}

// FullName joins first and last name, tolerating either being empty.
func (p *ExpensePerson) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

func (p *ExpensePerson) Insert(db DBTX) error {
	p.CreatedAt = time.Now()

	query := `
	INSERT INTO expense_persons (external_id, first_name, last_name, email, is_current_user, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query, p.ExternalID, p.FirstName, nullString(p.LastName), nullString(p.Email), p.IsCurrentUser, p.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (p *ExpensePerson) Update(db DBTX) error {
	query := `
	UPDATE expense_persons SET first_name = ?, last_name = ?, email = ?, is_current_user = ?
	WHERE id = ?`
	_, err := db.Exec(query, p.FirstName, nullString(p.LastName), nullString(p.Email), p.IsCurrentUser, p.ID)
	return err
}

const personColumns = `id, external_id, first_name, last_name, email, is_current_user, created_at`

func scanPerson(row rowScanner) (*ExpensePerson, error) {
	var p ExpensePerson
	var lastName, email sql.NullString
	err := row.Scan(&p.ID, &p.ExternalID, &p.FirstName, &lastName, &email, &p.IsCurrentUser, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.LastName = lastName.String
	p.Email = email.String
	return &p, nil
}

func GetPersonByExternalID(db DBTX, externalID int64) (*ExpensePerson, error) {
	row := db.QueryRow(`SELECT `+personColumns+` FROM expense_persons WHERE external_id = ?`, externalID)
	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return p, nil
}

func ListPersons(db DBTX) ([]*ExpensePerson, error) {
	rows, err := db.Query(`SELECT ` + personColumns + ` FROM expense_persons ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*ExpensePerson
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// ExpenseGroup is a sharing group from a shared-expense ledger export.
type ExpenseGroup struct {
	ID         int64          `json:"id"`
	ExternalID int64          `json:"external_id"`
	Name       string         `json:"name"`
	GroupType  string         `json:"group_type"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (g *ExpenseGroup) Insert(db DBTX) error {
	g.CreatedAt = time.Now()

	query := `
	INSERT INTO expense_groups (external_id, name, group_type, metadata_json, created_at)
	VALUES (?, ?, ?, ?, ?)`
	res, err := db.Exec(query, g.ExternalID, g.Name, nullString(g.GroupType), marshalJSONMap(g.Metadata), g.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = id
	return nil
}

func (g *ExpenseGroup) Update(db DBTX) error {
	query := `UPDATE expense_groups SET name = ?, group_type = ?, metadata_json = ? WHERE id = ?`
	_, err := db.Exec(query, g.Name, nullString(g.GroupType), marshalJSONMap(g.Metadata), g.ID)
	return err
}

func GetGroupByExternalID(db DBTX, externalID int64) (*ExpenseGroup, error) {
	row := db.QueryRow(`SELECT id, external_id, name, group_type, metadata_json, created_at FROM expense_groups WHERE external_id = ?`, externalID)
	var g ExpenseGroup
	var groupType sql.NullString
	var metadataJSON string
	err := row.Scan(&g.ID, &g.ExternalID, &g.Name, &groupType, &metadataJSON, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	g.GroupType = groupType.String
	g.Metadata = unmarshalJSONMap(metadataJSON)
	return &g, nil
}
