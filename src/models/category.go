// src/models/category.go
package models

import (
	"database/sql"
	"errors"
	"time"
)

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Category) Insert(db DBTX) error {
	c.CreatedAt = time.Now()

	query := `INSERT INTO categories (name, parent_id, created_at) VALUES (?, ?, ?)`
	res, err := db.Exec(query, c.Name, nullInt64(c.ParentID), c.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func GetCategoryByID(db DBTX, id int64) (*Category, error) {
	row := db.QueryRow(`SELECT id, name, parent_id, created_at FROM categories WHERE id = ?`, id)
	var c Category
	var parentID sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &parentID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	c.ParentID = int64Ptr(parentID)
	return &c, nil
}

func ListCategories(db DBTX) ([]*Category, error) {
	rows, err := db.Query(`SELECT id, name, parent_id, created_at FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		var c Category
		var parentID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &parentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ParentID = int64Ptr(parentID)
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}
