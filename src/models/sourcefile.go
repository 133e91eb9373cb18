// src/models/sourcefile.go
package models

import (
	"database/sql"
	"errors"
	"time"
)

type SourceFile struct {
	ID          int64          `json:"id"`
	Filename    string         `json:"filename"`
	FileHash    string         `json:"file_hash"`
	SourceType  string         `json:"source_type"`
	FileSize    int64          `json:"file_size"`
	RecordCount int            `json:"record_count"`
	ImportedAt  time.Time      `json:"imported_at"`
	Metadata    map[string]any `json:"metadata"`
}

func (f *SourceFile) Insert(db DBTX) error {
	f.ImportedAt = time.Now()

	query := `
	INSERT INTO source_files (filename, file_hash, source_type, file_size, record_count, imported_at, metadata_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query, f.Filename, f.FileHash, f.SourceType, f.FileSize, f.RecordCount, f.ImportedAt, marshalJSONMap(f.Metadata))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

func (f *SourceFile) Update(db DBTX) error {
	query := `
	UPDATE source_files SET filename = ?, source_type = ?, file_size = ?, record_count = ?, metadata_json = ?
	WHERE id = ?`
	_, err := db.Exec(query, f.Filename, f.SourceType, f.FileSize, f.RecordCount, marshalJSONMap(f.Metadata), f.ID)
	return err
}

const sourceFileColumns = `id, filename, file_hash, source_type, file_size, record_count, imported_at, metadata_json`

func scanSourceFile(row rowScanner) (*SourceFile, error) {
	var f SourceFile
	var metadataJSON string
	err := row.Scan(&f.ID, &f.Filename, &f.FileHash, &f.SourceType, &f.FileSize, &f.RecordCount, &f.ImportedAt, &metadataJSON)
	if err != nil {
		return nil, err
	}
	f.Metadata = unmarshalJSONMap(metadataJSON)
	return &f, nil
}

func GetSourceFileByHash(db DBTX, fileHash string) (*SourceFile, error) {
	row := db.QueryRow(`SELECT `+sourceFileColumns+` FROM source_files WHERE file_hash = ?`, fileHash)
	f, err := scanSourceFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return f, nil
}

func ListSourceFiles(db DBTX) ([]*SourceFile, error) {
	rows, err := db.Query(`SELECT ` + sourceFileColumns + ` FROM source_files ORDER BY imported_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*SourceFile
	for rows.Next() {
		f, err := scanSourceFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
