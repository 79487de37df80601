// Package models contains shared data models used across the trainboard codebase.
package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileType is the format of an uploaded dataset file.
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeJSON FileType = "json"
	FileTypeTXT  FileType = "txt"
)

// MaxUploadBytes is the largest dataset file accepted for upload (100 MiB).
const MaxUploadBytes int64 = 100 << 20

// PreviewRows is the number of raw rows kept in Dataset.DataPreview.
const PreviewRows = 5

// SupportedFileTypes lists the accepted dataset formats in display order.
var SupportedFileTypes = []FileType{FileTypeCSV, FileTypeJSON, FileTypeTXT}

// Valid reports whether t is one of the supported dataset formats.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeCSV, FileTypeJSON, FileTypeTXT:
		return true
	}
	return false
}

// FileTypeOf derives the dataset format from a file name's extension.
// The comparison is case-insensitive; an unknown or missing extension
// yields a FileType for which Valid reports false.
func FileTypeOf(filename string) FileType {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return FileType(strings.ToLower(ext))
}

// Dataset is a user-owned uploaded file plus the metadata extracted from it.
// Datasets are immutable after creation.
type Dataset struct {
	ID          uuid.UUID        `db:"id"           json:"id"`
	Name        string           `db:"name"         json:"name"`
	UserID      string           `db:"user_id"      json:"user_id"`
	FileType    FileType         `db:"file_type"    json:"file_type"`
	FileSize    int64            `db:"file_size"    json:"file_size"`
	DataPreview []map[string]any `db:"data_preview" json:"data_preview"`
	ColumnCount int              `db:"column_count" json:"column_count"`
	RowCount    int              `db:"row_count"    json:"row_count"`
	CreatedAt   time.Time        `db:"created_at"   json:"created_at"`
}
