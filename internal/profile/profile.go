// Package profile parses uploaded dataset files into rows and extracts the
// metadata stored with a dataset: row and column counts, a short preview
// and a content fingerprint.
package profile

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/trainboard/pkg/models"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrMalformed       = errors.New("malformed file")
)

// TextColumn is the single column of a txt dataset.
const TextColumn = "text"

// ValueColumn holds non-object elements of a json array.
const ValueColumn = "value"

// Profile is the parsed content of a dataset file.
type Profile struct {
	Rows        []map[string]any
	Preview     []map[string]any
	ColumnCount int
	RowCount    int
	Fingerprint string
}

// Parse reads content as fileType. It never returns a nil Rows or Preview.
func Parse(content []byte, fileType models.FileType) (*Profile, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		rows    []map[string]any
		columns int
		err     error
	)
	switch fileType {
	case models.FileTypeCSV:
		rows, columns, err = parseCSV(content)
	case models.FileTypeJSON:
		rows, columns, err = parseJSON(content)
	case models.FileTypeTXT:
		rows, columns = parseTXT(content), 1
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
	if err != nil {
		return nil, err
	}

	preview := rows
	if len(preview) > models.PreviewRows {
		preview = preview[:models.PreviewRows]
	}

	return &Profile{
		Rows:        rows,
		Preview:     append([]map[string]any{}, preview...),
		ColumnCount: columns,
		RowCount:    len(rows),
		Fingerprint: Fingerprint(content),
	}, nil
}

// Fingerprint computes a stable SHA-256 fingerprint of file content.
// Line endings and surrounding whitespace do not affect it.
func Fingerprint(content []byte) string {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	normalized = bytes.TrimSpace(normalized)
	hash := sha256.Sum256(normalized)
	return fmt.Sprintf("%x", hash)
}

func parseCSV(content []byte) ([]map[string]any, int, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading csv header: %v", ErrMalformed, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	rows := []map[string]any{}
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(record) > len(header) {
			return nil, 0, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrMalformed, line, len(record), len(header))
		}

		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = cellValue(record[i])
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, len(header), nil
}

// cellValue types a csv cell: integers and floats become numbers, an empty
// cell becomes null.
func cellValue(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseJSON(content []byte) ([]map[string]any, int, error) {
	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch v := doc.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			rows = append(rows, asRow(item))
		}
		columns := 0
		if len(rows) > 0 {
			columns = len(rows[0])
		}
		return rows, columns, nil
	case map[string]any:
		return []map[string]any{v}, len(v), nil
	default:
		return nil, 0, fmt.Errorf("%w: top-level json must be an array or object", ErrMalformed)
	}
}

func asRow(item any) map[string]any {
	if obj, ok := item.(map[string]any); ok {
		return obj
	}
	return map[string]any{ValueColumn: item}
}

func parseTXT(content []byte) []map[string]any {
	rows := []map[string]any{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, map[string]any{TextColumn: line})
	}
	return rows
}
