// Package regions maps two-letter geography codes to region display names.
package regions

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Unknown is returned for codes missing from the map.
const Unknown = "Unknown"

const (
	codeHeader   = "2-iso"
	regionHeader = "region"
)

// ErrMissingColumns means the header row lacks the code or region column.
var ErrMissingColumns = errors.New("regions: header must contain 2-ISO and Region columns")

// TableReader reads a tab of a spreadsheet-like source. The first row is
// the header.
type TableReader interface {
	ReadTable(ctx context.Context, sheetID, tab string) ([][]string, error)
}

// Map is keyed by lower-case code.
type Map map[string]string

// Lookup trims and lower-cases code before the lookup.
func (m Map) Lookup(code string) string {
	if region, ok := m[strings.ToLower(strings.TrimSpace(code))]; ok {
		return region
	}
	return Unknown
}

// BuildMap reads the header for the code and region columns and loads every
// data row with both values present. Later duplicates overwrite earlier ones.
func BuildMap(table [][]string) (Map, error) {
	if len(table) == 0 {
		return nil, ErrMissingColumns
	}

	codeIdx, regionIdx := -1, -1
	for i, h := range table[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case codeHeader:
			if codeIdx == -1 {
				codeIdx = i
			}
		case regionHeader:
			if regionIdx == -1 {
				regionIdx = i
			}
		}
	}
	if codeIdx == -1 || regionIdx == -1 {
		return nil, fmt.Errorf("%w (found %q)", ErrMissingColumns, table[0])
	}

	m := make(Map, len(table)-1)
	for _, row := range table[1:] {
		if codeIdx >= len(row) || regionIdx >= len(row) {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(row[codeIdx]))
		region := strings.TrimSpace(row[regionIdx])
		if code == "" || region == "" {
			continue
		}
		m[code] = region
	}
	return m, nil
}

// Load reads a table and builds the map in one step.
func Load(ctx context.Context, r TableReader, sheetID, tab string) (Map, error) {
	table, err := r.ReadTable(ctx, sheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("read region table: %w", err)
	}
	return BuildMap(table)
}
