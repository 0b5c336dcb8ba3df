package regions

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsReader reads a tab through the Google Sheets v4 API.
type SheetsReader struct {
	values *sheets.SpreadsheetsValuesService
}

// NewSheetsReader expects client to carry Google credentials. An empty
// endpoint keeps the SDK default.
func NewSheetsReader(ctx context.Context, client *http.Client, endpoint string) (*SheetsReader, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &SheetsReader{values: svc.Spreadsheets.Values}, nil
}

// ReadTable returns the tab's rendered values.
func (s *SheetsReader) ReadTable(ctx context.Context, sheetID, tab string) ([][]string, error) {
	vr, err := s.values.Get(sheetID, tab).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s!%s: %w", sheetID, tab, err)
	}

	table := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		table[i] = cells
	}
	return table, nil
}
