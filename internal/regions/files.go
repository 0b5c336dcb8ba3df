package regions

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/audio-retro/internal/podscribe"
)

// XLSXReader reads a sheet from a local workbook export. sheetID is ignored.
type XLSXReader struct {
	Path string
}

// ReadTable uses the first sheet when tab is empty or absent.
func (x XLSXReader) ReadTable(_ context.Context, _, tab string) ([][]string, error) {
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", x.Path, err)
	}
	defer f.Close()

	sheet := tab
	if sheet == "" || !hasSheet(f.GetSheetList(), sheet) {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", x.Path)
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func hasSheet(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

// CSVReader reads a local CSV export. sheetID and tab are ignored.
type CSVReader struct {
	Path string
}

// ReadTable parses the file with the same lenient rules as vendor exports.
func (c CSVReader) ReadTable(_ context.Context, _, _ string) ([][]string, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return podscribe.ReadTable(f)
}
