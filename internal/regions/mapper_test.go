package regions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildMap(t *testing.T) {
	table := [][]string{
		{"Country", " 2-ISO ", "REGION"},
		{"United States", "US", "North America"},
		{"United Kingdom", "gb", "Europe"},
		{"Nowhere", "", "Void"},
		{"Blank region", "xx", "  "},
		{"Short"},
		{"Great Britain", "GB", "UK & Ireland"},
	}

	m, err := BuildMap(table)
	require.NoError(t, err)

	assert.Equal(t, Map{"us": "North America", "gb": "UK & Ireland"}, m)
	assert.Equal(t, "North America", m.Lookup("us"))
	assert.Equal(t, "North America", m.Lookup(" US "))
	assert.Equal(t, Unknown, m.Lookup("fr"))
	assert.Equal(t, Unknown, m.Lookup(""))
}

func TestBuildMapMissingColumns(t *testing.T) {
	tests := map[string][][]string{
		"empty":          nil,
		"no code":        {{"Region"}, {"North America"}},
		"no region":      {{"2-ISO"}, {"us"}},
		"neither column": {{"a", "b"}},
	}
	for name, table := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := BuildMap(table)
			assert.ErrorIs(t, err, ErrMissingColumns)
		})
	}
}

func TestSheetsReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/spreadsheets/sheet-1/values/Geo Map", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"range":"Geo Map!A1:B3","majorDimension":"ROWS","values":[["2-ISO","Region"],["us","North America"],["nz",null]]}`))
	}))
	defer srv.Close()

	reader, err := NewSheetsReader(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	m, err := Load(context.Background(), reader, "sheet-1", "Geo Map")
	require.NoError(t, err)
	assert.Equal(t, Map{"us": "North America"}, m)
}

func TestSheetsReaderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	reader, err := NewSheetsReader(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)

	_, err = reader.ReadTable(context.Background(), "s", "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestXLSXReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.xlsx")

	f := excelize.NewFile()
	_, err := f.NewSheet("Regions")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Regions", "A1", &[]interface{}{"2-ISO", "Region"}))
	require.NoError(t, f.SetSheetRow("Regions", "A2", &[]interface{}{"AU", "APAC"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	m, err := Load(context.Background(), XLSXReader{Path: path}, "", "Regions")
	require.NoError(t, err)
	assert.Equal(t, "APAC", m.Lookup("au"))

	// unknown tab falls back to the first sheet, which is empty here
	_, err = Load(context.Background(), XLSXReader{Path: path}, "", "Missing")
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestCSVReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.csv")
	require.NoError(t, os.WriteFile(path, []byte("2-ISO,Region\nbr,LatAm\n"), 0644))

	m, err := Load(context.Background(), CSVReader{Path: path}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "LatAm", m.Lookup("BR"))

	_, err = Load(context.Background(), CSVReader{Path: filepath.Join(t.TempDir(), "none.csv")}, "", "")
	assert.Error(t, err)
}
