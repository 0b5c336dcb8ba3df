package podscribe

import (
	"math"
	"strconv"
	"strings"
)

// UnknownKey is the bucket used when a dimension cannot be determined.
const UnknownKey = "Unknown"

// ShowSource records which column produced a row's show label.
type ShowSource int

const (
	SourceNone ShowSource = iota
	SourceShow
	SourceCampaign
)

func (s ShowSource) String() string {
	switch s {
	case SourceShow:
		return "show"
	case SourceCampaign:
		return "campaign"
	default:
		return "none"
	}
}

// Row is one extracted data line. Numeric fields are zero when the cell is
// absent or not a number; the *OK flags say whether the cell parsed.
type Row struct {
	Date          string
	Impressions   float64
	Visitors      float64
	Spend         float64
	Publisher     string
	Geo           string
	RawShow       string
	ShowSource    ShowSource
	ImpressionsOK bool
	VisitorsOK    bool
	SpendOK       bool
}

// Garbage reports rows where none of the three metrics is numeric.
func (r Row) Garbage() bool {
	return !r.ImpressionsOK && !r.VisitorsOK && !r.SpendOK
}

// Fallbacks are positional columns used when the header does not name a
// show or campaign column. Unresolved disables a fallback.
type Fallbacks struct {
	ShowColumn     int
	CampaignColumn int
}

// DefaultFallbacks match the legacy export layout (campaign in J, show in K).
var DefaultFallbacks = Fallbacks{ShowColumn: 10, CampaignColumn: 9}

// Extractor reads Rows from records using a resolved ColumnIndex.
type Extractor struct {
	cols      ColumnIndex
	fallbacks Fallbacks
}

// NewExtractor binds a column index to its positional fallbacks.
func NewExtractor(cols ColumnIndex, fb Fallbacks) *Extractor {
	return &Extractor{cols: cols, fallbacks: fb}
}

// Columns returns the resolved index.
func (e *Extractor) Columns() ColumnIndex { return e.cols }

// Extract never fails: missing cells default to zero, empty or Unknown.
func (e *Extractor) Extract(record []string) Row {
	var row Row
	row.Date = cell(record, e.cols.Date)
	row.Impressions, row.ImpressionsOK = parseNumber(cell(record, e.cols.Impressions))
	row.Visitors, row.VisitorsOK = parseNumber(cell(record, e.cols.Visitors))
	row.Spend, row.SpendOK = parseNumber(cell(record, e.cols.Spend))

	row.Publisher = cell(record, e.cols.Publisher)
	if row.Publisher == "" {
		row.Publisher = UnknownKey
	}
	row.Geo = strings.ToLower(cell(record, e.cols.Geo))

	showCol := e.cols.Show
	if showCol == Unresolved {
		showCol = e.fallbacks.ShowColumn
	}
	campaignCol := e.cols.Campaign
	if campaignCol == Unresolved {
		campaignCol = e.fallbacks.CampaignColumn
	}

	if v := cell(record, showCol); v != "" {
		row.RawShow, row.ShowSource = v, SourceShow
	} else if v := cell(record, campaignCol); v != "" {
		row.RawShow, row.ShowSource = v, SourceCampaign
	}
	return row
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

var numberCleaner = strings.NewReplacer(",", "", "$", "", "£", "", "€", "", " ", "", "\u00a0", "")

// parseNumber accepts grouped and currency-prefixed values such as "$1,234.50".
func parseNumber(s string) (float64, bool) {
	s = numberCleaner.Replace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
