package podscribe

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeRowExport = `Date,Publisher,Show,Campaign,Impressions,Visitors,Spend,Geo
2025-01-15,Acme,,NPR_RON_AV,1000,100,100,us
2025-01-20,Acme,Morning Show,,2000,50,50,gb
2025-02-03,Beta,,,500,10,0,us
`

func processString(t *testing.T, content string, regions RegionLookup, rate float64) Aggregates {
	t.Helper()
	table, err := ReadTable(strings.NewReader(content))
	require.NoError(t, err)
	agg, err := Process(context.Background(), table, NewAggregator(regions, fixedRate(rate)), Options{})
	require.NoError(t, err)
	return agg
}

func TestRenderEndToEnd(t *testing.T) {
	regions := regionTable{"us": "North America", "gb": "United Kingdom"}
	agg := processString(t, threeRowExport, regions, 0.8)

	want := "# Podscribe Performance Data\n\n" +
		"## Monthly Performance\n\n" +
		"Month,Impressions,Visitors,Spend (USD),Spend (GBP)\n" +
		"2025-01,\"3,000\",150,$150.00,£120.00\n" +
		"2025-02,500,10,$0.00,£0.00\n" +
		"\n" +
		"## Publisher Performance\n\n" +
		"Publisher,Impressions,Visitors,Spend (USD),Spend (GBP)\n" +
		"Acme,\"3,000\",150,$150.00,£120.00\n" +
		"\n" +
		"## Regional Performance\n\n" +
		"Region,Impressions,Visitors,Spend (USD),Spend (GBP)\n" +
		"United Kingdom,\"2,000\",50,$50.00,£40.00\n" +
		"North America,\"1,500\",110,$100.00,£80.00\n" +
		"\n## Publisher Shows\n\n" +
		"Publisher,Shows\n" +
		"Acme,Morning Show,RON AV - Global\n"

	assert.Equal(t, want, RenderReport(agg, DefaultRenderOptions))
}

func TestRenderIsIdempotent(t *testing.T) {
	agg := processString(t, threeRowExport, regionTable{"us": "North America"}, 0.79)
	first := RenderReport(agg, RenderOptions{})
	second := RenderReport(agg, RenderOptions{})
	assert.Equal(t, first, second)
}

func TestRenderSuppressesZeroSpendAndUnknown(t *testing.T) {
	agg := Aggregates{
		Months: map[string]Bucket{},
		Publishers: map[string]Bucket{
			"Loud":       {Impressions: 9000, SpendTarget: 0},
			UnknownKey:   {Impressions: 10000, SpendSource: 5, SpendTarget: 4},
			"Quiet, Inc": {Impressions: 10, SpendSource: 1, SpendTarget: 0.8},
		},
		Regions: map[string]Bucket{
			UnknownKey: {Impressions: 1, SpendTarget: 1},
		},
		Shows: map[string][]string{
			"Loud":       {"Big Show"},
			"Quiet, Inc": {`The "Quiet" Hour`},
		},
	}

	out := RenderReport(agg, DefaultRenderOptions)

	assert.NotContains(t, out, "Loud")
	assert.NotContains(t, out, "\nUnknown,\"10,000\"")
	assert.Contains(t, out, "\"Quiet, Inc\",10,0,$1.00,£0.80\n")
	// a lone Unknown region is still reported
	assert.Contains(t, out, "Unknown,1,0,$0.00,£1.00\n")
	assert.Contains(t, out, "\"Quiet, Inc\",\"The \"\"Quiet\"\" Hour\"\n")
}

func TestRenderCustomCurrency(t *testing.T) {
	agg := Aggregates{
		Months: map[string]Bucket{"2025-01": {Impressions: 1234567.5, Visitors: 2, SpendSource: 1234.5, SpendTarget: -5}},
	}
	out := RenderReport(agg, RenderOptions{SourceCode: "EUR", SourceSymbol: "€"})

	assert.Contains(t, out, "Month,Impressions,Visitors,Spend (EUR),Spend (GBP)\n")
	assert.Contains(t, out, "2025-01,\"1,234,567.5\",2,\"€1,234.50\",£-5.00\n")
}

func TestEscapeCell(t *testing.T) {
	assert.Equal(t, "plain", EscapeCell("plain"))
	assert.Equal(t, `"a,b"`, EscapeCell("a,b"))
	assert.Equal(t, `"say ""hi"""`, EscapeCell(`say "hi"`))
}
