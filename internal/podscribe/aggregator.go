package podscribe

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// Bucket accumulates one aggregation key.
type Bucket struct {
	Impressions float64 `json:"impressions"`
	Visitors    float64 `json:"visitors"`
	SpendSource float64 `json:"spend_source"`
	SpendTarget float64 `json:"spend_target"`
}

func (b *Bucket) add(r Row, converted float64) {
	b.Impressions += r.Impressions
	b.Visitors += r.Visitors
	b.SpendSource += r.Spend
	b.SpendTarget += converted
}

// RegionLookup resolves a lower-case geo code to its region name.
type RegionLookup interface {
	Lookup(code string) string
}

// Converter converts source-currency spend into the target currency.
type Converter interface {
	Convert(ctx context.Context, amount float64) float64
}

// Aggregates is an immutable snapshot of one run's totals.
type Aggregates struct {
	Total      Bucket              `json:"total"`
	Months     map[string]Bucket   `json:"months"`
	Publishers map[string]Bucket   `json:"publishers"`
	Regions    map[string]Bucket   `json:"regions"`
	Shows      map[string][]string `json:"shows"`
	Ingested   int                 `json:"ingested"`
	Skipped    int                 `json:"skipped"`
}

// Aggregator owns all mutable state for one run. It is not safe for
// concurrent use; construct one per run.
type Aggregator struct {
	regions    RegionLookup
	converter  Converter
	total      Bucket
	months     map[string]*Bucket
	publishers map[string]*Bucket
	byRegion   map[string]*Bucket
	shows      map[string]map[string]struct{}
	ingested   int
	skipped    int
}

// NewAggregator binds the run's region map and converter.
func NewAggregator(regions RegionLookup, converter Converter) *Aggregator {
	return &Aggregator{
		regions:    regions,
		converter:  converter,
		months:     make(map[string]*Bucket),
		publishers: make(map[string]*Bucket),
		byRegion:   make(map[string]*Bucket),
		shows:      make(map[string]map[string]struct{}),
	}
}

// Ingest adds one row. It returns false when the row was skipped. A panic
// while processing the row is logged and the row is counted as skipped.
func (a *Aggregator) Ingest(ctx context.Context, row Row) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("podscribe: row skipped after panic", "stage", "aggregate", "publisher", row.Publisher, "panic", r)
			a.skipped++
			ok = false
		}
	}()

	if row.Garbage() {
		a.skipped++
		return false
	}

	// Every key is resolved before any bucket changes, so a panic here
	// leaves no partial contribution behind.
	converted := a.converter.Convert(ctx, row.Spend)
	month := MonthKey(row.Date)
	publisher := strings.TrimSpace(row.Publisher)
	if publisher == "" {
		publisher = UnknownKey
	}
	region := UnknownKey
	if a.regions != nil {
		region = a.regions.Lookup(row.Geo)
	}
	show := NormalizeShowName(row.RawShow, row.ShowSource, publisher)

	a.total.add(row, converted)
	bucket(a.months, month).add(row, converted)
	bucket(a.publishers, publisher).add(row, converted)
	bucket(a.byRegion, region).add(row, converted)
	if publisher != UnknownKey && show != "" && show != UnknownKey {
		set, exists := a.shows[publisher]
		if !exists {
			set = make(map[string]struct{})
			a.shows[publisher] = set
		}
		set[show] = struct{}{}
	}

	a.ingested++
	return true
}

func bucket(m map[string]*Bucket, key string) *Bucket {
	b, ok := m[key]
	if !ok {
		b = &Bucket{}
		m[key] = b
	}
	return b
}

// Snapshot copies the current state; later Ingest calls do not affect it.
func (a *Aggregator) Snapshot() Aggregates {
	out := Aggregates{
		Total:      a.total,
		Months:     copyBuckets(a.months),
		Publishers: copyBuckets(a.publishers),
		Regions:    copyBuckets(a.byRegion),
		Shows:      make(map[string][]string, len(a.shows)),
		Ingested:   a.ingested,
		Skipped:    a.skipped,
	}
	for publisher, set := range a.shows {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		out.Shows[publisher] = list
	}
	return out
}

func copyBuckets(m map[string]*Bucket) map[string]Bucket {
	out := make(map[string]Bucket, len(m))
	for k, b := range m {
		out[k] = *b
	}
	return out
}

// MonthKey formats a date cell as YYYY-MM in UTC, or UnknownKey. Values
// without a zone are read as UTC; ambiguous numeric dates are month-first.
func MonthKey(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return UnknownKey
	}
	t, err := dateparse.ParseIn(date, time.UTC)
	if err != nil {
		return UnknownKey
	}
	return t.UTC().Format("2006-01")
}
