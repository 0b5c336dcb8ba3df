package podscribe

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// RenderOptions labels the two currencies.
type RenderOptions struct {
	Title        string
	SourceCode   string
	TargetCode   string
	SourceSymbol string
	TargetSymbol string
}

// DefaultRenderOptions is USD → GBP.
var DefaultRenderOptions = RenderOptions{
	Title:        "Podscribe Performance Data",
	SourceCode:   "USD",
	TargetCode:   "GBP",
	SourceSymbol: "$",
	TargetSymbol: "£",
}

func (o RenderOptions) withDefaults() RenderOptions {
	d := DefaultRenderOptions
	if o.Title != "" {
		d.Title = o.Title
	}
	if o.SourceCode != "" {
		d.SourceCode = o.SourceCode
	}
	if o.TargetCode != "" {
		d.TargetCode = o.TargetCode
	}
	if o.SourceSymbol != "" {
		d.SourceSymbol = o.SourceSymbol
	}
	if o.TargetSymbol != "" {
		d.TargetSymbol = o.TargetSymbol
	}
	return d
}

type renderer struct {
	opts RenderOptions
	p    *message.Printer
	sb   strings.Builder
}

// RenderReport serializes aggregates into the sectioned delimited report.
// Identical aggregates always render to identical text.
func RenderReport(agg Aggregates, opts RenderOptions) string {
	r := &renderer{opts: opts.withDefaults(), p: message.NewPrinter(language.English)}

	r.sb.WriteString("# " + r.opts.Title + "\n\n")

	r.sb.WriteString("## Monthly Performance\n\n")
	r.header("Month")
	months := make([]string, 0, len(agg.Months))
	for m := range agg.Months {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		r.metricRow(m, agg.Months[m])
	}
	r.sb.WriteString("\n")

	r.sb.WriteString("## Publisher Performance\n\n")
	r.header("Publisher")
	r.rankedRows(agg.Publishers)
	r.sb.WriteString("\n")

	r.sb.WriteString("## Regional Performance\n\n")
	r.header("Region")
	r.rankedRows(agg.Regions)

	r.sb.WriteString("\n## Publisher Shows\n\n")
	r.sb.WriteString("Publisher,Shows\n")
	r.showRows(agg)

	return r.sb.String()
}

func (r *renderer) header(first string) {
	r.sb.WriteString(first + ",Impressions,Visitors,Spend (" + r.opts.SourceCode + "),Spend (" + r.opts.TargetCode + ")\n")
}

// rankedRows sorts by impressions descending, drops Unknown when other keys
// exist, and drops keys without positive target spend.
func (r *renderer) rankedRows(buckets map[string]Bucket) {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		bi, bj := buckets[keys[i]], buckets[keys[j]]
		if bi.Impressions != bj.Impressions {
			return bi.Impressions > bj.Impressions
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if k == UnknownKey && len(keys) > 1 {
			continue
		}
		if b := buckets[k]; b.SpendTarget > 0 {
			r.metricRow(k, b)
		}
	}
}

func (r *renderer) showRows(agg Aggregates) {
	set := make(map[string]struct{}, len(agg.Publishers)+len(agg.Shows))
	for p := range agg.Publishers {
		set[p] = struct{}{}
	}
	for p := range agg.Shows {
		set[p] = struct{}{}
	}
	publishers := make([]string, 0, len(set))
	for p := range set {
		publishers = append(publishers, p)
	}
	sort.Strings(publishers)

	for _, p := range publishers {
		if p == UnknownKey && len(publishers) > 1 {
			continue
		}
		b, ok := agg.Publishers[p]
		if !ok || b.SpendTarget <= 0 {
			continue
		}
		shows := FormatShows(p, agg.Shows[p])
		if len(shows) == 0 {
			continue
		}
		cells := make([]string, 0, len(shows)+1)
		cells = append(cells, EscapeCell(p))
		for _, s := range shows {
			cells = append(cells, EscapeCell(s))
		}
		r.sb.WriteString(strings.Join(cells, ",") + "\n")
	}
}

func (r *renderer) metricRow(key string, b Bucket) {
	cells := []string{
		EscapeCell(key),
		EscapeCell(r.count(b.Impressions)),
		EscapeCell(r.count(b.Visitors)),
		EscapeCell(r.money(r.opts.SourceSymbol, b.SpendSource)),
		EscapeCell(r.money(r.opts.TargetSymbol, b.SpendTarget)),
	}
	r.sb.WriteString(strings.Join(cells, ",") + "\n")
}

func (r *renderer) count(v float64) string {
	return r.p.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

func (r *renderer) money(symbol string, v float64) string {
	return symbol + r.p.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// EscapeCell quotes a value containing a comma or double quote and doubles
// any embedded quotes.
func EscapeCell(v string) string {
	if !strings.ContainsAny(v, `,"`) {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
