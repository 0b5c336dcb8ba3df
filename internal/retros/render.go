package retros

import (
	"fmt"

	"github.com/osteele/liquid"
)

const (
	centered = "text-align: center; font-size: 16px; white-space: nowrap;"
	left     = "font-size: 16px; white-space: nowrap;"
	wrapping = "font-size: 16px;"
)

var (
	performanceColumns = []struct{ label, key, kind string }{
		{"Imps", "imps", "metric"},
		{"Visitors", "visitors", "metric"},
		{"Regs", "regs", "metric"},
		{"NCs", "ncs", "metric"},
		{"Spend", "spend", "currency"},
		{"CPM", "cpm", "currency"},
		{"CPA", "cpa", "currency"},
		{"LTV", "ltv", "currency"},
		{"C Margin", "cmargin", "currency"},
		{"Payback", "payback", "payback"},
	}
	conversionColumns = []struct{ label, key string }{
		{"Imp > Visitor", "impToVisitor"},
		{"Imp > Reg", "impToReg"},
		{"Imp > XCCY NC", "impToNC"},
		{"Visitor > Reg", "visitorToReg"},
		{"Visitor > XCCY NC", "visitorToNC"},
		{"Reg > XCCY NC", "regToNC"},
	}
)

const (
	defaultConversionNotes = "Site visitor and impression data come from Podscribe<br/>Registration and XCCY NC conversion data come from Looker"
	defaultRegionalNotes   = "Regional spend &amp; impression data pulled from Podscribe does not include MRKTST or MRKBIZ activity<br/>Spend, CPA &amp; payback are based on media spend only<br/>**LTV 12M (AVG)"
)

// pageTemplate emits Confluence storage format. Text sections are inserted
// unescaped; authors write inline markup in them.
const pageTemplate = `<div style="max-width: 900px; margin: 0 auto;">
{%- if tldr != "" %}<h1>TL;DR highlight</h1><p>{{ tldr }}</p>{% endif -%}
<p><a href="#TL;DRhighlight">TL;DR highlight</a></p>
<p><a href="#AudioPerformance">Audio Performance</a></p>
<p style="margin-left: 30px;"><a href="#Overview">Overview</a></p>
<p style="margin-left: 30px;"><a href="#Conversionrates">Conversion rates</a></p>
<p style="margin-left: 30px;"><a href="#Businessasusual(BAU)activity">Business as usual (BAU) activity</a></p>
<p><a href="#BusinessMarketing">Business Marketing</a></p>
<p><a href="#RegionalMarketing">Regional Marketing</a></p>
<p style="margin-left: 30px;"><a href="#Overview.1">Overview</a></p>
<p style="margin-left: 30px;"><a href="#RegionalMarketingTests">Regional Marketing Tests</a></p>
<p><a href="#OperationalUpdates">Operational Updates</a></p>
<p><a href="#SpecialProjects">Special Projects</a></p>
<hr />
<h1>Audio Performance</h1>
<h2>Overview</h2>
{%- if overview %}
<p>{{ overview.description }}</p>
{%- if overview.table %}
<table class="wrapped" style="width: 100%;"><thead><tr>
{%- for h in overview.table.headers %}<th style="{{ c }}"><strong>{{ h }}</strong></th>{% endfor -%}
</tr></thead><tbody>
{%- for row in overview.table.rows %}<tr>{% for cell in row %}<td style="{{ c }}">{{ cell }}</td>{% endfor %}</tr>{% endfor -%}
{%- if overview.table.notes != "" %}<tr><td colspan="{{ overview.table.headers.size }}" style="font-size: 16px; font-style: italic; padding-top: 10px;">{{ overview.table.notes }}</td></tr>{% endif -%}
</tbody></table>
{%- endif %}
{%- if overview.commentary != "" %}<p>{{ overview.commentary }}</p>{% endif %}
{%- endif %}
{%- if conversion %}
<h2>Conversion rates</h2>
<p>{{ conversion.description }}</p>
{%- if conversion.table %}
<table class="wrapped" style="width: 90%;"><thead><tr>
{%- for h in conversion.table.headers %}<th style="{{ c }}"><strong>{{ h }}</strong></th>{% endfor -%}
</tr></thead><tbody>
{%- for row in conversion.table.rows %}<tr>{% for cell in row %}<td style="{{ c }}">{{ cell }}</td>{% endfor %}</tr>{% endfor -%}
<tr><td colspan="13" style="font-size: 16px; font-style: italic; padding-top: 10px;">{{ conversion.table.notes }}</td></tr>
</tbody></table>
{%- endif %}
{%- if conversion.commentary != "" %}<p>{{ conversion.commentary }}</p>{% endif %}
{%- endif %}
{%- if bau %}
<h2>Business as usual (BAU) activity</h2>
<p>{{ bau.description }}</p>
{%- if bau.vendors.size > 0 %}
<table class="wrapped" style="width: 90%;"><thead><tr>
<th style="{{ l }}"><strong>Vendor</strong></th><th style="{{ l }}"><strong>Placement Description</strong></th>
{%- for h in bau.headers %}<th style="{{ c }}"><strong>{{ h }}</strong></th>{% endfor -%}
</tr></thead><tbody>
{%- for v in bau.vendors %}<tr><td style="{{ l }}">{{ v.name }}</td><td style="{{ w }}">{{ v.placements }}</td>{% for cell in v.cells %}<td style="{{ c }}">{{ cell }}</td>{% endfor %}</tr>{% endfor -%}
</tbody></table>
{%- endif %}
{%- if bau.newThisMonth != "" %}<h3>New This Month</h3><p>{{ bau.newThisMonth }}</p>{% endif %}
{%- if bau.standouts != "" %}<h3>Stand-outs: Top Performers</h3><p>{{ bau.standouts }}</p>{% endif %}
{%- if bau.needsImprovement != "" %}<h3>Needs Improvement: Areas to Watch</h3><p>{{ bau.needsImprovement }}</p>{% endif %}
{%- endif %}
{%- if businessMarketing != "" %}
<h1>Business Marketing</h1><p>{{ businessMarketing }}</p>
{%- endif %}
{%- if regional %}
<h1>Regional Marketing</h1>
<h2>Overview</h2>
<p>{{ regional.overview }}</p>
{%- if regional.table %}
<table class="wrapped" style="width: 90%;"><thead><tr>
<th style="{{ l }}"><strong>REGION</strong></th>
{%- for h in regional.table.headers %}<th style="{{ c }}"><strong>{{ h }}</strong></th>{% endfor -%}
</tr></thead><tbody>
{%- for r in regional.table.rows %}<tr><td style="{{ l }}">{{ r.name }}</td>{% for cell in r.cells %}<td style="{{ c }}">{{ cell }}</td>{% endfor %}</tr>{% endfor -%}
<tr><td colspan="13" style="font-size: 16px; padding-top: 10px;"><strong>NOTES:</strong> {{ regional.table.notes }}</td></tr>
</tbody></table>
{%- endif %}
{%- if regional.commentary != "" %}<p>{{ regional.commentary }}</p>{% endif %}
{%- if regional.tests != "" %}<h2>Regional Marketing Tests</h2><p>{{ regional.tests }}</p>{% endif %}
{%- endif %}
{%- if operationalUpdates != "" %}
<h2>Operational Updates</h2><p>{{ operationalUpdates }}</p>
{%- endif %}
{%- if specialProjects != "" %}
<h1>Special Projects</h1><p>{{ specialProjects }}</p>
{%- endif %}
</div>`

// Renderer turns a Retro into a Confluence storage-format page body.
type Renderer struct {
	tpl    *liquid.Template
	format Formatter
}

// NewRenderer uses symbol for bare currency amounts ("" selects £).
func NewRenderer(symbol string) (*Renderer, error) {
	if symbol == "" {
		symbol = "£"
	}
	tpl, err := liquid.NewEngine().ParseString(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse retro template: %w", err)
	}
	return &Renderer{tpl: tpl, format: Formatter{Symbol: symbol}}, nil
}

// Render produces the page body.
func (r *Renderer) Render(doc *Retro) (string, error) {
	out, err := r.tpl.RenderString(r.bindings(doc))
	if err != nil {
		return "", fmt.Errorf("render retro: %w", err)
	}
	return out, nil
}

func (r *Renderer) bindings(doc *Retro) liquid.Bindings {
	b := liquid.Bindings{
		"c":                  centered,
		"l":                  left,
		"w":                  wrapping,
		"tldr":               doc.TLDR,
		"businessMarketing":  doc.BusinessMarketing,
		"operationalUpdates": doc.OperationalUpdates,
		"specialProjects":    doc.SpecialProjects,
		"overview":           nil,
		"conversion":         nil,
		"bau":                nil,
		"regional":           nil,
	}
	if o := doc.Overview; o != nil {
		view := map[string]interface{}{"description": o.Description, "commentary": o.Commentary, "table": nil}
		if o.PerformanceTable != nil && o.PerformanceTable.Months != nil {
			view["table"] = r.performanceTable(o.PerformanceTable)
		}
		b["overview"] = view
	}
	if c := doc.ConversionRates; c != nil {
		view := map[string]interface{}{"description": c.Description, "commentary": c.Commentary, "table": nil}
		if c.Data != nil {
			view["table"] = r.conversionTable(c.Data, c.Notes)
		}
		b["conversion"] = view
	}
	if a := doc.BAUActivity; a != nil {
		b["bau"] = map[string]interface{}{
			"description":      a.Description,
			"headers":          []string{"Impressions", "Spend", "XCCY NCs", "CPA", "Payback", "% of total spend", "% of total NCs", "LTV"},
			"vendors":          r.vendorRows(a.Vendors),
			"newThisMonth":     a.NewThisMonth,
			"standouts":        a.Standouts,
			"needsImprovement": a.NeedsImprovement,
		}
	}
	if m := doc.RegionalMarketing; m != nil {
		view := map[string]interface{}{"overview": m.Overview, "commentary": m.Commentary, "tests": m.Tests, "table": nil}
		if m.Table != nil {
			view["table"] = r.regionalTable(m.Table, m.Notes)
		}
		b["regional"] = view
	}
	return b
}

func (r *Renderer) performanceTable(t *PerformanceTable) map[string]interface{} {
	headers := []string{"Month"}
	for _, col := range performanceColumns {
		headers = append(headers, col.label, "MoM")
	}
	rows := make([][]string, 0, len(t.Months))
	for _, m := range t.Months {
		cells := []string{m["month"].String()}
		for _, col := range performanceColumns {
			v := m[col.key]
			switch col.kind {
			case "currency":
				cells = append(cells, r.format.Currency(v))
			case "payback":
				cells = append(cells, r.format.Payback(v))
			default:
				cells = append(cells, r.format.Metric(v))
			}
			cells = append(cells, r.format.Change(m[col.key+"_mom"]))
		}
		rows = append(rows, cells)
	}
	return map[string]interface{}{"headers": headers, "rows": rows, "notes": t.Notes}
}

func (r *Renderer) conversionTable(data []Row, notes string) map[string]interface{} {
	headers := []string{"Month"}
	for _, col := range conversionColumns {
		headers = append(headers, col.label, "MoM")
	}
	rows := make([][]string, 0, len(data))
	for _, row := range data {
		cells := []string{row["month"].String()}
		for _, col := range conversionColumns {
			cells = append(cells, r.format.Percentage(row[col.key]), r.format.Change(row[col.key+"_mom"]))
		}
		rows = append(rows, cells)
	}
	if notes == "" {
		notes = defaultConversionNotes
	}
	return map[string]interface{}{"headers": headers, "rows": rows, "notes": notes}
}

func (r *Renderer) vendorRows(vendors []Row) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, map[string]interface{}{
			"name":       v["name"].String(),
			"placements": r.format.Placements(v["placements"]),
			"cells": []string{
				r.format.Metric(v["impressions"]),
				r.format.Currency(v["spend"]),
				r.format.Metric(v["ncs"]),
				r.format.Currency(v["cpa"]),
				r.format.Payback(v["payback"]),
				v["spendPercent"].String(),
				v["ncPercent"].String(),
				r.format.Currency(v["ltv"]),
			},
		})
	}
	return out
}

func (r *Renderer) regionalTable(regions []Row, notes string) map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(regions))
	for _, g := range regions {
		rows = append(rows, map[string]interface{}{
			"name": g["name"].String(),
			"cells": []string{
				r.format.Metric(g["spendUsd"]),
				r.format.Currency(g["spendGbp"]),
				g["spendPercent"].String(),
				r.format.Metric(g["impressions"]),
				g["impPercent"].String(),
				r.format.Metric(g["cpm"]),
				r.format.Metric(g["mncs"]),
				g["ncPercent"].String(),
				r.format.Currency(g["margin"]),
				r.format.Currency(g["cpa"]),
				r.format.Currency(g["ltv"]),
				r.format.Payback(g["payback"]),
			},
		})
	}
	if notes == "" {
		notes = defaultRegionalNotes
	}
	return map[string]interface{}{
		"headers": []string{"SPEND ($)", "SPEND (£)", "SPEND (%)", "IMPs", "IMPs (%)", "CPMs", "MNCs", "NCs (%)", "C MARGIN", "CPA", "LTV", "PAYBACK"},
		"rows":    rows,
		"notes":   notes,
	}
}
