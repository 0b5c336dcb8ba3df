// Package retros publishes hand-written JSON retro documents as wiki pages.
package retros

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Retro is the JSON body of an "Audio Monthly Retro JSON" document. Every
// section is optional.
type Retro struct {
	TLDR               string             `json:"tldr"`
	Overview           *Overview          `json:"overview"`
	ConversionRates    *ConversionRates   `json:"conversionRates"`
	BAUActivity        *BAUActivity       `json:"bauActivity"`
	BusinessMarketing  string             `json:"businessMarketing"`
	RegionalMarketing  *RegionalMarketing `json:"regionalMarketing"`
	OperationalUpdates string             `json:"operationalUpdates"`
	SpecialProjects    string             `json:"specialProjects"`
}

type Overview struct {
	Description      string            `json:"description"`
	PerformanceTable *PerformanceTable `json:"performanceTable"`
	Commentary       string            `json:"commentary"`
}

// PerformanceTable rows are keyed imps, visitors, regs, ncs, spend, cpm,
// cpa, ltv, cmargin, payback, each with a <key>_mom change.
type PerformanceTable struct {
	Months []Row  `json:"months"`
	Notes  string `json:"notes"`
}

type ConversionRates struct {
	Description string `json:"description"`
	Data        []Row  `json:"data"`
	Notes       string `json:"notes"`
	Commentary  string `json:"commentary"`
}

type BAUActivity struct {
	Description      string `json:"description"`
	Vendors          []Row  `json:"vendors"`
	NewThisMonth     string `json:"newThisMonth"`
	Standouts        string `json:"standouts"`
	NeedsImprovement string `json:"needsImprovement"`
}

type RegionalMarketing struct {
	Overview   string `json:"overview"`
	Table      []Row  `json:"table"`
	Notes      string `json:"notes"`
	Commentary string `json:"commentary"`
	Tests      string `json:"tests"`
}

// Row is one table row. Authors mix numbers and preformatted strings.
type Row map[string]Value

// Value is a JSON scalar, or a list of scalars, as written by the author.
type Value struct {
	set   bool
	isNum bool
	num   float64
	str   string
	list  []string
}

// Num returns a numeric value.
func Num(f float64) Value { return Value{set: true, isNum: true, num: f} }

// Str returns a string value.
func Str(s string) Value { return Value{set: true, str: s} }

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Str(s)
	case '[':
		var items []Value
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		list := make([]string, 0, len(items))
		for _, it := range items {
			list = append(list, it.String())
		}
		*v = Value{set: true, list: list}
	case 't', 'f':
		*v = Str(string(b))
	case '{':
		return fmt.Errorf("unexpected object in table cell: %s", b)
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*v = Num(f)
	}
	return nil
}

// Empty reports a missing, null or empty-string value.
func (v Value) Empty() bool {
	return !v.set || (!v.isNum && v.list == nil && v.str == "")
}

// String renders the value as the author wrote it.
func (v Value) String() string {
	switch {
	case !v.set:
		return ""
	case v.isNum:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case v.list != nil:
		return fmt.Sprint(v.list)
	default:
		return v.str
	}
}

// float parses the value as a plain number, the way a lenient JSON
// consumer coerces numeric strings.
func (v Value) float() (float64, bool) {
	if v.isNum {
		return v.num, true
	}
	if !v.set || v.list != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Parse decodes a retro document body.
func Parse(text string) (*Retro, error) {
	var r Retro
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, fmt.Errorf("parse retro JSON: %w", err)
	}
	return &r, nil
}
