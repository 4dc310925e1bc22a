// Package normalize decodes shape-varying feed records into typed mission fields.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// listExtractor reads a list from one raw value shape. ok is false when the
// value does not have that shape, so the next extractor gets a chance.
type listExtractor func(v any) (items []string, ok bool)

// listExtractors are tried in order; first match wins. The chain recurses
// through List, so it is assigned in init.
var listExtractors []listExtractor

func init() {
	listExtractors = []listExtractor{
		fromSlice,
		fromWrapper("value"),
		fromWrapper("item"),
		fromDelimited,
	}
}

// List converts any supported list encoding into an ordered list of trimmed,
// non-blank strings. It returns nil when nothing usable remains.
func List(v any) []string {
	for _, extract := range listExtractors {
		if items, ok := extract(v); ok {
			return compact(items)
		}
	}
	return nil
}

func fromSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		var out []string
		for _, el := range t {
			switch e := el.(type) {
			case nil:
			case string:
				out = append(out, e)
			case map[string]any, []any:
				out = append(out, List(e)...)
			default:
				out = append(out, fmt.Sprint(e))
			}
		}
		return out, true
	}
	return nil, false
}

func fromWrapper(key string) listExtractor {
	return func(v any) ([]string, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		inner, ok := m[key]
		if !ok {
			return nil, false
		}
		return List(inner), true
	}
}

func fromDelimited(v any) ([]string, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	return strings.Split(s, ","), true
}

func compact(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// String reads a scalar text value. Nested structures are rejected.
func String(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		if len(t) == 0 {
			return "", nil
		}
		return String(t[0])
	default:
		return "", eris.Errorf("expected text, got %T", v)
	}
}

var (
	trueTokens  = map[string]bool{"yes": true, "true": true, "1": true, "oui": true}
	falseTokens = map[string]bool{"no": true, "false": true, "0": true, "non": true}
)

// Bool reads a boolean token. Unknown tokens yield nil.
func Bool(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	s, err := String(v)
	if err != nil {
		return nil
	}
	s = strings.ToLower(s)
	switch {
	case trueTokens[s]:
		b := true
		return &b
	case falseTokens[s]:
		b := false
		return &b
	}
	return nil
}

// zonedLayouts carry an explicit offset; localLayouts are read as UTC.
var (
	zonedLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05Z07:00"}
	localLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02", "02/01/2006"}
)

// Time reads a date. Values without a timezone are interpreted as UTC.
func Time(v any) *time.Time {
	s, err := String(v)
	if err != nil || s == "" {
		return nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// Float reads a decimal number; a comma decimal separator is accepted.
func Float(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	s, err := String(v)
	if err != nil || s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &f
}

// Int reads an integer. Decimal strings are truncated.
func Int(v any) *int {
	f := Float(v)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// MonthsBetween returns the number of whole months from start to end, or nil
// when either bound is missing or end precedes start.
func MonthsBetween(start, end *time.Time) *int {
	if start == nil || end == nil || end.Before(*start) {
		return nil
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return &months
}
