package canonical

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dvloznov/statement-pipeline/internal/jsontree"
)

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	notNumeric   = regexp.MustCompile(`[^\d.,\-]`)
	trailingFour = regexp.MustCompile(`(\d{4})\D*$`)
	dotGrouped   = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)
)

// dateLayouts are tried in order; day-first layouts come first.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2006/1/2",
}

// itemDateLayouts also accept the two-digit years printed on item lines.
var itemDateLayouts = append(append([]string(nil), dateLayouts...), "2/1/06")

// CollapseSpaces trims s and collapses internal whitespace runs to one space.
func CollapseSpaces(s string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// CardMask renders the trailing four digits of s as XXXX-XXXX-XXXX-dddd.
func CardMask(s string) (string, bool) {
	m := trailingFour.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return "XXXX-XXXX-XXXX-" + m[1], true
}

// ParseDate returns the ISO form of s for the first layout that matches.
func ParseDate(s string) (string, bool) {
	return parseDateWith(s, dateLayouts)
}

func parseDateWith(s string, layouts []string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ParseMoney parses Chilean-formatted amounts. When both "." and "," appear
// the dot groups thousands and the comma is the decimal mark; a lone comma
// is a decimal mark. Dots alone are thousands separators when they split the
// digits in groups of three ("-352.000", "5.000.000"), otherwise canonical.
// Text containing letters is rejected.
func ParseMoney(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		return parseMoneyText(x)
	}
	return 0, false
}

func parseMoneyText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "null", "None":
		return 0, false
	}
	if strings.IndexFunc(s, unicode.IsLetter) >= 0 {
		return 0, false
	}
	s = notNumeric.ReplaceAllString(s, "")

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case hasDot && dotGrouped.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParsePercent strips percent signs and parses the remainder as money.
func ParsePercent(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		return parseMoneyText(strings.ReplaceAll(s, "%", ""))
	}
	return ParseMoney(v)
}

// fieldType names how a resolved value is coerced.
type fieldType int

const (
	typeRaw fieldType = iota
	typeStr
	typeCardMask
	typeDate
	typeItemDate
	typeMoney
	typePct
	typeInt
)

// coerce converts a resolved JSON value to a column value, or nil.
func coerce(t fieldType, v jsontree.Value, ok bool) any {
	if !ok || v.IsNull() {
		return nil
	}
	switch t {
	case typeStr:
		return CollapseSpaces(v.Text())
	case typeCardMask:
		if s, ok := CardMask(v.Text()); ok {
			return s
		}
		return nil
	case typeDate:
		if s, ok := ParseDate(v.Text()); ok {
			return s
		}
		return nil
	case typeItemDate:
		if s, ok := parseDateWith(v.Text(), itemDateLayouts); ok {
			return s
		}
		return nil
	case typeMoney:
		if f, ok := ParseMoney(v.Raw()); ok {
			return f
		}
		return nil
	case typePct:
		if f, ok := ParsePercent(v.Raw()); ok {
			return f
		}
		return nil
	case typeInt:
		if f, ok := ParseMoney(v.Raw()); ok {
			return int64(f)
		}
		return nil
	default:
		return v.Raw()
	}
}
