package objectstore

import (
	"regexp"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
)

// namePatterns are tried in order; a token that matches but does not parse
// falls through to the next pattern.
var namePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b(\d{8})\b`), "20060102"},
	{regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`), "2006-01-02"},
	{regexp.MustCompile(`\b(\d{6})\b`), "200601"},
	{regexp.MustCompile(`\b(\d{4}-\d{2})\b`), "2006-01"},
}

// DateFromName finds the first date embedded in a file name. Month-only
// stamps resolve to the first day of the month.
func DateFromName(name string) (civil.Date, bool) {
	for _, p := range namePatterns {
		m := p.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		t, err := time.Parse(p.layout, m[1])
		if err != nil {
			continue
		}
		return civil.DateOf(t), true
	}
	return civil.Date{}, false
}

// DateFromLeadingStamp prefers a YYYYMMDD prefix of name and otherwise
// behaves like DateFromName.
func DateFromLeadingStamp(name string) (civil.Date, bool) {
	if len(name) >= 8 && allDigits(name[:8]) {
		if t, err := time.Parse("20060102", name[:8]); err == nil {
			return civil.DateOf(t), true
		}
	}
	return DateFromName(name)
}

// YearFolder is the year of the date in name, or "unclassified".
func YearFolder(name string) string {
	if d, ok := DateFromName(name); ok {
		return strconv.Itoa(d.Year)
	}
	return "unclassified"
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
