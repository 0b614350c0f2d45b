package pipeline

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-pipeline/internal/objectstore"
)

var (
	// ErrMissingDates is returned when either bound of a range is empty.
	ErrMissingDates = errors.New("start_date and end_date are required")

	// ErrInvalidDate is returned for a bound that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)

// Range is an inclusive date range.
type Range struct {
	Start civil.Date
	End   civil.Date
}

// ParseRange parses two YYYY-MM-DD bounds.
func ParseRange(start, end string) (Range, error) {
	if start == "" || end == "" {
		return Range{}, ErrMissingDates
	}
	s, err := civil.ParseDate(start)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidDate, start)
	}
	e, err := civil.ParseDate(end)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidDate, end)
	}
	if s.After(e) {
		return Range{}, objectstore.ErrInvalidRange
	}
	return Range{Start: s, End: e}, nil
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}
