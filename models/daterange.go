package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date form accepted by range filters.
const DateLayout = "2006-01-02"

// Open ends used when only one side of a range is given.
const (
	minDate = "0001-01-01"
	maxDate = "9999-12-31"
)

// ErrInvalidDateRange is wrapped by every ParseDateRange failure.
var ErrInvalidDateRange = errors.New("invalid date range")

// ParseDateRange builds an inclusive range from optional YYYY-MM-DD bounds.
// It returns nil when both are empty; a missing side is left open.
func ParseDateRange(from, to string) (*DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return nil, nil
	}
	rng := &DateRange{From: minDate, To: maxDate}
	if from != "" {
		if _, err := time.Parse(DateLayout, from); err != nil {
			return nil, fmt.Errorf("%w: from %q is not YYYY-MM-DD", ErrInvalidDateRange, from)
		}
		rng.From = from
	}
	if to != "" {
		if _, err := time.Parse(DateLayout, to); err != nil {
			return nil, fmt.Errorf("%w: to %q is not YYYY-MM-DD", ErrInvalidDateRange, to)
		}
		rng.To = to
	}
	if rng.From > rng.To {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrInvalidDateRange, rng.From, rng.To)
	}
	return rng, nil
}
