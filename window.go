package oaipoll

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const oneDay = 24 * time.Hour

var (
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrBadTimestamp     = errors.New("bad timestamp")
)

// Granularity is the layout of a datestamp (3.3.2), either day or seconds.
type Granularity string

const (
	DayGranularity     Granularity = "YYYY-MM-DD"
	SecondsGranularity Granularity = "YYYY-MM-DDThh:mm:ssZ"
)

// Layout returns the Go time layout for g, seconds is the default.
func (g Granularity) Layout() string {
	if g == DayGranularity {
		return "2006-01-02"
	}
	return "2006-01-02T15:04:05Z"
}

// Format renders t in UTC with granularity g.
func (g Granularity) Format(t time.Time) string {
	return t.UTC().Format(g.Layout())
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an OAI datestamp in either granularity, values
// without zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// Permits decides, whether a harvest may start. The window only applies to
// the first request of a cycle, so a pending resumption token always
// permits. An empty until means there is no upper bound, an empty from no
// lower bound. If from is later than until, the window has been harvested
// already.
func Permits(from, until string, hasToken bool) (bool, error) {
	if strings.TrimSpace(until) == "" || hasToken {
		return true, nil
	}
	if strings.TrimSpace(from) == "" {
		return true, nil
	}
	f, err := ParseTimestamp(from)
	if err != nil {
		return false, err
	}
	u, err := ParseTimestamp(until)
	if err != nil {
		return false, err
	}
	return !f.After(u), nil
}

// Window represent a span of time, from and until including.
type Window struct {
	From  time.Time
	Until time.Time
}

// TimeShiftFunc moves a time to a boundary.
type TimeShiftFunc func(time.Time) time.Time

func (w Window) makeWindows(left, right TimeShiftFunc) ([]Window, error) {
	var ws []Window
	if w.From.After(w.Until) {
		return ws, ErrInvalidDateRange
	}
	var start, end time.Time
	from := w.From
	for {
		switch {
		case len(ws) == 0:
			start = now.New(w.From).BeginningOfDay()
		default:
			start = left(from)
		}
		end = right(from)
		if end.After(w.Until) {
			// discard end and use the end of day of until
			ws = append(ws, Window{From: start, Until: now.New(w.Until).EndOfDay()})
			break
		}
		ws = append(ws, Window{From: start, Until: end})
		from = end.Add(oneDay)
	}
	return ws, nil
}

// Monthly splits the window at month boundaries.
func (w Window) Monthly() ([]Window, error) {
	shiftLeft := func(t time.Time) time.Time {
		return now.New(t).BeginningOfMonth()
	}
	shiftRight := func(t time.Time) time.Time {
		return now.New(t).EndOfMonth()
	}
	return w.makeWindows(shiftLeft, shiftRight)
}

// Weekly splits the window at week boundaries, weeks start on sunday.
func (w Window) Weekly() ([]Window, error) {
	shiftLeft := func(t time.Time) time.Time {
		return now.New(t).BeginningOfWeek()
	}
	shiftRight := func(t time.Time) time.Time {
		return now.New(t).EndOfWeek()
	}
	return w.makeWindows(shiftLeft, shiftRight)
}
