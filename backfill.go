package oaipoll

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrMissingFrom = errors.New("backfill: from is required")

// SplitFunc cuts a window into consecutive windows.
type SplitFunc func(Window) ([]Window, error)

// Weekly and Monthly are the available SplitFuncs.
var (
	Weekly  SplitFunc = Window.Weekly
	Monthly SplitFunc = Window.Monthly
)

// Backfill harvests the cursor window in slices, one cycle per slice. This
// keeps single resumption token sequences short on large repositories and
// limits the work lost, when a cycle fails. A missing until means now. The
// cursor only moves once all slices succeeded, to the time of the last
// request, as a regular Poll would. A failed slice leaves it untouched.
func (p *Poller) Backfill(ctx context.Context, split SplitFunc) (Result, error) {
	var total Result
	cursor := p.Cursor()
	if cursor.From == "" {
		return total, ErrMissingFrom
	}
	from, err := ParseTimestamp(cursor.From)
	if err != nil {
		return total, err
	}
	until := p.now().UTC()
	if cursor.Until != "" {
		if until, err = ParseTimestamp(cursor.Until); err != nil {
			return total, err
		}
	}
	windows, err := split(Window{From: from, Until: until})
	if err != nil {
		return total, err
	}
	last := cursor.From
	for i, w := range windows {
		c := cursor
		c.From = p.granularity.Format(w.From)
		c.Until = p.granularity.Format(w.Until)
		slice := p.slice(c)
		p.log.Info("backfill window",
			zap.String("endpoint", p.endpoint),
			zap.Int("window", i+1),
			zap.Int("of", len(windows)),
			zap.String("from", c.From),
			zap.String("until", c.Until))
		result, err := slice.Poll(ctx)
		total.Records += result.Records
		total.Pages += result.Pages
		total.Status = result.Status
		if err != nil {
			return total, err
		}
		if result.Status == StatusFailed {
			return total, nil
		}
		if from := slice.Cursor().From; from != c.From {
			last = from
		}
	}
	p.setFrom(last)
	return total, nil
}

// slice returns a poller sharing everything but the cursor.
func (p *Poller) slice(c Cursor) *Poller {
	return &Poller{
		endpoint:    p.endpoint,
		fetcher:     p.fetcher,
		decoder:     p.decoder,
		sink:        p.sink,
		handler:     p.handler,
		morePages:   p.morePages,
		retry:       p.retry,
		now:         p.now,
		maxRequests: p.maxRequests,
		granularity: p.granularity,
		commit:      p.commit,
		log:         p.log,
		metrics:     p.metrics,
		cursor:      c,
	}
}
