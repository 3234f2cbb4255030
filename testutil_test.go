package oaipoll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// step is a canned answer of fakeFetcher.
type step struct {
	payload string
	err     error
}

// fakeFetcher answers requests from a list of steps and records the requests.
type fakeFetcher struct {
	mu       sync.Mutex
	steps    []step
	requests []Request
}

func (f *fakeFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.requests) > len(f.steps) {
		return nil, fmt.Errorf("unexpected request %d: %+v", len(f.requests), req)
	}
	s := f.steps[len(f.requests)-1]
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

// collector is a sink keeping all records.
type collector struct {
	records []Record
	err     error
}

func (c *collector) Emit(ctx context.Context, r Record) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, r)
	return nil
}

func (c *collector) identifiers() []string {
	var ids []string
	for _, r := range c.records {
		ids = append(ids, r.Identifier)
	}
	return ids
}

// clock returns a clock, that advances one minute per call, starting at
// 2021-03-01 10:00 UTC.
func clock() func() time.Time {
	t := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

const envelope = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
<responseDate>2021-03-01T10:00:00Z</responseDate>
<request verb="%s">http://example.com/oai</request>
%s
</OAI-PMH>`

// listRecords renders a ListRecords page, token is the raw resumptionToken
// element or empty.
func listRecords(token string, ids ...string) string {
	var sb strings.Builder
	sb.WriteString("<ListRecords>")
	for _, id := range ids {
		fmt.Fprintf(&sb, `<record><header><identifier>%s</identifier><datestamp>2021-01-01</datestamp><setSpec>s</setSpec></header>`+
			`<metadata><dc>%s</dc></metadata></record>`, id, id)
	}
	sb.WriteString(token)
	sb.WriteString("</ListRecords>")
	return fmt.Sprintf(envelope, ListRecords, sb.String())
}

// oaiErrors renders a response with error elements, given as code, message
// pairs.
func oaiErrors(verb Verb, pairs ...string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&sb, `<error code="%s">%s</error>`, pairs[i], pairs[i+1])
	}
	return fmt.Sprintf(envelope, verb, sb.String())
}

var errBoom = errors.New("boom")
