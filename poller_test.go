package oaipoll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const endpoint = "http://example.com/oai"

func newTestPoller(t *testing.T, cursor Cursor, f Fetcher, s Sink, opts ...Option) *Poller {
	t.Helper()
	if cursor.Verb == "" {
		cursor.Verb = ListRecords
	}
	opts = append([]Option{WithClock(clock())}, opts...)
	p, err := NewPoller(endpoint, cursor, f, s, opts...)
	require.NoError(t, err)
	return p
}

func TestNewPoller(t *testing.T) {
	_, err := NewPoller("", Cursor{Verb: ListRecords}, &fakeFetcher{}, &collector{})
	assert.Equal(t, ErrNoEndpoint, err)
	_, err = NewPoller(endpoint, Cursor{Verb: "Harvest"}, &fakeFetcher{}, &collector{})
	assert.True(t, errors.Is(err, ErrNoHandler))
}

func TestPollWindowPermits(t *testing.T) {
	f := &fakeFetcher{steps: []step{{payload: listRecords("", "oai:x:1")}}}
	sink := &collector{}
	p := newTestPoller(t, Cursor{From: "2020-01-01", Until: "2020-06-01", Prefix: "oai_dc"}, f, sink)

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "2020-01-01", f.requests[0].From)
	assert.Equal(t, "2020-06-01", f.requests[0].Until)
	assert.Equal(t, "oai_dc", f.requests[0].Prefix)
	assert.Equal(t, []string{"oai:x:1"}, sink.identifiers())
}

func TestPollWindowExhausted(t *testing.T) {
	f := &fakeFetcher{}
	sink := &collector{}
	p := newTestPoller(t, Cursor{From: "2020-07-01", Until: "2020-06-01"}, f, sink)

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHalted, result.Status)
	assert.True(t, result.Halt())
	assert.Empty(t, f.requests)
	assert.Empty(t, sink.records)
	assert.Equal(t, "2020-07-01", p.Cursor().From)
}

func TestPollBadWindow(t *testing.T) {
	p := newTestPoller(t, Cursor{From: "last week", Until: "2020-06-01"}, &fakeFetcher{}, &collector{})
	_, err := p.Poll(context.Background())
	assert.True(t, errors.Is(err, ErrBadTimestamp))
}

func TestPollFollowsToken(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken>abc123</resumptionToken>`, "oai:x:1", "oai:x:2")},
		{payload: listRecords(`<resumptionToken/>`, "oai:x:3")},
	}}
	sink := &collector{}
	p := newTestPoller(t, Cursor{Set: "math", Prefix: "oai_dc"}, f, sink)

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusComplete, Records: 3, Pages: 2}, result)
	require.Len(t, f.requests, 2)
	assert.Equal(t, "", f.requests[0].ResumptionToken)
	assert.Equal(t, "abc123", f.requests[1].ResumptionToken)
	u, err := f.requests[1].URL()
	require.NoError(t, err)
	assert.Equal(t, endpoint+"?resumptionToken=abc123&verb=ListRecords", u)
	assert.Equal(t, []string{"oai:x:1", "oai:x:2", "oai:x:3"}, sink.identifiers())
}

func TestPollLeadingSpaceToken(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken> </resumptionToken>`, "oai:x:1")},
	}}
	p := newTestPoller(t, Cursor{}, f, &collector{})

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Len(t, f.requests, 1)
}

func TestPollStrictPagination(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken> abc</resumptionToken>`, "oai:x:1")},
		{payload: listRecords("", "oai:x:2")},
	}}
	p := newTestPoller(t, Cursor{}, f, &collector{}, WithMorePages(NonEmptyContinues))

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	require.Len(t, f.requests, 2)
	assert.Equal(t, " abc", f.requests[1].ResumptionToken)
}

func TestPollPrettyPrintedToken(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords("<resumptionToken cursor=\"0\">\n    abc123\n</resumptionToken>", "oai:x:1")},
		{payload: listRecords("<resumptionToken cursor=\"1\">\n</resumptionToken>", "oai:x:2")},
	}}
	sink := &collector{}
	p := newTestPoller(t, Cursor{}, f, sink)

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusComplete, Records: 2, Pages: 2}, result)
	require.Len(t, f.requests, 2)
	assert.Equal(t, "abc123", f.requests[1].ResumptionToken)
	assert.Equal(t, []string{"oai:x:1", "oai:x:2"}, sink.identifiers())
}

func TestPollNoRecordsMatch(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := &fakeFetcher{steps: []step{{payload: oaiErrors(ListRecords, "noRecordsMatch", "none")}}}
	sink := &collector{}
	p := newTestPoller(t, Cursor{From: "2021-01-01T00:00:00Z"}, f, sink, WithLogger(zap.New(core)))

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)
	assert.Zero(t, result.Records)
	assert.Empty(t, sink.records)
	assert.Equal(t, 1, logs.FilterMessage("no data").Len())
	assert.Zero(t, logs.FilterMessage("error getting records").Len())
}

func TestPollOperationalError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := &fakeFetcher{steps: []step{{payload: oaiErrors(ListRecords, "badArgument", "bad set")}}}
	p := newTestPoller(t, Cursor{Set: "nope"}, f, &collector{}, WithLogger(zap.New(core)))

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Halt())
	entries := logs.FilterMessage("error getting records").All()
	require.Len(t, entries, 1)
	assert.Equal(t, endpoint, entries[0].ContextMap()["endpoint"])
}

func TestPollCursorPerRequest(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken>a</resumptionToken>`, "oai:x:1")},
		{payload: listRecords("", "oai:x:2")},
	}}
	p := newTestPoller(t, Cursor{From: "2021-01-01T00:00:00Z"}, f, &collector{})

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	// clock ticks once per request: 10:01 and 10:02
	assert.Equal(t, "2021-03-01T10:02:00Z", p.Cursor().From)
	assert.Equal(t, "2021-01-01T00:00:00Z", f.requests[0].From)
	assert.Equal(t, "2021-03-01T10:01:00Z", f.requests[1].From)
}

func TestPollCursorDayGranularity(t *testing.T) {
	f := &fakeFetcher{steps: []step{{payload: listRecords("", "oai:x:1")}}}
	p := newTestPoller(t, Cursor{From: "2021-01-01"}, f, &collector{}, WithGranularity(DayGranularity))
	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2021-03-01", p.Cursor().From)
}

func TestPollCursorOnCycleEnd(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken>a</resumptionToken>`, "oai:x:1")},
		{payload: listRecords("", "oai:x:2")},
	}}
	p := newTestPoller(t, Cursor{From: "2021-01-01T00:00:00Z"}, f, &collector{}, WithCommitMode(CommitOnCycleEnd))

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2021-03-01T10:01:00Z", p.Cursor().From)
}

func TestPollCursorOnCycleEndInterrupted(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken>a</resumptionToken>`, "oai:x:1")},
		{err: &TransportError{URL: endpoint, StatusCode: 502}},
	}}
	p := newTestPoller(t, Cursor{From: "2021-01-01T00:00:00Z"}, f, &collector{}, WithCommitMode(CommitOnCycleEnd))

	_, err := p.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, "2021-01-01T00:00:00Z", p.Cursor().From)
}

func TestPollTransportErrorKeepsCursor(t *testing.T) {
	f := &fakeFetcher{steps: []step{{err: &TransportError{URL: endpoint, Err: errBoom}}}}
	p := newTestPoller(t, Cursor{From: "2021-01-01T00:00:00Z"}, f, &collector{})

	_, err := p.Poll(context.Background())
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, "2021-01-01T00:00:00Z", p.Cursor().From)
}

func TestPollDecodeErrorMovesCursor(t *testing.T) {
	f := &fakeFetcher{steps: []step{{payload: "<html>maintenance</html>"}}}
	p := newTestPoller(t, Cursor{From: "2021-01-01T00:00:00Z"}, f, &collector{})

	_, err := p.Poll(context.Background())
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "2021-03-01T10:01:00Z", p.Cursor().From)
}

func TestPollMaxRequests(t *testing.T) {
	tok := `<resumptionToken>again</resumptionToken>`
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(tok, "oai:x:1")},
		{payload: listRecords(tok, "oai:x:1")},
		{payload: listRecords(tok, "oai:x:1")},
	}}
	p := newTestPoller(t, Cursor{}, f, &collector{}, WithMaxRequests(2))

	result, err := p.Poll(context.Background())
	assert.Equal(t, ErrTooManyRequests, err)
	assert.Equal(t, 2, result.Pages)
	assert.Len(t, f.requests, 2)
}

func TestPollRetryTransport(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{err: &TransportError{URL: endpoint, StatusCode: 503}},
		{payload: listRecords("", "oai:x:1")},
	}}
	retry := ExponentialBackoff{MaxAttempts: 3, InitialDelay: time.Millisecond}
	p := newTestPoller(t, Cursor{}, f, &collector{}, WithRetryPolicy(retry))

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, f.requests, 2)
}

func TestPollRetryGivesUp(t *testing.T) {
	transient := step{err: &TransportError{URL: endpoint, StatusCode: 503}}
	f := &fakeFetcher{steps: []step{transient, transient}}
	retry := ExponentialBackoff{MaxAttempts: 2, InitialDelay: time.Millisecond}
	p := newTestPoller(t, Cursor{}, f, &collector{}, WithRetryPolicy(retry))

	_, err := p.Poll(context.Background())
	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.Len(t, f.requests, 2)
}

func TestPollRetryProtocolError(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken>a</resumptionToken>`, "oai:x:1")},
		{payload: oaiErrors(ListRecords, "badResumptionToken", "expired")},
		{payload: listRecords("", "oai:x:2")},
	}}
	retry := ExponentialBackoff{MaxAttempts: 2, InitialDelay: time.Millisecond, Retryable: TransientOr(BadResumptionToken)}
	sink := &collector{}
	p := newTestPoller(t, Cursor{}, f, sink, WithRetryPolicy(retry))

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, []string{"oai:x:1", "oai:x:2"}, sink.identifiers())
	require.Len(t, f.requests, 3)
	assert.Equal(t, "a", f.requests[2].ResumptionToken)
}

func TestPollRetryCanceled(t *testing.T) {
	f := &fakeFetcher{steps: []step{{err: &TransportError{URL: endpoint, StatusCode: 503}}}}
	retry := ExponentialBackoff{MaxAttempts: 3, InitialDelay: time.Hour}
	p := newTestPoller(t, Cursor{}, f, &collector{}, WithRetryPolicy(retry))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Poll(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPollSinkError(t *testing.T) {
	f := &fakeFetcher{steps: []step{{payload: listRecords("", "oai:x:1")}}}
	p := newTestPoller(t, Cursor{}, f, &collector{err: errBoom})

	_, err := p.Poll(context.Background())
	assert.True(t, errors.Is(err, errBoom))
	assert.Contains(t, err.Error(), "oai:x:1")
}

func TestPollGetRecord(t *testing.T) {
	f := &fakeFetcher{steps: []step{{payload: `<OAI-PMH><GetRecord><record><header><identifier>oai:x:7</identifier></header><metadata><dc/></metadata></record></GetRecord></OAI-PMH>`}}}
	sink := &collector{}
	p := newTestPoller(t, Cursor{Verb: GetRecord, Identifier: "oai:x:7", Prefix: "oai_dc"}, f, sink)

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusComplete, Records: 1, Pages: 1}, result)
	assert.Equal(t, "oai:x:7", f.requests[0].Identifier)
	assert.Equal(t, []string{"oai:x:7"}, sink.identifiers())
}

func TestPollMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	f := &fakeFetcher{steps: []step{
		{payload: listRecords(`<resumptionToken>a</resumptionToken>`, "oai:x:1", "oai:x:2")},
		{payload: oaiErrors(ListRecords, "badResumptionToken", "expired")},
	}}
	p := newTestPoller(t, Cursor{}, f, &collector{}, WithMetrics(m))

	result, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(endpoint)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues(endpoint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.protocolErrors.WithLabelValues(endpoint, "badResumptionToken", "operational")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues(endpoint, "failed")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "complete", StatusComplete.String())
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "halted", StatusHalted.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
