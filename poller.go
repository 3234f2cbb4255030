package oaipoll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxRequests will prevent endless loops due to broken
// resumptionToken implementations (e.g. http://goo.gl/KFb9iM).
const DefaultMaxRequests = 16384

// Fetcher executes a single request and returns the raw payload.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Decoder turns a raw payload into a response.
type Decoder interface {
	Decode(payload []byte) (Response, error)
}

// Sink receives harvested records, in the order of the pages.
type Sink interface {
	Emit(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(context.Context, Record) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r Record) error { return f(ctx, r) }

// Cursor is the harvesting state of one endpoint. Only From moves, Until is
// fixed for the lifetime of a poller.
type Cursor struct {
	Verb       Verb
	Set        string
	Prefix     string
	Identifier string
	From       string
	Until      string
}

// Status is the outcome of a harvest cycle.
type Status int

const (
	// StatusComplete means the list has been traversed to the end.
	StatusComplete Status = iota
	// StatusEmpty means the provider reported no data, e.g. noRecordsMatch.
	StatusEmpty
	// StatusFailed means the provider answered with an operational error.
	StatusFailed
	// StatusHalted means the time window is exhausted, no request was made.
	StatusHalted
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	case StatusHalted:
		return "halted"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result of a single Poll.
type Result struct {
	Status  Status
	Records int
	Pages   int
}

// Halt reports, whether polling this endpoint again is pointless.
func (r Result) Halt() bool {
	return r.Status == StatusHalted
}

// CommitMode controls when the cursor moves.
type CommitMode int

const (
	// CommitPerRequest sets From to the time of each request as soon as a
	// response arrives.
	CommitPerRequest CommitMode = iota
	// CommitOnCycleEnd remembers the time of the first request and moves
	// From only after the cycle ended without failure, so an interrupted
	// cycle is harvested again from its start.
	CommitOnCycleEnd
)

// Poller runs harvest cycles against a single endpoint. It is not safe to
// call Poll concurrently, Cursor may be called at any time.
type Poller struct {
	endpoint    string
	fetcher     Fetcher
	decoder     Decoder
	sink        Sink
	handler     Handler
	morePages   MorePages
	retry       RetryPolicy
	now         func() time.Time
	maxRequests int
	granularity Granularity
	commit      CommitMode
	log         *zap.Logger
	metrics     *Metrics

	mu     sync.Mutex
	cursor Cursor
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger, default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// WithDecoder replaces Decode.
func WithDecoder(d Decoder) Option {
	return func(p *Poller) { p.decoder = d }
}

// WithMorePages replaces the pagination predicate.
func WithMorePages(f MorePages) Option {
	return func(p *Poller) { p.morePages = f }
}

// WithRetryPolicy sets the retry policy, default is NoRetry.
func WithRetryPolicy(r RetryPolicy) Option {
	return func(p *Poller) { p.retry = r }
}

// WithClock sets the source of the cursor timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithMaxRequests limits requests per cycle, zero means no limit.
func WithMaxRequests(n int) Option {
	return func(p *Poller) { p.maxRequests = n }
}

// WithGranularity sets the layout of the cursor timestamp.
func WithGranularity(g Granularity) Option {
	return func(p *Poller) { p.granularity = g }
}

// WithCommitMode sets when the cursor moves.
func WithCommitMode(m CommitMode) Option {
	return func(p *Poller) { p.commit = m }
}

// WithMetrics attaches prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// NewPoller creates a poller for an endpoint. The verb of the cursor selects
// the response handler.
func NewPoller(endpoint string, cursor Cursor, fetcher Fetcher, sink Sink, opts ...Option) (*Poller, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	handler, err := HandlerFor(cursor.Verb)
	if err != nil {
		return nil, err
	}
	p := &Poller{
		endpoint:    endpoint,
		cursor:      cursor,
		fetcher:     fetcher,
		decoder:     DecoderFunc(Decode),
		sink:        sink,
		handler:     handler,
		morePages:   LeadingSpaceEnds,
		retry:       NoRetry{},
		now:         time.Now,
		maxRequests: DefaultMaxRequests,
		granularity: SecondsGranularity,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Endpoint returns the base URL of the provider.
func (p *Poller) Endpoint() string { return p.endpoint }

// Cursor returns a copy of the current cursor.
func (p *Poller) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Poll runs one harvest cycle: requests follow resumption tokens until the
// list is exhausted or the provider reports an error. Transport, decode and
// sink failures are returned as errors, protocol errors end up in the
// status.
func (p *Poller) Poll(ctx context.Context) (Result, error) {
	var (
		result Result
		token  *ResumptionToken
		staged string
	)
	log := p.log.With(zap.String("endpoint", p.endpoint))
	done := func(s Status) (Result, error) {
		result.Status = s
		if s == StatusComplete || s == StatusEmpty {
			p.commitStaged(staged)
		}
		p.metrics.cycle(p.endpoint, s)
		log.Info("harvest cycle done",
			zap.Stringer("status", s),
			zap.Int("records", result.Records),
			zap.Int("pages", result.Pages))
		return result, nil
	}
	for {
		if token == nil {
			cursor := p.Cursor()
			ok, err := Permits(cursor.From, cursor.Until, false)
			if err != nil {
				return result, err
			}
			if !ok {
				log.Info("time window has been harvested",
					zap.String("from", cursor.From),
					zap.String("until", cursor.Until))
				return done(StatusHalted)
			}
		}
		if p.maxRequests > 0 && result.Pages >= p.maxRequests {
			return result, ErrTooManyRequests
		}
		resp, err := p.page(ctx, p.request(token), &staged)
		if err != nil {
			return result, err
		}
		result.Pages++
		for _, e := range resp.Errors {
			p.metrics.protocolError(p.endpoint, e)
		}
		if Classify(p.log, p.endpoint, resp.Errors) == Stop {
			if len(Operational(resp.Errors)) > 0 {
				return done(StatusFailed)
			}
			return done(StatusEmpty)
		}
		records := p.handler.Records(p.endpoint, resp)
		for _, r := range records {
			if err := p.sink.Emit(ctx, r); err != nil {
				return result, fmt.Errorf("emit %s: %w", r.Identifier, err)
			}
			p.metrics.record(p.endpoint)
			result.Records++
		}
		next := p.handler.Token(resp)
		if !p.morePages(next) || tokenValue(next) == "" {
			return done(StatusComplete)
		}
		log.Debug("resuming",
			zap.Int("records", len(records)),
			zap.String("token", next.Value))
		token = next
	}
}

// request assembles the next request from the cursor. The cursor fields stay
// in the request even with a token, the URL drops them.
func (p *Poller) request(token *ResumptionToken) Request {
	cursor := p.Cursor()
	req := Request{
		Endpoint:   p.endpoint,
		Verb:       cursor.Verb,
		Set:        cursor.Set,
		From:       cursor.From,
		Until:      cursor.Until,
		Prefix:     cursor.Prefix,
		Identifier: cursor.Identifier,
	}
	if token != nil {
		req.ResumptionToken = tokenValue(token)
	}
	return req
}

// page fetches and decodes a single page, consulting the retry policy on
// failures and on operational protocol errors. If the policy gives up on
// protocol errors, the response is returned for classification.
func (p *Poller) page(ctx context.Context, req Request, staged *string) (Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := p.fetch(ctx, req, staged)
		retryErr := err
		if err == nil {
			ops := Operational(resp.Errors)
			if len(ops) == 0 {
				return resp, nil
			}
			retryErr = ops
		}
		delay, ok := p.retry.Backoff(attempt, retryErr)
		if !ok {
			return resp, err
		}
		p.log.Warn("retrying request",
			zap.String("endpoint", p.endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(retryErr))
		if err := sleepContext(ctx, delay); err != nil {
			return resp, err
		}
	}
}

// fetch issues a request and moves the cursor to the time the request was
// issued, before the payload is decoded.
func (p *Poller) fetch(ctx context.Context, req Request, staged *string) (Response, error) {
	issued := p.now()
	p.metrics.request(p.endpoint)
	b, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Response{}, err
	}
	ts := p.granularity.Format(issued)
	switch p.commit {
	case CommitOnCycleEnd:
		if *staged == "" {
			*staged = ts
		}
	default:
		p.setFrom(ts)
	}
	return p.decoder.Decode(b)
}

func (p *Poller) setFrom(ts string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor.From = ts
}

func (p *Poller) commitStaged(ts string) {
	if p.commit == CommitOnCycleEnd && ts != "" {
		p.setFrom(ts)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
