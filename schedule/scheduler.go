// Package schedule runs pollers periodically. An endpoint, whose time window
// is exhausted, is taken off the schedule, others keep running.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/miku/oaipoll"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrDuplicateName = errors.New("schedule: duplicate endpoint name")

// Poller is what the scheduler drives, usually an *oaipoll.Poller.
type Poller interface {
	Endpoint() string
	Poll(ctx context.Context) (oaipoll.Result, error)
}

// Status is the last known state of a scheduled endpoint.
type Status struct {
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	Result    string    `json:"result,omitempty"`
	Records   int       `json:"records"`
	Pages     int       `json:"pages"`
	LastError string    `json:"lastError,omitempty"`
	Halted    bool      `json:"halted"`
}

// Scheduler wraps a cron instance with one entry per endpoint. Runs of the
// same endpoint never overlap.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	status  map[string]*Status
}

// Parser accepts standard cron specs, an optional seconds field and
// descriptors like "@every 10m".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a stopped scheduler.
func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]*Status),
	}
}

// Add schedules a poller under a unique name.
func (s *Scheduler) Add(name, spec string, p Poller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, p) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = id
	s.status[name] = &Status{Name: name, Endpoint: p.Endpoint(), Schedule: spec}
	s.log.Info("scheduled endpoint",
		zap.String("name", name),
		zap.String("endpoint", p.Endpoint()),
		zap.String("schedule", spec))
	return nil
}

// Start runs the scheduler in the background, polls use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops scheduling and returns a context, that is done when running
// polls have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Active returns the number of endpoints still on the schedule.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Status returns the state of all endpoints, sorted by name.
func (s *Scheduler) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Status
	for _, st := range s.status {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// run is a single scheduled invocation. Failures are logged, the next tick
// tries again.
func (s *Scheduler) run(name string, p Poller) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	result, err := p.Poll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	st.Runs++
	st.LastRun = started
	st.Result = result.Status.String()
	st.Records = result.Records
	st.Pages = result.Pages
	st.LastError = ""
	if err != nil {
		st.Result = "error"
		st.LastError = err.Error()
		s.log.Error("poll failed",
			zap.String("name", name),
			zap.String("endpoint", p.Endpoint()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return
	}
	if result.Halt() {
		st.Halted = true
		if id, ok := s.entries[name]; ok {
			s.cron.Remove(id)
			delete(s.entries, name)
		}
		s.log.Info("endpoint removed from schedule",
			zap.String("name", name),
			zap.String("endpoint", p.Endpoint()))
	}
}

// cronLogger routes cron messages to zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
