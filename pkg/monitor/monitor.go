package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sw33tLie/idwatch/pkg/extract"
	"github.com/sw33tLie/idwatch/pkg/history"
	"github.com/sw33tLie/idwatch/pkg/platforms"
	"github.com/sw33tLie/idwatch/pkg/storage"
	"github.com/sw33tLie/idwatch/pkg/tracker"
)

const DefaultInterval = 2500 * time.Millisecond

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// EventSink receives every transition of a cycle. *storage.DB implements it.
type EventSink interface {
	LogChanges(ctx context.Context, changes []storage.Change) error
}

// Config holds everything a Monitor needs.
type Config struct {
	Fetcher   platforms.ProfileFetcher
	Store     *history.Store
	Extractor *extract.Extractor
	Names     []string

	Interval    time.Duration // defaults to DefaultInterval if <= 0
	ChunkSize   int           // defaults to extract.DefaultChunkSize if <= 0
	Concurrency int           // defaults to 1 if <= 0
	Cycles      int           // stop Run after this many cycles; 0 runs until cancelled
	Events      EventSink     // optional
	Log         Logger        // optional; nil = no logging
}

// CycleResult holds the outcome of one pass over the watchlist.
type CycleResult struct {
	CycleID     string
	StartedAt   time.Time
	Duration    time.Duration
	Probed      int
	Polled      int
	Transitions []tracker.Transition
	Errors      []error // per-name fetch and persistence errors
}

// Monitor owns one Tracker per name and runs the poll cycles.
type Monitor struct {
	cfg      Config
	log      Logger
	trackers []*tracker.Tracker
	byName   map[string]*tracker.Tracker
}

// New validates cfg and builds a tracker per name, rehydrated from its history.
func New(cfg Config) (*Monitor, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("monitor: fetcher is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("monitor: history store is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("monitor: extractor is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = extract.DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	m := &Monitor{cfg: cfg, log: cfg.Log, byName: make(map[string]*tracker.Tracker, len(cfg.Names))}
	if m.log == nil {
		m.log = nopLogger{}
	}
	for _, name := range cfg.Names {
		if _, dup := m.byName[name]; dup {
			continue
		}
		t := tracker.New(name, cfg.Store)
		m.trackers = append(m.trackers, t)
		m.byName[name] = t
	}
	return m, nil
}

// Tracker returns the tracker of name.
func (m *Monitor) Tracker(name string) (*tracker.Tracker, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Run executes cycles until ctx is cancelled, waiting Interval after each one.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Infof("Monitoring %d name(s) on %s every %s", len(m.trackers), m.cfg.Fetcher.Name(), m.cfg.Interval)

	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil
		}

		res := m.RunCycle(ctx)
		m.log.Debugf("Cycle %s done in %s: %d probed, %d polled, %d transition(s), %d error(s)",
			res.CycleID, res.Duration.Round(time.Millisecond), res.Probed, res.Polled, len(res.Transitions), len(res.Errors))

		if ctx.Err() != nil || (m.cfg.Cycles > 0 && n >= m.cfg.Cycles) {
			return nil
		}
		timer := time.NewTimer(m.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle probes the names that were invalid when the cycle started, then polls every
// other name. It returns once all per-name work has finished.
func (m *Monitor) RunCycle(ctx context.Context) *CycleResult {
	res := &CycleResult{CycleID: uuid.NewString(), StartedAt: time.Now()}

	var invalid, valid []*tracker.Tracker
	for _, t := range m.trackers {
		if t.Invalid() {
			invalid = append(invalid, t)
		} else {
			valid = append(valid, t)
		}
	}

	var mu sync.Mutex
	collect := func(tr tracker.Transition, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors = append(res.Errors, err)
		}
		if tr.Changed() {
			res.Transitions = append(res.Transitions, tr)
		}
	}

	res.Probed = m.runPhase(ctx, invalid, m.probe, collect)
	res.Polled = m.runPhase(ctx, valid, m.poll, collect)

	if m.cfg.Events != nil && len(res.Transitions) > 0 {
		if err := m.cfg.Events.LogChanges(ctx, m.toChanges(res)); err != nil {
			m.log.Warnf("Could not log changes for cycle %s: %v", res.CycleID, err)
		}
	}

	res.Duration = time.Since(res.StartedAt)
	return res
}

// runPhase fans the trackers out to a worker pool. Each tracker goes to exactly one
// worker, so a name never has two fetches in flight.
func (m *Monitor) runPhase(
	ctx context.Context,
	trackers []*tracker.Tracker,
	work func(context.Context, *tracker.Tracker) (tracker.Transition, error),
	collect func(tracker.Transition, error),
) int {
	if len(trackers) == 0 {
		return 0
	}

	trackerChan := make(chan *tracker.Tracker, len(trackers))
	for _, t := range trackers {
		trackerChan <- t
	}
	close(trackerChan)

	var done int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < min(m.cfg.Concurrency, len(trackers)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range trackerChan {
				if ctx.Err() != nil {
					continue
				}
				tr, err := work(ctx, t)
				collect(tr, err)

				mu.Lock()
				done++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return done
}

// probe checks whether an invalid name exists again. The body is not scanned.
func (m *Monitor) probe(ctx context.Context, t *tracker.Tracker) (tracker.Transition, error) {
	name := t.Name()
	resp, err := m.cfg.Fetcher.Fetch(ctx, name)
	if err != nil {
		m.log.Warnf("An error occurred for %s: %v", name, err)
		return tracker.Transition{}, err
	}
	resp.Body.Close()

	obs := tracker.Observation{Status: tracker.FoundWithoutID, At: time.Now()}
	if resp.NotFound() {
		obs.Status = tracker.NotFound
	}
	return t.Observe(ctx, obs)
}

// poll fetches the page of a valid name, scans it, and feeds the result to its tracker.
func (m *Monitor) poll(ctx context.Context, t *tracker.Tracker) (tracker.Transition, error) {
	name := t.Name()
	resp, err := m.cfg.Fetcher.Fetch(ctx, name)
	if err != nil {
		m.log.Warnf("An error occurred for %s: %v", name, err)
		return tracker.Transition{}, err
	}
	defer resp.Body.Close()

	obs := tracker.Observation{At: time.Now()}
	if resp.NotFound() {
		obs.Status = tracker.NotFound
	} else {
		id, ok, err := m.cfg.Extractor.Scan(resp.Body, m.cfg.ChunkSize)
		if err != nil {
			m.log.Warnf("An error occurred for %s: %v", name, err)
			return tracker.Transition{}, fmt.Errorf("%w: %s: reading body: %v", platforms.ErrFetch, name, err)
		}
		if ok {
			obs.Status, obs.ID = tracker.FoundWithID, id
		} else {
			obs.Status = tracker.FoundWithoutID
			m.log.Debugf("No identifier found for %s (status %d)", name, resp.StatusCode)
		}
	}

	tr, err := t.Observe(ctx, obs)
	if err != nil {
		m.log.Errorf("Could not persist transition for %s: %v", name, err)
	}
	return tr, err
}

func (m *Monitor) toChanges(res *CycleResult) []storage.Change {
	changes := make([]storage.Change, 0, len(res.Transitions))
	for _, tr := range res.Transitions {
		changes = append(changes, storage.Change{
			OccurredAt: tr.At,
			CycleID:    res.CycleID,
			Platform:   m.cfg.Fetcher.Name(),
			Username:   tr.Username,
			ChangeType: string(tr.Type),
			OldUserID:  tr.OldID,
			NewUserID:  tr.NewID,
		})
	}
	return changes
}
