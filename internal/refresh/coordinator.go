// Package refresh keeps cached resources fresh. It rebuilds stale snapshots
// from a provider and keeps serving the previous snapshot when that fails.
package refresh

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/ccdash/cache"
	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/errutil"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/providers"
	"github.com/briangreenhill/ccdash/internal/retry"
)

const DefaultRefreshTimeout = 5 * time.Minute

var (
	// ErrUnknownResource is reported for names outside model.Resources.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrDependencyFailed is reported when queue-members is skipped because
	// the queue list could not be refreshed or read.
	ErrDependencyFailed = errors.New("dependency refresh failed")
)

// ErrorReporter receives refresh failures, e.g. to forward them to Sentry.
type ErrorReporter interface {
	Report(ctx context.Context, resource string, err error)
}

// Options tunes a Coordinator. Zero values are usable except TTL, where 0
// means every read triggers a refresh.
type Options struct {
	TTL               time.Duration
	RefreshTimeout    time.Duration
	MemberConcurrency int
	MemberFetchDelay  time.Duration

	Now        func() time.Time
	Sleep      retry.SleepFunc
	Reporter   ErrorReporter
	OnProgress collector.ProgressFunc
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store    cache.Store
	provider providers.Provider
	opts     Options

	flights singleflight.Group

	mu     sync.Mutex
	states map[string]*resourceState
}

type resourceState struct {
	refreshing  bool
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
	refreshes   int
	failures    int
}

func New(store cache.Store, provider providers.Provider, opts Options) *Coordinator {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.MemberConcurrency <= 0 {
		opts.MemberConcurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}

	states := make(map[string]*resourceState, len(model.Resources))
	for _, name := range model.Resources {
		states[name] = &resourceState{}
	}
	return &Coordinator{store: store, provider: provider, opts: opts, states: states}
}

// Provider returns the data source in use.
func (c *Coordinator) Provider() providers.Provider {
	return c.provider
}

// TTL returns the freshness window.
func (c *Coordinator) TTL() time.Duration {
	return c.opts.TTL
}

// EnsureFresh refreshes the named resources that are stale. With no names
// every resource is checked. Failures are logged and reported, never
// returned: the previous snapshot stays in place.
func (c *Coordinator) EnsureFresh(ctx context.Context, names ...string) Report {
	return c.run(ctx, names, false)
}

// ForceRefresh refreshes the named resources regardless of freshness.
func (c *Coordinator) ForceRefresh(ctx context.Context, names ...string) Report {
	return c.run(ctx, names, true)
}

// Invalidate deletes the named snapshots so the next read rebuilds them.
func (c *Coordinator) Invalidate(ctx context.Context, names ...string) error {
	wanted, unknown := normalize(names)
	var errs []error
	for _, name := range unknown {
		errs = append(errs, goerr.Wrap(ErrUnknownResource, "invalidate", goerr.V("resource", name)))
	}
	for _, name := range wanted {
		if err := c.store.Delete(ctx, name); err != nil {
			errs = append(errs, err)
			continue
		}
		zerolog.Ctx(ctx).Info().Str("resource", name).Msg("snapshot invalidated")
	}
	return errors.Join(errs...)
}

func (c *Coordinator) run(ctx context.Context, names []string, force bool) Report {
	cycleID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("cycle_id", cycleID).Logger()

	// The cycle outlives the request that triggered it; concurrent callers
	// share its result through singleflight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(logger.WithContext(ctx)), c.opts.RefreshTimeout)
	defer cancel()

	report := Report{CycleID: cycleID, Forced: force}
	wanted, unknown := normalize(names)
	for _, name := range unknown {
		report.add(Outcome{Resource: name, Err: ErrUnknownResource})
	}

	stale := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		if force || !c.fresh(ctx, name) {
			stale[name] = true
		}
	}
	if len(stale) == 0 {
		return report
	}

	logger.Info().Strs("resources", keys(stale)).Bool("forced", force).Str("provider", c.provider.Name()).Msg("refresh cycle started")
	started := c.opts.Now()

	batch := &lazyBatch{provider: c.provider}
	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	record := func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	var g errgroup.Group
	if stale[model.ResourceUsers] {
		g.Go(func() error {
			record(c.refresh(ctx, model.ResourceUsers, force, batch))
			return nil
		})
	}
	if stale[model.ResourceQueues] || stale[model.ResourceQueueMembers] {
		g.Go(func() error {
			queuesOK := true
			if stale[model.ResourceQueues] {
				o := c.refresh(ctx, model.ResourceQueues, force, batch)
				record(o)
				queuesOK = o.Err == nil
			}
			if !stale[model.ResourceQueueMembers] {
				return nil
			}
			if !queuesOK {
				logger.Warn().Str("resource", model.ResourceQueueMembers).Msg("queue list failed to refresh, skipping queue members this cycle")
				record(Outcome{Resource: model.ResourceQueueMembers, Skipped: true, Err: ErrDependencyFailed})
				return nil
			}
			record(c.refresh(ctx, model.ResourceQueueMembers, force, batch))
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(outcomes, func(a, b Outcome) int { return order(a.Resource) - order(b.Resource) })
	for _, o := range outcomes {
		report.add(o)
	}

	logger.Info().
		Strs("refreshed", report.Refreshed()).
		Bool("degraded", report.Degraded()).
		Dur("duration", c.opts.Now().Sub(started)).
		Msg("refresh cycle finished")
	return report
}

// refresh rebuilds one resource. At most one refresh per name runs at a
// time; callers that arrive while it runs get its outcome. A forced caller
// that joined a flight which skipped a fresh snapshot runs its own.
func (c *Coordinator) refresh(ctx context.Context, name string, force bool, batch *lazyBatch) Outcome {
	o := c.fly(ctx, name, force, batch)
	if force && o.Shared && !o.Refreshed && o.Err == nil {
		o = c.fly(ctx, name, true, batch)
	}
	return o
}

func (c *Coordinator) fly(ctx context.Context, name string, force bool, batch *lazyBatch) Outcome {
	v, err, shared := c.flights.Do(name, func() (any, error) {
		if !force && c.fresh(ctx, name) {
			return false, nil
		}

		c.begin(name)
		err := c.rebuild(ctx, name, batch)
		c.finish(name, err)

		if err != nil {
			errutil.Event(zerolog.Ctx(ctx).Error(), err).
				Str("resource", name).
				Bool("transient", retry.IsTransient(err)).
				Msg("refresh failed, serving previous snapshot")
			if c.opts.Reporter != nil {
				c.opts.Reporter.Report(ctx, name, err)
			}
			return false, err
		}
		return true, nil
	})

	refreshed, _ := v.(bool)
	return Outcome{Resource: name, Refreshed: refreshed, Shared: shared, Err: err}
}

func (c *Coordinator) rebuild(ctx context.Context, name string, batch *lazyBatch) error {
	b, err := batch.get(ctx)
	if err != nil {
		return err
	}

	progress := c.progress(ctx)
	var value any
	switch name {
	case model.ResourceUsers:
		value, err = b.Users(ctx, progress)
	case model.ResourceQueues:
		value, err = b.Queues(ctx, progress)
	case model.ResourceQueueMembers:
		value, err = c.collectMembers(ctx, b, progress)
	default:
		err = ErrUnknownResource
	}
	if err != nil {
		return goerr.Wrap(err, "fetch resource", goerr.V("resource", name))
	}

	if err := c.store.Save(ctx, name, value); err != nil {
		return goerr.Wrap(err, "persist snapshot", goerr.V("resource", name))
	}
	zerolog.Ctx(ctx).Info().Str("resource", name).Msg("snapshot written")
	return nil
}

// collectMembers walks the cached queue list. Any queue that fails aborts
// the whole resource so a partial map is never written.
func (c *Coordinator) collectMembers(ctx context.Context, b providers.Batch, progress collector.ProgressFunc) (model.QueueMembers, error) {
	entry, err := c.store.Read(ctx, model.ResourceQueues)
	if err != nil {
		return nil, goerr.Wrap(ErrDependencyFailed, "read cached queues", goerr.V("cause", err.Error()))
	}
	var queues []model.Queue
	if err := entry.Decode(&queues); err != nil {
		return nil, goerr.Wrap(ErrDependencyFailed, "decode cached queues", goerr.V("cause", err.Error()))
	}

	out := make(model.QueueMembers, len(queues))
	var mu sync.Mutex

	// Launches are spaced by MemberFetchDelay; at most MemberConcurrency
	// requests are in flight.
	var paceErr error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MemberConcurrency)
	for i, q := range queues {
		if i > 0 && c.opts.MemberFetchDelay > 0 {
			if paceErr = c.opts.Sleep(gctx, c.opts.MemberFetchDelay); paceErr != nil {
				break
			}
		}
		g.Go(func() error {
			members, err := b.QueueMembers(gctx, q.ID, progress)
			if err != nil {
				return goerr.Wrap(err, "fetch queue members", goerr.V("queue_id", q.ID))
			}
			if members == nil {
				members = []model.QueueMember{}
			}
			mu.Lock()
			out[q.ID] = members
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if paceErr != nil {
		return nil, paceErr
	}
	return out, nil
}

func (c *Coordinator) progress(ctx context.Context) collector.ProgressFunc {
	logger := zerolog.Ctx(ctx)
	return collector.Tee(func(p collector.Progress) {
		logger.Debug().
			Str("resource", p.Resource).
			Int("page", p.Page).
			Int("fetched", p.Fetched).
			Int("total", p.Total).
			Msg("refresh progress")
	}, c.opts.OnProgress)
}

func (c *Coordinator) fresh(ctx context.Context, name string) bool {
	last, err := cache.LastWrite(ctx, c.store, name)
	if err != nil {
		errutil.Event(zerolog.Ctx(ctx).Warn(), err).Str("resource", name).Msg("cannot read snapshot, treating as stale")
		return false
	}
	return cache.IsFresh(last, c.opts.Now(), c.opts.TTL)
}

func (c *Coordinator) begin(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.states[name]
	s.refreshing = true
	s.lastAttempt = c.opts.Now()
}

func (c *Coordinator) finish(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.states[name]
	s.refreshing = false
	s.lastErr = err
	if err != nil {
		s.failures++
		return
	}
	s.refreshes++
	s.lastSuccess = c.opts.Now()
}

// lazyBatch opens the provider batch on first use, so a cycle authenticates
// at most once and only when something is actually stale.
type lazyBatch struct {
	provider providers.Provider

	once  sync.Once
	batch providers.Batch
	err   error
}

func (l *lazyBatch) get(ctx context.Context) (providers.Batch, error) {
	l.once.Do(func() {
		l.batch, l.err = l.provider.Begin(ctx)
		if l.err != nil {
			l.err = goerr.Wrap(l.err, "open provider batch", goerr.V("provider", l.provider.Name()))
		}
	})
	return l.batch, l.err
}

func normalize(names []string) (wanted, unknown []string) {
	if len(names) == 0 {
		return slices.Clone(model.Resources), nil
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if order(n) < 0 {
			unknown = append(unknown, n)
			continue
		}
		wanted = append(wanted, n)
	}
	slices.SortFunc(wanted, func(a, b string) int { return order(a) - order(b) })
	return wanted, unknown
}

func order(name string) int {
	return slices.Index(model.Resources, name)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for _, name := range model.Resources {
		if m[name] {
			out = append(out, name)
		}
	}
	return out
}
