package refresh

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/briangreenhill/ccdash/cache"
	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/mockdata"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/providers"
	"github.com/briangreenhill/ccdash/internal/providers/mocks"
	"github.com/briangreenhill/ccdash/internal/retry"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingProvider struct {
	providers.Provider
	begins atomic.Int32
}

func (p *countingProvider) Begin(ctx context.Context) (providers.Batch, error) {
	p.begins.Add(1)
	return p.Provider.Begin(ctx)
}

type recordingReporter struct {
	mu        sync.Mutex
	resources []string
}

func (r *recordingReporter) Report(ctx context.Context, resource string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = append(r.resources, resource)
}

func newStore(t *testing.T, clock *fakeClock) *cache.FileCache {
	t.Helper()
	store, err := cache.NewFileCache(t.TempDir(), cache.WithClock(clock.Now))
	require.NoError(t, err)
	return store
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestEnsureFreshEndToEndWithClock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	provider := &countingProvider{Provider: providers.NewMockProvider(mockdata.New(mockdata.DefaultSeed), 5)}

	c := New(store, provider, Options{TTL: 1000 * time.Millisecond, Now: clock.Now, Sleep: noSleep})

	// t=0: empty store, users are generated
	report := c.EnsureFresh(ctx, model.ResourceUsers)
	assert.False(t, report.Degraded())
	assert.Equal(t, []string{model.ResourceUsers}, report.Refreshed())

	first, err := cache.Load(ctx, store, model.ResourceUsers, []model.User(nil))
	require.NoError(t, err)
	require.Len(t, first, 5)
	written, err := cache.LastWrite(ctx, store, model.ResourceUsers)
	require.NoError(t, err)
	assert.True(t, t0.Equal(written))

	// t=500ms: still fresh, nothing happens
	clock.Set(t0.Add(500 * time.Millisecond))
	report = c.EnsureFresh(ctx, model.ResourceUsers)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, int32(1), provider.begins.Load())

	// t=1500ms: stale, regenerated
	clock.Set(t0.Add(1500 * time.Millisecond))
	report = c.EnsureFresh(ctx, model.ResourceUsers)
	assert.Equal(t, []string{model.ResourceUsers}, report.Refreshed())
	assert.Equal(t, int32(2), provider.begins.Load())

	second, err := cache.Load(ctx, store, model.ResourceUsers, []model.User(nil))
	require.NoError(t, err)
	assert.Equal(t, first, second, "generator is deterministic")
	written, err = cache.LastWrite(ctx, store, model.ResourceUsers)
	require.NoError(t, err)
	assert.True(t, t0.Add(1500*time.Millisecond).Equal(written))
}

func TestEnsureFreshAllResourcesMock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	provider := &countingProvider{Provider: providers.NewMockProvider(mockdata.New(3), 25)}

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep, MemberConcurrency: 2})

	report := c.EnsureFresh(ctx)
	require.NoError(t, report.Err())
	assert.Equal(t, model.Resources, report.Refreshed())
	assert.Equal(t, int32(1), provider.begins.Load(), "one batch per cycle")

	queues, err := cache.Load(ctx, store, model.ResourceQueues, []model.Queue(nil))
	require.NoError(t, err)
	require.Len(t, queues, 3)

	members, err := cache.Load(ctx, store, model.ResourceQueueMembers, model.QueueMembers(nil))
	require.NoError(t, err)
	assert.Len(t, members, 3)
	for _, q := range queues {
		assert.NotEmpty(t, members[q.ID])
	}
}

type pacedProvider struct {
	providers.Provider
	clock *fakeClock

	mu    sync.Mutex
	calls map[string]time.Time
}

func (p *pacedProvider) Begin(ctx context.Context) (providers.Batch, error) {
	b, err := p.Provider.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pacedBatch{Batch: b, p: p}, nil
}

type pacedBatch struct {
	providers.Batch
	p *pacedProvider
}

func (b *pacedBatch) QueueMembers(ctx context.Context, queueID string, onProgress collector.ProgressFunc) ([]model.QueueMember, error) {
	b.p.mu.Lock()
	b.p.calls[queueID] = b.p.clock.Now()
	b.p.mu.Unlock()
	return b.Batch.QueueMembers(ctx, queueID, onProgress)
}

func TestQueueMembersCallsArePaced(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	provider := &pacedProvider{
		Provider: providers.NewMockProvider(mockdata.New(6), 60),
		clock:    clock,
		calls:    map[string]time.Time{},
	}

	const delay = 100 * time.Millisecond
	var sleeping, maxSleeping atomic.Int32
	sleep := func(ctx context.Context, d time.Duration) error {
		n := sleeping.Add(1)
		defer sleeping.Add(-1)
		if n > maxSleeping.Load() {
			maxSleeping.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		clock.Set(clock.Now().Add(d))
		return ctx.Err()
	}

	c := New(store, provider, Options{
		TTL:               time.Hour,
		Now:               clock.Now,
		Sleep:             sleep,
		MemberConcurrency: 4,
		MemberFetchDelay:  delay,
	})

	report := c.EnsureFresh(ctx, model.ResourceQueues, model.ResourceQueueMembers)
	require.NoError(t, report.Err())

	queues, err := cache.Load(ctx, store, model.ResourceQueues, []model.Queue(nil))
	require.NoError(t, err)
	require.Len(t, queues, 6)

	assert.Equal(t, int32(1), maxSleeping.Load(), "one pacing sleep at a time")
	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.Len(t, provider.calls, len(queues))
	for i, q := range queues {
		assert.False(t, provider.calls[q.ID].Before(t0.Add(time.Duration(i)*delay)), "queue %d called early", i)
	}
}

func TestQueueMembersPacingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)

	gen := mockdata.New(6)
	require.NoError(t, store.Save(ctx, model.ResourceQueues, gen.Queues(mockdata.QueueCount(60))))

	sleep := func(context.Context, time.Duration) error { return context.DeadlineExceeded }
	c := New(store, providers.NewMockProvider(gen, 60), Options{
		TTL:              time.Hour,
		Now:              clock.Now,
		Sleep:            sleep,
		MemberFetchDelay: time.Millisecond,
	})

	report := c.ForceRefresh(ctx, model.ResourceQueueMembers)
	assert.ErrorIs(t, report.Err(), context.DeadlineExceeded)

	_, err := store.Read(ctx, model.ResourceQueueMembers)
	assert.ErrorIs(t, err, cache.ErrNotFound, "a partial member map is never written")
}

func TestEnsureFreshServesStaleOnError(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)

	seeded := []model.User{{ID: "u-1", Name: "Ada"}}
	require.NoError(t, store.Save(ctx, model.ResourceUsers, seeded))
	before, err := store.Read(ctx, model.ResourceUsers)
	require.NoError(t, err)

	clock.Set(t0.Add(2 * time.Hour))

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	batch := mocks.NewMockBatch(ctrl)
	provider.EXPECT().Name().Return("genesys").AnyTimes()
	provider.EXPECT().Begin(gomock.Any()).Return(batch, nil)
	batch.EXPECT().Users(gomock.Any(), gomock.Any()).
		Return(nil, &retry.StatusError{Method: http.MethodGet, URL: "/api/v2/users", StatusCode: http.StatusBadGateway})

	reporter := &recordingReporter{}
	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep, Reporter: reporter})

	var report Report
	require.NotPanics(t, func() { report = c.EnsureFresh(ctx, model.ResourceUsers) })
	assert.True(t, report.Degraded())
	assert.Empty(t, report.Refreshed())

	var se *retry.StatusError
	assert.ErrorAs(t, report.Err(), &se)

	after, err := store.Read(ctx, model.ResourceUsers)
	require.NoError(t, err)
	assert.Equal(t, before, after, "snapshot must be untouched")
	assert.Equal(t, []string{model.ResourceUsers}, reporter.resources)

	status := c.Status(ctx)
	assert.Equal(t, StateStale, status[0].State)
	assert.Equal(t, 1, status[0].Failures)
	assert.NotEmpty(t, status[0].LastError)
}

func TestAuthFailureLeavesEverythingStale(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("genesys").AnyTimes()
	provider.EXPECT().Begin(gomock.Any()).Return(nil, &retry.StatusError{StatusCode: http.StatusUnauthorized}).Times(1)

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})
	report := c.EnsureFresh(ctx)

	require.Len(t, report.Outcomes, 3)
	assert.Error(t, report.Outcomes[0].Err)
	assert.Error(t, report.Outcomes[1].Err)
	assert.True(t, report.Outcomes[2].Skipped)
	assert.ErrorIs(t, report.Outcomes[2].Err, ErrDependencyFailed)

	for _, name := range model.Resources {
		exists, err := cache.Exists(ctx, store, name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}

func TestQueueMembersSkippedWhenQueuesFail(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	batch := mocks.NewMockBatch(ctrl)
	provider.EXPECT().Name().Return("genesys").AnyTimes()
	provider.EXPECT().Begin(gomock.Any()).Return(batch, nil).Times(1)
	batch.EXPECT().Users(gomock.Any(), gomock.Any()).Return([]model.User{{ID: "u-1", Name: "Ada"}}, nil)
	batch.EXPECT().Queues(gomock.Any(), gomock.Any()).Return(nil, &retry.StatusError{StatusCode: http.StatusServiceUnavailable})
	// no QueueMembers expectation: calling it fails the test

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})
	report := c.EnsureFresh(ctx)

	assert.Equal(t, []string{model.ResourceUsers}, report.Refreshed())
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, model.ResourceQueueMembers, report.Outcomes[2].Resource)
	assert.True(t, report.Outcomes[2].Skipped)
}

func TestQueueMembersUseCachedQueues(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)

	require.NoError(t, store.Save(ctx, model.ResourceQueues, []model.Queue{
		{ID: "q-1", Name: "Support"},
		{ID: "q-2", Name: "Sales"},
	}))

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	batch := mocks.NewMockBatch(ctrl)
	provider.EXPECT().Name().Return("genesys").AnyTimes()
	provider.EXPECT().Begin(gomock.Any()).Return(batch, nil)
	batch.EXPECT().QueueMembers(gomock.Any(), "q-1", gomock.Any()).Return([]model.QueueMember{{ID: "u-1"}}, nil)
	batch.EXPECT().QueueMembers(gomock.Any(), "q-2", gomock.Any()).Return(nil, nil)

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})
	report := c.EnsureFresh(ctx, model.ResourceQueueMembers, model.ResourceQueues)

	require.NoError(t, report.Err())
	assert.Equal(t, []string{model.ResourceQueueMembers}, report.Refreshed(), "queues are fresh")

	members, err := cache.Load(ctx, store, model.ResourceQueueMembers, model.QueueMembers(nil))
	require.NoError(t, err)
	assert.Equal(t, model.QueueMembers{"q-1": {{ID: "u-1"}}, "q-2": {}}, members)
}

func TestQueueMembersPartialFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	require.NoError(t, store.Save(ctx, model.ResourceQueues, []model.Queue{{ID: "q-1", Name: "A"}, {ID: "q-2", Name: "B"}}))

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	batch := mocks.NewMockBatch(ctrl)
	provider.EXPECT().Name().Return("genesys").AnyTimes()
	provider.EXPECT().Begin(gomock.Any()).Return(batch, nil)
	batch.EXPECT().QueueMembers(gomock.Any(), "q-1", gomock.Any()).Return([]model.QueueMember{{ID: "u-1"}}, nil).AnyTimes()
	batch.EXPECT().QueueMembers(gomock.Any(), "q-2", gomock.Any()).Return(nil, errors.New("boom")).AnyTimes()

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})
	report := c.EnsureFresh(ctx, model.ResourceQueueMembers)

	assert.True(t, report.Degraded())
	exists, err := cache.Exists(ctx, store, model.ResourceQueueMembers)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConcurrentEnsureFreshIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)

	release := make(chan struct{})
	var usersCalls atomic.Int32

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	batch := mocks.NewMockBatch(ctrl)
	provider.EXPECT().Name().Return("genesys").AnyTimes()
	provider.EXPECT().Begin(gomock.Any()).Return(batch, nil).Times(1)
	batch.EXPECT().Users(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ collector.ProgressFunc) ([]model.User, error) {
			usersCalls.Add(1)
			<-release
			return []model.User{{ID: "u-1", Name: "Ada"}}, nil
		}).Times(1)

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})

	const callers = 8
	var wg sync.WaitGroup
	reports := make([]Report, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = c.EnsureFresh(ctx, model.ResourceUsers)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), usersCalls.Load())
	for _, r := range reports {
		assert.False(t, r.Degraded())
	}
	assert.Equal(t, 1, c.Status(ctx)[0].Refreshes)
}

// gatedStore blocks the nth Read until release is closed.
type gatedStore struct {
	cache.Store
	n       int32
	reads   atomic.Int32
	reached chan struct{}
	release chan struct{}
}

func (s *gatedStore) Read(ctx context.Context, name string) (*cache.Entry, error) {
	if s.reads.Add(1) == s.n {
		close(s.reached)
		<-s.release
	}
	return s.Store.Read(ctx, name)
}

func TestForceRefreshAfterJoiningSkippedFlight(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	files := newStore(t, clock)
	require.NoError(t, files.Save(ctx, model.ResourceUsers, []model.User{{ID: "u-1", Name: "Ada"}}))
	clock.Set(t0.Add(2 * time.Hour))

	// Read 1 is the cycle's staleness check, read 2 the flight's re-check.
	store := &gatedStore{Store: files, n: 2, reached: make(chan struct{}), release: make(chan struct{})}
	provider := &countingProvider{Provider: providers.NewMockProvider(mockdata.New(1), 3)}
	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})

	lazy := make(chan Report, 1)
	go func() { lazy <- c.EnsureFresh(ctx, model.ResourceUsers) }()
	<-store.reached

	// Another writer lands while the first flight is re-checking.
	require.NoError(t, files.Save(ctx, model.ResourceUsers, []model.User{{ID: "u-2", Name: "Grace"}}))

	forced := make(chan Report, 1)
	go func() { forced <- c.ForceRefresh(ctx, model.ResourceUsers) }()
	time.Sleep(50 * time.Millisecond)
	close(store.release)

	assert.Empty(t, (<-lazy).Refreshed())
	report := <-forced
	require.NoError(t, report.Err())
	assert.Equal(t, []string{model.ResourceUsers}, report.Refreshed())
	assert.Equal(t, int32(1), provider.begins.Load())

	users, err := cache.Load(ctx, files, model.ResourceUsers, []model.User(nil))
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestForceRefreshIgnoresFreshness(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	provider := &countingProvider{Provider: providers.NewMockProvider(mockdata.New(1), 3)}

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})
	c.EnsureFresh(ctx, model.ResourceUsers)
	c.EnsureFresh(ctx, model.ResourceUsers)
	assert.Equal(t, int32(1), provider.begins.Load())

	report := c.ForceRefresh(ctx, model.ResourceUsers)
	assert.True(t, report.Forced)
	assert.Equal(t, []string{model.ResourceUsers}, report.Refreshed())
	assert.Equal(t, int32(2), provider.begins.Load())
}

func TestZeroTTLAlwaysRefreshes(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	provider := &countingProvider{Provider: providers.NewMockProvider(mockdata.New(1), 3)}

	c := New(store, provider, Options{TTL: 0, Now: clock.Now, Sleep: noSleep})
	c.EnsureFresh(ctx, model.ResourceUsers)
	c.EnsureFresh(ctx, model.ResourceUsers)
	assert.Equal(t, int32(2), provider.begins.Load())
}

func TestInvalidateAndUnknownResource(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: t0}
	store := newStore(t, clock)
	provider := providers.NewMockProvider(mockdata.New(1), 3)

	c := New(store, provider, Options{TTL: time.Hour, Now: clock.Now, Sleep: noSleep})
	c.EnsureFresh(ctx)

	status := c.Status(ctx)
	for _, s := range status {
		assert.Equal(t, StateFresh, s.State, s.Name)
		assert.True(t, s.Exists)
	}

	require.NoError(t, c.Invalidate(ctx, model.ResourceUsers))
	assert.Equal(t, StateStale, c.Status(ctx)[0].State)
	assert.False(t, c.Status(ctx)[0].Exists)

	assert.ErrorIs(t, c.Invalidate(ctx, "agents"), ErrUnknownResource)

	report := c.EnsureFresh(ctx, "agents")
	require.Len(t, report.Outcomes, 1)
	assert.ErrorIs(t, report.Outcomes[0].Err, ErrUnknownResource)
}
