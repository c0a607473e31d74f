package providers

import (
	"context"
	"sync"

	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/mockdata"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/retry"
)

// mockPageSize is the page size generated collections are replayed in, so
// progress reporting looks the same as for the real upstream.
const mockPageSize = 25

// MockProvider serves generated data. It never fails.
type MockProvider struct {
	gen       *mockdata.Generator
	userCount int
	retrier   *retry.Retrier
}

func NewMockProvider(gen *mockdata.Generator, userCount int) *MockProvider {
	return &MockProvider{
		gen:       gen,
		userCount: userCount,
		retrier:   retry.New(retry.Policy{}),
	}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Begin(ctx context.Context) (Batch, error) {
	return &mockBatch{p: p}, nil
}

type mockBatch struct {
	p *MockProvider

	once    sync.Once
	members model.QueueMembers
}

func (b *mockBatch) Users(ctx context.Context, onProgress collector.ProgressFunc) ([]model.User, error) {
	return replay(ctx, b.p.retrier, model.ResourceUsers, b.p.gen.Users(b.p.userCount), onProgress)
}

func (b *mockBatch) Queues(ctx context.Context, onProgress collector.ProgressFunc) ([]model.Queue, error) {
	n := mockdata.QueueCount(b.p.userCount)
	return replay(ctx, b.p.retrier, model.ResourceQueues, b.p.gen.Queues(n), onProgress)
}

func (b *mockBatch) QueueMembers(ctx context.Context, queueID string, onProgress collector.ProgressFunc) ([]model.QueueMember, error) {
	b.once.Do(func() {
		users := b.p.gen.Users(b.p.userCount)
		queues := b.p.gen.Queues(mockdata.QueueCount(b.p.userCount))
		b.members = b.p.gen.QueueMembers(queues, users)
	})
	return replay(ctx, b.p.retrier, model.ResourceQueueMembers, b.members[queueID], onProgress)
}

// replay walks items through the collector in fixed-size pages.
func replay[T any](ctx context.Context, r *retry.Retrier, resource string, items []T, onProgress collector.ProgressFunc) ([]T, error) {
	pageCount := (len(items) + mockPageSize - 1) / mockPageSize
	fetch := func(ctx context.Context, n int) (collector.Page[T], error) {
		start := (n - 1) * mockPageSize
		if start >= len(items) {
			return collector.Page[T]{Number: n, Total: len(items), PageCount: pageCount}, nil
		}
		end := min(start+mockPageSize, len(items))
		return collector.Page[T]{Number: n, Items: items[start:end], Total: len(items), PageCount: pageCount}, nil
	}
	return collector.Collect(ctx, r, fetch, collector.Options{Resource: resource, OnProgress: onProgress})
}
