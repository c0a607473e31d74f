package providers

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/retry"
	"github.com/briangreenhill/ccdash/pkg/genesys"
)

// GenesysProvider pulls data from Genesys Cloud.
type GenesysProvider struct {
	client   *genesys.Client
	retrier  *retry.Retrier
	maxPages int
}

func NewGenesysProvider(client *genesys.Client, retrier *retry.Retrier, maxPages int) *GenesysProvider {
	return &GenesysProvider{client: client, retrier: retrier, maxPages: maxPages}
}

func (p *GenesysProvider) Name() string { return "genesys" }

// Begin authenticates once; every fetch in the batch reuses the session.
func (p *GenesysProvider) Begin(ctx context.Context) (Batch, error) {
	sess, err := retry.Do(ctx, p.retrier, p.client.Authenticate)
	if err != nil {
		return nil, goerr.Wrap(err, "authenticate with genesys")
	}
	return &genesysBatch{p: p, sess: sess}, nil
}

type genesysBatch struct {
	p    *GenesysProvider
	sess *genesys.Session
}

func (b *genesysBatch) Users(ctx context.Context, onProgress collector.ProgressFunc) ([]model.User, error) {
	raw, err := collector.Collect(ctx, b.p.retrier, func(ctx context.Context, n int) (collector.Page[genesys.UserEntity], error) {
		l, err := b.sess.UsersPage(ctx, n)
		return toPage(l), err
	}, b.opts(model.ResourceUsers, onProgress))
	if err != nil {
		return nil, err
	}
	return TransformUsers(ctx, raw), nil
}

func (b *genesysBatch) Queues(ctx context.Context, onProgress collector.ProgressFunc) ([]model.Queue, error) {
	raw, err := collector.Collect(ctx, b.p.retrier, func(ctx context.Context, n int) (collector.Page[genesys.QueueEntity], error) {
		l, err := b.sess.QueuesPage(ctx, n)
		return toPage(l), err
	}, b.opts(model.ResourceQueues, onProgress))
	if err != nil {
		return nil, err
	}
	return TransformQueues(ctx, raw), nil
}

func (b *genesysBatch) QueueMembers(ctx context.Context, queueID string, onProgress collector.ProgressFunc) ([]model.QueueMember, error) {
	raw, err := collector.Collect(ctx, b.p.retrier, func(ctx context.Context, n int) (collector.Page[genesys.MemberEntity], error) {
		l, err := b.sess.QueueMembersPage(ctx, queueID, n)
		return toPage(l), err
	}, collector.Options{Resource: model.ResourceQueueMembers, OnProgress: onProgress})
	if err != nil {
		return nil, goerr.Wrap(err, "fetch queue members", goerr.V("queue_id", queueID))
	}
	return TransformMembers(ctx, raw), nil
}

func (b *genesysBatch) opts(resource string, onProgress collector.ProgressFunc) collector.Options {
	return collector.Options{Resource: resource, MaxPages: b.p.maxPages, OnProgress: onProgress}
}

func toPage[T any](l genesys.EntityListing[T]) collector.Page[T] {
	return collector.Page[T]{
		Number:    l.PageNumber,
		Items:     l.Entities,
		Total:     l.Total,
		PageCount: l.PageCount,
	}
}
