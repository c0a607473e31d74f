// Package collector drains paginated upstream collections page by page.
package collector

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/ccdash/internal/retry"
)

// Page is one page of an upstream collection.
type Page[T any] struct {
	Number    int
	Items     []T
	Total     int
	PageCount int
}

// PageFunc fetches a single 1-based page.
type PageFunc[T any] func(ctx context.Context, pageNumber int) (Page[T], error)

// Progress is emitted after every page that returned items.
type Progress struct {
	Resource  string `json:"resource"`
	Page      int    `json:"page"`
	PageItems int    `json:"page_items"`
	Fetched   int    `json:"fetched"`
	Total     int    `json:"total"`
}

// ProgressFunc receives progress events. It runs on the collecting goroutine
// and must not block.
type ProgressFunc func(Progress)

// ChannelSink forwards progress events to ch, dropping events when ch is full.
func ChannelSink(ch chan<- Progress) ProgressFunc {
	return func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	}
}

// Tee fans progress events out to every non-nil sink.
func Tee(sinks ...ProgressFunc) ProgressFunc {
	return func(p Progress) {
		for _, s := range sinks {
			if s != nil {
				s(p)
			}
		}
	}
}

// Options controls a collection run.
type Options struct {
	// Resource names the collection in progress events and logs.
	Resource string
	// MaxPages stops collection after this many pages. 0 means no cap.
	MaxPages int
	// OnProgress is optional.
	OnProgress ProgressFunc
}

// Collect fetches pages 1..n through the retrier until the upstream runs out
// of pages, returns an empty page, or opts.MaxPages is reached. Any page that
// fails after retrying aborts the whole collection.
func Collect[T any](ctx context.Context, r *retry.Retrier, fetch PageFunc[T], opts Options) ([]T, error) {
	logger := zerolog.Ctx(ctx)
	var all []T

	for pageNumber := 1; ; pageNumber++ {
		page, err := retry.Do(ctx, r, func(ctx context.Context) (Page[T], error) {
			return fetch(ctx, pageNumber)
		})
		if err != nil {
			return nil, goerr.Wrap(err, "collect page",
				goerr.V("resource", opts.Resource),
				goerr.V("page", pageNumber),
			)
		}

		if len(page.Items) == 0 {
			break
		}
		all = append(all, page.Items...)

		p := Progress{
			Resource:  opts.Resource,
			Page:      pageNumber,
			PageItems: len(page.Items),
			Fetched:   len(all),
			Total:     page.Total,
		}
		logger.Debug().
			Str("resource", p.Resource).
			Int("page", p.Page).
			Int("page_count", page.PageCount).
			Int("fetched", p.Fetched).
			Int("total", p.Total).
			Msg("page collected")
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}

		if opts.MaxPages > 0 && pageNumber >= opts.MaxPages {
			break
		}
		if page.PageCount > 0 && pageNumber >= page.PageCount {
			break
		}
	}

	if all == nil {
		all = []T{}
	}
	return all, nil
}
