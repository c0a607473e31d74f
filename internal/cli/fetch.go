package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/ccdash/cache"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/refresh"
)

type fetchOptions struct {
	resources []string
	sample    int
	stale     bool
}

// Fetch outcomes shown per resource.
const (
	statusRefreshed = "refreshed"
	statusCached    = "cached"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

type fetchSummary struct {
	Resource  string     `json:"resource" yaml:"resource"`
	Status    string     `json:"status" yaml:"status"`
	Count     int        `json:"count" yaml:"count"`
	WrittenAt *time.Time `json:"writtenAt,omitempty" yaml:"writtenAt,omitempty"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	Sample    []any      `json:"sample,omitempty" yaml:"sample,omitempty"`
}

type fetchResult struct {
	CycleID   string         `json:"cycleId" yaml:"cycleId"`
	Provider  string         `json:"provider" yaml:"provider"`
	Resources []fetchSummary `json:"resources" yaml:"resources"`
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Refresh snapshots from the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := parseResources(opts.resources)
			if err != nil {
				return err
			}
			if opts.sample < 0 {
				return goerr.New("--sample must not be negative")
			}

			progress := &progressPrinter{w: cmd.ErrOrStderr()}
			ctx, a, err := build(cmd, progress.print)
			if err != nil {
				return err
			}
			defer a.Close()

			var report refresh.Report
			if opts.stale {
				report = a.Coordinator.EnsureFresh(ctx, names...)
			} else {
				report = a.Coordinator.ForceRefresh(ctx, names...)
			}

			result := fetchResult{CycleID: report.CycleID, Provider: a.Provider.Name()}
			for _, name := range names {
				s, err := summarize(ctx, a.Store, name, report, opts.sample)
				if err != nil {
					return err
				}
				result.Resources = append(result.Resources, s)
			}

			if err := render(cmd.OutOrStdout(), root.format, result, func(tw *tabwriter.Writer) {
				fetchTable(tw, result)
			}); err != nil {
				return err
			}

			if report.Degraded() {
				return goerr.Wrap(report.Err(), "refresh incomplete")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&opts.resources, "resources", "r", nil, "Comma-separated resources to fetch (default: all)")
	cmd.Flags().IntVarP(&opts.sample, "sample", "n", 0, "Include the first N entities of each resource in the output")
	cmd.Flags().BoolVar(&opts.stale, "stale-only", false, "Only refresh resources whose snapshot has expired")
	return cmd
}

func summarize(ctx context.Context, store cache.Reader, name string, report refresh.Report, sample int) (fetchSummary, error) {
	s := fetchSummary{Resource: name, Status: statusCached}
	for _, o := range report.Outcomes {
		if o.Resource != name {
			continue
		}
		switch {
		case o.Skipped:
			s.Status = statusSkipped
		case o.Err != nil:
			s.Status = statusFailed
		case o.Refreshed:
			s.Status = statusRefreshed
		}
		if o.Err != nil {
			s.Error = o.Err.Error()
		}
	}

	written, err := cache.LastWrite(ctx, store, name)
	if err != nil {
		return s, err
	}
	if !written.IsZero() {
		s.WrittenAt = &written
	}

	switch name {
	case model.ResourceUsers:
		users, err := cache.Load(ctx, store, name, []model.User{})
		if err != nil {
			return s, err
		}
		s.Count = len(users)
		s.Sample = head(users, sample)
	case model.ResourceQueues:
		queues, err := cache.Load(ctx, store, name, []model.Queue{})
		if err != nil {
			return s, err
		}
		s.Count = len(queues)
		s.Sample = head(queues, sample)
	case model.ResourceQueueMembers:
		byQueue, err := cache.Load(ctx, store, name, model.QueueMembers{})
		if err != nil {
			return s, err
		}
		ids := make([]string, 0, len(byQueue))
		for id, members := range byQueue {
			ids = append(ids, id)
			s.Count += len(members)
		}
		sort.Strings(ids)
		var flat []model.QueueMember
		for _, id := range ids {
			flat = append(flat, byQueue[id]...)
		}
		s.Sample = head(flat, sample)
	}
	return s, nil
}

func head[T any](items []T, n int) []any {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	n = min(n, len(items))
	out := make([]any, n)
	for i := range n {
		out[i] = items[i]
	}
	return out
}

func fetchTable(tw *tabwriter.Writer, r fetchResult) {
	fmt.Fprintln(tw, "RESOURCE\tSTATUS\tCOUNT\tWRITTEN")
	for _, s := range r.Resources {
		written := "-"
		if s.WrittenAt != nil {
			written = s.WrittenAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Resource, colorStatus(s.Status), s.Count, written)
	}
	for _, s := range r.Resources {
		if s.Error != "" {
			fmt.Fprintf(tw, "%s: %s\n", s.Resource, failColor.Sprint(s.Error))
		}
	}
}

func colorStatus(status string) string {
	switch status {
	case statusRefreshed:
		return okColor.Sprint(status)
	case statusFailed:
		return failColor.Sprint(status)
	case statusSkipped:
		return warnColor.Sprint(status)
	default:
		return status
	}
}
