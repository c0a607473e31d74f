package cli

import (
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/model"
)

var formats = []string{"table", "json", "yaml"}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func checkFormat(format string) error {
	if !slices.Contains(formats, format) {
		return goerr.New("unknown output format", goerr.V("format", format), goerr.V("supported", formats))
	}
	return nil
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return goerr.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

// parseResources splits comma-separated names and rejects unknown ones. An
// empty list means every resource.
func parseResources(values []string) ([]string, error) {
	var names []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" || slices.Contains(names, name) {
				continue
			}
			if !slices.Contains(model.Resources, name) {
				return nil, goerr.New("unknown resource", goerr.V("resource", name), goerr.V("supported", model.Resources))
			}
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return slices.Clone(model.Resources), nil
	}
	return names, nil
}

// progressPrinter writes collector progress lines. Resources refresh
// concurrently, so writes are serialized.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) print(ev collector.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := "?"
	if ev.Total > 0 {
		total = strconv.Itoa(ev.Total)
	}
	_, _ = dimColor.Fprintf(p.w, "  %-14s page %-3d %s/%s\n", ev.Resource, ev.Page, strconv.Itoa(ev.Fetched), total)
}
