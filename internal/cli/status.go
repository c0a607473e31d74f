package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/ccdash/internal/refresh"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the age and state of every snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := build(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses := a.Coordinator.Status(ctx)
			return render(cmd.OutOrStdout(), root.format, statuses, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "TTL %s, provider %s\n", a.Coordinator.TTL(), a.Provider.Name())
				fmt.Fprintln(tw, "RESOURCE\tSTATE\tAGE\tWRITTEN")
				for _, st := range statuses {
					age, written := "-", "-"
					if st.WrittenAt != nil {
						age = (time.Duration(st.AgeSeconds) * time.Second).String()
						written = st.WrittenAt.Local().Format(time.DateTime)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Name, colorState(st.State), age, written)
				}
			})
		},
	}
}

func colorState(s refresh.State) string {
	switch s {
	case refresh.StateFresh:
		return okColor.Sprint(s)
	case refresh.StateRefreshing:
		return warnColor.Sprint(s)
	default:
		return failColor.Sprint(s)
	}
}
