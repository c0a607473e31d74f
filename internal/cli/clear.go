package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var resources []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete snapshots so the next read rebuilds them",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := parseResources(resources)
			if err != nil {
				return err
			}
			ctx, a, err := build(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Coordinator.Invalidate(ctx, names...); err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&resources, "resources", "r", nil, "Comma-separated resources to clear (default: all)")
	return cmd
}
