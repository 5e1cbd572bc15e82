package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/logs"
)

const logFollowWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.CurrentLogPath()
			out := cmd.OutOrStdout()
			reader := logs.NewReader(path, jobID)
			recent, err := reader.Last(lines)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			for follow {
				fresh, err := reader.Next(cmd.Context(), logFollowWait)
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				for _, line := range fresh {
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines for this job")
	return cmd
}
