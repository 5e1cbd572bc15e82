package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>...",
		Short: "Remove finished jobs from history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var failed int
			for _, jobID := range args {
				err := client.RemoveJob(cmd.Context(), jobID)
				var statusErr *api.StatusError
				switch {
				case err == nil:
					fmt.Fprintf(out, "Removed job %s\n", jobID)
				case api.IsNotFound(err):
					failed++
					fmt.Fprintf(out, "Job %s not found\n", jobID)
				case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
					failed++
					fmt.Fprintf(out, "Job %s is still running\n", jobID)
				default:
					return wrapDialError(err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs not removed", failed, len(args))
			}
			return nil
		},
	}
}
