package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"reelforge/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.Jobs(cmd.Context(), statuses, limit)
			if err != nil {
				return wrapDialError(err)
			}
			if jsonOutput {
				if jobs == nil {
					jobs = []api.JobStatus{}
				}
				return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			r := newReport(out)
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.JobID,
					r.paint(job.Status, statusTone(job.Status)),
					strconv.Itoa(job.Percent) + "%",
					job.VideoID,
					truncate(job.Prompt, 40),
					job.ErrorCode,
					job.UpdatedAt,
				})
			}
			r.table([]column{
				{"Job", text.AlignLeft},
				{"Status", text.AlignLeft},
				{"Progress", text.AlignRight},
				{"Video", text.AlignLeft},
				{"Prompt", text.AlignLeft},
				{"Error", text.AlignLeft},
				{"Updated", text.AlignLeft},
			}, rows)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
