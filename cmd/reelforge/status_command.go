package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/progress"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var refresh bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon health or the status of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					if api.IsNotFound(err) {
						return fmt.Errorf("job %s not found", args[0])
					}
					return wrapDialError(err)
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				printJobStatus(cmd, job)
				return nil
			}

			health, err := client.Health(cmd.Context(), refresh)
			if err != nil {
				return wrapDialError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, health)
			}
			printHealth(cmd, health)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-run dependency checks before reporting health")
	return cmd
}

func printJobStatus(cmd *cobra.Command, job api.JobStatus) {
	r := newReport(cmd.OutOrStdout())
	r.section("Job " + job.JobID)
	r.field("Status", fmt.Sprintf("%s %d%% %s", job.Status, job.Percent, job.Message), statusTone(job.Status))
	r.field("Video", job.VideoID, toneNeutral)
	r.field("Prompt", job.Prompt, toneNeutral)
	r.field("Effects", job.EffectsStrategy, toneNeutral)
	r.field("Error code", job.ErrorCode, toneBad)
	r.field("Deliverable", job.DeliverableURL, toneGood)
	if len(job.Steps) == 0 {
		return
	}

	r.section("Steps")
	rows := make([][]string, 0, len(job.Steps))
	for _, step := range job.Steps {
		segments := ""
		if step.SegmentCount > 0 {
			segments = strconv.Itoa(step.SegmentCount)
		}
		rows = append(rows, []string{
			strconv.Itoa(step.StepNumber),
			step.ToolName,
			r.paint(step.Status, statusTone(step.Status)),
			formatMillis(step.DurationMs),
			segments,
		})
	}
	r.table([]column{
		{"#", text.AlignRight},
		{"Tool", text.AlignLeft},
		{"Status", text.AlignLeft},
		{"Duration", text.AlignRight},
		{"Segments", text.AlignRight},
	}, rows)
}

func printHealth(cmd *cobra.Command, health api.HealthResponse) {
	r := newReport(cmd.OutOrStdout())
	r.section("Daemon")
	healthTone := toneGood
	if health.Status != api.HealthOK {
		healthTone = toneBusy
	}
	r.field("Health", health.Status, healthTone)
	r.field("Active jobs", strconv.Itoa(health.ActiveJobs), toneNeutral)
	for _, status := range []string{progress.StatusPending, progress.StatusRunning, progress.StatusCompleted, progress.StatusFailed} {
		if n, ok := health.JobCounts[status]; ok {
			r.field("Jobs "+status, strconv.Itoa(n), statusTone(status))
		}
	}
	if len(health.Checks) == 0 {
		return
	}

	r.section("Checks")
	for _, check := range health.Checks {
		checkTone := toneGood
		if !check.Passed {
			checkTone = toneBad
		}
		r.field(check.Name, check.Detail, checkTone)
	}
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}
