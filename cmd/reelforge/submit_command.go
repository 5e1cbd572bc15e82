package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/progress"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var videoID string
	var prompt string
	var follow bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a reel job to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(videoID) == "" {
				return fmt.Errorf("--video is required")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("--prompt is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobID, err := client.CreateJob(cmd.Context(), api.CreateJobRequest{VideoID: videoID, Prompt: prompt})
			if err != nil {
				return wrapDialError(err)
			}

			out := cmd.OutOrStdout()
			if !follow {
				if jsonOutput {
					return writeJSON(cmd, api.CreateJobResponse{JobID: jobID})
				}
				fmt.Fprintf(out, "Submitted job %s\n", jobID)
				return nil
			}
			if !jsonOutput {
				fmt.Fprintf(out, "Submitted job %s\n", jobID)
			}
			return followJob(cmd, client, jobID, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&videoID, "video", "", "Source video identifier")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Natural-language description of the desired reel")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress until the job finishes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON (one envelope per line when following)")
	return cmd
}

// followJob prints the job's progress stream and returns an error when the
// workflow ends in failure.
func followJob(cmd *cobra.Command, client *api.Client, jobID string, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	var failure *progress.WorkflowEvent
	var finished bool

	err := client.Stream(cmd.Context(), jobID, func(env api.StreamEnvelope) bool {
		if jsonOutput {
			if err := writeJSONLine(out, env); err != nil {
				return false
			}
		}
		switch {
		case env.Workflow != nil:
			if env.Workflow.Kind == progress.KindError {
				ev := *env.Workflow
				failure = &ev
			}
			if env.Workflow.Terminal() {
				finished = true
			}
			if !jsonOutput {
				if line := describeWorkflowEvent(*env.Workflow); line != "" {
					fmt.Fprintln(out, line)
				}
			}
		}
		return true
	})
	if err != nil {
		return wrapDialError(err)
	}
	if failure != nil {
		code := failure.Payload.Code
		if code == "" {
			code = "unknown"
		}
		return fmt.Errorf("job %s failed at step %d (%s): %s", jobID, failure.StepNumber, code, failure.Payload.Message)
	}
	if finished {
		return nil
	}

	// The run ended before the stream attached; report from the job record.
	job, err := client.Job(cmd.Context(), jobID)
	if err != nil {
		return wrapDialError(err)
	}
	switch job.Status {
	case progress.StatusFailed:
		code := job.ErrorCode
		if code == "" {
			code = "unknown"
		}
		return fmt.Errorf("job %s failed (%s): %s", jobID, code, job.Message)
	case progress.StatusCompleted:
		if !jsonOutput && job.DeliverableURL != "" {
			fmt.Fprintf(out, "Reel ready: %s\n", job.DeliverableURL)
		}
	}
	return nil
}

func describeWorkflowEvent(ev progress.WorkflowEvent) string {
	switch ev.Kind {
	case progress.KindInitial:
		return fmt.Sprintf("Planned %d steps", ev.Payload.TotalSteps)
	case progress.KindStepStart:
		desc := ev.Payload.Description
		if desc == "" {
			desc = ev.ToolName
		}
		return fmt.Sprintf("[%d] %s: %s", ev.StepNumber, ev.ToolName, desc)
	case progress.KindStepComplete:
		line := fmt.Sprintf("[%d] %s done", ev.StepNumber, ev.ToolName)
		if ev.Payload.SegmentCount != nil {
			line += fmt.Sprintf(" (%d segments)", *ev.Payload.SegmentCount)
		}
		if ev.Payload.DurationMs > 0 {
			line += fmt.Sprintf(" in %s", formatMillis(ev.Payload.DurationMs))
		}
		return line
	case progress.KindStepReflection:
		return fmt.Sprintf("[%d] note: %s", ev.StepNumber, ev.Payload.Reflection)
	case progress.KindWorkflowComplete:
		return fmt.Sprintf("Reel ready: %s", ev.Payload.DeliverableURL)
	case progress.KindError:
		return fmt.Sprintf("[%d] error: %s", ev.StepNumber, ev.Payload.Message)
	default:
		return ""
	}
}

func writeJSONLine(w io.Writer, v any) error {
	return newLineEncoder(w).Encode(v)
}
