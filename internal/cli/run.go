package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт команду прохода по всем playable action.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var values []string
	var skipSucceeded bool
	var detach bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all playable actions",
		Long: `Run executes every playable action in list order until nothing is left to run.
Actions that stay blocked are reported as skipped with the reason.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			ctx := cmd.Context()

			if err := applyValues(ctx, client, values); err != nil {
				return err
			}

			req := RunRequest{SkipSucceeded: skipSucceeded}
			if detach {
				accepted, err := client.StartAll(ctx, req)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run started in session %s", accepted.SessionID))
				return nil
			}

			report, err := client.RunAll(ctx, req)
			if err != nil {
				return err
			}
			out.Report(report)
			return reportError(report)
		},
	}

	cmd.Flags().StringSliceVar(&values, "set", nil, "Values to set before the run as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&skipSucceeded, "skip-succeeded", false, "Do not re-run actions that already succeeded")
	cmd.Flags().BoolVar(&detach, "detach", false, "Start the run in background and return immediately")

	return cmd
}

// NewExecCmd создаёт команду выполнения одного action.
func NewExecCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var values []string

	cmd := &cobra.Command{
		Use:   "exec ACTION_ID",
		Short: "Execute a single action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			ctx := cmd.Context()

			if err := applyValues(ctx, client, values); err != nil {
				return err
			}

			report, err := client.RunAction(ctx, args[0])
			if err != nil {
				return err
			}
			out.Report(report)
			return reportError(report)
		},
	}

	cmd.Flags().StringSliceVar(&values, "set", nil, "Values to set before execution as KEY=VALUE (repeatable)")

	return cmd
}

// NewCancelCmd создаёт команду отмены текущего выполнения.
func NewCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			cancelled, err := clientFn().Cancel(cmd.Context())
			if err != nil {
				return err
			}

			if cancelled {
				outputFn().Success("Execution cancelled")
			} else {
				outputFn().Success("Nothing to cancel")
			}
			return nil
		},
	}
}

// applyValues записывает пары KEY=VALUE в Value Bag.
func applyValues(ctx context.Context, client *Client, pairs []string) error {
	values, err := parseValues(pairs)
	if err != nil {
		return err
	}
	for key, value := range values {
		if err := client.SetValue(ctx, key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// parseValues разбирает пары KEY=VALUE.
func parseValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid value format %q, expected KEY=VALUE", kv)
		}
		values[parts[0]] = parts[1]
	}
	return values, nil
}

// reportError возвращает ошибку, если проход отменён или есть неуспешные action.
func reportError(report *ReportResponse) error {
	if report.Cancelled {
		return fmt.Errorf("run cancelled")
	}
	failed := 0
	for _, r := range report.Results {
		if r.Status == "failed" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d action(s) failed", failed)
	}
	return nil
}
