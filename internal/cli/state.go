package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду вывода статусов action.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var showValues bool

	cmd := &cobra.Command{
		Use:   "status [ACTION_ID]",
		Short: "Show execution status of actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if len(args) == 1 {
				st, err := client.GetActionStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out.Statuses([]ActionStatusResponse{*st}, st)
				return nil
			}

			st, err := client.GetState(cmd.Context())
			if err != nil {
				return err
			}

			if showValues {
				out.Values(st.Values, st)
				return nil
			}
			out.Statuses(st.Actions, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showValues, "values", false, "Show the value bag instead of action statuses")

	return cmd
}

// NewGraphCmd создаёт команду вывода графа зависимостей.
func NewGraphCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Show the action dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := clientFn().GetGraph(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ACTION", "DEPENDS_ON", "PRODUCERS", "UNRESOLVED"}
			// Action на циклах не входят в Order: выводятся после него.
			var blocked []string
			for id := range g.Dependencies {
				if !contains(g.Order, id) {
					blocked = append(blocked, id)
				}
			}
			sort.Strings(blocked)
			ids := append(append([]string(nil), g.Order...), blocked...)

			rows := make([][]string, len(ids))
			for i, id := range ids {
				rows[i] = []string{
					id,
					joinOrDash(g.Dependencies[id]),
					joinOrDash(g.Edges[id]),
					joinOrDash(g.Unresolved[id]),
				}
			}
			out := outputFn()
			out.Print(headers, rows, g)

			for _, cycle := range g.Cycles {
				out.Success("Cycle: " + strings.Join(cycle, " → "))
			}
			return nil
		},
	}
}

// NewResetCmd создаёт команду сброса выполнения action.
func NewResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset [ACTION_ID...]",
		Short: "Reset actions to idle and remove their values",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			ctx := cmd.Context()

			ids := args
			if all {
				st, err := client.GetState(ctx)
				if err != nil {
					return err
				}
				ids = nil
				for _, a := range st.Actions {
					ids = append(ids, a.ActionID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("specify ACTION_ID or --all")
			}

			statuses := make([]ActionStatusResponse, 0, len(ids))
			for _, id := range ids {
				st, err := client.ResetAction(ctx, id)
				if err != nil {
					return fmt.Errorf("reset %s: %w", id, err)
				}
				statuses = append(statuses, *st)
			}

			out.Success(fmt.Sprintf("Reset %d action(s)", len(statuses)))
			out.Statuses(statuses, statuses)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reset every action")

	return cmd
}

// NewSetCmd создаёт команду записи значений в Value Bag.
func NewSetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Set values in the value bag",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyValues(cmd.Context(), clientFn(), args); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Set %d value(s)", len(args)))
			return nil
		},
	}
}

// NewUnsetCmd создаёт команду удаления значений из Value Bag.
func NewUnsetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY...",
		Short: "Remove values from the value bag",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			for _, key := range args {
				if err := client.DeleteValue(cmd.Context(), key); err != nil {
					return fmt.Errorf("unset %s: %w", key, err)
				}
			}
			outputFn().Success(fmt.Sprintf("Removed %d value(s)", len(args)))
			return nil
		},
	}
}

// NewLanguageCmd создаёт команду смены языка промптов.
func NewLanguageCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "language LANG",
		Short: "Switch the active prompt language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().SetLanguage(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success("Language set to " + args[0])
			return nil
		},
	}
}

func statusDetail(st ActionStatusResponse) string {
	switch {
	case st.HasCircularDependency:
		return "cycle: " + strings.Join(st.CyclePath, " → ")
	case st.Error != "":
		return st.Error
	case len(st.MissingDependencies) > 0:
		return "missing: " + strings.Join(st.MissingDependencies, ", ")
	default:
		return ""
	}
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func contains(items []string, item string) bool {
	for _, it := range items {
		if it == item {
			return true
		}
	}
	return false
}

func formatDuration(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return strconv.FormatInt(ms, 10) + "ms"
}
