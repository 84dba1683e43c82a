package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/actionloop/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			rs, err := openRunStore(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer rs.Close()

			runs, err := rs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRunList(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "maximum number of runs")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with all of its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			rs, err := openRunStore(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer rs.Close()

			run, err := rs.GetRun(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %q not found", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			printRun(out, run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")
	return cmd
}

func printRunList(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-7s  %2d steps  %s  %s\n",
			r.ID, r.State, r.StepCount, r.StartedAt.Local().Format(time.DateTime), truncate(oneLine(r.Task), 60))
	}
}

func printRun(w io.Writer, r *store.Run) {
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Task:     %s\n", r.Task)
	if r.Model != "" {
		fmt.Fprintf(w, "Model:    %s\n", r.Model)
	}
	fmt.Fprintf(w, "State:    %s\n", r.State)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Tokens:   %d in, %d out\n", r.InputTokens, r.OutputTokens)
	if r.Answer != "" {
		fmt.Fprintf(w, "Answer:   %s\n", r.Answer)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s (%s)\n", r.Error, r.ErrorKind)
	}

	for _, st := range r.Steps {
		fmt.Fprintln(w)
		printStep(w, st)
	}
}

// printStep writes a compact, human-readable view of one step.
func printStep(w io.Writer, st store.Step) {
	fmt.Fprintf(w, "[step %d] tool_choice=%s", st.Index, st.ToolChoice)
	if st.Terminal {
		fmt.Fprint(w, " terminal")
	}
	fmt.Fprintln(w)
	if c := oneLine(st.Content); c != "" {
		fmt.Fprintf(w, "  %s\n", truncate(c, 300))
	}
	if st.ParseError != "" {
		fmt.Fprintf(w, "  parse error: %s\n", st.ParseError)
	}
	for _, call := range st.Calls {
		args, _ := json.Marshal(call.Arguments)
		fmt.Fprintf(w, "  -> %s %s [%s]\n", call.Name, args, call.Origin)
		if call.Error != "" {
			fmt.Fprintf(w, "     error (%s): %s\n", call.ErrorKind, truncate(oneLine(call.Error), 300))
			continue
		}
		fmt.Fprintf(w, "     %s (%dms)\n", truncate(oneLine(call.Output), 300), call.DurationMs)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
