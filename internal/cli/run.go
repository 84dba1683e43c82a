package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/memory"
	"github.com/soyeahso/actionloop/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRunCmd() *cobra.Command {
	var (
		model    string
		maxSteps int
		verbose  bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task to a final answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.TrimSpace(strings.Join(args, " "))
			if task == "" {
				return fmt.Errorf("task is empty")
			}

			c, err := loadedConfig()
			if err != nil {
				return err
			}
			if maxSteps > 0 {
				c.Agent.MaxSteps = maxSteps
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c, model)
			if err != nil {
				return err
			}
			defer a.Close()

			res, runErr := a.engine.Run(ctx, task, runOptions(verbose, cmd.ErrOrStderr()))

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(store.RunFromResult(res), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return runErr
			}
			if runErr != nil {
				return fmt.Errorf("run %s failed (%s): %w", res.RunID, res.ErrorKind, runErr)
			}
			fmt.Fprintln(out, res.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "model reference: provider, alias, or provider/model")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "step limit (default from config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each step to stderr")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run as JSON")
	return cmd
}

func runOptions(verbose bool, w io.Writer) agent.RunOptions {
	if !verbose {
		return agent.RunOptions{}
	}
	return agent.RunOptions{OnStep: func(rec memory.StepRecord) {
		printStep(w, store.StepFromRecord(rec))
	}}
}
