package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/gateway"
	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show actionloop status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "actionloop %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			c, err := loadedConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			registry, err := llm.NewRegistryFromConfig(c, log)
			if err != nil {
				fmt.Fprintf(out, "LLM:     error: %v\n", err)
			} else if providers := registry.List(); len(providers) > 0 {
				model, _ := resolveModel("", c, registry)
				fmt.Fprintf(out, "LLM:     %s (model=%s)\n", strings.Join(providers, ", "), model)
				if len(c.Agent.Fallbacks) > 0 {
					fmt.Fprintf(out, "         fallbacks=%s\n", strings.Join(c.Agent.Fallbacks, ", "))
				}
			} else {
				fmt.Fprintln(out, "LLM:     (none configured)")
			}

			fmt.Fprintf(out, "Agent:   maxSteps=%d modelTimeout=%ds toolTimeout=%ds parallelTools=%v\n",
				c.Agent.MaxSteps, c.Agent.ModelTimeout, c.Agent.ToolTimeout, c.Agent.ParallelTools)

			engines := []string{c.Search.Engine}
			engines = append(engines, c.Search.FallbackEngines...)
			fmt.Fprintf(out, "Search:  engines=%s results=%d serpapiKey=%v braveKey=%v\n",
				strings.Join(engines, ","), c.Search.NumResults, c.Search.SerpAPIKey != "", c.Search.BraveAPIKey != "")

			driver := c.Store.Driver
			if driver == "" {
				driver = "sqlite"
			}
			switch driver {
			case "sqlite":
				p := c.Store.Path
				if p == "" {
					p = paths.RunsDB
				}
				fmt.Fprintf(out, "Store:   sqlite path=%s\n", p)
			default:
				fmt.Fprintf(out, "Store:   %s\n", driver)
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%v\n",
				c.Gateway.Port, c.Gateway.Bind, gateway.ResolveToken(c.Gateway) != "")

			hooks := len(c.Hooks.RunStart) + len(c.Hooks.StepComplete) + len(c.Hooks.ToolError) + len(c.Hooks.RunEnd)
			if hooks > 0 {
				fmt.Fprintf(out, "Hooks:   %d command(s)\n", hooks)
			}

			issues := config.Validate(&c)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}
}
