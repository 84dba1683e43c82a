package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/actionloop/internal/tool"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			reg, searcher, err := buildTools(c, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, spec := range reg.List() {
				fmt.Fprintf(out, "%-14s %s\n", spec.Name, spec.Description)
				for _, name := range sortedParams(spec.Params) {
					p := spec.Params[name]
					req := ""
					if p.Required {
						req = ", required"
					}
					fmt.Fprintf(out, "  %-12s (%s%s) %s\n", name, paramType(p.Type), req, p.Description)
				}
			}
			if engines := searcher.Engines(); len(engines) > 0 {
				fmt.Fprintf(out, "\nsearch engines: %s\n", strings.Join(engines, ", "))
			}
			return nil
		},
	}
}

func sortedParams(s tool.Schema) []string {
	return slices.Sorted(maps.Keys(s))
}

func paramType(t string) string {
	if t == "" {
		return "string"
	}
	return t
}
