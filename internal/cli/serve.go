package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/gateway"
)

func newServeCmd() *cobra.Command {
	var (
		port  int
		bind  string
		model string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket run API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				c.Gateway.Port = port
			}
			if bind != "" {
				c.Gateway.Bind = bind
			}

			issues := config.Validate(&c)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if watch {
				go autorestart.RestartOnChange()
				log.Info().Msg("restarting when the executable changes")
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c, model)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := gateway.New(c.Gateway, a.engine, a.tools, log,
				gateway.WithRunStore(a.runs),
				gateway.WithHooks(a.hooks),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback or lan")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model reference: provider, alias, or provider/model")
	cmd.Flags().BoolVar(&watch, "watch", false, "restart when the actionloop binary is rebuilt")
	return cmd
}
