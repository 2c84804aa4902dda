package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/sheltercache/internal/config"
	"github.com/dshills/sheltercache/internal/host"
	"github.com/spf13/cobra"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Install, activate and serve the page through the offline cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := buildOverrides()
		if flagListen != "" {
			overrides["listen"] = flagListen
		}
		cfg, err := config.Load(flagConfig, overrides)
		if err != nil {
			return err
		}
		s, err := buildStack(cfg)
		if err != nil {
			return fail(ExitRuntimeError, err)
		}
		defer s.Close()

		hst, err := host.New(s.controller, s.fetcher, cfg.Origin, s.logger)
		if err != nil {
			return fail(ExitRuntimeError, err)
		}

		// Signal-aware context; SIGINT/SIGTERM shuts the server down cleanly.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := hst.Run(ctx, cfg.Listen); err != nil {
			return fail(ExitRuntimeError, err)
		}
		return nil
	},
}

func init() {
	addCommonFlags(serveCmd)
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Address to listen on")
}
