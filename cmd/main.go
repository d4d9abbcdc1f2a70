package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chaincraft/config"
	"chaincraft/domain/room"
	"chaincraft/server"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chaincraft",
		Short:         "Real-time multiplayer session server for ChainCraft games",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	var (
		envFile   string
		addr      string
		origin    string
		retention string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway and RPC API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return report(err)
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("origin") {
				cfg.AllowedOrigin = origin
			}
			if flags.Changed("retention") {
				cfg.Retention.Policy = room.RetentionPolicy(retention)
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return report(err)
			}

			logger, err := cfg.Logger(os.Stderr)
			if err != nil {
				return report(err)
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg, server.WithLogger(logger))
			if err := srv.Run(ctx); err != nil {
				logger.Error("server stopped",
					slog.String("error", err.Error()),
				)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load when present")
	flags.StringVar(&addr, "addr", "", "listen address (overrides PORT)")
	flags.StringVar(&origin, "origin", "", "allowed browser origin, * for any (overrides FRONTEND_URL)")
	flags.StringVar(&retention, "retention", "", "session retention policy: keep or evict-idle")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func report(err error) error {
	slog.Error("invalid configuration",
		slog.String("error", err.Error()),
	)
	return err
}
