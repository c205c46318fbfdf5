package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/framechat/internal/app"
	"github.com/vovakirdan/framechat/internal/auth"
	"github.com/vovakirdan/framechat/internal/config"
	"github.com/vovakirdan/framechat/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "framechat",
		Short:         "Length-prefixed TCP chat server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newHashCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootstrapLog := log.New("info")

			cfg, path, err := config.Load(bootstrapLog, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Flags the user actually set win over file and env.
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = overrides.Addr
			}
			if flags.Changed("admin-addr") {
				cfg.AdminAddr = overrides.AdminAddr
			}
			if flags.Changed("password") {
				cfg.Password = overrides.Password
			}
			if flags.Changed("password-hash") {
				cfg.PasswordHash = overrides.PasswordHash
			}
			if flags.Changed("max-frame-bytes") {
				cfg.MaxFrameBytes = overrides.MaxFrameBytes
			}
			if flags.Changed("shutdown-timeout") {
				cfg.ShutdownTimeout = overrides.ShutdownTimeout
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = overrides.LogLevel
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("version", version).Msg("starting framechat server")

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml")
	cmd.Flags().StringVar(&overrides.Addr, "addr", defaults.Addr, "chat listen address")
	cmd.Flags().StringVar(&overrides.AdminAddr, "admin-addr", defaults.AdminAddr, "metrics/health listen address (empty to disable)")
	cmd.Flags().StringVar(&overrides.Password, "password", "", "shared connection secret")
	cmd.Flags().StringVar(&overrides.PasswordHash, "password-hash", "", "bcrypt hash of the shared secret")
	cmd.Flags().Uint32Var(&overrides.MaxFrameBytes, "max-frame-bytes", defaults.MaxFrameBytes, "maximum frame payload size")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", defaults.ShutdownTimeout, "graceful shutdown timeout")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")

	return cmd
}

// newHashCmd prints a bcrypt hash for the password_hash config key.
func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <password>",
		Short: "Hash a shared secret for the password_hash config key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
