// Package main provides the CLI entry point for the BiteBase services.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/khiwniti/beta-bitebase/internal/config"
	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/server"
	"github.com/khiwniti/beta-bitebase/internal/tui"
)

const shutdownTimeout = 30 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F97316"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "bitebase",
		Short: "BiteBase restaurant intelligence services",
		Long: titleStyle.Render("BiteBase") + `

Runs the AI copilot, the tool gateway and the user backend, and provides
a terminal client for talking to the copilot.

` + dimStyle.Render("Use 'bitebase [command] --help' for more information."),
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	copilotCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Run the copilot service (HTTP and WebSocket)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return withSignals(func(ctx context.Context) error { return runCopilot(ctx, cfg) })
		},
	}

	gatewayCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the tool gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return withSignals(func(ctx context.Context) error { return runGateway(ctx, cfg) })
		},
	}

	backendCmd := &cobra.Command{
		Use:   "backend",
		Short: "Run the user backend (chat, history, feedback)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return withSignals(func(ctx context.Context) error { return runBackend(ctx, cfg) })
		},
	}

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tool servers and capabilities the router knows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return printTools(cmd.OutOrStdout(), cfg)
		},
	}

	var chatCfg tui.Config
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the copilot in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			client, err := tui.Dial(ctx, chatCfg.URL)
			cancel()
			if err != nil {
				return err
			}
			defer client.Close()
			return tui.Run(chatCfg, client)
		},
	}
	chatCmd.Flags().StringVar(&chatCfg.URL, "url", "ws://localhost:8001/copilotkit", "Copilot WebSocket URL")
	chatCmd.Flags().StringVar(&chatCfg.UserID, "user", "cli-user", "User ID")
	chatCmd.Flags().StringVar(&chatCfg.SessionID, "session", "cli-session", "Session ID")
	chatCmd.Flags().DurationVar(&chatCfg.Timeout, "timeout", tui.DefaultTimeout, "How long to wait for each reply")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bitebase %s\n", server.Version)
		},
	}

	rootCmd.AddCommand(copilotCmd, gatewayCmd, backendCmd, toolsCmd, chatCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the YAML file and environment overrides, then
// configures the default logger.
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logging.Configure(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func withSignals(run func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx)
}

// serve runs srv until ctx is cancelled or the listener fails, then shuts it
// down gracefully.
func serve(ctx context.Context, srv *server.Server) error {
	logger := logging.WithComponent("main")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var startErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case startErr = <-errCh:
		if startErr != nil {
			logger.Error("HTTP server failed", "error", startErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	return startErr
}
