package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/khiwniti/beta-bitebase/internal/channel/webchat"
	"github.com/khiwniti/beta-bitebase/internal/config"
	"github.com/khiwniti/beta-bitebase/internal/contextstore"
	"github.com/khiwniti/beta-bitebase/internal/copilot"
	"github.com/khiwniti/beta-bitebase/internal/dispatch"
	"github.com/khiwniti/beta-bitebase/internal/history"
	"github.com/khiwniti/beta-bitebase/internal/inference"
	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/messaging"
	"github.com/khiwniti/beta-bitebase/internal/scheduler"
	"github.com/khiwniti/beta-bitebase/internal/server"
)

func newRouter(cfg *config.Config) (*dispatch.Router, *inference.OllamaClient, error) {
	ollama, err := inference.NewOllamaClient(inference.OllamaConfig{
		URL:          cfg.Ollama.URL,
		DefaultModel: cfg.Ollama.DefaultModel,
		Timeout:      cfg.Ollama.GetTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	table, err := newTable(cfg)
	if err != nil {
		return nil, nil, err
	}
	router, err := dispatch.NewRouter(table, dispatch.DefaultBackends(table, nil, ollama))
	if err != nil {
		return nil, nil, err
	}
	return router, ollama, nil
}

func newTable(cfg *config.Config) (*dispatch.Table, error) {
	return dispatch.NewTable(dispatch.TableConfig{
		ToolsBaseURL:     cfg.MCP.ServersBaseURL,
		MarketingURL:     cfg.Marketing.URL,
		OllamaURL:        cfg.Ollama.URL,
		ToolTimeout:      cfg.MCP.GetTimeout(),
		LongTimeout:      cfg.MCP.GetLongTimeout(),
		MarketingTimeout: cfg.Marketing.GetTimeout(),
		ChatTimeout:      cfg.Ollama.GetTimeout(),
	})
}

func newContextStore(cfg *config.Config) (*messaging.RedisClient, *contextstore.Store, error) {
	client, err := messaging.NewRedisClient(messaging.RedisConfig{URL: cfg.Redis.URL})
	if err != nil {
		return nil, nil, err
	}
	store, err := contextstore.New(client.RawClient(), contextstore.Options{
		MaxTurns: cfg.Context.MaxTurns,
		TTL:      cfg.Context.GetTTL(),
		Timeout:  cfg.Redis.GetTimeout(),
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, store, nil
}

func runCopilot(ctx context.Context, cfg *config.Config) error {
	logger := logging.WithComponent("main")

	client, store, err := newContextStore(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	router, ollama, err := newRouter(cfg)
	if err != nil {
		return err
	}

	svc := copilot.NewService(store, router, messaging.NewTurnPublisher(client, cfg.Events.Stream), copilot.Options{
		PromptTurns: cfg.Context.PromptTurns,
		Model:       ollama.DefaultModelName(),
		Source:      messaging.SourceCopilot,
	})
	adapter := webchat.NewWebChatAdapter(svc, cfg.CORS.AllowedOrigins)

	srv := server.New(server.Config{
		Name:           "copilot",
		Host:           cfg.Server.Host,
		Port:           cfg.Server.CopilotPort,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	server.RegisterCopilot(srv, svc, store, adapter)
	srv.AddCheck("redis", client.Ping)
	srv.AddCheck("ollama", ollama.Health)
	srv.OnShutdown(func(context.Context) { adapter.CloseAll() })

	logger.Info("Starting copilot", "version", server.Version, "port", cfg.Server.CopilotPort)
	return serve(ctx, srv)
}

func runGateway(ctx context.Context, cfg *config.Config) error {
	logger := logging.WithComponent("main")

	router, ollama, err := newRouter(cfg)
	if err != nil {
		return err
	}
	board := dispatch.NewBoard(router.Table())
	checker := dispatch.NewHealthChecker(router.Table(), board, nil, cfg.MCP.GetHealthTimeout())

	sched := scheduler.NewScheduler(0)
	if err := sched.Add("server-health", cfg.MCP.HealthSchedule, checker.CheckAll); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	go sched.RunNow("server-health", checker.CheckAll)

	srv := server.New(server.Config{
		Name:           "gateway",
		Host:           cfg.Server.Host,
		Port:           cfg.Server.GatewayPort,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	server.RegisterGateway(srv, router, board)
	srv.AddCheck("ollama", ollama.Health)

	logger.Info("Starting gateway", "version", server.Version, "port", cfg.Server.GatewayPort,
		"tools", len(router.Table().Descriptors()))
	return serve(ctx, srv)
}

func runBackend(ctx context.Context, cfg *config.Config) error {
	logger := logging.WithComponent("main")

	client, store, err := newContextStore(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	router, ollama, err := newRouter(cfg)
	if err != nil {
		return err
	}

	hist, err := history.New(client.RawClient(), history.Options{
		MessageTTL:  cfg.History.GetMessageTTL(),
		FeedbackTTL: cfg.History.GetFeedbackTTL(),
		MaxMessages: cfg.History.MaxMessages,
	})
	if err != nil {
		return err
	}

	// Backend turns are saved by the HTTP handler, so nothing is published.
	svc := copilot.NewService(store, router, nil, copilot.Options{
		PromptTurns: cfg.Context.PromptTurns,
		Model:       ollama.DefaultModelName(),
		Source:      messaging.SourceBackend,
	})

	recorder := history.NewRecorder(client, hist, history.RecorderConfig{
		Stream:   cfg.Events.Stream,
		Group:    cfg.Events.Group,
		Consumer: cfg.Events.Consumer,
	})
	recCtx, stopRecorder := context.WithCancel(ctx)
	defer stopRecorder()
	go func() {
		if err := recorder.Run(recCtx); err != nil {
			logger.Error("Turn recorder stopped", "error", err)
		}
	}()

	sched := scheduler.NewScheduler(0)
	err = sched.Add("dead-letter-replay", cfg.Events.ReplaySchedule, func(ctx context.Context) error {
		n, err := recorder.ReplayDeadLetters(ctx, 0)
		if n > 0 {
			logger.Info("Replayed dead-lettered turns", "count", n)
		}
		return err
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Name:           "backend",
		Host:           cfg.Server.Host,
		Port:           cfg.Server.BackendPort,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	server.RegisterBackend(srv, svc, hist)
	srv.AddCheck("redis", client.Ping)

	logger.Info("Starting backend", "version", server.Version, "port", cfg.Server.BackendPort)
	return serve(ctx, srv)
}

var (
	serverStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F97316"))
	toolStyle   = lipgloss.NewStyle().PaddingLeft(2)
)

func printTools(w io.Writer, cfg *config.Config) error {
	table, err := newTable(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render("Dispatch table"))
	fmt.Fprintln(w)
	for _, s := range table.Servers() {
		fmt.Fprintf(w, "%s %s\n", serverStyle.Render(s.Name), dimStyle.Render("["+s.Category+"] "+s.BaseURL))
		if s.Description != "" {
			fmt.Fprintln(w, toolStyle.Render(dimStyle.Render(s.Description)))
		}
		if len(s.Tools) > 0 {
			fmt.Fprintln(w, toolStyle.Render(strings.Join(s.Tools, ", ")))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d servers, %d capabilities\n", len(table.Servers()), len(table.Descriptors()))
	return nil
}
