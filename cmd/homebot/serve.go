package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/homebot/internal/agent"
	"github.com/rahul/homebot/internal/assistant"
	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/gateway"
	"github.com/rahul/homebot/internal/governance"
	"github.com/rahul/homebot/internal/intake"
	"github.com/rahul/homebot/internal/observability"
	"github.com/rahul/homebot/internal/rewards"
	"github.com/rahul/homebot/internal/store"
	"github.com/rahul/homebot/internal/tools"
	"github.com/rahul/homebot/pkg/config"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateways and the background scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	logger := observability.NewLogger()

	catalog, err := loadCatalog(cfg.Cleaning.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	// Points are written off the engine's path; the dispatcher drains its
	// queue on shutdown.
	ledger := rewards.NewLedger(db, logger, loc)
	policy := rewards.DefaultPolicy()
	policy.MaxRetries = cfg.Rewards.MaxRetries
	dispatcher := rewards.NewDispatcher(ledger, cfg.Rewards.QueueSize, policy, logger)
	defer dispatcher.Close()

	engine := cleaning.NewEngine(catalog, db, dispatcher,
		cleaning.WithLogger(logger),
		cleaning.WithLockTimeout(cfg.Cleaning.LockTimeout.Duration),
	)

	opts := []assistant.Option{
		assistant.WithBusyRetry(cfg.Cleaning.BusyRetry.Duration),
		assistant.WithLocation(loc),
	}
	advisor, closeTools, err := newAdvisor(cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeTools()
	if advisor != nil {
		opts = append(opts, assistant.WithAdvisor(advisor))
	} else {
		log.Println("No enabled provider found in config, free-text questions are disabled")
	}

	bot := assistant.New(engine, db, ledger,
		intake.NewConversations(db, cfg.Cleaning.ContextTTL.Duration),
		intake.NewClassifier(logger),
		opts...,
	)

	router := gateway.NewRouter()
	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, bot)
		if err != nil {
			return err
		}
		router.Handle("", tg)
	}
	if dcCfg, ok := cfg.GetDiscordConfig(); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, bot)
		if err != nil {
			return err
		}
		router.Handle(gateway.DiscordPrefix, dc)
	}
	if router.Len() == 0 {
		return errors.New("no gateway is enabled in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := observability.IsTerminal()
	if interactive {
		observability.PrintBanner()
		observability.InitializeTerminal()
	}

	scheduler := agent.NewScheduler(db, router, cfg.Cleaning.NudgeAfter.Duration)
	scheduler.Location = loc
	go scheduler.Start(ctx)

	if interactive {
		go every(ctx, time.Second, observability.PrintLiveStatus)
	}
	go every(ctx, 30*time.Second, func() {
		observability.Heartbeat()
		logger.LogHeartbeat()
	})

	go func() {
		if err := router.Start(); err != nil {
			log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
			stop()
		}
	}()

	<-ctx.Done()
	if err := router.Stop(); err != nil {
		log.Printf("Error stopping gateways: %v", err)
	}
	if interactive {
		observability.CleanupTerminal()
	}

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] homebot stopped. Goodbye.\033[0m")
	return nil
}

// newAdvisor builds the LLM advisor and its tools. It returns a nil advisor
// when no provider is enabled.
func newAdvisor(cfg *config.Config, db *store.Store, logger *observability.Logger) (*agent.Advisor, func(), error) {
	noop := func() {}
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, noop, nil
	}

	var llm llms.Model
	var err error
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, noop, fmt.Errorf("provider %s not yet implemented", pName)
	}
	if err != nil {
		return nil, noop, err
	}

	registry := tools.NewRegistry()
	if searchTool, err := tools.NewSearchTool(cfg.Tools.SearchResults); err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	closeTools := noop
	pageTool := tools.NewPageTool(nil)
	if cfg.Tools.Headless {
		renderer := tools.NewHeadlessRenderer(cfg.Tools.BrowserTimeout.Duration)
		pageTool.Renderer = renderer
		closeTools = renderer.Close
	}
	registry.Register(pageTool)
	registry.Register(tools.NewReminderTool(db))
	registry.Register(tools.NewPantryTool(db))

	prompts := agent.NewPromptManager(cfg.App.Prompts)
	advisor := agent.NewAdvisor(llm, registry, db, prompts, logger)
	advisor.Policy = governance.NewHouseholdPolicy()
	return advisor, closeTools, nil
}

func every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
