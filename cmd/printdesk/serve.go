package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pbimprenta/printdesk/internal/agent"
	"github.com/pbimprenta/printdesk/internal/audit"
	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/config"
	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/inbound"
	"github.com/pbimprenta/printdesk/internal/knowledge"
	"github.com/pbimprenta/printdesk/internal/llm"
	"github.com/pbimprenta/printdesk/internal/order"
	"github.com/pbimprenta/printdesk/internal/server"
	"github.com/pbimprenta/printdesk/internal/staff"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/pbimprenta/printdesk/internal/turn"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, admin API, turn scheduler and auditor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to printdesk config file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	bs, err := blob.New(blob.Opts{RootURL: cfg.Storage.RootURL})
	if err != nil {
		return err
	}
	client, err := newLLM(cfg, log.With().Str("component", "llm").Logger())
	if err != nil {
		return err
	}
	evo, err := gateway.New(gateway.Opts{
		BaseURL:    cfg.WhatsApp.APIURL,
		APIKey:     cfg.WhatsApp.APIKey,
		Instance:   cfg.WhatsApp.Instance,
		Timeout:    time.Duration(cfg.WhatsApp.SendTimeoutSec) * time.Second,
		RatePerSec: cfg.WhatsApp.RatePerSec,
		Logger:     log.With().Str("component", "gateway").Logger(),
	})
	if err != nil {
		return err
	}
	alerts, err := staff.New(cfg.Staff, log.With().Str("component", "staff").Logger())
	if err != nil {
		return err
	}

	var retriever knowledge.Retriever = knowledge.Nop{}
	if cfg.Knowledge.DatabaseURL != "" {
		pg, err := knowledge.NewPG(ctx, knowledge.PGOpts{
			DatabaseURL:    cfg.Knowledge.DatabaseURL,
			Embedder:       client,
			MatchThreshold: cfg.Knowledge.MatchThreshold,
			Logger:         log.With().Str("component", "knowledge").Logger(),
		})
		if err != nil {
			return err
		}
		defer pg.Close()
		retriever = pg
	} else {
		log.Warn().Msg("knowledge retrieval disabled: knowledge.database_url is empty")
	}

	registrar, err := order.NewRegistrar(order.RegistrarOpts{
		Store:      st,
		Blob:       bs,
		Staff:      alerts,
		FileWindow: cfg.Turns.FileWindow(),
		Logger:     log.With().Str("component", "order").Logger(),
	})
	if err != nil {
		return err
	}
	notifier, err := order.NewNotifier(order.NotifierOpts{
		Store:  st,
		Sender: evo,
		Logger: log.With().Str("component", "order").Logger(),
	})
	if err != nil {
		return err
	}

	temperature := cfg.LLM.Temperature
	orch, err := agent.New(agent.Opts{
		Store:           st,
		Provider:        client,
		Sender:          evo,
		Registrar:       registrar,
		Retriever:       retriever,
		Model:           cfg.LLM.Model,
		Temperature:     &temperature,
		TopK:            cfg.Knowledge.TopK,
		HistoryLimit:    cfg.Turns.HistoryLimit,
		FileWindow:      cfg.Turns.FileWindow(),
		RetrieveTimeout: time.Duration(cfg.Knowledge.TimeoutSec) * time.Second,
		Logger:          log.With().Str("component", "agent").Logger(),
	})
	if err != nil {
		return err
	}

	watchdog, err := turn.NewWatchdog(turn.WatchdogOpts{
		Alerter:    orch,
		WarnAfter:  cfg.Turns.WarnAfter(),
		CloseAfter: cfg.Turns.CloseAfter(),
		Logger:     log.With().Str("component", "watchdog").Logger(),
	})
	if err != nil {
		return err
	}
	sched, err := turn.NewScheduler(turn.Opts{
		Handler:  orch,
		Watchdog: watchdog,
		Quiet:    cfg.Turns.Debounce(),
		Logger:   log.With().Str("component", "scheduler").Logger(),
	})
	if err != nil {
		return err
	}

	adapter, err := inbound.New(inbound.Opts{
		Store:    st,
		Blob:     bs,
		Sender:   evo,
		Media:    evo,
		Sink:     sched,
		MaxBytes: cfg.Server.MaxUploadMB << 20,
		Logger:   log.With().Str("component", "inbound").Logger(),
	})
	if err != nil {
		return err
	}

	auditor, err := newAuditor(cfg, st, client, alerts, log)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{
		Store:              st,
		Blob:               bs,
		Webhook:            adapter,
		Notifier:           notifier,
		Auditor:            auditor,
		AdminKey:           cfg.Server.AdminKey,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MaxUploadBytes:     cfg.Server.MaxUploadMB << 20,
		Port:               cfg.Server.Port,
		Logger:             log.With().Str("component", "server").Logger(),
	})
	if err != nil {
		return err
	}
	if cfg.Server.AdminKey == "" {
		log.Warn().Msg("admin API is unauthenticated: server.admin_key is empty")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Audit.Enabled {
		g.Go(func() error {
			return auditor.Schedule(gctx, cfg.Audit.Cron)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sched.Close()
		watchdog.Close()
		return nil
	})

	log.Info().Str("instance", cfg.WhatsApp.Instance).Str("version", Version).Msg("printdesk started")
	err = g.Wait()
	log.Info().Msg("printdesk stopped")
	return err
}

func newAuditor(cfg *config.Config, st *store.Store, provider llm.Provider, alerts staff.Notifier, log zerolog.Logger) (*audit.Auditor, error) {
	return audit.New(audit.Opts{
		Store:        st,
		Provider:     provider,
		Staff:        alerts,
		Model:        cfg.LLM.Model,
		LookbackDays: cfg.Audit.LookbackDays,
		Logger:       log.With().Str("component", "audit").Logger(),
	})
}
