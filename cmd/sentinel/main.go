package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/patagonialabs/firesentinel/internal/adapter/firms"
	httpadapter "github.com/patagonialabs/firesentinel/internal/adapter/http"
	kafkaadapter "github.com/patagonialabs/firesentinel/internal/adapter/kafka"
	"github.com/patagonialabs/firesentinel/internal/adapter/roads"
	"github.com/patagonialabs/firesentinel/internal/adapter/weather"
	"github.com/patagonialabs/firesentinel/internal/alert"
	"github.com/patagonialabs/firesentinel/internal/alert/telegram"
	"github.com/patagonialabs/firesentinel/internal/alert/whatsapp"
	"github.com/patagonialabs/firesentinel/internal/cluster"
	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/dedup"
	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/enrich"
	"github.com/patagonialabs/firesentinel/internal/intent"
	"github.com/patagonialabs/firesentinel/internal/observability"
	"github.com/patagonialabs/firesentinel/internal/pipeline"
	"github.com/patagonialabs/firesentinel/internal/store"
	"github.com/patagonialabs/firesentinel/internal/store/memstore"
	"github.com/patagonialabs/firesentinel/internal/store/pgstore"
)

const (
	firmsTimeout        = 30 * time.Second
	telegramMessagesSec = 25
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	params, err := config.LoadParams(cfg.ParamsPath)
	if err != nil {
		slog.Error("failed to load monitoring parameters", "path", cfg.ParamsPath, "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	var pg *pgstore.Store
	if cfg.DatabaseURL != "" {
		pg, err = pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connecting to postgres failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memstore.New()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	fetcher := firms.NewClient(cfg.FIRMSMapKey, params.Monitoring.MinBrightness, firmsTimeout, logger)
	weatherClient := weather.NewClient(params.Enrichment.CallTimeout.Std(), logger)
	roadsClient := roads.NewClient(params.Enrichment.CallTimeout.Std(), logger)
	enricher := enrich.NewEnricher(weatherClient, roadsClient, params.Enrichment, metrics, logger)

	senders := make(map[domain.AlertChannel]alert.Sender)
	if cfg.TelegramBotToken != "" {
		tg, err := telegram.New(cfg.TelegramBotToken, telegramMessagesSec, logger)
		if err != nil {
			logger.Error("initializing telegram sender failed", "error", err)
			os.Exit(1)
		}
		senders[domain.ChannelTelegram] = tg
		logger.Info("telegram alerts enabled")
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		senders[domain.ChannelWhatsApp] = whatsapp.New(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom,
			params.Enrichment.CallTimeout.Std(), logger)
		logger.Info("whatsapp alerts enabled")
	}
	if len(senders) == 0 {
		logger.Warn("no alert channels configured, alerts will be recorded as failed")
	}

	deps := pipeline.Deps{
		Fetcher:    fetcher,
		Deduper:    dedup.New(st, params.Dedup, logger),
		Enricher:   enricher,
		Clusterer:  cluster.New(params.Clustering, logger),
		Classifier: intent.New(params.Intent, logger),
		Dispatcher: alert.New(st, senders, params.Alerts, params.Zones, logger),
		Store:      st,
		Params:     params,
		Metrics:    metrics,
		Logger:     logger,
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		deps.Publisher = writer
		logger.Info("kafka event stream enabled", "topic", cfg.KafkaEventsTopic)
	}

	orch := pipeline.NewOrchestrator(deps)

	if *once {
		rec := orch.RunCycle(ctx)
		if writer != nil {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}
		if rec.Status == domain.CycleFailed {
			os.Exit(1)
		}
		return
	}

	scheduler := pipeline.NewScheduler(orch, params.Monitoring.PollInterval.Std(), clockwork.NewRealClock(), metrics, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, st, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
