package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gogazub/appflow/internal/api"
	"github.com/gogazub/appflow/internal/backend"
	"github.com/gogazub/appflow/internal/backoff"
	"github.com/gogazub/appflow/internal/clock"
	"github.com/gogazub/appflow/internal/config"
	"github.com/gogazub/appflow/internal/core"
	"github.com/gogazub/appflow/internal/lifecycle"
	"github.com/gogazub/appflow/internal/pin"
	"github.com/gogazub/appflow/internal/polling"
	"github.com/gogazub/appflow/internal/telemetry"
	"github.com/gogazub/appflow/internal/util"
)

func main() {
	// Конфиг
	cfg, err := config.Load(util.GetString("APPFLOW_CONFIG", "appflow.yaml"))
	if err != nil {
		slog.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Телеметрия
	var sink telemetry.Sink
	switch cfg.Telemetry.Sink {
	case "kafka":
		ks := telemetry.NewKafkaSink(cfg.Telemetry.KafkaBrokers, cfg.Telemetry.KafkaTopic, logger)
		defer ks.Close()
		sink = ks
	case "nop":
		sink = telemetry.NewNop()
	default:
		sink = telemetry.NewLogSink(logger)
	}

	// Бэкофф: badger, если задан каталог, иначе память
	var store backoff.Store = backoff.NewMemStore()
	if cfg.Backoff.Dir != "" {
		bs, err := backoff.OpenBadgerStore(cfg.Backoff.Dir)
		if err != nil {
			logger.Error("open backoff store", slog.Any("err", err))
			os.Exit(1)
		}
		defer bs.Close()
		store = bs
	}
	clk := clock.Real()
	bo := backoff.NewTracker(store, backoff.Options{
		Base:        cfg.Backoff.Base,
		Unit:        cfg.Backoff.Unit,
		MaxAttempts: cfg.Backoff.MaxAttempts,
	}, clk, logger)

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout)
	logger.Info("backend configured", slog.String("backend", client.String()))

	// Компоненты
	queue := core.NewQueue()
	retry := core.NewRetryManager(queue, clk)
	details := core.NewDetailStore()
	loads := core.NewLoadTracker(sink, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Старт RetryManager и пула воркеров
	go retry.Start(ctx)
	wp := core.NewWorkerPool(queue, details, retry, loads, bo, client.GetService, core.PoolOptions{
		Workers:    cfg.Workers.Count,
		MaxRetries: cfg.Workers.MaxRetries,
		Sink:       sink,
		Logger:     logger,
		Clock:      clk,
	})
	wp.Start(ctx)

	runner := polling.NewRunner(bo, sink, clk, logger)
	pollCfg := map[string]config.PollConfig{
		polling.WorkflowCgn:          cfg.Polling.Cgn,
		polling.WorkflowEyca:         cfg.Polling.Eyca,
		polling.WorkflowBonusVacanze: cfg.Polling.BonusVacanze,
	}
	for _, wf := range polling.BackendWorkflows(client) {
		pc := pollCfg[wf.Name()]
		runner.Register(wf, polling.Config{Interval: pc.Interval, Timeout: pc.Timeout})
	}

	routes := lifecycle.NewRoutes("")
	ident := lifecycle.NewIdentification(sink, clk)
	watcher := lifecycle.NewWatcher(routes, ident.Request, lifecycle.Options{
		BackgroundTimeout: cfg.Lifecycle.BackgroundTimeout,
		ReidentifyRoutes:  cfg.Lifecycle.ReidentifyRoutes,
		Clock:             clk,
		Logger:            logger,
	})
	watcher.OnChange(lifecycle.ForegroundListener(loads.AppStateChanged))

	// HTTP
	h := &api.Handlers{
		Pool:           wp,
		Details:        details,
		Loads:          loads,
		Backoff:        bo,
		Runner:         runner,
		Watcher:        watcher,
		Routes:         routes,
		Identification: ident,
		Pin:            pin.NewFlow(pin.NewBcryptKeychain(0), sink, logger),
		Logger:         logger,
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
	}))
	api.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Запуск сервера
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr), slog.Int("workers", cfg.Workers.Count))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	// Ожидаем SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	// Graceful shutdown:
	// 1) закрываем вход HTTP
	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shCancel()
	_ = srv.Shutdown(shCtx)

	// 2) останавливаем фоновые компоненты: ретраи, поллинг, таймер фона
	cancel()
	runner.Close()
	watcher.Close()

	// 3) ждём завершения только текущих загрузок (очередь не вырабатываем)
	wp.Wait()

	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
