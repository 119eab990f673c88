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

	"github.com/joho/godotenv"

	"printfarm/internal/config"
	"printfarm/internal/events"
	"printfarm/internal/planlog"
	"printfarm/internal/service/catalog"
	"printfarm/internal/service/daychange"
	"printfarm/internal/service/feasibility"
	excelsvc "printfarm/internal/service/generate-excel"
	"printfarm/internal/service/impact"
	"printfarm/internal/service/planning"
	"printfarm/internal/service/production"
	"printfarm/internal/service/replan"
	"printfarm/internal/storage/cache"
	"printfarm/internal/storage/mysql"
	"printfarm/internal/storage/sqlite"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.MustConfig()
	loc := cfg.Location()

	log := setupLogger(cfg.Env, cfg.ErrorLogPath)
	log = log.With(slog.String("workspace_id", cfg.WorkspaceID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, err := sqlite.New(cfg.LocalDBPath)
	if err != nil {
		log.Error("failed to open local store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer local.Close()

	var (
		remote cache.Backend
		lock   daychange.DistributedLock
	)
	if cfg.MySQL.Enabled {
		shared, err := mysql.New(cfg.MySQL.DSN, cfg.WorkspaceID)
		if err != nil {
			// the farm keeps working offline and mirrors once the backend is reachable again on restart
			log.Warn("shared backend unavailable, running local only", slog.String("error", err.Error()))
		} else {
			defer shared.Close()
			remote = shared
			lock = shared
		}
	}

	store := cache.New(log, local, remote)
	if err := store.Load(ctx); err != nil {
		log.Error("failed to load collections", slog.String("error", err.Error()))
		os.Exit(1)
	}

	planLog := planlog.New(log, store, cfg.Planning.PlanLogLimit)
	if entries, err := store.GetPlanningLog(ctx); err == nil {
		planLog.Load(entries)
	}

	bus := events.New(log)
	bus.Subscribe(events.ReplanNotification, func(e events.Event) {
		if n, ok := e.Payload.(replan.Notification); ok {
			log.Info("replan notification", slog.String("kind", string(n.Kind)), slog.String("message", n.Message))
		}
	})

	recalc := planning.NewRecalculator(log, store, planLog, bus, loc, cfg.Planning.HorizonDays)
	coordinator := replan.NewCoordinator(log, recalc, bus, cfg.Planning.Debounce)
	defer coordinator.Cancel()

	detector := daychange.New(log, lock, local, coordinator, cfg.WorkspaceID, loc)
	go detector.Run(ctx, cfg.Planning.DayCheckInterval)
	if remote != nil {
		go store.RunFlusher(ctx, cfg.Planning.MirrorRetryPeriod)
	}

	analyzer := impact.NewAnalyzer(log, impact.Config{
		MaxDominoHops:      cfg.Impact.MaxDominoHops,
		MaxMergeCandidates: cfg.Impact.MaxMergeCandidates,
		MinMeaningfulDelay: cfg.Impact.MinMeaningfulDelay,
	})
	checker := feasibility.NewChecker(log, feasibility.Config{
		SafetyMargin:        cfg.Feasibility.SafetyMargin,
		NightPlateLimit:     cfg.Feasibility.NightPlateLimit,
		SlackThresholdHours: cfg.Feasibility.SlackThresholdHours,
	})

	svc := services{
		store:       store,
		catalog:     catalog.New(log, store, coordinator),
		planLog:     planLog,
		coordinator: coordinator,
		detector:    detector,
		impact:      impact.NewService(analyzer, store, loc),
		feasibility: feasibility.NewService(checker, store, loc),
		production:  production.New(log, store, coordinator, bus, impact.NewDecisionLog(cfg.Impact.UndoWindow)),
		excel:       excelsvc.NewGenerateService(store),
	}

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      routes(*cfg, log, svc),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", slog.String("error", err.Error()))
		}
	}()

	log.Info("server started", slog.String("address", cfg.Address), slog.Bool("shared_backend", remote != nil))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to start server", slog.String("error", err.Error()))
	}

	if remote != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.FlushPending(flushCtx); err != nil {
			log.Warn("unsynced collections left on shutdown", slog.Any("collections", store.Pending()))
		}
		cancel()
	}

	log.Info("server stopped")
}

// dualHandler writes every record to the console handler and copies errors to a file.
type dualHandler struct {
	coreHandler  slog.Handler
	errorHandler slog.Handler
}

func (h *dualHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.coreHandler.Enabled(ctx, lvl) || h.errorHandler.Enabled(ctx, lvl)
}

func (h *dualHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error

	if h.coreHandler.Enabled(ctx, r.Level) {
		if err = h.coreHandler.Handle(ctx, r); err != nil {
			return err
		}
	}

	if r.Level >= slog.LevelError && h.errorHandler.Enabled(ctx, r.Level) {
		// a broken error file must not break request logging
		_ = h.errorHandler.Handle(ctx, r.Clone())
	}

	return err
}

func (h *dualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dualHandler{
		coreHandler:  h.coreHandler.WithAttrs(attrs),
		errorHandler: h.errorHandler.WithAttrs(attrs),
	}
}

func (h *dualHandler) WithGroup(name string) slog.Handler {
	return &dualHandler{
		coreHandler:  h.coreHandler.WithGroup(name),
		errorHandler: h.errorHandler.WithGroup(name),
	}
}

func setupLogger(env, errorLogPath string) *slog.Logger {
	level := slog.LevelDebug
	if env == envProd {
		level = slog.LevelInfo
	}

	var coreHandler slog.Handler
	switch env {
	case envDev:
		coreHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case envLocal, envProd:
		coreHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		coreHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("cannot open error log file", slog.String("path", errorLogPath), slog.String("error", err.Error()))
		return slog.New(coreHandler)
	}

	errorHandler := slog.NewTextHandler(errorFile, &slog.HandlerOptions{Level: slog.LevelError})

	return slog.New(&dualHandler{coreHandler: coreHandler, errorHandler: errorHandler})
}
