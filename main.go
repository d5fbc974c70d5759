package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"citesearch/config"
	"citesearch/models"
	"citesearch/providers"
	"citesearch/providers/citesearch"
	"citesearch/services"
	"citesearch/session"
	"citesearch/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	searchesCounter     *prometheus.CounterVec
	searchDuration      prometheus.Histogram
	activeSessionsGauge prometheus.Gauge
	backendHealthyGauge prometheus.Gauge
)

func init() {
	searchesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citesearch_searches_total",
			Help: "Total number of completed citation searches by outcome.",
		},
		[]string{"outcome"},
	)
	searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citesearch_search_duration_seconds",
			Help:    "Wall-clock duration of completed citation searches.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
	)
	activeSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "citesearch_active_sessions",
			Help: "Number of browser sessions currently held in memory.",
		},
	)
	backendHealthyGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "citesearch_backend_healthy",
			Help: "1 if the last health probe of the citation backend succeeded, 0 otherwise.",
		},
	)
	prometheus.MustRegister(searchesCounter, searchDuration, activeSessionsGauge, backendHealthyGauge)
}

// Alle 5 Minuten werden inaktive Sessions und Rate-Limit-Einträge aufgeräumt.
const housekeepingSchedule = "@every 5m"

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}
	policy, err := session.ParseOverlapPolicy(cfg.SearchOverlapPolicy)
	if err != nil {
		logging.Fatal("Invalid SEARCH_OVERLAP_POLICY", zap.Error(err))
	}

	// Optional: Such-Protokoll in PostgreSQL
	var db *gorm.DB
	if cfg.SearchLogEnabled() {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			logging.Fatal("Failed to connect to search log database", zap.Error(err))
		}
		logging.Info("Successfully connected to search log database.")
		if err := db.AutoMigrate(&models.SearchLog{}); err != nil {
			logging.Fatal("Search log migration failed", zap.Error(err))
		}
	} else {
		logging.Info("DB_HOST not set, search log disabled.")
	}
	searchLog := services.NewSearchLogService(db, logging)

	fetcher := citesearch.NewFetcher(cfg, logging)
	logging.Info("Citation backend configured", zap.String("provider", fetcher.Name()))
	store := services.NewSessionStore(newSessionFactory(cfg, fetcher, searchLog, policy, logging), logging)
	limiter := services.NewRateLimiter(cfg.RateLimitPerMinute, rateLimitBurst)

	router, err := newRouter(cfg, store, limiter, policy, logging)
	if err != nil {
		logging.Fatal("Router setup failed", zap.Error(err))
	}

	// Setup Cron
	cronScheduler := cron.New()
	if err := scheduleHousekeeping(cronScheduler, store, limiter, cfg.SessionMaxIdle, logging); err != nil {
		logging.Fatal("Invalid housekeeping schedule", zap.Error(err))
	}
	if cfg.ExportEnabled() && db != nil {
		s3Client, err := storage.NewS3Client(context.Background(), cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		exportService := services.NewExportService(cfg, db, s3Client, logging)
		_, err = cronScheduler.AddFunc(cfg.CronSchedule, func() {
			logging.Info("Running scheduled search log export...")
			res, err := exportService.Run(context.Background())
			if err != nil {
				logging.Error("Export job failed", zap.Error(err))
				return
			}
			logging.Info("Export job completed", zap.String("link", res.Link), zap.Int("rows", res.Rows), zap.Int("deleted", len(res.Deleted)))
		})
		if err != nil {
			logging.Fatal("Invalid CRON_SCHEDULE", zap.Error(err))
		}
	}
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort), zap.String("api_base_url", cfg.APIBaseURL))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logging.Info("Shutting down...")
	<-cronScheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown failed", zap.Error(err))
	}
	store.CloseAll()
	logging.Info("Server stopped.")
}

// newSessionFactory verbindet jede neue Session mit Backend, Metriken und Such-Protokoll.
// scheduleHousekeeping räumt regelmäßig inaktive Sessions und Rate-Limiter-Einträge ab.
func scheduleHousekeeping(c *cron.Cron, store *services.SessionStore, limiter *services.RateLimiter, maxIdle time.Duration, log *zap.Logger) error {
	_, err := c.AddFunc(housekeepingSchedule, func() {
		evicted := store.EvictIdle(maxIdle)
		pruned := limiter.Prune(maxIdle)
		activeSessionsGauge.Set(float64(store.Len()))
		log.Debug("Housekeeping done", zap.Int("evicted_sessions", evicted), zap.Int("pruned_limiters", pruned))
	})
	return err
}

func newSessionFactory(cfg *config.Config, backend providers.Provider, searchLog *services.SearchLogService, policy session.OverlapPolicy, log *zap.Logger) services.SessionFactory {
	return func(meta services.SessionMeta) *session.Session {
		return session.New(backend, session.Options{
			RotateInterval: cfg.RotateInterval,
			CopyReset:      cfg.CopyReset,
			Policy:         policy,
			Logger:         log.With(zap.String("session_id", meta.ID)),
			Health:         backend,
			OnComplete: func(o session.Outcome) {
				searchesCounter.WithLabelValues(o.Kind.Outcome()).Inc()
				searchDuration.Observe(o.Elapsed.Seconds())
				searchLog.Record(context.Background(), meta, o)
			},
			OnHealth: func(_ models.HealthStatus, err error) {
				if err != nil {
					backendHealthyGauge.Set(0)
					return
				}
				backendHealthyGauge.Set(1)
			},
		})
	}
}
