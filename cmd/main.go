package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/RaikyD/reptile-orders-service/internal/application"
	"github.com/RaikyD/reptile-orders-service/internal/config"
	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/kafka"
	"github.com/RaikyD/reptile-orders-service/internal/logger"
	"github.com/RaikyD/reptile-orders-service/internal/metrics"
	"github.com/RaikyD/reptile-orders-service/internal/migrate"
	"github.com/RaikyD/reptile-orders-service/internal/ordercache"
	"github.com/RaikyD/reptile-orders-service/internal/presentation"
	"github.com/RaikyD/reptile-orders-service/internal/presentation/helpers"
	"github.com/RaikyD/reptile-orders-service/internal/repository"
	"github.com/RaikyD/reptile-orders-service/internal/storage"
)

func main() {
	// console logger until the configured one is built
	_ = logger.Init("development", "")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.APP_ENV, cfg.LOG_LEVEL); err != nil {
		logger.Error("logger init failed", "err", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := migrate.Up(ctx, cfg.DB_STRING); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DB_STRING)
	if err != nil {
		logger.Error("pgxpool new failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("db ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("db connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	policy, err := domain.PolicyByName(cfg.ORDER_STATUS_POLICY)
	if err != nil {
		logger.Error("bad ORDER_STATUS_POLICY", "err", err)
		os.Exit(1)
	}

	instance := instanceID()
	opts := []application.Option{
		application.WithMetrics(m),
		application.WithStatusPolicy(policy),
	}

	// Kafka: events out, invalidations in
	if cfg.KafkaEnabled() {
		prod := kafka.NewProducer(cfg.KAFKA_BROKERS, cfg.KAFKA_TOPIC, instance)
		defer prod.Close()
		opts = append(opts, application.WithPublisher(prod))
	}

	repo := repository.NewOrderRepository(pool)
	svc := application.NewOrdersService(repo, opts...)
	cache := ordercache.New(svc, m)

	if err := cache.Reload(ctx); err != nil {
		logger.Warn("initial cache load failed, will retry on first read", "err", err)
	} else {
		logger.Info("order cache loaded", "orders", cache.Len())
	}

	if cfg.KafkaEnabled() {
		kafka.StartConsumer(ctx, cache, kafka.ConsumerConfig{
			Brokers:  cfg.KAFKA_BROKERS,
			Topic:    cfg.KAFKA_TOPIC,
			GroupID:  cfg.KAFKA_GROUP_ID + "-" + instance,
			Instance: instance,
		})
	}

	var proofs storage.ProofStore
	if cfg.MinioEnabled() {
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MINIO_ENDPOINT,
			AccessKey: cfg.MINIO_ACCESS_KEY,
			SecretKey: cfg.MINIO_SECRET_KEY,
			Bucket:    cfg.MINIO_BUCKET,
			UseSSL:    cfg.MINIO_USE_SSL,
		})
		if err != nil {
			logger.Error("minio init failed", "err", err)
			os.Exit(1)
		}
		proofs = store
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.REQUEST_TIMEOUT))
	r.Use(m.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			helpers.HttpError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		helpers.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "cachedOrders": cache.Len()})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	// API
	presentation.NewOrdersHandler(cache, proofs).Register(r)

	server := &http.Server{
		Addr:              ":" + cfg.HTTP_PORT,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting http", "addr", server.Addr, "instance", instance)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server crashed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "err", err)
	}
	// stops the kafka consumer
	stop()
	logger.Info("stopped")
}

// instanceID tags events so an instance can ignore its own invalidations.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "orders"
	}
	return host + "-" + uuid.NewString()[:8]
}
