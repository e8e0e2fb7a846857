package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core/internal/config"
	"github.com/ariefcatur/go-order-core/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-core/internal/kafka"
	"github.com/ariefcatur/go-order-core/internal/logging"
	"github.com/ariefcatur/go-order-core/internal/metrics"
	"github.com/ariefcatur/go-order-core/internal/orders"
	"github.com/ariefcatur/go-order-core/internal/postgres"
	"github.com/ariefcatur/go-order-core/internal/redisx"
)

// storage bundles whichever Inventory Store backend is configured.
type storage struct {
	store orders.Store
	repo  orders.OrderRepository
	close func()
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (storage, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := orders.NewMemoryStore(cfg.LockTimeout)
		if err := seedCatalog(ctx, mem); err != nil {
			return storage{}, err
		}
		log.Warn("using in-memory store, data is lost on exit")
		return storage{store: mem, repo: mem, close: func() {}}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		return storage{}, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return storage{}, err
	}
	return storage{
		store: orders.NewPgStore(db, cfg.LockTimeout),
		repo:  &orders.Repo{DB: db},
		close: db.Close,
	}, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// logger not built yet
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("storage", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	if err := redisx.Ping(ctx, rdb); err != nil {
		if cfg.StoreDriver != config.StoreDriverMemory {
			log.Fatal("redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		log.Warn("redis unavailable, idempotency and caches disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		rdb = nil
	}
	defer func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
	prod.Start(ctx)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewOrders(reg)

	// Core
	validator := orders.NewValidator(st.store)
	committer := orders.NewCommitter(st.store, orders.CommitterConfig{
		MaxAttempts: cfg.CommitMaxAttempts,
		Backoff:     cfg.CommitRetryBackoff,
		Observer:    m,
	})
	svc := orders.NewService(validator, committer, st.repo, kafkax.NewOrderEvents(prod, cfg.ServiceName), m)

	// HTTP
	router := httpx.NewRouter(log, metrics.Handler(reg))
	oh := &httpx.OrdersHandler{Service: svc, Inventory: st.store}
	if rdb != nil {
		oh.Idem = redisx.NewIdempotency(rdb)
		oh.Cache = redisx.NewStatusCache(rdb)
		oh.Stock = redisx.NewStockView(rdb)
	}
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting_down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http_shutdown", zap.Error(err))
	}
	prod.Close() // flush queued events after in-flight requests finished
}
