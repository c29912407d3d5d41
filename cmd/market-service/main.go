package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/coordinator"
	mcache "github.com/radieske/veil-market-poc/internal/market/cache"
	"github.com/radieske/veil-market-poc/internal/market/engine"
	mhttp "github.com/radieske/veil-market-poc/internal/market/http"
	"github.com/radieske/veil-market-poc/internal/market/repo"
	"github.com/radieske/veil-market-poc/internal/shared/cache"
	"github.com/radieske/veil-market-poc/internal/shared/config"
	"github.com/radieske/veil-market-poc/internal/shared/db"
	"github.com/radieske/veil-market-poc/internal/shared/kafka"
	"github.com/radieske/veil-market-poc/internal/shared/logger"
	"github.com/radieske/veil-market-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	store := repo.NewPostgres(pg)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatal("schema", zap.Error(err))
	}

	// Redis (cache de snapshots de mercado)
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	snaps := mcache.NewMarketSnapshots(rdb, 2*time.Second)

	// Kafka writers: requisições pro cluster MPC e eventos de mercado
	reqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMpcRequests)
	defer reqWriter.Close()
	evWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketEvents)
	defer evWriter.Close()
	publisher := coordinator.NewKafkaPublisher(reqWriter, evWriter)

	eng := engine.New(log, store, publisher, publisher, cfg.MinStake, cfg.MaxStake, cfg.TopicMpcResults)

	// HTTP público
	api := mhttp.NewServer(log, eng, snaps)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	log.Info("market-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
