package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/coordinator"
	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/market/engine"
	"github.com/radieske/veil-market-poc/internal/market/repo"
	"github.com/radieske/veil-market-poc/internal/shared/config"
	"github.com/radieske/veil-market-poc/internal/shared/db"
	"github.com/radieske/veil-market-poc/internal/shared/kafka"
	"github.com/radieske/veil-market-poc/internal/shared/logger"
	"github.com/radieske/veil-market-poc/internal/shared/metrics"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	store := repo.NewPostgres(pg)

	pub, err := clusterPubKey(cfg)
	if err != nil {
		log.Fatal("cluster pubkey", zap.Error(err))
	}

	// Kafka: consome resultados assinados, publica eventos e manda
	// resultado irrecuperável pra DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMpcResults, "mpc-callback")
	defer reader.Close()
	evWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketEvents)
	defer evWriter.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMpcResultsDLQ)
	defer dlqWriter.Close()

	// O worker não enfileira computações novas; a fila fica nil de
	// propósito pra qualquer uso indevido falhar alto nos testes
	publisher := coordinator.NewKafkaPublisher(nil, evWriter)
	eng := engine.New(log, store, publisher, publisher, cfg.MinStake, cfg.MaxStake, cfg.TopicMpcResults)
	disp := coordinator.NewDispatcher(log, pub, eng)

	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "mpc_callback_results_consumed_total", Help: "resultados consumidos"})
	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "mpc_callback_results_applied_total", Help: "callbacks aplicados"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "mpc_callback_results_replayed_total", Help: "resultados duplicados descartados"})
	deadlettered := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mpc_callback_results_dlq_total", Help: "resultados enviados pra DLQ por motivo"}, []string{"reason"})
	prometheus.MustRegister(consumed, applied, dropped, deadlettered)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	log.Info("mpc-callback-worker started",
		zap.String("consume", cfg.TopicMpcResults),
		zap.String("dlq", cfg.TopicMpcResultsDLQ))

	ctx := context.Background()
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		consumed.Inc()

		var res events.ComputationCompleted
		if jerr := json.Unmarshal(value, &res); jerr != nil {
			log.Error("unmarshal computation result", zap.Error(jerr))
			deadlettered.WithLabelValues("unmarshal").Inc()
			_ = kafka.WriteJSON(ctx, dlqWriter, "", value)
			continue
		}

		if err := applyWithRetry(ctx, disp, res); err != nil {
			// Duplicata de entrega: o callback já foi aplicado, descarta
			if errors.Is(err, domain.ErrComputationReplayed) {
				dropped.Inc()
				continue
			}
			log.Error("apply computation result",
				zap.String("computation_id", res.ComputationID),
				zap.String("circuit", res.Circuit),
				zap.Error(err))
			deadlettered.WithLabelValues(dlqReason(err)).Inc()
			_ = kafka.WriteJSON(ctx, dlqWriter, res.ComputationID, value)
			continue
		}
		applied.Inc()
	}
}

// applyWithRetry tenta aplicar o resultado; erro fatal desiste na hora,
// erro transitório (banco, etc.) tenta de novo com backoff antes de
// entregar pra DLQ.
func applyWithRetry(ctx context.Context, disp *coordinator.Dispatcher, res events.ComputationCompleted) error {
	const retries = 3
	var err error
	for i := 0; i <= retries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(300*i) * time.Millisecond)
		}
		err = disp.HandleResult(ctx, res)
		if err == nil || isFatal(err) {
			return err
		}
	}
	return err
}

// isFatal marca os erros que nenhum retry resolve: assinatura inválida,
// computação desconhecida/duplicada, nonce obsoleto e saída malformada
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrBadClusterSignature) ||
		errors.Is(err, domain.ErrUnknownComputation) ||
		errors.Is(err, domain.ErrComputationReplayed) ||
		errors.Is(err, domain.ErrNonceMismatch) ||
		errors.Is(err, domain.ErrAggregateAlreadyInitialized)
}

func dlqReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBadClusterSignature):
		return "bad_signature"
	case errors.Is(err, domain.ErrUnknownComputation):
		return "unknown_computation"
	case errors.Is(err, domain.ErrNonceMismatch):
		return "nonce_mismatch"
	case errors.Is(err, domain.ErrAggregateAlreadyInitialized):
		return "already_initialized"
	default:
		return "other"
	}
}

// clusterPubKey resolve a chave de verificação: a configurada, ou a
// derivada do seed de assinatura em ambiente local
func clusterPubKey(cfg config.Config) (ed25519.PublicKey, error) {
	if cfg.ClusterPubKeyHex != "" {
		b, err := hex.DecodeString(cfg.ClusterPubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decode cluster pubkey: %w", err)
		}
		if len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("cluster pubkey has %d bytes, want %d", len(b), ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(b), nil
	}
	seed, err := hex.DecodeString(cfg.ClusterKeySeedHex)
	if err != nil {
		return nil, fmt.Errorf("decode cluster key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("cluster key seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey), nil
}
