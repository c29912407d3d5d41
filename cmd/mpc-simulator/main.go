package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/mpc/mpcsim"
	"github.com/radieske/veil-market-poc/internal/shared/config"
	"github.com/radieske/veil-market-poc/internal/shared/kafka"
	"github.com/radieske/veil-market-poc/internal/shared/logger"
	"github.com/radieske/veil-market-poc/internal/shared/metrics"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// mpc-simulator faz o papel do cluster de computação confidencial no
// ambiente local: consome mpc_requests, executa o circuito pedido sobre
// os blobs cifrados e publica o resultado assinado no tópico de resposta.

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	sim, err := mpcsim.New(cfg.ClusterSecretHex)
	if err != nil {
		log.Fatal("cluster secret", zap.Error(err))
	}
	runner, err := mpcsim.NewRunner(sim, cfg.ClusterKeySeedHex)
	if err != nil {
		log.Fatal("cluster signing key", zap.Error(err))
	}

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMpcRequests, "mpc-simulator")
	defer reader.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMpcRequestsDLQ)
	defer dlqWriter.Close()

	// um writer por tópico de resposta, reaproveitado entre mensagens
	replyWriters := map[string]*kafka.Writer{
		cfg.TopicMpcResults: kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMpcResults),
	}
	defer func() {
		for _, w := range replyWriters {
			_ = w.Close()
		}
	}()

	executed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mpc_sim_computations_total", Help: "computações executadas por circuito"}, []string{"circuit"})
	aborted := prometheus.NewCounter(prometheus.CounterOpts{Name: "mpc_sim_computations_aborted_total", Help: "computações abortadas"})
	prometheus.MustRegister(executed, aborted)

	metrics.StartMetricsServer(cfg.MetricsPort, nil)

	log.Info("mpc-simulator started",
		zap.String("consume", cfg.TopicMpcRequests),
		zap.String("publish", cfg.TopicMpcResults))

	ctx := context.Background()
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var req events.ComputationRequested
		if jerr := json.Unmarshal(value, &req); jerr != nil {
			log.Error("unmarshal computation request", zap.Error(jerr))
			_ = kafka.WriteJSON(ctx, dlqWriter, "", value)
			continue
		}

		res := runner.Handle(ctx, req)
		executed.WithLabelValues(req.Circuit).Inc()
		if res.Aborted {
			aborted.Inc()
			log.Warn("computation aborted",
				zap.String("computation_id", req.ComputationID),
				zap.String("circuit", req.Circuit),
				zap.String("reason", res.AbortReason))
		}

		body, _ := json.Marshal(res)
		// Resultado vai pro tópico pedido na requisição; default do sistema
		// se o campo vier vazio
		topic := req.ReplyTopic
		if topic == "" {
			topic = cfg.TopicMpcResults
		}
		w, ok := replyWriters[topic]
		if !ok {
			w = kafka.NewWriter(cfg.KafkaBrokers, topic)
			replyWriters[topic] = w
		}
		if err := kafka.WriteJSON(ctx, w, req.MarketID, body); err != nil {
			log.Error("publish result", zap.String("computation_id", req.ComputationID), zap.Error(err))
		}
	}
}
