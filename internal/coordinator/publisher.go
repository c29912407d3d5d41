// Package coordinator liga o motor de liquidação à rede de computação
// confidencial via Kafka: publica requisições em mpc_requests e despacha
// resultados assinados de mpc_results de volta para o engine.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// KafkaPublisher implementa engine.ComputationQueue e engine.Notifier
type KafkaPublisher struct {
	requests *kafkago.Writer
	notices  *kafkago.Writer
}

func NewKafkaPublisher(requests, notices *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{requests: requests, notices: notices}
}

// PublishComputation enfileira uma requisição para o cluster. A chave é o
// market_id, então requisições do mesmo mercado preservam ordem de partição.
func (p *KafkaPublisher) PublishComputation(ctx context.Context, req events.ComputationRequested) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return p.requests.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(req.MarketID),
		Value: b,
		Time:  time.Now(),
	})
}

// PublishMarketEvent publica uma notificação de transição no tópico de
// eventos de mercado. Melhor esforço do ponto de vista do chamador.
func (p *KafkaPublisher) PublishMarketEvent(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env, err := json.Marshal(events.MarketEvent{
		Type:     eventType,
		TsUnixMs: time.Now().UnixMilli(),
		Payload:  body,
	})
	if err != nil {
		return err
	}
	return p.notices.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(eventType),
		Value: env,
		Time:  time.Now(),
	})
}
