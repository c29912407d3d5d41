package coordinator

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// Applier é a face do engine que aplica callbacks. Cada método é uma
// transação atômica com rejeição de replay embutida.
type Applier interface {
	ApplyInitCallback(ctx context.Context, compID string, out circuit.AggregateOutput) error
	ApplyAggregateCallback(ctx context.Context, compID string, out circuit.AggregateOutput) error
	ApplyPayoutSplitCallback(ctx context.Context, compID string, out circuit.SplitOutput) error
	FailComputation(ctx context.Context, compID, reason string) error
}

// Dispatcher valida e despacha resultados de computação. A assinatura do
// cluster é verificada antes de qualquer decodificação; resultado sem
// assinatura válida nunca chega ao engine.
type Dispatcher struct {
	log     *zap.Logger
	pub     ed25519.PublicKey
	applier Applier
}

func NewDispatcher(log *zap.Logger, pub ed25519.PublicKey, applier Applier) *Dispatcher {
	return &Dispatcher{log: log, pub: pub, applier: applier}
}

// HandleResult processa um resultado assinado. Erros fatais
// (ErrBadClusterSignature, ErrUnknownComputation, ErrComputationReplayed,
// ErrNonceMismatch e decodificação) cabem ao chamador mandar pra DLQ;
// o resto é retryável.
func (d *Dispatcher) HandleResult(ctx context.Context, res events.ComputationCompleted) error {
	sig, err := hex.DecodeString(res.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", domain.ErrBadClusterSignature)
	}

	if res.Aborted {
		payload := circuit.AbortPayload(res.AbortReason)
		if !circuit.VerifyOutputSignature(d.pub, res.ComputationID, res.Circuit, payload, sig) {
			return domain.ErrBadClusterSignature
		}
		d.log.Warn("computation aborted by cluster",
			zap.String("computation_id", res.ComputationID),
			zap.String("circuit", res.Circuit),
			zap.String("reason", res.AbortReason))
		return d.applier.FailComputation(ctx, res.ComputationID, res.AbortReason)
	}

	if !circuit.VerifyOutputSignature(d.pub, res.ComputationID, res.Circuit, res.Output, sig) {
		return domain.ErrBadClusterSignature
	}

	switch res.Circuit {
	case circuit.CircuitInitAggregate:
		var out circuit.AggregateOutput
		if err := json.Unmarshal(res.Output, &out); err != nil {
			return fmt.Errorf("decode %s output: %w", res.Circuit, err)
		}
		return d.applier.ApplyInitCallback(ctx, res.ComputationID, out)

	case circuit.CircuitAggregateBet:
		var out circuit.AggregateOutput
		if err := json.Unmarshal(res.Output, &out); err != nil {
			return fmt.Errorf("decode %s output: %w", res.Circuit, err)
		}
		return d.applier.ApplyAggregateCallback(ctx, res.ComputationID, out)

	case circuit.CircuitPayoutSplit:
		var out circuit.SplitOutput
		if err := json.Unmarshal(res.Output, &out); err != nil {
			return fmt.Errorf("decode %s output: %w", res.Circuit, err)
		}
		return d.applier.ApplyPayoutSplitCallback(ctx, res.ComputationID, out)
	}

	// Circuitos só de leitura (verify_bet_claim, get_bet_count) não mudam
	// estado; qualquer outro nome é um resultado que não emitimos.
	return fmt.Errorf("%w: unexpected circuit %q", domain.ErrUnknownComputation, res.Circuit)
}
