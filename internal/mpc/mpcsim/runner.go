package mpcsim

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// Runner executa requisições de computação como o cluster MPC faria:
// roda o circuito pedido e assina a saída (ou o aborto) com a chave do
// cluster. Usado pelo mpc-simulator e pelos testes de ponta a ponta.
type Runner struct {
	Sim  *Simulator
	Priv ed25519.PrivateKey
}

func NewRunner(sim *Simulator, seedHex string) (*Runner, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode cluster key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("cluster key seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return &Runner{Sim: sim, Priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Handle executa a requisição e monta o resultado assinado. Erros de
// execução viram um resultado abortado (assinado), nunca um pânico.
func (r *Runner) Handle(ctx context.Context, req events.ComputationRequested) events.ComputationCompleted {
	payload, err := r.execute(ctx, req)
	if err != nil {
		abort := circuit.AbortPayload(err.Error())
		return events.ComputationCompleted{
			ComputationID: req.ComputationID,
			Circuit:       req.Circuit,
			MarketID:      req.MarketID,
			Aborted:       true,
			AbortReason:   err.Error(),
			Signature:     hex.EncodeToString(circuit.SignOutput(r.Priv, req.ComputationID, req.Circuit, abort)),
			TsUnixMs:      time.Now().UnixMilli(),
		}
	}
	return events.ComputationCompleted{
		ComputationID: req.ComputationID,
		Circuit:       req.Circuit,
		MarketID:      req.MarketID,
		Output:        payload,
		Signature:     hex.EncodeToString(circuit.SignOutput(r.Priv, req.ComputationID, req.Circuit, payload)),
		TsUnixMs:      time.Now().UnixMilli(),
	}
}

func (r *Runner) execute(ctx context.Context, req events.ComputationRequested) (json.RawMessage, error) {
	switch req.Circuit {
	case circuit.CircuitInitAggregate:
		agg, nonce, err := r.Sim.Init(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(circuit.AggregateOutput{Aggregate: agg.Hex(), Nonce: nonce})

	case circuit.CircuitAggregateBet:
		agg, bet, pub, err := parseBetArgs(req)
		if err != nil {
			return nil, err
		}
		newAgg, newNonce, err := r.Sim.AggregateBet(ctx, bet, pub, req.BettorNonce, agg, req.AggregateNonce)
		if err != nil {
			return nil, err
		}
		return json.Marshal(circuit.AggregateOutput{Aggregate: newAgg.Hex(), Nonce: newNonce})

	case circuit.CircuitRevealTotals:
		agg, err := circuit.ParseAggregate(req.Aggregate)
		if err != nil {
			return nil, err
		}
		t, err := r.Sim.RevealTotals(ctx, agg, req.AggregateNonce)
		if err != nil {
			return nil, err
		}
		return json.Marshal(circuit.TotalsOutput{YesPool: t.Yes, NoPool: t.No, TotalPool: t.Total})

	case circuit.CircuitPayoutSplit:
		agg, err := circuit.ParseAggregate(req.Aggregate)
		if err != nil {
			return nil, err
		}
		if req.Outcome == nil {
			return nil, fmt.Errorf("payout split requires an outcome")
		}
		split, err := r.Sim.ComputePayoutSplit(ctx, agg, req.AggregateNonce, *req.Outcome)
		if err != nil {
			return nil, err
		}
		return json.Marshal(circuit.SplitOutput{
			WinningPool: split.WinningPool,
			LosingPool:  split.LosingPool,
			TotalPool:   split.TotalPool,
			Outcome:     split.Outcome,
		})

	case circuit.CircuitVerifyClaim:
		// Verificação não toca o agregado; só a aposta original entra
		bet, pub, err := parseEncryptedBet(req)
		if err != nil {
			return nil, err
		}
		if req.Outcome == nil || req.ClaimedAmount == nil {
			return nil, fmt.Errorf("claim verification requires outcome and claimed amount")
		}
		ok, err := r.Sim.VerifyClaim(ctx, bet, pub, req.BettorNonce, *req.Outcome, *req.ClaimedAmount)
		if err != nil {
			return nil, err
		}
		return json.Marshal(circuit.VerifyOutput{Matches: ok})

	case circuit.CircuitBetCount:
		agg, err := circuit.ParseAggregate(req.Aggregate)
		if err != nil {
			return nil, err
		}
		count, err := r.Sim.BetCount(ctx, agg, req.AggregateNonce)
		if err != nil {
			return nil, err
		}
		return json.Marshal(circuit.CountOutput{Count: count})

	default:
		return nil, fmt.Errorf("unknown circuit %q", req.Circuit)
	}
}

func parseBetArgs(req events.ComputationRequested) (circuit.Aggregate, circuit.EncryptedBet, [32]byte, error) {
	agg, err := circuit.ParseAggregate(req.Aggregate)
	if err != nil {
		return agg, circuit.EncryptedBet{}, [32]byte{}, err
	}
	bet, pub, err := parseEncryptedBet(req)
	return agg, bet, pub, err
}

func parseEncryptedBet(req events.ComputationRequested) (circuit.EncryptedBet, [32]byte, error) {
	var bet circuit.EncryptedBet
	var pub [32]byte
	var err error
	if bet[fieldOutcome], err = circuit.ParseCiphertext(req.EncryptedOutcome); err != nil {
		return bet, pub, err
	}
	if bet[fieldAmount], err = circuit.ParseCiphertext(req.EncryptedAmount); err != nil {
		return bet, pub, err
	}
	raw, err := hex.DecodeString(req.BettorPubKey)
	if err != nil || len(raw) != len(pub) {
		return bet, pub, fmt.Errorf("bad bettor pubkey")
	}
	copy(pub[:], raw)
	return bet, pub, nil
}
