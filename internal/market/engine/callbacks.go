package engine

import (
	"context"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// Callbacks da rede de computação confidencial. O worker já verificou a
// assinatura do cluster antes de chegar aqui; este arquivo garante o
// exactly-once (replay rejeitado pelo registro de computação) e o casamento
// de nonce do agregado. Cada applier é uma transação atômica.

// takeComputation trava o registro da computação e garante que ela ainda
// está pendente e é do circuito esperado.
func takeComputation(ctx context.Context, tx Tx, compID, wantCircuit string) (*domain.Computation, error) {
	comp, err := tx.GetComputationForUpdate(ctx, compID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownComputation
		}
		return nil, err
	}
	if comp.Circuit != wantCircuit {
		return nil, domain.ErrUnknownComputation
	}
	if comp.Status != domain.ComputationQueued {
		return nil, domain.ErrComputationReplayed
	}
	return comp, nil
}

func (e *Engine) markApplied(ctx context.Context, tx Tx, comp *domain.Computation) error {
	now := e.now()
	comp.Status = domain.ComputationApplied
	comp.AppliedAt = &now
	return tx.UpdateComputation(ctx, comp)
}

// ApplyInitCallback aplica o resultado de init_market_state: instala o
// agregado zerado e o primeiro nonce de versão.
func (e *Engine) ApplyInitCallback(ctx context.Context, compID string, out circuit.AggregateOutput) error {
	var marketID, nonce string

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		comp, err := takeComputation(ctx, tx, compID, circuit.CircuitInitAggregate)
		if err != nil {
			return err
		}
		m, err := tx.GetMarketForUpdate(ctx, comp.MarketID)
		if err != nil {
			return err
		}
		if m.AggregateInitialized {
			return domain.ErrAggregateAlreadyInitialized
		}

		agg, err := circuit.ParseAggregate(out.Aggregate)
		if err != nil {
			return err
		}
		m.Aggregate = agg
		m.AggregateNonce = out.Nonce
		m.AggregateInitialized = true
		if m.InFlightComputation == compID {
			m.InFlightComputation = ""
		}
		marketID, nonce = m.ID, out.Nonce

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		return e.markApplied(ctx, tx, comp)
	})
	if err != nil {
		return err
	}

	e.log.Info("aggregate initialized",
		zap.String("market_id", marketID),
		zap.String("computation_id", compID))

	e.publishEvent(ctx, events.TypeAggregateInitialized, events.AggregateInitialized{
		MarketID:       marketID,
		AggregateNonce: nonce,
	})
	return nil
}

// ApplyAggregateCallback aplica o resultado de place_bet: troca o par
// (agregado, nonce), incrementa a contagem e confirma a aposta. O nonce
// atual do mercado precisa ser o mesmo contra o qual a computação foi
// emitida; de outro modo o resultado é descartado como obsoleto.
func (e *Engine) ApplyAggregateCallback(ctx context.Context, compID string, out circuit.AggregateOutput) error {
	var marketID, bettor string
	var betIndex uint32
	var cancelled bool

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		comp, err := takeComputation(ctx, tx, compID, circuit.CircuitAggregateBet)
		if err != nil {
			return err
		}
		m, err := tx.GetMarketForUpdate(ctx, comp.MarketID)
		if err != nil {
			return err
		}
		if m.AggregateNonce != comp.IssuedNonce {
			return domain.ErrNonceMismatch
		}

		// Mercado cancelado: o resultado chegou tarde demais. A computação
		// é consumida mesmo assim (exactly-once), mas nem o agregado nem a
		// aposta mudam — uma aposta já reembolsada nunca volta a Confirmed.
		if m.Status == domain.MarketCancelled {
			cancelled = true
			marketID = m.ID
			if m.InFlightComputation == compID {
				m.InFlightComputation = ""
				if err := tx.UpdateMarket(ctx, m); err != nil {
					return err
				}
			}
			return e.markApplied(ctx, tx, comp)
		}

		agg, err := circuit.ParseAggregate(out.Aggregate)
		if err != nil {
			return err
		}
		m.Aggregate = agg
		m.AggregateNonce = out.Nonce
		m.BetCount++
		if m.InFlightComputation == compID {
			m.InFlightComputation = ""
		}

		b, err := tx.GetBetForUpdate(ctx, comp.MarketID, comp.Bettor)
		if err != nil {
			return err
		}
		if b.Status == domain.BetPending {
			now := e.now()
			b.Status = domain.BetConfirmed
			b.ConfirmedAt = &now
		}

		marketID, bettor, betIndex = m.ID, b.Bettor, b.BetIndex

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		if err := tx.UpdateBet(ctx, b); err != nil {
			return err
		}
		return e.markApplied(ctx, tx, comp)
	})
	if err != nil {
		return err
	}

	if cancelled {
		e.log.Info("late aggregate dropped, market cancelled",
			zap.String("market_id", marketID),
			zap.String("computation_id", compID))
		return nil
	}

	e.log.Info("bet confirmed",
		zap.String("market_id", marketID),
		zap.String("bettor", bettor),
		zap.String("computation_id", compID))

	e.publishEvent(ctx, events.TypeBetConfirmed, events.BetConfirmed{
		MarketID: marketID,
		Bettor:   bettor,
		BetIndex: betIndex,
	})
	return nil
}

// ApplyPayoutSplitCallback aplica o resultado de calculate_payout_pools:
// grava o outcome, os totais revelados e transiciona para Resolved. Os
// pools yes/no saem do par vencedor/perdedor conforme o outcome.
func (e *Engine) ApplyPayoutSplitCallback(ctx context.Context, compID string, out circuit.SplitOutput) error {
	var resolved events.MarketResolved

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		comp, err := takeComputation(ctx, tx, compID, circuit.CircuitPayoutSplit)
		if err != nil {
			return err
		}
		m, err := tx.GetMarketForUpdate(ctx, comp.MarketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketResolving {
			return domain.ErrMarketNotClosed
		}
		if m.AggregateNonce != comp.IssuedNonce {
			return domain.ErrNonceMismatch
		}

		outcome := out.Outcome
		m.Outcome = &outcome
		if outcome {
			m.RevealedYesPool = out.WinningPool
			m.RevealedNoPool = out.LosingPool
		} else {
			m.RevealedYesPool = out.LosingPool
			m.RevealedNoPool = out.WinningPool
		}
		m.RevealedTotalPool = out.TotalPool
		m.Status = domain.MarketResolved
		if m.InFlightComputation == compID {
			m.InFlightComputation = ""
		}

		resolved = events.MarketResolved{
			MarketID:  m.ID,
			Outcome:   outcome,
			YesPool:   m.RevealedYesPool,
			NoPool:    m.RevealedNoPool,
			TotalPool: m.RevealedTotalPool,
		}

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		return e.markApplied(ctx, tx, comp)
	})
	if err != nil {
		return err
	}

	e.log.Info("market resolved",
		zap.String("market_id", resolved.MarketID),
		zap.Bool("outcome", resolved.Outcome),
		zap.Uint64("total_pool", resolved.TotalPool))

	e.publishEvent(ctx, events.TypeMarketResolved, resolved)
	return nil
}

// FailComputation registra um abort do cluster (ou um resultado fatalmente
// inválido) e solta a guarda de computação pendente. Um mercado em
// Resolving volta a aceitar reenvio da resolução; uma aposta cujo
// aggregate abortou fica Pending e só sai via cancelamento + reembolso.
func (e *Engine) FailComputation(ctx context.Context, compID, reason string) error {
	var marketID string

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		comp, err := tx.GetComputationForUpdate(ctx, compID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUnknownComputation
			}
			return err
		}
		if comp.Status != domain.ComputationQueued {
			return domain.ErrComputationReplayed
		}
		comp.Status = domain.ComputationFailed
		comp.FailReason = reason
		if err := tx.UpdateComputation(ctx, comp); err != nil {
			return err
		}

		m, err := tx.GetMarketForUpdate(ctx, comp.MarketID)
		if err != nil {
			return err
		}
		marketID = m.ID
		if m.InFlightComputation == compID {
			m.InFlightComputation = ""
			return tx.UpdateMarket(ctx, m)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Warn("computation failed",
		zap.String("market_id", marketID),
		zap.String("computation_id", compID),
		zap.String("reason", reason))
	return nil
}

func bettorPubHex(pub [32]byte) string { return hex.EncodeToString(pub[:]) }
