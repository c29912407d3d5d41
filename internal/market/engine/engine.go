// Package engine é o motor de liquidação do mercado confidencial. Cada
// entry point roda como uma transação atômica sobre o Store; computações
// confidenciais são enfileiradas dentro da mesma transação, de forma que
// uma falha de publicação desfaz o estado junto.
package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

type Engine struct {
	log      *zap.Logger
	store    Store
	queue    ComputationQueue
	notify   Notifier
	minStake uint64
	maxStake uint64
	// tópico onde o cluster publica resultados assinados
	replyTopic string

	now func() time.Time
}

func New(log *zap.Logger, store Store, queue ComputationQueue, notify Notifier, minStake, maxStake uint64, replyTopic string) *Engine {
	return &Engine{
		log:        log,
		store:      store,
		queue:      queue,
		notify:     notify,
		minStake:   minStake,
		maxStake:   maxStake,
		replyTopic: replyTopic,
		now:        time.Now,
	}
}

// CreateMarketParams é a configuração imutável de um mercado novo
type CreateMarketParams struct {
	Creator        string
	MarketRef      uint64
	Question       string
	ResolutionTime time.Time
	FeeBps         uint16
	OracleMode     domain.OracleMode
}

// CreateMarket cria o mercado em Open com agregado ainda não inicializado
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (*domain.Market, error) {
	now := e.now()
	if p.Creator == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := domain.ValidateCreate(p.Question, p.ResolutionTime, now, p.OracleMode, p.FeeBps); err != nil {
		return nil, err
	}

	m := &domain.Market{
		ID:             uuid.New().String(),
		MarketRef:      p.MarketRef,
		Creator:        p.Creator,
		Question:       p.Question,
		ResolutionTime: p.ResolutionTime,
		CreatedAt:      now,
		FeeBps:         p.FeeBps,
		OracleMode:     p.OracleMode,
		Status:         domain.MarketOpen,
		VaultID:        uuid.New().String(),
	}

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		taken, err := tx.MarketRefExists(ctx, p.Creator, p.MarketRef)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrMarketRefTaken
		}
		if err := tx.InsertMarket(ctx, m); err != nil {
			return err
		}
		return tx.InsertVault(ctx, &domain.Vault{ID: m.VaultID, MarketID: m.ID})
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("market created",
		zap.String("market_id", m.ID),
		zap.Uint64("market_ref", m.MarketRef),
		zap.String("creator", m.Creator))

	e.publishEvent(ctx, events.TypeMarketCreated, events.MarketCreated{
		MarketID:       m.ID,
		MarketRef:      m.MarketRef,
		Creator:        m.Creator,
		Question:       m.Question,
		ResolutionTime: m.ResolutionTime.Unix(),
		FeeBps:         m.FeeBps,
	})
	return m, nil
}

// InitAggregate enfileira a computação que zera o acumulador cifrado do
// mercado. Só o criador pode chamar, só uma vez, e a guarda de computação
// pendente fica armada até o callback chegar.
func (e *Engine) InitAggregate(ctx context.Context, marketID, caller string) (string, error) {
	compID := uuid.New().String()
	now := e.now()

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if err := domain.CanQueueInit(m, caller); err != nil {
			return err
		}

		comp := &domain.Computation{
			ID:       compID,
			MarketID: m.ID,
			Circuit:  circuit.CircuitInitAggregate,
			Status:   domain.ComputationQueued,
			QueuedAt: now,
		}
		if err := tx.InsertComputation(ctx, comp); err != nil {
			return err
		}
		m.InFlightComputation = compID
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		// Publicação dentro da transação: se a fila recusar, nada comita
		// e o mercado não fica preso atrás de uma guarda órfã.
		return e.queue.PublishComputation(ctx, events.ComputationRequested{
			ComputationID: compID,
			Circuit:       circuit.CircuitInitAggregate,
			MarketID:      m.ID,
			ReplyTopic:    e.replyTopic,
			TsUnixMs:      now.UnixMilli(),
		})
	})
	if err != nil {
		return "", err
	}

	e.log.Info("aggregate init queued",
		zap.String("market_id", marketID),
		zap.String("computation_id", compID))

	e.publishEvent(ctx, events.TypeAggregateInitRequested, events.AggregateInitRequested{
		MarketID:      marketID,
		ComputationID: compID,
	})
	return compID, nil
}

// PlaceBetParams é uma aposta cifrada submetida por um apostador
type PlaceBetParams struct {
	MarketID     string
	Bettor       string
	Stake        uint64
	EncryptedBet circuit.EncryptedBet
	BettorPubKey [32]byte
	BettorNonce  string
}

// PlaceBet debita a carteira do apostador, credita o vault do mercado,
// grava a aposta em Pending e enfileira a agregação confidencial — tudo
// na mesma transação. A aposta só vira Confirmed no callback.
func (e *Engine) PlaceBet(ctx context.Context, p PlaceBetParams) (*domain.BetRecord, string, error) {
	if p.Bettor == "" || p.BettorNonce == "" {
		return nil, "", domain.ErrInvalidInput
	}

	compID := uuid.New().String()
	now := e.now()
	var bet *domain.BetRecord

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, p.MarketID)
		if err != nil {
			return err
		}
		if err := domain.CanPlaceBet(m, now, p.Stake, e.minStake, e.maxStake); err != nil {
			return err
		}

		// No máximo uma aposta por apostador por mercado
		if _, err := tx.GetBetForUpdate(ctx, m.ID, p.Bettor); err == nil {
			return domain.ErrBetAlreadyPlaced
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		w, err := tx.GetWalletForUpdate(ctx, p.Bettor)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrInsufficientFunds
			}
			return err
		}
		if err := w.Debit(p.Stake); err != nil {
			return err
		}
		if err := tx.UpsertWallet(ctx, w); err != nil {
			return err
		}

		v, err := tx.GetVaultForUpdate(ctx, m.ID)
		if err != nil {
			return err
		}
		if err := v.Deposit(p.Stake); err != nil {
			return err
		}
		if err := tx.UpdateVault(ctx, v); err != nil {
			return err
		}

		bet = &domain.BetRecord{
			ID:           uuid.New().String(),
			MarketID:     m.ID,
			Bettor:       p.Bettor,
			BetIndex:     m.BetCount,
			EncryptedBet: p.EncryptedBet,
			BettorPubKey: p.BettorPubKey,
			BettorNonce:  p.BettorNonce,
			Stake:        p.Stake,
			Status:       domain.BetPending,
			PlacedAt:     now,
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			return err
		}

		comp := &domain.Computation{
			ID:          compID,
			MarketID:    m.ID,
			Circuit:     circuit.CircuitAggregateBet,
			Bettor:      p.Bettor,
			IssuedNonce: m.AggregateNonce,
			Status:      domain.ComputationQueued,
			QueuedAt:    now,
		}
		if err := tx.InsertComputation(ctx, comp); err != nil {
			return err
		}

		if p.Stake > math.MaxUint64-m.TotalLiquidityApprox {
			return domain.ErrOverflow
		}
		m.TotalLiquidityApprox += p.Stake
		m.InFlightComputation = compID
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		return e.queue.PublishComputation(ctx, events.ComputationRequested{
			ComputationID:    compID,
			Circuit:          circuit.CircuitAggregateBet,
			MarketID:         m.ID,
			Aggregate:        m.Aggregate.Hex(),
			AggregateNonce:   m.AggregateNonce,
			EncryptedOutcome: p.EncryptedBet[0].Hex(),
			EncryptedAmount:  p.EncryptedBet[1].Hex(),
			BettorPubKey:     bettorPubHex(p.BettorPubKey),
			BettorNonce:      p.BettorNonce,
			ReplyTopic:       e.replyTopic,
			TsUnixMs:         now.UnixMilli(),
		})
	})
	if err != nil {
		return nil, "", err
	}

	e.log.Info("bet placed",
		zap.String("market_id", p.MarketID),
		zap.String("bettor", p.Bettor),
		zap.Uint64("stake", p.Stake),
		zap.String("computation_id", compID))

	e.publishEvent(ctx, events.TypeBetPlaced, events.BetPlaced{
		MarketID:      p.MarketID,
		Bettor:        p.Bettor,
		BetIndex:      bet.BetIndex,
		Stake:         p.Stake,
		ComputationID: compID,
	})
	return bet, compID, nil
}

// CloseMarket fecha o período de apostas. Não toca o agregado, então pode
// rodar mesmo com uma agregação pendente.
func (e *Engine) CloseMarket(ctx context.Context, marketID, caller string) error {
	var closed *domain.Market
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if err := domain.CanClose(m, caller, e.now()); err != nil {
			return err
		}
		m.Status = domain.MarketClosed
		closed = m
		return tx.UpdateMarket(ctx, m)
	})
	if err != nil {
		return err
	}

	e.log.Info("market closed", zap.String("market_id", marketID), zap.String("closed_by", caller))
	e.publishEvent(ctx, events.TypeMarketClosed, events.MarketClosed{
		MarketID:       marketID,
		ClosedBy:       caller,
		BetCount:       closed.BetCount,
		TotalLiquidity: closed.TotalLiquidityApprox,
	})
	return nil
}

// ResolveMarket enfileira a computação que declassifica os pools já
// separados em vencedor/perdedor. O mercado fica em Resolving até o
// callback; se a computação abortar, pode ser reenviada.
func (e *Engine) ResolveMarket(ctx context.Context, marketID, resolver string, outcome bool) (string, error) {
	compID := uuid.New().String()
	now := e.now()

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if err := domain.CanQueueResolve(m, resolver); err != nil {
			return err
		}

		comp := &domain.Computation{
			ID:          compID,
			MarketID:    m.ID,
			Circuit:     circuit.CircuitPayoutSplit,
			IssuedNonce: m.AggregateNonce,
			Status:      domain.ComputationQueued,
			QueuedAt:    now,
		}
		if err := tx.InsertComputation(ctx, comp); err != nil {
			return err
		}
		m.Status = domain.MarketResolving
		m.InFlightComputation = compID
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		o := outcome
		return e.queue.PublishComputation(ctx, events.ComputationRequested{
			ComputationID:  compID,
			Circuit:        circuit.CircuitPayoutSplit,
			MarketID:       m.ID,
			Aggregate:      m.Aggregate.Hex(),
			AggregateNonce: m.AggregateNonce,
			Outcome:        &o,
			ReplyTopic:     e.replyTopic,
			TsUnixMs:       now.UnixMilli(),
		})
	})
	if err != nil {
		return "", err
	}

	e.log.Info("resolution queued",
		zap.String("market_id", marketID),
		zap.Bool("outcome", outcome),
		zap.String("computation_id", compID))

	e.publishEvent(ctx, events.TypeResolutionRequested, events.ResolutionRequested{
		MarketID:      marketID,
		Resolver:      resolver,
		Outcome:       outcome,
		ComputationID: compID,
	})
	return compID, nil
}

// ClaimPayout liquida o claim de um apostador contra os totais revelados.
// Perdedores recebem 0 e a aposta é marcada como resgatada do mesmo jeito,
// para que o registro feche. O segundo retorno diz se o lado reivindicado
// bateu com o resultado do mercado.
func (e *Engine) ClaimPayout(ctx context.Context, marketID, bettor string, claimedOutcome bool, claimedAmount uint64) (uint64, bool, error) {
	var payout uint64
	var won bool

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		b, err := tx.GetBetForUpdate(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if err := domain.CanClaim(m, b); err != nil {
			return err
		}

		payout, err = domain.Payout(b.Stake, claimedOutcome, claimedAmount, *m.Outcome,
			m.RevealedYesPool, m.RevealedNoPool, m.RevealedTotalPool, m.FeeBps)
		if err != nil {
			return err
		}
		won = claimedOutcome == *m.Outcome

		if payout > 0 {
			v, err := tx.GetVaultForUpdate(ctx, m.ID)
			if err != nil {
				return err
			}
			if err := v.Withdraw(payout); err != nil {
				return err
			}
			if err := tx.UpdateVault(ctx, v); err != nil {
				return err
			}
			if err := e.creditWallet(ctx, tx, bettor, payout); err != nil {
				return err
			}
		}

		b.Claimed = true
		b.Status = domain.BetClaimed
		b.Payout = &payout
		return tx.UpdateBet(ctx, b)
	})
	if err != nil {
		return 0, false, err
	}

	e.log.Info("payout claimed",
		zap.String("market_id", marketID),
		zap.String("bettor", bettor),
		zap.Uint64("payout", payout),
		zap.Bool("won", won))

	e.publishEvent(ctx, events.TypePayoutClaimed, events.PayoutClaimed{
		MarketID:  marketID,
		Bettor:    bettor,
		BetAmount: claimedAmount,
		Payout:    payout,
		Won:       won,
	})
	return payout, won, nil
}

// CancelMarket cancela um mercado em Open ou Closed. Os stakes ficam no
// vault até cada apostador pedir o reembolso.
func (e *Engine) CancelMarket(ctx context.Context, marketID, caller string) error {
	var cancelled *domain.Market
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if err := domain.CanCancel(m, caller); err != nil {
			return err
		}
		m.Status = domain.MarketCancelled
		cancelled = m
		return tx.UpdateMarket(ctx, m)
	})
	if err != nil {
		return err
	}

	e.log.Info("market cancelled", zap.String("market_id", marketID), zap.String("cancelled_by", caller))
	e.publishEvent(ctx, events.TypeMarketCancelled, events.MarketCancelled{
		MarketID:       marketID,
		CancelledBy:    caller,
		BetCount:       cancelled.BetCount,
		TotalLiquidity: cancelled.TotalLiquidityApprox,
	})
	return nil
}

// ClaimRefund devolve o stake integral de uma aposta em mercado cancelado.
// Vale também para apostas ainda Pending: o débito da carteira aconteceu
// no PlaceBet, então o reembolso não depende da confirmação.
func (e *Engine) ClaimRefund(ctx context.Context, marketID, bettor string) (uint64, error) {
	var refund uint64

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		b, err := tx.GetBetForUpdate(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if err := domain.CanRefund(m, b); err != nil {
			return err
		}

		refund = b.Stake
		v, err := tx.GetVaultForUpdate(ctx, m.ID)
		if err != nil {
			return err
		}
		if err := v.Withdraw(refund); err != nil {
			return err
		}
		if err := tx.UpdateVault(ctx, v); err != nil {
			return err
		}
		if err := e.creditWallet(ctx, tx, bettor, refund); err != nil {
			return err
		}

		b.Claimed = true
		b.Status = domain.BetRefunded
		b.Payout = &refund
		return tx.UpdateBet(ctx, b)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("refund claimed",
		zap.String("market_id", marketID),
		zap.String("bettor", bettor),
		zap.Uint64("refund", refund))

	e.publishEvent(ctx, events.TypeRefundClaimed, events.RefundClaimed{
		MarketID: marketID,
		Bettor:   bettor,
		Refund:   refund,
	})
	return refund, nil
}

// Deposit credita fundos na carteira do usuário, criando-a se necessário
func (e *Engine) Deposit(ctx context.Context, userID string, amount uint64) (*domain.Wallet, error) {
	if userID == "" || amount == 0 {
		return nil, domain.ErrInvalidInput
	}
	var w *domain.Wallet
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		w, err = tx.GetWalletForUpdate(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			w = &domain.Wallet{UserID: userID}
		} else if err != nil {
			return err
		}
		if err := w.Credit(amount); err != nil {
			return err
		}
		return tx.UpsertWallet(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Leituras soltas (sem trava); o caminho de consulta do serviço HTTP

func (e *Engine) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	return e.store.GetMarket(ctx, id)
}

func (e *Engine) GetVault(ctx context.Context, marketID string) (*domain.Vault, error) {
	return e.store.GetVault(ctx, marketID)
}

func (e *Engine) GetBet(ctx context.Context, marketID, bettor string) (*domain.BetRecord, error) {
	return e.store.GetBet(ctx, marketID, bettor)
}

func (e *Engine) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return e.store.GetWallet(ctx, userID)
}

func (e *Engine) creditWallet(ctx context.Context, tx Tx, userID string, amount uint64) error {
	w, err := tx.GetWalletForUpdate(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		w = &domain.Wallet{UserID: userID}
	} else if err != nil {
		return err
	}
	if err := w.Credit(amount); err != nil {
		return err
	}
	return tx.UpsertWallet(ctx, w)
}

func (e *Engine) publishEvent(ctx context.Context, eventType string, payload any) {
	if e.notify == nil {
		return
	}
	if err := e.notify.PublishMarketEvent(ctx, eventType, payload); err != nil {
		e.log.Warn("failed to publish market event", zap.String("type", eventType), zap.Error(err))
	}
}
