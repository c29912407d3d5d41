package domain

import "time"

// Guardas da máquina de estados do mercado. Cada função valida uma
// transição ou operação sem mutar nada; o engine aplica o efeito dentro
// da transação. Status só andam pra frente:
//
//	Open → Closed → Resolving → Resolved
//	Open|Closed → Cancelled
//
// Resolved e Cancelled são terminais.

// ValidateCreate valida a configuração de um mercado novo
func ValidateCreate(question string, resolutionTime, now time.Time, mode OracleMode, feeBps uint16) error {
	if question == "" || len(question) > MaxQuestionLen {
		return ErrInvalidInput
	}
	if !resolutionTime.After(now) {
		return ErrInvalidInput
	}
	if feeBps > MaxFeeBps {
		return ErrInvalidInput
	}
	if !ValidOracleMode(mode) {
		return ErrInvalidInput
	}
	return nil
}

// CanQueueInit valida o enfileiramento da computação de init do agregado
func CanQueueInit(m *Market, caller string) error {
	if m.Creator != caller {
		return ErrUnauthorized
	}
	if !m.IsOpen() {
		return ErrMarketNotOpen
	}
	if m.AggregateInitialized {
		return ErrAggregateAlreadyInitialized
	}
	if m.InFlightComputation != "" {
		return ErrComputationInFlight
	}
	return nil
}

// CanPlaceBet valida uma aposta nova (sem olhar carteira nem registro
// existente; isso é responsabilidade do engine dentro da transação)
func CanPlaceBet(m *Market, now time.Time, stake, minStake, maxStake uint64) error {
	if !m.IsOpen() {
		return ErrMarketNotOpen
	}
	if !m.AggregateInitialized {
		return ErrAggregateNotInitialized
	}
	if !now.Before(m.ResolutionTime) {
		return ErrBettingPeriodEnded
	}
	if m.InFlightComputation != "" {
		return ErrComputationInFlight
	}
	if stake < minStake {
		return ErrStakeTooLow
	}
	if stake > maxStake {
		return ErrStakeTooHigh
	}
	return nil
}

// CanClose valida o fechamento: o criador fecha a qualquer momento,
// qualquer um fecha depois do prazo
func CanClose(m *Market, caller string, now time.Time) error {
	if !m.IsOpen() {
		return ErrMarketNotOpen
	}
	if m.Creator != caller && now.Before(m.ResolutionTime) {
		return ErrUnauthorized
	}
	return nil
}

// CanQueueResolve valida o enfileiramento da computação de resolução.
// Todos os modos de oráculo reduzem hoje à autorização do criador.
func CanQueueResolve(m *Market, resolver string) error {
	switch m.Status {
	case MarketResolved:
		return ErrMarketAlreadyResolved
	case MarketCancelled:
		return ErrMarketCancelled
	}
	if !m.CanResolve() {
		if m.InFlightComputation != "" {
			return ErrComputationInFlight
		}
		return ErrMarketNotClosed
	}
	if !m.AggregateInitialized {
		return ErrAggregateNotInitialized
	}
	switch m.OracleMode {
	case OracleManual, OracleFeed, OracleJury:
		if m.Creator != resolver {
			return ErrUnauthorized
		}
	default:
		return ErrInvalidInput
	}
	return nil
}

// CanCancel valida o cancelamento (criador, só de Open ou Closed)
func CanCancel(m *Market, caller string) error {
	if m.Creator != caller {
		return ErrUnauthorized
	}
	switch m.Status {
	case MarketOpen, MarketClosed:
		return nil
	case MarketResolved:
		return ErrMarketAlreadyResolved
	case MarketCancelled:
		return ErrMarketCancelled
	default:
		return ErrMarketNotClosed
	}
}

// CanClaim valida um resgate de payout
func CanClaim(m *Market, b *BetRecord) error {
	if !m.PayoutsAvailable() {
		return ErrMarketNotResolved
	}
	if b.Claimed {
		return ErrAlreadyClaimed
	}
	if b.Status != BetConfirmed {
		return ErrBetNotConfirmed
	}
	return nil
}

// CanRefund valida um reembolso (mercado cancelado, aposta não resgatada)
func CanRefund(m *Market, b *BetRecord) error {
	if !m.IsCancelled() {
		return ErrMarketNotCancelled
	}
	if !b.CanRefund() {
		return ErrAlreadyClaimed
	}
	return nil
}
