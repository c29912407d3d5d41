// Package circuit define o contrato do acumulador de pool cifrado: as
// operações que só executam dentro da rede de computação confidencial.
// O motor de liquidação fornece entradas e recebe saídas assinadas; nunca
// inspeciona valores intermediários.
package circuit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
)

// Nomes dos circuitos. Precisam bater com o que o cluster MPC executa.
const (
	CircuitInitAggregate = "init_market_state"
	CircuitAggregateBet  = "place_bet"
	CircuitRevealTotals  = "reveal_market_totals"
	CircuitPayoutSplit   = "calculate_payout_pools"
	CircuitVerifyClaim   = "verify_bet_claim"
	CircuitBetCount      = "get_bet_count"
)

var (
	ErrBadCiphertext = errors.New("bad ciphertext")
	ErrOverflow      = errors.New("pool arithmetic overflow")
)

// Ciphertext é um blob cifrado de tamanho fixo, opaco fora da rede MPC.
type Ciphertext [32]byte

// Aggregate é o acumulador cifrado do mercado: [yes_pool, no_pool, bet_count]
type Aggregate [3]Ciphertext

// EncryptedBet é a aposta cifrada pelo apostador: [outcome, amount]
type EncryptedBet [2]Ciphertext

// Totals são os totais declassificados na resolução
type Totals struct {
	Yes   uint64
	No    uint64
	Total uint64
}

// PayoutSplit são os pools declassificados já separados em vencedor/perdedor
type PayoutSplit struct {
	WinningPool uint64
	LosingPool  uint64
	TotalPool   uint64
	Outcome     bool
}

// Accumulator é o contrato das operações confidenciais. Em produção é a
// rede MPC; nos testes, a implementação de referência em mpcsim.
// Apenas RevealTotals, ComputePayoutSplit, VerifyClaim e BetCount
// declassificam qualquer coisa; Init e AggregateBet só devolvem ciphertext.
type Accumulator interface {
	// Init devolve o agregado zerado e o nonce de versão inicial.
	Init(ctx context.Context) (Aggregate, string, error)

	// AggregateBet soma bet.amount ao pool yes ou no conforme bet.outcome
	// e incrementa a contagem, tudo sob cifração. Devolve o novo agregado
	// e um novo nonce de versão.
	AggregateBet(ctx context.Context, bet EncryptedBet, bettorPub [32]byte, bettorNonce string, agg Aggregate, aggNonce string) (Aggregate, string, error)

	// RevealTotals é a única operação autorizada a declassificar os
	// tamanhos brutos dos pools; chamada uma vez na resolução.
	RevealTotals(ctx context.Context, agg Aggregate, aggNonce string) (Totals, error)

	// ComputePayoutSplit declassifica os pools já separados em
	// vencedor/perdedor segundo o outcome informado.
	ComputePayoutSplit(ctx context.Context, agg Aggregate, aggNonce string, outcome bool) (PayoutSplit, error)

	// VerifyClaim compara sob cifração a aposta original com os valores
	// reivindicados; só o booleano é declassificado.
	VerifyClaim(ctx context.Context, original EncryptedBet, bettorPub [32]byte, bettorNonce string, claimedOutcome bool, claimedAmount uint64) (bool, error)

	// BetCount declassifica apenas a contagem de apostas (uso de UI).
	BetCount(ctx context.Context, agg Aggregate, aggNonce string) (uint32, error)
}

// Hex serializa um ciphertext para transporte
func (c Ciphertext) Hex() string { return hex.EncodeToString(c[:]) }

// ParseCiphertext decodifica um ciphertext em hex (64 caracteres)
func ParseCiphertext(s string) (Ciphertext, error) {
	var c Ciphertext
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	if len(b) != len(c) {
		return c, fmt.Errorf("%w: ciphertext has %d bytes, want %d", ErrBadCiphertext, len(b), len(c))
	}
	copy(c[:], b)
	return c, nil
}

// Hex serializa o agregado como 3 ciphertexts em hex
func (a Aggregate) Hex() []string {
	return []string{a[0].Hex(), a[1].Hex(), a[2].Hex()}
}

// ParseAggregate decodifica um agregado serializado
func ParseAggregate(ss []string) (Aggregate, error) {
	var a Aggregate
	if len(ss) != len(a) {
		return a, fmt.Errorf("%w: aggregate has %d ciphertexts, want %d", ErrBadCiphertext, len(ss), len(a))
	}
	for i, s := range ss {
		c, err := ParseCiphertext(s)
		if err != nil {
			return a, err
		}
		a[i] = c
	}
	return a, nil
}
