// Package mpcsim é a implementação de referência do acumulador cifrado.
// Cumpre o contrato de circuit executando a aritmética em plaintext por
// dentro, mas só depois de abrir os ciphertexts com o segredo do cluster —
// o mesmo papel da rede MPC real, sem as garantias de MPC. Serve ao
// mpc-simulator e aos testes de contrato.
package mpcsim

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
)

// Índices dos campos dentro do agregado
const (
	fieldYesPool  = 0
	fieldNoPool   = 1
	fieldBetCount = 2
)

// Índices dos campos dentro da aposta cifrada
const (
	fieldOutcome = 0
	fieldAmount  = 1
)

var errOpenField = errors.New("mpcsim: cannot open ciphertext")

// Simulator implementa circuit.Accumulator com secretbox por campo.
// Cada campo uint64 vira um ciphertext de 32 bytes: 16 de plaintext
// (valor em little-endian + padding) e 16 de overhead do secretbox.
type Simulator struct {
	secret [32]byte
}

func New(secretHex string) (*Simulator, error) {
	b, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decode cluster secret: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("cluster secret has %d bytes, want 32", len(b))
	}
	s := &Simulator{}
	copy(s.secret[:], b)
	return s, nil
}

// Init devolve o agregado zerado sob um nonce de versão novo
func (s *Simulator) Init(_ context.Context) (circuit.Aggregate, string, error) {
	nonce, err := newVersionNonce()
	if err != nil {
		return circuit.Aggregate{}, "", err
	}
	agg, err := s.sealAggregate(0, 0, 0, nonce)
	if err != nil {
		return circuit.Aggregate{}, "", err
	}
	return agg, nonce, nil
}

// AggregateBet soma a aposta ao pool correspondente e incrementa a
// contagem. Estouro de uint64/uint32 falha fechado; nunca há wraparound.
func (s *Simulator) AggregateBet(_ context.Context, bet circuit.EncryptedBet, bettorPub [32]byte, bettorNonce string, agg circuit.Aggregate, aggNonce string) (circuit.Aggregate, string, error) {
	outcome, amount, err := s.openBet(bet, bettorPub, bettorNonce)
	if err != nil {
		return circuit.Aggregate{}, "", err
	}
	yes, no, count, err := s.openAggregate(agg, aggNonce)
	if err != nil {
		return circuit.Aggregate{}, "", err
	}

	if outcome {
		if amount > math.MaxUint64-yes {
			return circuit.Aggregate{}, "", circuit.ErrOverflow
		}
		yes += amount
	} else {
		if amount > math.MaxUint64-no {
			return circuit.Aggregate{}, "", circuit.ErrOverflow
		}
		no += amount
	}
	if count == math.MaxUint32 {
		return circuit.Aggregate{}, "", circuit.ErrOverflow
	}
	count++

	newNonce, err := newVersionNonce()
	if err != nil {
		return circuit.Aggregate{}, "", err
	}
	out, err := s.sealAggregate(yes, no, count, newNonce)
	if err != nil {
		return circuit.Aggregate{}, "", err
	}
	return out, newNonce, nil
}

// RevealTotals declassifica os totais do pool
func (s *Simulator) RevealTotals(_ context.Context, agg circuit.Aggregate, aggNonce string) (circuit.Totals, error) {
	yes, no, _, err := s.openAggregate(agg, aggNonce)
	if err != nil {
		return circuit.Totals{}, err
	}
	if no > math.MaxUint64-yes {
		return circuit.Totals{}, circuit.ErrOverflow
	}
	return circuit.Totals{Yes: yes, No: no, Total: yes + no}, nil
}

// ComputePayoutSplit declassifica os pools separados por vencedor/perdedor
func (s *Simulator) ComputePayoutSplit(ctx context.Context, agg circuit.Aggregate, aggNonce string, outcome bool) (circuit.PayoutSplit, error) {
	t, err := s.RevealTotals(ctx, agg, aggNonce)
	if err != nil {
		return circuit.PayoutSplit{}, err
	}
	split := circuit.PayoutSplit{TotalPool: t.Total, Outcome: outcome}
	if outcome {
		split.WinningPool, split.LosingPool = t.Yes, t.No
	} else {
		split.WinningPool, split.LosingPool = t.No, t.Yes
	}
	return split, nil
}

// VerifyClaim compara a aposta original com os valores reivindicados;
// apenas o booleano sai do circuito
func (s *Simulator) VerifyClaim(_ context.Context, original circuit.EncryptedBet, bettorPub [32]byte, bettorNonce string, claimedOutcome bool, claimedAmount uint64) (bool, error) {
	outcome, amount, err := s.openBet(original, bettorPub, bettorNonce)
	if err != nil {
		return false, err
	}
	return outcome == claimedOutcome && amount == claimedAmount, nil
}

// BetCount declassifica só a contagem de apostas
func (s *Simulator) BetCount(_ context.Context, agg circuit.Aggregate, aggNonce string) (uint32, error) {
	_, _, count, err := s.openAggregate(agg, aggNonce)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SealBet cifra uma aposta como o cliente faria. A chave compartilhada é
// derivada do segredo do cluster e da pública do apostador; um gerenciamento
// de chaves real (X25519) fica fora de escopo.
func SealBet(clusterSecretHex string, bettorPub [32]byte, bettorNonce string, outcome bool, amount uint64) (circuit.EncryptedBet, error) {
	sim, err := New(clusterSecretHex)
	if err != nil {
		return circuit.EncryptedBet{}, err
	}
	key := sim.betKey(bettorPub)
	var out uint64
	if outcome {
		out = 1
	}
	var bet circuit.EncryptedBet
	if bet[fieldOutcome], err = sealField(key, bettorNonce, fieldOutcome, out); err != nil {
		return circuit.EncryptedBet{}, err
	}
	if bet[fieldAmount], err = sealField(key, bettorNonce, fieldAmount, amount); err != nil {
		return circuit.EncryptedBet{}, err
	}
	return bet, nil
}

func (s *Simulator) openBet(bet circuit.EncryptedBet, bettorPub [32]byte, bettorNonce string) (outcome bool, amount uint64, err error) {
	key := s.betKey(bettorPub)
	rawOutcome, err := openField(key, bettorNonce, fieldOutcome, bet[fieldOutcome])
	if err != nil {
		return false, 0, err
	}
	amount, err = openField(key, bettorNonce, fieldAmount, bet[fieldAmount])
	if err != nil {
		return false, 0, err
	}
	return rawOutcome != 0, amount, nil
}

func (s *Simulator) openAggregate(agg circuit.Aggregate, aggNonce string) (yes, no uint64, count uint32, err error) {
	if yes, err = openField(s.secret, aggNonce, fieldYesPool, agg[fieldYesPool]); err != nil {
		return 0, 0, 0, err
	}
	if no, err = openField(s.secret, aggNonce, fieldNoPool, agg[fieldNoPool]); err != nil {
		return 0, 0, 0, err
	}
	rawCount, err := openField(s.secret, aggNonce, fieldBetCount, agg[fieldBetCount])
	if err != nil {
		return 0, 0, 0, err
	}
	if rawCount > math.MaxUint32 {
		return 0, 0, 0, errOpenField
	}
	return yes, no, uint32(rawCount), nil
}

func (s *Simulator) sealAggregate(yes, no uint64, count uint32, nonce string) (circuit.Aggregate, error) {
	var agg circuit.Aggregate
	var err error
	if agg[fieldYesPool], err = sealField(s.secret, nonce, fieldYesPool, yes); err != nil {
		return agg, err
	}
	if agg[fieldNoPool], err = sealField(s.secret, nonce, fieldNoPool, no); err != nil {
		return agg, err
	}
	if agg[fieldBetCount], err = sealField(s.secret, nonce, fieldBetCount, uint64(count)); err != nil {
		return agg, err
	}
	return agg, nil
}

// betKey deriva a chave compartilhada do apostador
func (s *Simulator) betKey(bettorPub [32]byte) [32]byte {
	h := sha256.New()
	h.Write(s.secret[:])
	h.Write(bettorPub[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// fieldNonce deriva o nonce do secretbox a partir do nonce de versão e do
// índice do campo, de forma determinística
func fieldNonce(versionNonce string, idx int) ([24]byte, error) {
	var n [24]byte
	raw, err := hex.DecodeString(versionNonce)
	if err != nil || len(raw) == 0 {
		return n, errOpenField
	}
	h := sha256.New()
	h.Write(raw)
	h.Write([]byte{byte(idx)})
	copy(n[:], h.Sum(nil))
	return n, nil
}

// sealField cifra um uint64 como ciphertext de exatamente 32 bytes
func sealField(key [32]byte, versionNonce string, idx int, value uint64) (circuit.Ciphertext, error) {
	var c circuit.Ciphertext
	nonce, err := fieldNonce(versionNonce, idx)
	if err != nil {
		return c, err
	}
	var pt [16]byte
	binary.LittleEndian.PutUint64(pt[:8], value)
	sealed := secretbox.Seal(nil, pt[:], &nonce, &key)
	if len(sealed) != len(c) {
		return c, errOpenField
	}
	copy(c[:], sealed)
	return c, nil
}

// openField abre um ciphertext de campo; falha fechado em qualquer adulteração
func openField(key [32]byte, versionNonce string, idx int, c circuit.Ciphertext) (uint64, error) {
	nonce, err := fieldNonce(versionNonce, idx)
	if err != nil {
		return 0, err
	}
	pt, ok := secretbox.Open(nil, c[:], &nonce, &key)
	if !ok || len(pt) != 16 {
		return 0, errOpenField
	}
	return binary.LittleEndian.Uint64(pt[:8]), nil
}

// newVersionNonce gera um nonce de versão de 16 bytes em hex
func newVersionNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate version nonce: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
