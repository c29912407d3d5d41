package mpcsim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
)

const (
	testSecret = "4f8a1d3c9b706e25c417a98052fd6eb38d90c47a16e5f2037bc8d15490ae6b72"
	testNonce1 = "00112233445566778899aabbccddeeff"
)

var bettor1Pub = [32]byte{1}

func newSim(t *testing.T) *Simulator {
	t.Helper()
	s, err := New(testSecret)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadSecret(t *testing.T) {
	_, err := New("zz")
	require.Error(t, err)
	_, err = New("abcd")
	require.Error(t, err)
}

func TestInitStartsAtZero(t *testing.T) {
	s := newSim(t)
	ctx := context.Background()

	agg, nonce, err := s.Init(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	totals, err := s.RevealTotals(ctx, agg, nonce)
	require.NoError(t, err)
	require.Zero(t, totals.Yes)
	require.Zero(t, totals.No)
	require.Zero(t, totals.Total)

	count, err := s.BetCount(ctx, agg, nonce)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAggregateBetAccumulates(t *testing.T) {
	s := newSim(t)
	ctx := context.Background()

	agg, nonce, err := s.Init(ctx)
	require.NoError(t, err)

	bet1, err := SealBet(testSecret, bettor1Pub, testNonce1, true, 2_000_000)
	require.NoError(t, err)
	agg, nonce2, err := s.AggregateBet(ctx, bet1, bettor1Pub, testNonce1, agg, nonce)
	require.NoError(t, err)
	require.NotEqual(t, nonce, nonce2)

	var bettor2Pub = [32]byte{2}
	bet2, err := SealBet(testSecret, bettor2Pub, testNonce1, false, 1_000_000)
	require.NoError(t, err)
	agg, nonce3, err := s.AggregateBet(ctx, bet2, bettor2Pub, testNonce1, agg, nonce2)
	require.NoError(t, err)

	totals, err := s.RevealTotals(ctx, agg, nonce3)
	require.NoError(t, err)
	require.EqualValues(t, 2_000_000, totals.Yes)
	require.EqualValues(t, 1_000_000, totals.No)
	require.EqualValues(t, 3_000_000, totals.Total)

	count, err := s.BetCount(ctx, agg, nonce3)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestAggregateBetFailsClosed(t *testing.T) {
	s := newSim(t)
	ctx := context.Background()

	agg, nonce, err := s.Init(ctx)
	require.NoError(t, err)

	bet, err := SealBet(testSecret, bettor1Pub, testNonce1, true, 1)
	require.NoError(t, err)

	// nonce de agregado errado: abre nada, muda nada
	_, _, err = s.AggregateBet(ctx, bet, bettor1Pub, testNonce1, agg, "deadbeef")
	require.Error(t, err)

	// ciphertext adulterado
	tampered := bet
	tampered[0][3] ^= 0xff
	_, _, err = s.AggregateBet(ctx, tampered, bettor1Pub, testNonce1, agg, nonce)
	require.Error(t, err)

	// nonce do apostador errado
	_, _, err = s.AggregateBet(ctx, bet, bettor1Pub, "ffeeddccbbaa99887766554433221100", agg, nonce)
	require.Error(t, err)

	// pública errada deriva outra chave
	var otherPub = [32]byte{9}
	_, _, err = s.AggregateBet(ctx, bet, otherPub, testNonce1, agg, nonce)
	require.Error(t, err)
}

func TestAggregateBetOverflow(t *testing.T) {
	s := newSim(t)
	ctx := context.Background()

	agg, nonce, err := s.Init(ctx)
	require.NoError(t, err)

	big, err := SealBet(testSecret, bettor1Pub, testNonce1, true, math.MaxUint64)
	require.NoError(t, err)
	agg, nonce, err = s.AggregateBet(ctx, big, bettor1Pub, testNonce1, agg, nonce)
	require.NoError(t, err)

	one, err := SealBet(testSecret, bettor1Pub, testNonce1, true, 1)
	require.NoError(t, err)
	_, _, err = s.AggregateBet(ctx, one, bettor1Pub, testNonce1, agg, nonce)
	require.ErrorIs(t, err, circuit.ErrOverflow)

	// o lado NO continua aceitando
	no, err := SealBet(testSecret, bettor1Pub, testNonce1, false, 1)
	require.NoError(t, err)
	_, _, err = s.AggregateBet(ctx, no, bettor1Pub, testNonce1, agg, nonce)
	require.NoError(t, err)
}

func TestComputePayoutSplit(t *testing.T) {
	s := newSim(t)
	ctx := context.Background()

	agg, nonce, err := s.Init(ctx)
	require.NoError(t, err)
	yes, err := SealBet(testSecret, bettor1Pub, testNonce1, true, 2_000_000)
	require.NoError(t, err)
	agg, nonce, err = s.AggregateBet(ctx, yes, bettor1Pub, testNonce1, agg, nonce)
	require.NoError(t, err)
	no, err := SealBet(testSecret, bettor1Pub, testNonce1, false, 1_000_000)
	require.NoError(t, err)
	agg, nonce, err = s.AggregateBet(ctx, no, bettor1Pub, testNonce1, agg, nonce)
	require.NoError(t, err)

	split, err := s.ComputePayoutSplit(ctx, agg, nonce, true)
	require.NoError(t, err)
	require.EqualValues(t, 2_000_000, split.WinningPool)
	require.EqualValues(t, 1_000_000, split.LosingPool)
	require.EqualValues(t, 3_000_000, split.TotalPool)
	require.True(t, split.Outcome)

	split, err = s.ComputePayoutSplit(ctx, agg, nonce, false)
	require.NoError(t, err)
	require.EqualValues(t, 1_000_000, split.WinningPool)
	require.EqualValues(t, 2_000_000, split.LosingPool)
}

func TestVerifyClaim(t *testing.T) {
	s := newSim(t)
	ctx := context.Background()

	bet, err := SealBet(testSecret, bettor1Pub, testNonce1, true, 2_000_000)
	require.NoError(t, err)

	ok, err := s.VerifyClaim(ctx, bet, bettor1Pub, testNonce1, true, 2_000_000)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.VerifyClaim(ctx, bet, bettor1Pub, testNonce1, false, 2_000_000)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.VerifyClaim(ctx, bet, bettor1Pub, testNonce1, true, 2_000_001)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCiphertextShape(t *testing.T) {
	// o layout externo é fixo: 3×32 bytes de agregado, 2×32 de aposta
	s := newSim(t)
	agg, _, err := s.Init(context.Background())
	require.NoError(t, err)
	require.Len(t, agg.Hex(), 3)
	for _, h := range agg.Hex() {
		require.Len(t, h, 64)
	}

	parsed, err := circuit.ParseAggregate(agg.Hex())
	require.NoError(t, err)
	require.Equal(t, agg, parsed)
}
