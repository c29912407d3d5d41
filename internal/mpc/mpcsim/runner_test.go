package mpcsim

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

const testSeed = "9b3c6aa2f1e04d78c5b21a90de37f6488a5507c2d9611b843ef0a6c1957d2e30"

func newRunner(t *testing.T) (*Runner, ed25519.PublicKey) {
	t.Helper()
	r, err := NewRunner(newSim(t), testSeed)
	require.NoError(t, err)
	return r, r.Priv.Public().(ed25519.PublicKey)
}

func verify(t *testing.T, pub ed25519.PublicKey, res events.ComputationCompleted) {
	t.Helper()
	sig, err := hex.DecodeString(res.Signature)
	require.NoError(t, err)
	payload := []byte(res.Output)
	if res.Aborted {
		payload = circuit.AbortPayload(res.AbortReason)
	}
	require.True(t, circuit.VerifyOutputSignature(pub, res.ComputationID, res.Circuit, payload, sig))
}

func TestRunnerInitAndAggregate(t *testing.T) {
	r, pub := newRunner(t)
	ctx := context.Background()

	initRes := r.Handle(ctx, events.ComputationRequested{
		ComputationID: "c1",
		Circuit:       circuit.CircuitInitAggregate,
		MarketID:      "m1",
	})
	require.False(t, initRes.Aborted)
	verify(t, pub, initRes)

	var initOut circuit.AggregateOutput
	require.NoError(t, json.Unmarshal(initRes.Output, &initOut))
	require.Len(t, initOut.Aggregate, 3)
	require.NotEmpty(t, initOut.Nonce)

	bet, err := SealBet(testSecret, bettor1Pub, testNonce1, true, 2_000_000)
	require.NoError(t, err)

	aggRes := r.Handle(ctx, events.ComputationRequested{
		ComputationID:    "c2",
		Circuit:          circuit.CircuitAggregateBet,
		MarketID:         "m1",
		Aggregate:        initOut.Aggregate,
		AggregateNonce:   initOut.Nonce,
		EncryptedOutcome: bet[0].Hex(),
		EncryptedAmount:  bet[1].Hex(),
		BettorPubKey:     hex.EncodeToString(bettor1Pub[:]),
		BettorNonce:      testNonce1,
	})
	require.False(t, aggRes.Aborted, aggRes.AbortReason)
	verify(t, pub, aggRes)

	var aggOut circuit.AggregateOutput
	require.NoError(t, json.Unmarshal(aggRes.Output, &aggOut))
	require.NotEqual(t, initOut.Nonce, aggOut.Nonce)

	splitRes := r.Handle(ctx, events.ComputationRequested{
		ComputationID:  "c3",
		Circuit:        circuit.CircuitPayoutSplit,
		MarketID:       "m1",
		Aggregate:      aggOut.Aggregate,
		AggregateNonce: aggOut.Nonce,
		Outcome:        boolPtr(true),
	})
	require.False(t, splitRes.Aborted, splitRes.AbortReason)
	verify(t, pub, splitRes)

	var split circuit.SplitOutput
	require.NoError(t, json.Unmarshal(splitRes.Output, &split))
	require.EqualValues(t, 2_000_000, split.WinningPool)
	require.Zero(t, split.LosingPool)
	require.True(t, split.Outcome)
}

func TestRunnerVerifyClaimCircuit(t *testing.T) {
	r, pub := newRunner(t)

	bet, err := SealBet(testSecret, bettor1Pub, testNonce1, false, 1_000_000)
	require.NoError(t, err)

	res := r.Handle(context.Background(), events.ComputationRequested{
		ComputationID:    "c4",
		Circuit:          circuit.CircuitVerifyClaim,
		MarketID:         "m1",
		EncryptedOutcome: bet[0].Hex(),
		EncryptedAmount:  bet[1].Hex(),
		BettorPubKey:     hex.EncodeToString(bettor1Pub[:]),
		BettorNonce:      testNonce1,
		Outcome:          boolPtr(false),
		ClaimedAmount:    uint64Ptr(1_000_000),
	})
	require.False(t, res.Aborted, res.AbortReason)
	verify(t, pub, res)

	var out circuit.VerifyOutput
	require.NoError(t, json.Unmarshal(res.Output, &out))
	require.True(t, out.Matches)
}

func TestRunnerSignsAborts(t *testing.T) {
	r, pub := newRunner(t)

	// circuito desconhecido vira aborto assinado, não pânico
	res := r.Handle(context.Background(), events.ComputationRequested{
		ComputationID: "c5",
		Circuit:       "mint_money",
		MarketID:      "m1",
	})
	require.True(t, res.Aborted)
	require.NotEmpty(t, res.AbortReason)
	verify(t, pub, res)

	// requisição malformada idem
	res = r.Handle(context.Background(), events.ComputationRequested{
		ComputationID: "c6",
		Circuit:       circuit.CircuitAggregateBet,
		MarketID:      "m1",
	})
	require.True(t, res.Aborted)
	verify(t, pub, res)
}

func boolPtr(b bool) *bool       { return &b }
func uint64Ptr(v uint64) *uint64 { return &v }
