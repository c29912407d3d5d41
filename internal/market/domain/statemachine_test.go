package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openMarket() *Market {
	return &Market{
		ID:                   "m1",
		Creator:              "alice",
		Question:             "vai chover amanhã?",
		ResolutionTime:       now.Add(time.Hour),
		FeeBps:               500,
		OracleMode:           OracleManual,
		Status:               MarketOpen,
		AggregateInitialized: true,
		AggregateNonce:       "aa",
	}
}

func TestValidateCreate(t *testing.T) {
	require.NoError(t, ValidateCreate("q", now.Add(time.Hour), now, OracleManual, 1000))

	require.ErrorIs(t, ValidateCreate("", now.Add(time.Hour), now, OracleManual, 0), ErrInvalidInput)
	long := make([]byte, MaxQuestionLen+1)
	for i := range long {
		long[i] = 'x'
	}
	require.ErrorIs(t, ValidateCreate(string(long), now.Add(time.Hour), now, OracleManual, 0), ErrInvalidInput)

	// prazo precisa ser estritamente futuro
	require.ErrorIs(t, ValidateCreate("q", now, now, OracleManual, 0), ErrInvalidInput)
	require.ErrorIs(t, ValidateCreate("q", now.Add(-time.Second), now, OracleManual, 0), ErrInvalidInput)

	require.ErrorIs(t, ValidateCreate("q", now.Add(time.Hour), now, OracleManual, MaxFeeBps+1), ErrInvalidInput)
	require.ErrorIs(t, ValidateCreate("q", now.Add(time.Hour), now, OracleMode("DICE"), 0), ErrInvalidInput)
}

func TestCanQueueInit(t *testing.T) {
	m := openMarket()
	m.AggregateInitialized = false

	require.NoError(t, CanQueueInit(m, "alice"))
	require.ErrorIs(t, CanQueueInit(m, "bob"), ErrUnauthorized)

	m.InFlightComputation = "c1"
	require.ErrorIs(t, CanQueueInit(m, "alice"), ErrComputationInFlight)
	m.InFlightComputation = ""

	m.AggregateInitialized = true
	require.ErrorIs(t, CanQueueInit(m, "alice"), ErrAggregateAlreadyInitialized)

	m.AggregateInitialized = false
	m.Status = MarketClosed
	require.ErrorIs(t, CanQueueInit(m, "alice"), ErrMarketNotOpen)
}

func TestCanPlaceBet(t *testing.T) {
	m := openMarket()
	min, max := uint64(1_000_000), uint64(1_000_000_000_000)

	require.NoError(t, CanPlaceBet(m, now, min, min, max))
	require.NoError(t, CanPlaceBet(m, now, max, min, max))

	require.ErrorIs(t, CanPlaceBet(m, now, min-1, min, max), ErrStakeTooLow)
	require.ErrorIs(t, CanPlaceBet(m, now, max+1, min, max), ErrStakeTooHigh)

	// exatamente no prazo já é tarde
	require.ErrorIs(t, CanPlaceBet(m, m.ResolutionTime, min, min, max), ErrBettingPeriodEnded)

	m.InFlightComputation = "c1"
	require.ErrorIs(t, CanPlaceBet(m, now, min, min, max), ErrComputationInFlight)
	m.InFlightComputation = ""

	m.AggregateInitialized = false
	require.ErrorIs(t, CanPlaceBet(m, now, min, min, max), ErrAggregateNotInitialized)
	m.AggregateInitialized = true

	for _, st := range []MarketStatus{MarketClosed, MarketResolving, MarketResolved, MarketCancelled} {
		m.Status = st
		require.ErrorIs(t, CanPlaceBet(m, now, min, min, max), ErrMarketNotOpen, string(st))
	}
}

func TestCanClose(t *testing.T) {
	m := openMarket()

	// criador fecha quando quiser
	require.NoError(t, CanClose(m, "alice", now))
	// terceiro só depois do prazo
	require.ErrorIs(t, CanClose(m, "bob", now), ErrUnauthorized)
	require.NoError(t, CanClose(m, "bob", m.ResolutionTime))

	m.Status = MarketClosed
	require.ErrorIs(t, CanClose(m, "alice", now), ErrMarketNotOpen)
}

func TestCanQueueResolve(t *testing.T) {
	m := openMarket()
	m.Status = MarketClosed

	require.NoError(t, CanQueueResolve(m, "alice"))
	require.ErrorIs(t, CanQueueResolve(m, "bob"), ErrUnauthorized)

	// reenvio após aborto: Resolving sem nada pendente
	m.Status = MarketResolving
	require.NoError(t, CanQueueResolve(m, "alice"))
	m.InFlightComputation = "c9"
	require.ErrorIs(t, CanQueueResolve(m, "alice"), ErrComputationInFlight)
	m.InFlightComputation = ""

	m.Status = MarketOpen
	require.ErrorIs(t, CanQueueResolve(m, "alice"), ErrMarketNotClosed)

	m.Status = MarketResolved
	require.ErrorIs(t, CanQueueResolve(m, "alice"), ErrMarketAlreadyResolved)

	m.Status = MarketCancelled
	require.ErrorIs(t, CanQueueResolve(m, "alice"), ErrMarketCancelled)

	m.Status = MarketClosed
	m.AggregateInitialized = false
	require.ErrorIs(t, CanQueueResolve(m, "alice"), ErrAggregateNotInitialized)
}

func TestCanCancel(t *testing.T) {
	m := openMarket()

	require.NoError(t, CanCancel(m, "alice"))
	require.ErrorIs(t, CanCancel(m, "bob"), ErrUnauthorized)

	m.Status = MarketClosed
	require.NoError(t, CanCancel(m, "alice"))

	m.Status = MarketResolving
	require.ErrorIs(t, CanCancel(m, "alice"), ErrMarketNotClosed)

	m.Status = MarketResolved
	require.ErrorIs(t, CanCancel(m, "alice"), ErrMarketAlreadyResolved)

	m.Status = MarketCancelled
	require.ErrorIs(t, CanCancel(m, "alice"), ErrMarketCancelled)
}

func TestCanClaimAndRefund(t *testing.T) {
	m := openMarket()
	m.Status = MarketResolved
	b := &BetRecord{Status: BetConfirmed}

	require.NoError(t, CanClaim(m, b))

	b.Claimed = true
	require.ErrorIs(t, CanClaim(m, b), ErrAlreadyClaimed)
	b.Claimed = false

	b.Status = BetPending
	require.ErrorIs(t, CanClaim(m, b), ErrBetNotConfirmed)
	b.Status = BetConfirmed

	m.Status = MarketClosed
	require.ErrorIs(t, CanClaim(m, b), ErrMarketNotResolved)

	// refund só em mercado cancelado; aposta Pending também qualifica
	m.Status = MarketCancelled
	require.NoError(t, CanRefund(m, b))
	b.Status = BetPending
	require.NoError(t, CanRefund(m, b))

	b.Claimed = true
	require.ErrorIs(t, CanRefund(m, b), ErrAlreadyClaimed)
	b.Claimed = false

	m.Status = MarketResolved
	require.ErrorIs(t, CanRefund(m, b), ErrMarketNotCancelled)
}

func TestVaultAccounting(t *testing.T) {
	v := &Vault{}
	require.NoError(t, v.Deposit(3_000_000))
	require.EqualValues(t, 3_000_000, v.Balance())

	require.NoError(t, v.Withdraw(2_850_000))
	require.EqualValues(t, 150_000, v.Balance())

	// saque nunca passa dos depósitos
	require.ErrorIs(t, v.Withdraw(150_001), ErrVaultInsufficient)
	require.EqualValues(t, 150_000, v.Balance())

	v2 := &Vault{TotalDeposits: 1}
	require.ErrorIs(t, v2.Deposit(^uint64(0)), ErrOverflow)
}

func TestWalletAccounting(t *testing.T) {
	w := &Wallet{UserID: "u1"}
	require.NoError(t, w.Credit(10))
	require.ErrorIs(t, w.Debit(11), ErrInsufficientFunds)
	require.NoError(t, w.Debit(10))
	require.Zero(t, w.Balance)
	require.ErrorIs(t, (&Wallet{Balance: 1}).Credit(^uint64(0)), ErrOverflow)
}
