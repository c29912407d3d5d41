// Package domain contém o conjunto de registros do mercado confidencial
// (Market, Vault, BetRecord), a máquina de estados e o cálculo de payout.
// Tudo aqui é puro: persistência e transporte ficam em repo e coordinator.
package domain

import (
	"math"
	"time"

	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
)

// Limites herdados da configuração de criação de mercados
const (
	MaxQuestionLen = 200
	MaxFeeBps      = 1000 // 10%
)

// MarketStatus é o status persistido de um mercado
type MarketStatus string

const (
	MarketOpen      MarketStatus = "OPEN"
	MarketClosed    MarketStatus = "CLOSED"
	MarketResolving MarketStatus = "RESOLVING"
	MarketResolved  MarketStatus = "RESOLVED"
	MarketCancelled MarketStatus = "CANCELLED"
)

// OracleMode define quem pode resolver o mercado. Apenas Manual está
// completo; Feed e Jury reduzem à autorização do criador por enquanto.
type OracleMode string

const (
	OracleManual OracleMode = "MANUAL"
	OracleFeed   OracleMode = "FEED"
	OracleJury   OracleMode = "JURY"
)

func ValidOracleMode(m OracleMode) bool {
	return m == OracleManual || m == OracleFeed || m == OracleJury
}

// BetStatus é o status persistido de uma aposta
type BetStatus string

const (
	BetPending   BetStatus = "PENDING"
	BetConfirmed BetStatus = "CONFIRMED"
	BetClaimed   BetStatus = "CLAIMED"
	BetRefunded  BetStatus = "REFUNDED"
)

// ComputationStatus é o ciclo de vida de uma computação confidencial
type ComputationStatus string

const (
	ComputationQueued  ComputationStatus = "QUEUED"
	ComputationApplied ComputationStatus = "APPLIED"
	ComputationFailed  ComputationStatus = "FAILED"
)

// Market é um mercado de previsão binário com pool cifrado.
// Invariante: Aggregate e AggregateNonce só mudam em par, só por callback
// aceito, e só enquanto o nonce anterior bate com o emitido na computação.
type Market struct {
	ID        string
	MarketRef uint64 // escolhido pelo criador; único por criador
	Creator   string

	Question       string
	ResolutionTime time.Time
	CreatedAt      time.Time
	FeeBps         uint16
	OracleMode     OracleMode

	Status  MarketStatus
	Outcome *bool // nil até Resolved

	// Estado cifrado (só a rede MPC lê/escreve o conteúdo)
	Aggregate            circuit.Aggregate
	AggregateNonce       string
	AggregateInitialized bool

	// Guarda de computação pendente: enquanto não vazio, nenhuma outra
	// computação que toque o agregado pode ser enfileirada neste mercado.
	InFlightComputation string

	// Estado revelado (zerado até Resolved)
	RevealedYesPool   uint64
	RevealedNoPool    uint64
	RevealedTotalPool uint64

	// Contadores
	BetCount             uint32
	TotalLiquidityApprox uint64 // melhor esforço, não autoritativo

	VaultID string
}

func (m *Market) IsOpen() bool      { return m.Status == MarketOpen }
func (m *Market) IsCancelled() bool { return m.Status == MarketCancelled }

// CanResolve cobre o caso de reenvio após uma computação de resolução
// abortada: o mercado continua Resolving sem nada pendente.
func (m *Market) CanResolve() bool {
	return m.Status == MarketClosed ||
		(m.Status == MarketResolving && m.InFlightComputation == "")
}

func (m *Market) PayoutsAvailable() bool { return m.Status == MarketResolved }

// Vault acompanha o valor agregado que entrou e saiu de um mercado.
// Depósitos e saques são contadores monotônicos; o saldo residual é
// deposits − withdrawals e nunca pode ficar negativo.
type Vault struct {
	ID               string
	MarketID         string
	TotalDeposits    uint64
	TotalWithdrawals uint64
}

func (v *Vault) Balance() uint64 { return v.TotalDeposits - v.TotalWithdrawals }

func (v *Vault) Deposit(amount uint64) error {
	if amount > math.MaxUint64-v.TotalDeposits {
		return ErrOverflow
	}
	v.TotalDeposits += amount
	return nil
}

func (v *Vault) Withdraw(amount uint64) error {
	if amount > math.MaxUint64-v.TotalWithdrawals {
		return ErrOverflow
	}
	if v.TotalWithdrawals+amount > v.TotalDeposits {
		return ErrVaultInsufficient
	}
	v.TotalWithdrawals += amount
	return nil
}

// BetRecord é a aposta de um apostador em um mercado (no máximo uma).
// O outcome fica cifrado; o stake é plaintext de propósito, porque a
// contabilidade do vault precisa dele. Imutável após a criação.
type BetRecord struct {
	ID       string
	MarketID string
	Bettor   string
	BetIndex uint32

	EncryptedBet circuit.EncryptedBet
	BettorPubKey [32]byte
	BettorNonce  string

	Stake uint64

	Status      BetStatus
	PlacedAt    time.Time
	ConfirmedAt *time.Time

	Claimed bool
	Payout  *uint64
}

func (b *BetRecord) CanClaim() bool {
	return b.Status == BetConfirmed && !b.Claimed
}

func (b *BetRecord) CanRefund() bool {
	return !b.Claimed && (b.Status == BetPending || b.Status == BetConfirmed)
}

// Computation registra uma computação confidencial emitida, para rejeição
// de replay e auditoria da guarda de computação pendente.
type Computation struct {
	ID       string
	MarketID string
	Circuit  string
	Bettor   string // preenchido só para o circuito de agregação
	// Nonce do agregado contra o qual a computação foi emitida
	// (vazio para init, que não lê agregado nenhum)
	IssuedNonce string
	Status      ComputationStatus
	QueuedAt    time.Time
	AppliedAt   *time.Time
	FailReason  string
}

// Wallet é o saldo de financiamento de um apostador. Apostas debitam a
// carteira e creditam o vault na mesma transação; payouts e refunds fazem
// o caminho inverso.
type Wallet struct {
	UserID  string
	Balance uint64
}

func (w *Wallet) Credit(amount uint64) error {
	if amount > math.MaxUint64-w.Balance {
		return ErrOverflow
	}
	w.Balance += amount
	return nil
}

func (w *Wallet) Debit(amount uint64) error {
	if amount > w.Balance {
		return ErrInsufficientFunds
	}
	w.Balance -= amount
	return nil
}
