package engine

import (
	"context"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// Tx é a visão transacional do conjunto de registros. Os Get*ForUpdate
// travam a linha (FOR UPDATE no Postgres) até o commit; registros ausentes
// devolvem domain.ErrNotFound.
type Tx interface {
	GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error)
	MarketRefExists(ctx context.Context, creator string, ref uint64) (bool, error)
	InsertMarket(ctx context.Context, m *domain.Market) error
	UpdateMarket(ctx context.Context, m *domain.Market) error

	GetVaultForUpdate(ctx context.Context, marketID string) (*domain.Vault, error)
	InsertVault(ctx context.Context, v *domain.Vault) error
	UpdateVault(ctx context.Context, v *domain.Vault) error

	GetBetForUpdate(ctx context.Context, marketID, bettor string) (*domain.BetRecord, error)
	InsertBet(ctx context.Context, b *domain.BetRecord) error
	UpdateBet(ctx context.Context, b *domain.BetRecord) error

	GetComputationForUpdate(ctx context.Context, id string) (*domain.Computation, error)
	InsertComputation(ctx context.Context, c *domain.Computation) error
	UpdateComputation(ctx context.Context, c *domain.Computation) error

	GetWalletForUpdate(ctx context.Context, userID string) (*domain.Wallet, error)
	UpsertWallet(ctx context.Context, w *domain.Wallet) error
}

// Store executa cada entry point como uma transação atômica: ou tudo
// comita, ou nada. As leituras soltas servem o caminho de consulta.
type Store interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error

	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	GetVault(ctx context.Context, marketID string) (*domain.Vault, error)
	GetBet(ctx context.Context, marketID, bettor string) (*domain.BetRecord, error)
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, error)
}

// ComputationQueue envia requisições à rede de computação confidencial.
// Fire-and-forget: aceitar significa só "enfileirado", nunca "computado".
type ComputationQueue interface {
	PublishComputation(ctx context.Context, req events.ComputationRequested) error
}

// Notifier publica notificações de transição de estado para consumidores
// externos. Melhor esforço; falhas não afetam a correção.
type Notifier interface {
	PublishMarketEvent(ctx context.Context, eventType string, payload any) error
}
