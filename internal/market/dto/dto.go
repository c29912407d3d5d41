// Package dto define os contratos JSON da API do market-service.
// Blobs cifrados trafegam em hex; valores monetários na menor unidade.
package dto

type CreateMarketRequest struct {
	Creator        string `json:"creator"`
	MarketRef      uint64 `json:"market_ref"`
	Question       string `json:"question"`
	ResolutionTime int64  `json:"resolution_time"` // unix segundos
	FeeBps         uint16 `json:"fee_bps"`
	OracleMode     string `json:"oracle_mode,omitempty"` // default MANUAL
}

type CreateMarketResponse struct {
	MarketID string `json:"market_id"`
	Status   string `json:"status"`
}

type InitAggregateRequest struct {
	Creator string `json:"creator"`
}

type ComputationQueuedResponse struct {
	ComputationID string `json:"computation_id"`
	Status        string `json:"status"`
}

type PlaceBetRequest struct {
	Bettor           string `json:"bettor"`
	Stake            uint64 `json:"stake"`
	EncryptedOutcome string `json:"encrypted_outcome"` // hex
	EncryptedAmount  string `json:"encrypted_amount"`  // hex
	BettorPubKey     string `json:"bettor_pubkey"`     // hex, 32 bytes
	BettorNonce      string `json:"bettor_nonce"`
}

type PlaceBetResponse struct {
	BetID         string `json:"bet_id"`
	BetIndex      uint32 `json:"bet_index"`
	Status        string `json:"status"`
	ComputationID string `json:"computation_id"`
}

type CloseMarketRequest struct {
	Caller string `json:"caller"`
}

type ResolveMarketRequest struct {
	Resolver string `json:"resolver"`
	Outcome  *bool  `json:"outcome"`
}

type CancelMarketRequest struct {
	Caller string `json:"caller"`
}

type ClaimPayoutRequest struct {
	Bettor  string `json:"bettor"`
	Outcome *bool  `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

type ClaimPayoutResponse struct {
	Payout uint64 `json:"payout"`
	Won    bool   `json:"won"`
}

type ClaimRefundRequest struct {
	Bettor string `json:"bettor"`
}

type ClaimRefundResponse struct {
	Refund uint64 `json:"refund"`
}

// MarketResponse é o snapshot público do mercado. Nunca expõe o conteúdo
// do agregado; pools revelados só aparecem depois de Resolved.
type MarketResponse struct {
	MarketID             string `json:"market_id"`
	MarketRef            uint64 `json:"market_ref"`
	Creator              string `json:"creator"`
	Question             string `json:"question"`
	ResolutionTime       int64  `json:"resolution_time"`
	FeeBps               uint16 `json:"fee_bps"`
	OracleMode           string `json:"oracle_mode"`
	Status               string `json:"status"`
	AggregateInitialized bool   `json:"aggregate_initialized"`
	ComputationPending   bool   `json:"computation_pending"`
	BetCount             uint32 `json:"bet_count"`
	TotalLiquidity       uint64 `json:"total_liquidity"`

	Outcome   *bool   `json:"outcome,omitempty"`
	YesPool   *uint64 `json:"yes_pool,omitempty"`
	NoPool    *uint64 `json:"no_pool,omitempty"`
	TotalPool *uint64 `json:"total_pool,omitempty"`
}

type BetResponse struct {
	BetID       string  `json:"bet_id"`
	MarketID    string  `json:"market_id"`
	Bettor      string  `json:"bettor"`
	BetIndex    uint32  `json:"bet_index"`
	Stake       uint64  `json:"stake"`
	Status      string  `json:"status"`
	PlacedAt    int64   `json:"placed_at"`
	ConfirmedAt *int64  `json:"confirmed_at,omitempty"`
	Claimed     bool    `json:"claimed"`
	Payout      *uint64 `json:"payout,omitempty"`
}

type DepositRequest struct {
	UserID string `json:"userId"`
	Amount uint64 `json:"amount"`
}

type WalletResponse struct {
	UserID  string `json:"userId"`
	Balance uint64 `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
