package events

import "encoding/json"

// Tipos de notificação publicados no tópico market_events.
// Não são estado autoritativo; consumidores externos podem perdê-los
// sem afetar a correção do motor de liquidação.
const (
	TypeMarketCreated          = "market_created"
	TypeAggregateInitRequested = "aggregate_init_requested"
	TypeAggregateInitialized   = "aggregate_initialized"
	TypeBetPlaced              = "bet_placed"
	TypeBetConfirmed           = "bet_confirmed"
	TypeMarketClosed           = "market_closed"
	TypeResolutionRequested    = "resolution_requested"
	TypeMarketResolved         = "market_resolved"
	TypeMarketCancelled        = "market_cancelled"
	TypePayoutClaimed          = "payout_claimed"
	TypeRefundClaimed          = "refund_claimed"
)

// Envelope padrão de market_events
type MarketEvent struct {
	Type     string          `json:"type"`
	TsUnixMs int64           `json:"ts_unix_ms"`
	Payload  json.RawMessage `json:"payload"`
}

type MarketCreated struct {
	MarketID       string `json:"market_id"`
	MarketRef      uint64 `json:"market_ref"`
	Creator        string `json:"creator"`
	Question       string `json:"question"`
	ResolutionTime int64  `json:"resolution_time"`
	FeeBps         uint16 `json:"fee_bps"`
}

type AggregateInitRequested struct {
	MarketID      string `json:"market_id"`
	ComputationID string `json:"computation_id"`
}

type AggregateInitialized struct {
	MarketID       string `json:"market_id"`
	AggregateNonce string `json:"aggregate_nonce"`
}

type BetPlaced struct {
	MarketID      string `json:"market_id"`
	Bettor        string `json:"bettor"`
	BetIndex      uint32 `json:"bet_index"`
	Stake         uint64 `json:"stake"`
	ComputationID string `json:"computation_id"`
}

type BetConfirmed struct {
	MarketID string `json:"market_id"`
	Bettor   string `json:"bettor"`
	BetIndex uint32 `json:"bet_index"`
}

type MarketClosed struct {
	MarketID       string `json:"market_id"`
	ClosedBy       string `json:"closed_by"`
	BetCount       uint32 `json:"bet_count"`
	TotalLiquidity uint64 `json:"total_liquidity"`
}

type ResolutionRequested struct {
	MarketID      string `json:"market_id"`
	Resolver      string `json:"resolver"`
	Outcome       bool   `json:"outcome"`
	ComputationID string `json:"computation_id"`
}

type MarketResolved struct {
	MarketID  string `json:"market_id"`
	Outcome   bool   `json:"outcome"`
	YesPool   uint64 `json:"yes_pool"`
	NoPool    uint64 `json:"no_pool"`
	TotalPool uint64 `json:"total_pool"`
}

type MarketCancelled struct {
	MarketID       string `json:"market_id"`
	CancelledBy    string `json:"cancelled_by"`
	BetCount       uint32 `json:"bet_count"`
	TotalLiquidity uint64 `json:"total_liquidity"`
}

type PayoutClaimed struct {
	MarketID  string `json:"market_id"`
	Bettor    string `json:"bettor"`
	BetAmount uint64 `json:"bet_amount"`
	Payout    uint64 `json:"payout"`
	Won       bool   `json:"won"`
}

type RefundClaimed struct {
	MarketID string `json:"market_id"`
	Bettor   string `json:"bettor"`
	Refund   uint64 `json:"refund"`
}
