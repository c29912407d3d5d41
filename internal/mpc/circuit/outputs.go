package circuit

// Saídas tipadas de cada circuito, no formato que trafega dentro de
// ComputationCompleted.Output. O worker decodifica conforme o circuito.

// AggregateOutput é a saída de init_market_state e place_bet:
// o novo agregado cifrado e o nonce de versão correspondente.
type AggregateOutput struct {
	Aggregate []string `json:"aggregate"` // 3 ciphertexts, hex
	Nonce     string   `json:"nonce"`
}

// TotalsOutput é a saída de reveal_market_totals
type TotalsOutput struct {
	YesPool   uint64 `json:"yes_pool"`
	NoPool    uint64 `json:"no_pool"`
	TotalPool uint64 `json:"total_pool"`
}

// SplitOutput é a saída de calculate_payout_pools
type SplitOutput struct {
	WinningPool uint64 `json:"winning_pool"`
	LosingPool  uint64 `json:"losing_pool"`
	TotalPool   uint64 `json:"total_pool"`
	Outcome     bool   `json:"outcome"`
}

// VerifyOutput é a saída de verify_bet_claim
type VerifyOutput struct {
	Matches bool `json:"matches"`
}

// CountOutput é a saída de get_bet_count
type CountOutput struct {
	Count uint32 `json:"count"`
}
