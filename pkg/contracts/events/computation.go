package events

import "encoding/json"

// ComputationRequested é a requisição enviada à rede de computação
// confidencial via tópico mpc_requests. Todos os blobs cifrados vão em hex.
// O computation_id é escolhido pelo chamador e correlaciona o callback.
type ComputationRequested struct {
	ComputationID string `json:"computation_id"`
	Circuit       string `json:"circuit"`
	MarketID      string `json:"market_id"`

	// Referência ao agregado cifrado atual do mercado (3 ciphertexts, hex)
	// e ao nonce contra o qual a computação foi emitida.
	Aggregate      []string `json:"aggregate,omitempty"`
	AggregateNonce string   `json:"aggregate_nonce,omitempty"`

	// Aposta cifrada (aggregate circuit)
	EncryptedOutcome string `json:"encrypted_outcome,omitempty"`
	EncryptedAmount  string `json:"encrypted_amount,omitempty"`
	BettorPubKey     string `json:"bettor_pubkey,omitempty"`
	BettorNonce      string `json:"bettor_nonce,omitempty"`

	// Resultado do oráculo (payout-split) ou lado reivindicado (verify)
	Outcome *bool `json:"outcome,omitempty"`

	// Valor reivindicado (verify circuit)
	ClaimedAmount *uint64 `json:"claimed_amount,omitempty"`

	// Tópico onde o resultado assinado deve ser publicado
	ReplyTopic string `json:"reply_topic"`
	TsUnixMs   int64  `json:"ts_unix_ms"`
}

// ComputationCompleted é o resultado assinado publicado pelo cluster MPC
// no tópico mpc_results. A assinatura ed25519 cobre
// (computation_id, circuit, output) e deve ser verificada antes de
// qualquer mutação de estado.
type ComputationCompleted struct {
	ComputationID string          `json:"computation_id"`
	Circuit       string          `json:"circuit"`
	MarketID      string          `json:"market_id"`
	Aborted       bool            `json:"aborted,omitempty"`
	AbortReason   string          `json:"abort_reason,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	Signature     string          `json:"signature"` // hex
	TsUnixMs      int64           `json:"ts_unix_ms"`
}
