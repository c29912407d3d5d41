package topics

const (
	// Computações confidenciais (rede MPC)
	MpcRequests = "mpc_requests"
	MpcResults  = "mpc_results"

	// Notificações de transição de estado dos mercados
	MarketEvents = "market_events"

	// DLQs
	MpcRequestsDLQ = "mpc_requests_dlq"
	MpcResultsDLQ  = "mpc_results_dlq"
)
