package domain

import "errors"

// Erros sentinela do motor de liquidação. Todos abortam a transação do
// entry point por inteiro; retry é sempre decisão do chamador.
var (
	// Validação (entrada fora de forma/limites)
	ErrInvalidInput = errors.New("invalid input")
	ErrStakeTooLow  = errors.New("stake below minimum")
	ErrStakeTooHigh = errors.New("stake above maximum")

	// Autorização
	ErrUnauthorized = errors.New("unauthorized")

	// Pré-condição de estado
	ErrMarketNotOpen               = errors.New("market not open")
	ErrMarketNotClosed             = errors.New("market not closed")
	ErrMarketNotResolved           = errors.New("market not resolved")
	ErrMarketNotCancelled          = errors.New("market not cancelled")
	ErrMarketAlreadyResolved       = errors.New("market already resolved")
	ErrMarketCancelled             = errors.New("market cancelled")
	ErrBettingPeriodEnded          = errors.New("betting period ended")
	ErrAggregateNotInitialized     = errors.New("aggregate not initialized")
	ErrAggregateAlreadyInitialized = errors.New("aggregate already initialized")
	ErrComputationInFlight         = errors.New("aggregate computation in flight") // retryável
	ErrMarketRefTaken              = errors.New("market ref already taken by this creator")
	ErrBetAlreadyPlaced            = errors.New("bet already placed for this market")
	ErrBetNotConfirmed             = errors.New("bet not confirmed")
	ErrAlreadyClaimed              = errors.New("bet already claimed")

	// Falha de computação confidencial (fatais para a computação)
	ErrBadClusterSignature = errors.New("cluster signature verification failed")
	ErrUnknownComputation  = errors.New("unknown computation")
	ErrComputationReplayed = errors.New("computation already applied")
	ErrComputationAborted  = errors.New("computation aborted by cluster")
	ErrNonceMismatch       = errors.New("aggregate nonce mismatch")

	// Aritmética / contabilidade
	ErrOverflow          = errors.New("arithmetic overflow")
	ErrVaultInsufficient = errors.New("vault withdrawals would exceed deposits")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Claim
	ErrClaimMismatch = errors.New("claimed stake does not match recorded stake")

	ErrNotFound = errors.New("not found")
)
