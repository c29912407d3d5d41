// Package http expõe a API do market-service. Toda mutação delega para o
// motor de liquidação; este pacote só traduz JSON, rotas e erros.
package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/market/dto"
	"github.com/radieske/veil-market-poc/internal/market/engine"
	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
)

// Service é a face do engine usada pelos handlers
type Service interface {
	CreateMarket(ctx context.Context, p engine.CreateMarketParams) (*domain.Market, error)
	InitAggregate(ctx context.Context, marketID, caller string) (string, error)
	PlaceBet(ctx context.Context, p engine.PlaceBetParams) (*domain.BetRecord, string, error)
	CloseMarket(ctx context.Context, marketID, caller string) error
	ResolveMarket(ctx context.Context, marketID, resolver string, outcome bool) (string, error)
	ClaimPayout(ctx context.Context, marketID, bettor string, claimedOutcome bool, claimedAmount uint64) (uint64, bool, error)
	CancelMarket(ctx context.Context, marketID, caller string) error
	ClaimRefund(ctx context.Context, marketID, bettor string) (uint64, error)
	Deposit(ctx context.Context, userID string, amount uint64) (*domain.Wallet, error)
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	GetBet(ctx context.Context, marketID, bettor string) (*domain.BetRecord, error)
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, error)
}

// SnapshotCache é o cache-aside de snapshots de mercado (Redis)
type SnapshotCache interface {
	Get(ctx context.Context, marketID string) ([]byte, bool)
	Set(ctx context.Context, marketID string, body []byte)
	Invalidate(ctx context.Context, marketID string)
}

type Server struct {
	log   *zap.Logger
	svc   Service
	snaps SnapshotCache
}

func NewServer(log *zap.Logger, svc Service, snaps SnapshotCache) *Server {
	return &Server{log: log, svc: svc, snaps: snaps}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", s.createMarket) // POST
	mux.HandleFunc("/markets/", s.marketSubroute)
	mux.HandleFunc("/wallet", s.getWallet)            // GET ?userId=...
	mux.HandleFunc("/wallet/deposit", s.depositFunds) // POST
	return mux
}

// marketSubroute despacha /markets/{id}[/...]
func (s *Server) marketSubroute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/markets/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "marketId required", http.StatusBadRequest)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getMarket(w, r, id)
	case len(parts) == 2 && r.Method == http.MethodPost:
		switch parts[1] {
		case "init":
			s.initAggregate(w, r, id)
		case "bets":
			s.placeBet(w, r, id)
		case "close":
			s.closeMarket(w, r, id)
		case "resolve":
			s.resolveMarket(w, r, id)
		case "cancel":
			s.cancelMarket(w, r, id)
		case "claims":
			s.claimPayout(w, r, id)
		case "refunds":
			s.claimRefund(w, r, id)
		default:
			http.NotFound(w, r)
		}
	case len(parts) == 3 && parts[1] == "bets" && r.Method == http.MethodGet:
		s.getBet(w, r, id, parts[2])
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	mode := domain.OracleMode(req.OracleMode)
	if req.OracleMode == "" {
		mode = domain.OracleManual
	}
	m, err := s.svc.CreateMarket(r.Context(), engine.CreateMarketParams{
		Creator:        req.Creator,
		MarketRef:      req.MarketRef,
		Question:       req.Question,
		ResolutionTime: time.Unix(req.ResolutionTime, 0),
		FeeBps:         req.FeeBps,
		OracleMode:     mode,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, dto.CreateMarketResponse{MarketID: m.ID, Status: string(m.Status)})
}

func (s *Server) initAggregate(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.InitAggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	compID, err := s.svc.InitAggregate(r.Context(), marketID, req.Creator)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.snaps.Invalidate(r.Context(), marketID)
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, dto.ComputationQueuedResponse{ComputationID: compID, Status: "QUEUED"})
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	encOutcome, err := circuit.ParseCiphertext(req.EncryptedOutcome)
	if err != nil {
		s.writeError(w, err)
		return
	}
	encAmount, err := circuit.ParseCiphertext(req.EncryptedAmount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pubBytes, err := hex.DecodeString(req.BettorPubKey)
	if err != nil || len(pubBytes) != 32 {
		http.Error(w, "bettor_pubkey must be 32 bytes hex", http.StatusBadRequest)
		return
	}
	var pub [32]byte
	copy(pub[:], pubBytes)

	bet, compID, err := s.svc.PlaceBet(r.Context(), engine.PlaceBetParams{
		MarketID:     marketID,
		Bettor:       req.Bettor,
		Stake:        req.Stake,
		EncryptedBet: circuit.EncryptedBet{encOutcome, encAmount},
		BettorPubKey: pub,
		BettorNonce:  req.BettorNonce,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.snaps.Invalidate(r.Context(), marketID)
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, dto.PlaceBetResponse{
		BetID:         bet.ID,
		BetIndex:      bet.BetIndex,
		Status:        string(bet.Status),
		ComputationID: compID,
	})
}

func (s *Server) closeMarket(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.CloseMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.svc.CloseMarket(r.Context(), marketID, req.Caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.snaps.Invalidate(r.Context(), marketID)
	writeJSON(w, map[string]string{"status": string(domain.MarketClosed)})
}

func (s *Server) resolveMarket(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.ResolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Outcome == nil {
		http.Error(w, "outcome required", http.StatusBadRequest)
		return
	}
	compID, err := s.svc.ResolveMarket(r.Context(), marketID, req.Resolver, *req.Outcome)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.snaps.Invalidate(r.Context(), marketID)
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, dto.ComputationQueuedResponse{ComputationID: compID, Status: "QUEUED"})
}

func (s *Server) cancelMarket(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.CancelMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.svc.CancelMarket(r.Context(), marketID, req.Caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.snaps.Invalidate(r.Context(), marketID)
	writeJSON(w, map[string]string{"status": string(domain.MarketCancelled)})
}

func (s *Server) claimPayout(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.ClaimPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Outcome == nil {
		http.Error(w, "outcome required", http.StatusBadRequest)
		return
	}
	payout, won, err := s.svc.ClaimPayout(r.Context(), marketID, req.Bettor, *req.Outcome, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.ClaimPayoutResponse{Payout: payout, Won: won})
}

func (s *Server) claimRefund(w http.ResponseWriter, r *http.Request, marketID string) {
	var req dto.ClaimRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	refund, err := s.svc.ClaimRefund(r.Context(), marketID, req.Bettor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.ClaimRefundResponse{Refund: refund})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request, marketID string) {
	if body, ok := s.snaps.Get(r.Context(), marketID); ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
		return
	}

	m, err := s.svc.GetMarket(r.Context(), marketID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := marketToResponse(m)

	body, err := json.Marshal(resp)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.snaps.Set(r.Context(), marketID, body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request, marketID, bettor string) {
	b, err := s.svc.GetBet(r.Context(), marketID, bettor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := dto.BetResponse{
		BetID:    b.ID,
		MarketID: b.MarketID,
		Bettor:   b.Bettor,
		BetIndex: b.BetIndex,
		Stake:    b.Stake,
		Status:   string(b.Status),
		PlacedAt: b.PlacedAt.Unix(),
		Claimed:  b.Claimed,
		Payout:   b.Payout,
	}
	if b.ConfirmedAt != nil {
		ts := b.ConfirmedAt.Unix()
		resp.ConfirmedAt = &ts
	}
	writeJSON(w, resp)
}

func (s *Server) depositFunds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	wallet, err := s.svc.Deposit(r.Context(), req.UserID, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.WalletResponse{UserID: wallet.UserID, Balance: wallet.Balance})
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	wallet, err := s.svc.GetWallet(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.WalletResponse{UserID: wallet.UserID, Balance: wallet.Balance})
}

func marketToResponse(m *domain.Market) dto.MarketResponse {
	resp := dto.MarketResponse{
		MarketID:             m.ID,
		MarketRef:            m.MarketRef,
		Creator:              m.Creator,
		Question:             m.Question,
		ResolutionTime:       m.ResolutionTime.Unix(),
		FeeBps:               m.FeeBps,
		OracleMode:           string(m.OracleMode),
		Status:               string(m.Status),
		AggregateInitialized: m.AggregateInitialized,
		ComputationPending:   m.InFlightComputation != "",
		BetCount:             m.BetCount,
		TotalLiquidity:       m.TotalLiquidityApprox,
	}
	if m.Status == domain.MarketResolved {
		yes, no, total := m.RevealedYesPool, m.RevealedNoPool, m.RevealedTotalPool
		resp.Outcome = m.Outcome
		resp.YesPool = &yes
		resp.NoPool = &no
		resp.TotalPool = &total
	}
	return resp
}

// writeError traduz os erros sentinela do domínio pro status HTTP
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrStakeTooLow),
		errors.Is(err, domain.ErrStakeTooHigh),
		errors.Is(err, circuit.ErrBadCiphertext):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrClaimMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrMarketNotOpen),
		errors.Is(err, domain.ErrMarketNotClosed),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrMarketNotCancelled),
		errors.Is(err, domain.ErrMarketAlreadyResolved),
		errors.Is(err, domain.ErrMarketCancelled),
		errors.Is(err, domain.ErrBettingPeriodEnded),
		errors.Is(err, domain.ErrAggregateNotInitialized),
		errors.Is(err, domain.ErrAggregateAlreadyInitialized),
		errors.Is(err, domain.ErrComputationInFlight),
		errors.Is(err, domain.ErrMarketRefTaken),
		errors.Is(err, domain.ErrBetAlreadyPlaced),
		errors.Is(err, domain.ErrBetNotConfirmed),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusConflict
	default:
		s.log.Error("unhandled request error", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
