package engine_test

import (
	"context"
	"sync"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/market/engine"
	"github.com/radieske/veil-market-poc/pkg/contracts/events"
)

// memStore implementa engine.Store em memória com rollback por snapshot.
// Toda leitura devolve clone e toda escrita guarda clone, então basta
// restaurar os mapas pra desfazer uma transação que falhou.
type memStore struct {
	mu      sync.Mutex
	markets map[string]*domain.Market
	vaults  map[string]*domain.Vault // por marketID
	bets    map[string]*domain.BetRecord
	comps   map[string]*domain.Computation
	wallets map[string]*domain.Wallet
}

func newMemStore() *memStore {
	return &memStore{
		markets: map[string]*domain.Market{},
		vaults:  map[string]*domain.Vault{},
		bets:    map[string]*domain.BetRecord{},
		comps:   map[string]*domain.Computation{},
		wallets: map[string]*domain.Wallet{},
	}
}

func betKey(marketID, bettor string) string { return marketID + "/" + bettor }

func (s *memStore) WithinTx(_ context.Context, fn func(engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapMarkets := copyMap(s.markets)
	snapVaults := copyMap(s.vaults)
	snapBets := copyMap(s.bets)
	snapComps := copyMap(s.comps)
	snapWallets := copyMap(s.wallets)

	if err := fn(&memTx{s: s}); err != nil {
		s.markets, s.vaults, s.bets = snapMarkets, snapVaults, snapBets
		s.comps, s.wallets = snapComps, snapWallets
		return err
	}
	return nil
}

func (s *memStore) GetMarket(_ context.Context, id string) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (s *memStore) GetVault(_ context.Context, marketID string) (*domain.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[marketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) GetBet(_ context.Context, marketID, bettor string) (*domain.BetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betKey(marketID, bettor)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBet(b), nil
}

func (s *memStore) GetWallet(_ context.Context, userID string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

type memTx struct{ s *memStore }

func (t *memTx) GetMarketForUpdate(_ context.Context, id string) (*domain.Market, error) {
	m, ok := t.s.markets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (t *memTx) MarketRefExists(_ context.Context, creator string, ref uint64) (bool, error) {
	for _, m := range t.s.markets {
		if m.Creator == creator && m.MarketRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertMarket(_ context.Context, m *domain.Market) error {
	t.s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (t *memTx) UpdateMarket(_ context.Context, m *domain.Market) error {
	t.s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (t *memTx) GetVaultForUpdate(_ context.Context, marketID string) (*domain.Vault, error) {
	v, ok := t.s.vaults[marketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (t *memTx) InsertVault(_ context.Context, v *domain.Vault) error {
	cp := *v
	t.s.vaults[v.MarketID] = &cp
	return nil
}

func (t *memTx) UpdateVault(_ context.Context, v *domain.Vault) error {
	cp := *v
	t.s.vaults[v.MarketID] = &cp
	return nil
}

func (t *memTx) GetBetForUpdate(_ context.Context, marketID, bettor string) (*domain.BetRecord, error) {
	b, ok := t.s.bets[betKey(marketID, bettor)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBet(b), nil
}

func (t *memTx) InsertBet(_ context.Context, b *domain.BetRecord) error {
	key := betKey(b.MarketID, b.Bettor)
	if _, exists := t.s.bets[key]; exists {
		return domain.ErrBetAlreadyPlaced
	}
	t.s.bets[key] = cloneBet(b)
	return nil
}

func (t *memTx) UpdateBet(_ context.Context, b *domain.BetRecord) error {
	t.s.bets[betKey(b.MarketID, b.Bettor)] = cloneBet(b)
	return nil
}

func (t *memTx) GetComputationForUpdate(_ context.Context, id string) (*domain.Computation, error) {
	c, ok := t.s.comps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneComp(c), nil
}

func (t *memTx) InsertComputation(_ context.Context, c *domain.Computation) error {
	t.s.comps[c.ID] = cloneComp(c)
	return nil
}

func (t *memTx) UpdateComputation(_ context.Context, c *domain.Computation) error {
	t.s.comps[c.ID] = cloneComp(c)
	return nil
}

func (t *memTx) GetWalletForUpdate(_ context.Context, userID string) (*domain.Wallet, error) {
	w, ok := t.s.wallets[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (t *memTx) UpsertWallet(_ context.Context, w *domain.Wallet) error {
	cp := *w
	t.s.wallets[w.UserID] = &cp
	return nil
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMarket(m *domain.Market) *domain.Market {
	cp := *m
	if m.Outcome != nil {
		o := *m.Outcome
		cp.Outcome = &o
	}
	return &cp
}

func cloneBet(b *domain.BetRecord) *domain.BetRecord {
	cp := *b
	if b.ConfirmedAt != nil {
		ts := *b.ConfirmedAt
		cp.ConfirmedAt = &ts
	}
	if b.Payout != nil {
		p := *b.Payout
		cp.Payout = &p
	}
	return &cp
}

func cloneComp(c *domain.Computation) *domain.Computation {
	cp := *c
	if c.AppliedAt != nil {
		ts := *c.AppliedAt
		cp.AppliedAt = &ts
	}
	return &cp
}

// fakeQueue captura requisições de computação em memória
type fakeQueue struct {
	mu   sync.Mutex
	reqs []events.ComputationRequested
	fail error // se setado, a próxima publicação falha
}

func (q *fakeQueue) PublishComputation(_ context.Context, req events.ComputationRequested) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		err := q.fail
		q.fail = nil
		return err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *fakeQueue) pop() (events.ComputationRequested, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.reqs) == 0 {
		return events.ComputationRequested{}, false
	}
	req := q.reqs[0]
	q.reqs = q.reqs[1:]
	return req, true
}

// fakeNotifier coleta eventos publicados
type fakeNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *fakeNotifier) PublishMarketEvent(_ context.Context, eventType string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, eventType)
	return nil
}
