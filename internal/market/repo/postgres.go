// Package repo implementa a persistência do motor de liquidação em
// Postgres. Cada entry point do engine roda dentro de um BeginTx; as
// leituras de escrita usam FOR UPDATE para serializar mutações por linha.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/veil-market-poc/internal/market/domain"
	"github.com/radieske/veil-market-poc/internal/market/engine"
	"github.com/radieske/veil-market-poc/internal/mpc/circuit"
)

// Postgres implementa engine.Store
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// WithinTx roda fn numa transação; qualquer erro desfaz tudo
func (p *Postgres) WithinTx(ctx context.Context, fn func(engine.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	return scanMarket(p.db.QueryRowContext(ctx, selectMarket+` WHERE id=$1`, id))
}

func (p *Postgres) GetVault(ctx context.Context, marketID string) (*domain.Vault, error) {
	return scanVault(p.db.QueryRowContext(ctx, selectVault+` WHERE market_id=$1`, marketID))
}

func (p *Postgres) GetBet(ctx context.Context, marketID, bettor string) (*domain.BetRecord, error) {
	return scanBet(p.db.QueryRowContext(ctx, selectBet+` WHERE market_id=$1 AND bettor=$2`, marketID, bettor))
}

func (p *Postgres) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return scanWallet(p.db.QueryRowContext(ctx, selectWallet+` WHERE user_id=$1`, userID))
}

// pgTx implementa engine.Tx sobre um *sql.Tx aberto
type pgTx struct{ tx *sql.Tx }

const selectMarket = `
	SELECT id, market_ref, creator, question, resolution_time, created_at,
	       fee_bps, oracle_mode, status, outcome,
	       aggregate, aggregate_nonce, aggregate_initialized, inflight_computation,
	       revealed_yes, revealed_no, revealed_total,
	       bet_count, total_liquidity, vault_id
	FROM markets`

func (t *pgTx) GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error) {
	return scanMarket(t.tx.QueryRowContext(ctx, selectMarket+` WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) MarketRefExists(ctx context.Context, creator string, ref uint64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM markets WHERE creator=$1 AND market_ref=$2)`,
		creator, int64(ref)).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertMarket(ctx context.Context, m *domain.Market) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO markets (id, market_ref, creator, question, resolution_time, created_at,
		                     fee_bps, oracle_mode, status, outcome,
		                     aggregate, aggregate_nonce, aggregate_initialized, inflight_computation,
		                     revealed_yes, revealed_no, revealed_total,
		                     bet_count, total_liquidity, vault_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		m.ID, int64(m.MarketRef), m.Creator, m.Question, m.ResolutionTime, m.CreatedAt,
		int16(m.FeeBps), string(m.OracleMode), string(m.Status), m.Outcome,
		packAggregate(m.Aggregate), m.AggregateNonce, m.AggregateInitialized, m.InFlightComputation,
		int64(m.RevealedYesPool), int64(m.RevealedNoPool), int64(m.RevealedTotalPool),
		int64(m.BetCount), int64(m.TotalLiquidityApprox), m.VaultID,
	)
	if isUniqueViolation(err) {
		return domain.ErrMarketRefTaken
	}
	return err
}

func (t *pgTx) UpdateMarket(ctx context.Context, m *domain.Market) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE markets SET status=$2, outcome=$3,
		       aggregate=$4, aggregate_nonce=$5, aggregate_initialized=$6, inflight_computation=$7,
		       revealed_yes=$8, revealed_no=$9, revealed_total=$10,
		       bet_count=$11, total_liquidity=$12
		WHERE id=$1`,
		m.ID, string(m.Status), m.Outcome,
		packAggregate(m.Aggregate), m.AggregateNonce, m.AggregateInitialized, m.InFlightComputation,
		int64(m.RevealedYesPool), int64(m.RevealedNoPool), int64(m.RevealedTotalPool),
		int64(m.BetCount), int64(m.TotalLiquidityApprox),
	)
	return err
}

const selectVault = `SELECT id, market_id, total_deposits, total_withdrawals FROM vaults`

func (t *pgTx) GetVaultForUpdate(ctx context.Context, marketID string) (*domain.Vault, error) {
	return scanVault(t.tx.QueryRowContext(ctx, selectVault+` WHERE market_id=$1 FOR UPDATE`, marketID))
}

func (t *pgTx) InsertVault(ctx context.Context, v *domain.Vault) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO vaults (id, market_id, total_deposits, total_withdrawals) VALUES ($1,$2,$3,$4)`,
		v.ID, v.MarketID, int64(v.TotalDeposits), int64(v.TotalWithdrawals))
	return err
}

func (t *pgTx) UpdateVault(ctx context.Context, v *domain.Vault) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE vaults SET total_deposits=$2, total_withdrawals=$3 WHERE id=$1`,
		v.ID, int64(v.TotalDeposits), int64(v.TotalWithdrawals))
	return err
}

const selectBet = `
	SELECT id, market_id, bettor, bet_index, encrypted_bet, bettor_pubkey, bettor_nonce,
	       stake, status, placed_at, confirmed_at, claimed, payout
	FROM bets`

func (t *pgTx) GetBetForUpdate(ctx context.Context, marketID, bettor string) (*domain.BetRecord, error) {
	return scanBet(t.tx.QueryRowContext(ctx, selectBet+` WHERE market_id=$1 AND bettor=$2 FOR UPDATE`, marketID, bettor))
}

func (t *pgTx) InsertBet(ctx context.Context, b *domain.BetRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (id, market_id, bettor, bet_index, encrypted_bet, bettor_pubkey, bettor_nonce,
		                  stake, status, placed_at, confirmed_at, claimed, payout)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.MarketID, b.Bettor, int64(b.BetIndex), packBet(b.EncryptedBet), b.BettorPubKey[:], b.BettorNonce,
		int64(b.Stake), string(b.Status), b.PlacedAt, b.ConfirmedAt, b.Claimed, payoutCol(b.Payout),
	)
	if isUniqueViolation(err) {
		return domain.ErrBetAlreadyPlaced
	}
	return err
}

func (t *pgTx) UpdateBet(ctx context.Context, b *domain.BetRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE bets SET status=$2, confirmed_at=$3, claimed=$4, payout=$5 WHERE id=$1`,
		b.ID, string(b.Status), b.ConfirmedAt, b.Claimed, payoutCol(b.Payout))
	return err
}

const selectComputation = `
	SELECT id, market_id, circuit, bettor, issued_nonce, status, queued_at, applied_at, fail_reason
	FROM computations`

func (t *pgTx) GetComputationForUpdate(ctx context.Context, id string) (*domain.Computation, error) {
	row := t.tx.QueryRowContext(ctx, selectComputation+` WHERE id=$1 FOR UPDATE`, id)
	c := &domain.Computation{}
	var status string
	var appliedAt sql.NullTime
	err := row.Scan(&c.ID, &c.MarketID, &c.Circuit, &c.Bettor, &c.IssuedNonce,
		&status, &c.QueuedAt, &appliedAt, &c.FailReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Status = domain.ComputationStatus(status)
	if appliedAt.Valid {
		ts := appliedAt.Time
		c.AppliedAt = &ts
	}
	return c, nil
}

func (t *pgTx) InsertComputation(ctx context.Context, c *domain.Computation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO computations (id, market_id, circuit, bettor, issued_nonce, status, queued_at, applied_at, fail_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.MarketID, c.Circuit, c.Bettor, c.IssuedNonce, string(c.Status), c.QueuedAt, c.AppliedAt, c.FailReason)
	return err
}

func (t *pgTx) UpdateComputation(ctx context.Context, c *domain.Computation) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE computations SET status=$2, applied_at=$3, fail_reason=$4 WHERE id=$1`,
		c.ID, string(c.Status), c.AppliedAt, c.FailReason)
	return err
}

const selectWallet = `SELECT user_id, balance FROM wallets`

func (t *pgTx) GetWalletForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return scanWallet(t.tx.QueryRowContext(ctx, selectWallet+` WHERE user_id=$1 FOR UPDATE`, userID))
}

func (t *pgTx) UpsertWallet(ctx context.Context, w *domain.Wallet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`,
		w.UserID, int64(w.Balance))
	return err
}

// Scans compartilhados entre leituras soltas e leituras com trava

type row interface{ Scan(dest ...any) error }

func scanMarket(r row) (*domain.Market, error) {
	m := &domain.Market{}
	var (
		marketRef, yes, no, total, betCount, liquidity int64
		feeBps                                         int16
		oracleMode, status                             string
		outcome                                        sql.NullBool
		aggregate                                      []byte
		resolutionTime, createdAt                      time.Time
	)
	err := r.Scan(&m.ID, &marketRef, &m.Creator, &m.Question, &resolutionTime, &createdAt,
		&feeBps, &oracleMode, &status, &outcome,
		&aggregate, &m.AggregateNonce, &m.AggregateInitialized, &m.InFlightComputation,
		&yes, &no, &total, &betCount, &liquidity, &m.VaultID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.MarketRef = uint64(marketRef)
	if outcome.Valid {
		o := outcome.Bool
		m.Outcome = &o
	}
	m.ResolutionTime = resolutionTime
	m.CreatedAt = createdAt
	m.FeeBps = uint16(feeBps)
	m.OracleMode = domain.OracleMode(oracleMode)
	m.Status = domain.MarketStatus(status)
	if err := unpackAggregate(aggregate, &m.Aggregate); err != nil {
		return nil, err
	}
	m.RevealedYesPool = uint64(yes)
	m.RevealedNoPool = uint64(no)
	m.RevealedTotalPool = uint64(total)
	m.BetCount = uint32(betCount)
	m.TotalLiquidityApprox = uint64(liquidity)
	return m, nil
}

func scanVault(r row) (*domain.Vault, error) {
	v := &domain.Vault{}
	var deposits, withdrawals int64
	err := r.Scan(&v.ID, &v.MarketID, &deposits, &withdrawals)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.TotalDeposits = uint64(deposits)
	v.TotalWithdrawals = uint64(withdrawals)
	return v, nil
}

func scanBet(r row) (*domain.BetRecord, error) {
	b := &domain.BetRecord{}
	var (
		betIndex, stake int64
		encBet, pubKey  []byte
		status          string
		confirmedAt     sql.NullTime
		payout          sql.NullInt64
	)
	err := r.Scan(&b.ID, &b.MarketID, &b.Bettor, &betIndex, &encBet, &pubKey, &b.BettorNonce,
		&stake, &status, &b.PlacedAt, &confirmedAt, &b.Claimed, &payout)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.BetIndex = uint32(betIndex)
	if err := unpackBet(encBet, &b.EncryptedBet); err != nil {
		return nil, err
	}
	copy(b.BettorPubKey[:], pubKey)
	if confirmedAt.Valid {
		ts := confirmedAt.Time
		b.ConfirmedAt = &ts
	}
	b.Stake = uint64(stake)
	b.Status = domain.BetStatus(status)
	if payout.Valid {
		p := uint64(payout.Int64)
		b.Payout = &p
	}
	return b, nil
}

func scanWallet(r row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var balance int64
	err := r.Scan(&w.UserID, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.Balance = uint64(balance)
	return w, nil
}

// Empacotamento dos blobs cifrados em BYTEA de tamanho fixo

func packAggregate(a circuit.Aggregate) []byte {
	out := make([]byte, 0, 3*len(a[0]))
	for _, c := range a {
		out = append(out, c[:]...)
	}
	return out
}

func unpackAggregate(b []byte, a *circuit.Aggregate) error {
	if len(b) == 0 {
		return nil // agregado ainda não inicializado
	}
	if len(b) != 3*len(a[0]) {
		return circuit.ErrBadCiphertext
	}
	for i := range a {
		copy(a[i][:], b[i*len(a[0]):])
	}
	return nil
}

func packBet(eb circuit.EncryptedBet) []byte {
	out := make([]byte, 0, 2*len(eb[0]))
	for _, c := range eb {
		out = append(out, c[:]...)
	}
	return out
}

func unpackBet(b []byte, eb *circuit.EncryptedBet) error {
	if len(b) != 2*len(eb[0]) {
		return circuit.ErrBadCiphertext
	}
	copy(eb[0][:], b[:len(eb[0])])
	copy(eb[1][:], b[len(eb[0]):])
	return nil
}

func payoutCol(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
