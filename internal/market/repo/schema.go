package repo

import "context"

// EnsureSchema cria as tabelas do motor de liquidação se não existirem.
// Valores uint64 são armazenados em BIGINT pela representação de
// complemento de dois; os limites de stake mantêm os valores honestos
// bem abaixo do ponto em que isso importaria.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id                    TEXT PRIMARY KEY,
			market_ref            BIGINT NOT NULL,
			creator               TEXT NOT NULL,
			question              TEXT NOT NULL,
			resolution_time       TIMESTAMPTZ NOT NULL,
			created_at            TIMESTAMPTZ NOT NULL,
			fee_bps               SMALLINT NOT NULL,
			oracle_mode           TEXT NOT NULL,
			status                TEXT NOT NULL,
			outcome               BOOLEAN,
			aggregate             BYTEA NOT NULL DEFAULT ''::bytea,
			aggregate_nonce       TEXT NOT NULL DEFAULT '',
			aggregate_initialized BOOLEAN NOT NULL DEFAULT FALSE,
			inflight_computation  TEXT NOT NULL DEFAULT '',
			revealed_yes          BIGINT NOT NULL DEFAULT 0,
			revealed_no           BIGINT NOT NULL DEFAULT 0,
			revealed_total        BIGINT NOT NULL DEFAULT 0,
			bet_count             BIGINT NOT NULL DEFAULT 0,
			total_liquidity       BIGINT NOT NULL DEFAULT 0,
			vault_id              TEXT NOT NULL,
			UNIQUE (creator, market_ref)
		)`,
		`CREATE TABLE IF NOT EXISTS vaults (
			id                TEXT PRIMARY KEY,
			market_id         TEXT NOT NULL UNIQUE,
			total_deposits    BIGINT NOT NULL DEFAULT 0,
			total_withdrawals BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id            TEXT PRIMARY KEY,
			market_id     TEXT NOT NULL,
			bettor        TEXT NOT NULL,
			bet_index     BIGINT NOT NULL,
			encrypted_bet BYTEA NOT NULL,
			bettor_pubkey BYTEA NOT NULL,
			bettor_nonce  TEXT NOT NULL,
			stake         BIGINT NOT NULL,
			status        TEXT NOT NULL,
			placed_at     TIMESTAMPTZ NOT NULL,
			confirmed_at  TIMESTAMPTZ,
			claimed       BOOLEAN NOT NULL DEFAULT FALSE,
			payout        BIGINT,
			UNIQUE (market_id, bettor)
		)`,
		`CREATE TABLE IF NOT EXISTS computations (
			id           TEXT PRIMARY KEY,
			market_id    TEXT NOT NULL,
			circuit      TEXT NOT NULL,
			bettor       TEXT NOT NULL DEFAULT '',
			issued_nonce TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			queued_at    TIMESTAMPTZ NOT NULL,
			applied_at   TIMESTAMPTZ,
			fail_reason  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
