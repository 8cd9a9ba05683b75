package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations contains the schema, applied in order. Every statement is
// idempotent so Migrate can run on each start.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT,
		national_id BIGINT NOT NULL UNIQUE,
		wallet_address TEXT UNIQUE,
		salt TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		date_of_birth TIMESTAMPTZ,
		password_hash TEXT,
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
		hashed_mnemonic TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		kyc_status TEXT NOT NULL DEFAULT 'pending'
			CHECK (kyc_status IN ('pending', 'verified', 'rejected', 'error'))
	)`,

	`CREATE TABLE IF NOT EXISTS ekyc_verifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		national_id_hash TEXT NOT NULL,
		date_of_birth TIMESTAMPTZ NOT NULL,
		age INTEGER,
		custodial_address TEXT NOT NULL,
		tx_digest TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'verified', 'rejected', 'error')),
		reason TEXT,
		request_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS ekyc_verifications_one_pending
		ON ekyc_verifications (user_id) WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS bonds (
		id TEXT PRIMARY KEY,
		bond_object_id TEXT,
		bond_name TEXT NOT NULL,
		bond_type TEXT NOT NULL
			CHECK (bond_type IN ('government', 'corporate', 'green', 'development', 'domestic')),
		bond_symbol TEXT NOT NULL,
		organization_name TEXT NOT NULL,
		face_value BIGINT NOT NULL CHECK (face_value > 0),
		tl_unit_offered BIGINT NOT NULL CHECK (tl_unit_offered > 0),
		tl_unit_subscribed BIGINT NOT NULL DEFAULT 0,
		maturity TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
		interest_rate NUMERIC(9, 4) NOT NULL,
		purpose TEXT NOT NULL,
		market TEXT CHECK (market IN ('current', 'resale')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		subscription_period INTEGER NOT NULL,
		subscription_end_date TIMESTAMPTZ NOT NULL,
		matured_at TIMESTAMPTZ,
		CONSTRAINT bonds_subscribed_check CHECK (tl_unit_subscribed BETWEEN 0 AND tl_unit_offered)
	)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		bond_id TEXT NOT NULL REFERENCES bonds(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		wallet_address TEXT NOT NULL,
		committed_amount BIGINT NOT NULL CHECK (committed_amount > 0),
		tx_hash TEXT NOT NULL,
		subscription_amt BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS subscriptions_bond_idx ON subscriptions (bond_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		bond_id TEXT NOT NULL REFERENCES bonds(id),
		user_from TEXT NOT NULL REFERENCES users(id),
		user_to TEXT NOT NULL REFERENCES users(id),
		units BIGINT NOT NULL CHECK (units > 0),
		tx_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS transactions_bond_idx ON transactions (bond_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('subscription', 'transfer', 'maturity')),
		bond_id TEXT NOT NULL REFERENCES bonds(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		details TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS events_bond_idx ON events (bond_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS holdings (
		bond_id TEXT NOT NULL REFERENCES bonds(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		units BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (bond_id, user_id),
		CONSTRAINT holdings_units_check CHECK (units >= 0)
	)`,
}

// Migrate applies Migrations in order.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range Migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
