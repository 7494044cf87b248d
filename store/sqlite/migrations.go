package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the adjudicator store (SQLite).
var Migrations = migrate.NewGroup("adjudicator")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_adjudicator_claims",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS adjudicator_claims (
    id              TEXT PRIMARY KEY,
    idempotency_key TEXT NOT NULL DEFAULT '',
    member_id       TEXT NOT NULL,
    pool_member_id  TEXT NOT NULL,
    provider_id     TEXT NOT NULL,
    service_type    TEXT NOT NULL,
    category_id     TEXT NOT NULL,
    catalog_version INTEGER NOT NULL,
    period_key      TEXT NOT NULL,
    billed_amount   INTEGER NOT NULL,
    currency        TEXT NOT NULL,
    service_date    TEXT NOT NULL,
    submitted_at    TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    version         INTEGER NOT NULL DEFAULT 1,
    decisions       TEXT NOT NULL DEFAULT '[]',
    ledger_ref      TEXT NOT NULL DEFAULT '',
    void_info       TEXT NOT NULL DEFAULT '',
    appeal          TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_adjudicator_claims_idem ON adjudicator_claims (idempotency_key) WHERE idempotency_key != '';
CREATE INDEX IF NOT EXISTS idx_adjudicator_claims_member ON adjudicator_claims (member_id, service_date);
CREATE INDEX IF NOT EXISTS idx_adjudicator_claims_provider ON adjudicator_claims (provider_id, service_date);
CREATE INDEX IF NOT EXISTS idx_adjudicator_claims_status ON adjudicator_claims (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS adjudicator_claims`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_adjudicator_audit_log",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS adjudicator_audit_log (
    id          TEXT PRIMARY KEY,
    claim_id    TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    from_status TEXT NOT NULL DEFAULT '',
    to_status   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT '',
    reason      TEXT NOT NULL DEFAULT '',
    rejected    INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_adjudicator_audit_claim_seq ON adjudicator_audit_log (claim_id, seq);
CREATE INDEX IF NOT EXISTS idx_adjudicator_audit_rejected ON adjudicator_audit_log (rejected, at) WHERE rejected = 1;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS adjudicator_audit_log`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_adjudicator_benefit_usage",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS adjudicator_benefit_usage (
    member_id   TEXT NOT NULL,
    category_id TEXT NOT NULL,
    period_key  TEXT NOT NULL,
    used_amount INTEGER NOT NULL DEFAULT 0 CHECK (used_amount >= 0),
    currency    TEXT NOT NULL,
    version     INTEGER NOT NULL DEFAULT 1,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (member_id, category_id, period_key)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS adjudicator_benefit_usage`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_adjudicator_benefit_entries",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS adjudicator_benefit_entries (
    id          TEXT PRIMARY KEY,
    member_id   TEXT NOT NULL,
    category_id TEXT NOT NULL,
    period_key  TEXT NOT NULL,
    kind        TEXT NOT NULL,
    reference   TEXT NOT NULL,
    amount      INTEGER NOT NULL,
    usage_after INTEGER NOT NULL,
    currency    TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_adjudicator_entries_ref ON adjudicator_benefit_entries (reference, kind);
CREATE INDEX IF NOT EXISTS idx_adjudicator_entries_key ON adjudicator_benefit_entries (member_id, category_id, period_key);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS adjudicator_benefit_entries`)
				return err
			},
		},
	)
}
