package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	adjstore "github.com/xraph/adjudicator/store"
)

// auditInsertAttempts bounds retries when two writers race for the same
// audit sequence number.
const auditInsertAttempts = 8

// compile-time interface check
var _ adjstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("adjudicator/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("adjudicator/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Claim Store ====================

func (s *Store) CreateClaim(ctx context.Context, c *claim.Claim) error {
	c.Version = 1
	m, err := toClaimModel(c)
	if err != nil {
		return err
	}
	res, err := s.pg.NewInsert(m).
		OnConflict("(idempotency_key) WHERE idempotency_key != '' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return claim.ErrDuplicateKey
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	m := new(claimModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", claimID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, claim.ErrNotFound
		}
		return nil, err
	}
	return fromClaimModel(m)
}

func (s *Store) GetClaimByIdempotencyKey(ctx context.Context, key string) (*claim.Claim, error) {
	m := new(claimModel)
	err := s.pg.NewSelect(m).
		Where("idempotency_key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, claim.ErrNotFound
		}
		return nil, err
	}
	return fromClaimModel(m)
}

func (s *Store) UpdateClaim(ctx context.Context, c *claim.Claim, expectedVersion int64) error {
	m, err := toClaimModel(c)
	if err != nil {
		return err
	}
	t := time.Now().UTC()

	res, err := s.pg.NewUpdate((*claimModel)(nil)).
		Set("status = $1", m.Status).
		Set("version = $2", expectedVersion+1).
		Set("decisions = $3", m.Decisions).
		Set("ledger_ref = $4", m.LedgerRef).
		Set("void_info = $5", m.VoidInfo).
		Set("appeal = $6", m.Appeal).
		Set("metadata = $7", m.Metadata).
		Set("updated_at = $8", t).
		Where("id = $9", m.ID).
		Where("version = $10", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetClaim(ctx, c.ID); err != nil {
			return err
		}
		return claim.ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	c.UpdatedAt = t
	return nil
}

func (s *Store) ListClaimsByMember(ctx context.Context, memberID string, since time.Time) ([]*claim.Claim, error) {
	return s.listClaims(ctx, "member_id", memberID, since)
}

func (s *Store) ListClaimsByProvider(ctx context.Context, providerID string, since time.Time) ([]*claim.Claim, error) {
	return s.listClaims(ctx, "provider_id", providerID, since)
}

func (s *Store) listClaims(ctx context.Context, column, value string, since time.Time) ([]*claim.Claim, error) {
	var models []claimModel
	err := s.pg.NewSelect(&models).
		Where(column+" = $1", value).
		Where("service_date >= $2", since).
		OrderExpr("service_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*claim.Claim, len(models))
	for i := range models {
		c, err := fromClaimModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Audit Store ====================

// AppendAudit takes the next sequence number for the claim. The unique
// (claim_id, seq) index turns a race into a retry.
func (s *Store) AppendAudit(ctx context.Context, e *claim.AuditEntry) error {
	for attempt := 0; attempt < auditInsertAttempts; attempt++ {
		var last int64
		err := s.pg.NewRaw(`
			SELECT COALESCE(MAX(seq), 0) FROM adjudicator_audit_log WHERE claim_id = $1
		`, e.ClaimID.String()).Scan(ctx, &last)
		if err != nil {
			return err
		}

		e.Seq = last + 1
		res, err := s.pg.NewInsert(toAuditModel(e)).
			OnConflict("(claim_id, seq) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 1 {
			return nil
		}
	}
	return claim.ErrAuditSeqConflict
}

func (s *Store) ListAudit(ctx context.Context, claimID id.ClaimID) ([]*claim.AuditEntry, error) {
	var models []auditModel
	err := s.pg.NewSelect(&models).
		Where("claim_id = $1", claimID.String()).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*claim.AuditEntry, len(models))
	for i := range models {
		e, err := fromAuditModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Benefit Store ====================

func (s *Store) GetUsage(ctx context.Context, key benefit.Key) (*benefit.UsageRecord, error) {
	m := new(usageModel)
	err := s.pg.NewSelect(m).
		Where("member_id = $1", key.MemberID).
		Where("category_id = $2", key.CategoryID).
		Where("period_key = $3", key.PeriodKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, benefit.ErrUsageNotFound
		}
		return nil, err
	}
	return fromUsageModel(m), nil
}

// CompareAndSwapUsage inserts the first row for a key and afterwards only
// updates the row whose version still matches.
func (s *Store) CompareAndSwapUsage(ctx context.Context, rec *benefit.UsageRecord, expectedVersion int64) error {
	m := toUsageModel(rec)
	m.Version = expectedVersion + 1

	var (
		rows int64
		err  error
	)
	if expectedVersion == 0 {
		rows, err = affected(s.pg.NewInsert(m).
			OnConflict("(member_id, category_id, period_key) DO NOTHING").
			Exec(ctx))
	} else {
		rows, err = affected(s.pg.NewUpdate((*usageModel)(nil)).
			Set("used_amount = $1", m.UsedAmount).
			Set("currency = $2", m.Currency).
			Set("version = $3", m.Version).
			Set("updated_at = $4", m.UpdatedAt).
			Where("member_id = $5", m.MemberID).
			Where("category_id = $6", m.CategoryID).
			Where("period_key = $7", m.PeriodKey).
			Where("version = $8", expectedVersion).
			Exec(ctx))
	}
	if err != nil {
		return err
	}
	if rows == 0 {
		return benefit.ErrVersionConflict
	}
	rec.Version = m.Version
	return nil
}

func (s *Store) ListUsage(ctx context.Context, memberID string) ([]*benefit.UsageRecord, error) {
	var models []usageModel
	err := s.pg.NewSelect(&models).
		Where("member_id = $1", memberID).
		OrderExpr("category_id ASC, period_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*benefit.UsageRecord, len(models))
	for i := range models {
		result[i] = fromUsageModel(&models[i])
	}
	return result, nil
}

func (s *Store) AppendEntry(ctx context.Context, e *benefit.Entry) error {
	res, err := s.pg.NewInsert(toEntryModel(e)).
		OnConflict("(reference, kind) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return benefit.ErrDuplicateEntry
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, reference string, kind benefit.EntryKind) (*benefit.Entry, error) {
	m := new(entryModel)
	err := s.pg.NewSelect(m).
		Where("reference = $1", reference).
		Where("kind = $2", string(kind)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, benefit.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

// affected unwraps the row count of an Exec result.
func affected(res interface{ RowsAffected() (int64, error) }, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
