package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("adjudicator/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("adjudicator/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(m).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", claimID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("idempotency_key = ?", key).
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

	res, err := s.sdb.NewUpdate((*claimModel)(nil)).
		Set("status = ?", m.Status).
		Set("version = ?", expectedVersion+1).
		Set("decisions = ?", m.Decisions).
		Set("ledger_ref = ?", m.LedgerRef).
		Set("void_info = ?", m.VoidInfo).
		Set("appeal = ?", m.Appeal).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", t).
		Where("id = ?", m.ID).
		Where("version = ?", expectedVersion).
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
	err := s.sdb.NewSelect(&models).
		Where(column+" = ?", value).
		Where("service_date >= ?", since).
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
		err := s.sdb.NewRaw(`
			SELECT COALESCE(MAX(seq), 0) FROM adjudicator_audit_log WHERE claim_id = ?
		`, e.ClaimID.String()).Scan(ctx, &last)
		if err != nil {
			return err
		}

		e.Seq = last + 1
		res, err := s.sdb.NewInsert(toAuditModel(e)).
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
	err := s.sdb.NewSelect(&models).
		Where("claim_id = ?", claimID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("member_id = ?", key.MemberID).
		Where("category_id = ?", key.CategoryID).
		Where("period_key = ?", key.PeriodKey).
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
		rows, err = affected(s.sdb.NewInsert(m).
			OnConflict("(member_id, category_id, period_key) DO NOTHING").
			Exec(ctx))
	} else {
		rows, err = affected(s.sdb.NewUpdate((*usageModel)(nil)).
			Set("used_amount = ?", m.UsedAmount).
			Set("currency = ?", m.Currency).
			Set("version = ?", m.Version).
			Set("updated_at = ?", m.UpdatedAt).
			Where("member_id = ?", m.MemberID).
			Where("category_id = ?", m.CategoryID).
			Where("period_key = ?", m.PeriodKey).
			Where("version = ?", expectedVersion).
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
	err := s.sdb.NewSelect(&models).
		Where("member_id = ?", memberID).
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
	res, err := s.sdb.NewInsert(toEntryModel(e)).
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
	err := s.sdb.NewSelect(m).
		Where("reference = ?", reference).
		Where("kind = ?", string(kind)).
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
