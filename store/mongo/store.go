package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/adjudicator/benefit"
	"github.com/xraph/adjudicator/claim"
	"github.com/xraph/adjudicator/id"
	adjstore "github.com/xraph/adjudicator/store"
)

// Collection name constants.
const (
	colClaims  = "adjudicator_claims"
	colAudit   = "adjudicator_audit_log"
	colUsage   = "adjudicator_benefit_usage"
	colEntries = "adjudicator_benefit_entries"
)

// auditInsertAttempts bounds retries when two writers race for the same
// audit sequence number.
const auditInsertAttempts = 8

// compile-time interface check
var _ adjstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all adjudicator collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("adjudicator/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toClaimModel(c)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return claim.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	return s.findClaim(ctx, bson.M{"_id": claimID.String()})
}

func (s *Store) GetClaimByIdempotencyKey(ctx context.Context, key string) (*claim.Claim, error) {
	return s.findClaim(ctx, bson.M{"idempotency_key": key})
}

func (s *Store) findClaim(ctx context.Context, filter bson.M) (*claim.Claim, error) {
	var m claimModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, claim.ErrNotFound
		}
		return nil, err
	}
	return fromClaimModel(&m)
}

func (s *Store) UpdateClaim(ctx context.Context, c *claim.Claim, expectedVersion int64) error {
	m := toClaimModel(c)
	t := time.Now().UTC()

	res, err := s.mdb.NewUpdate((*claimModel)(nil)).
		Filter(bson.M{"_id": m.ID, "version": expectedVersion}).
		Set("status", m.Status).
		Set("version", expectedVersion+1).
		Set("decisions", m.Decisions).
		Set("ledger_ref", m.LedgerRef).
		Set("void_info", m.Void).
		Set("appeal", m.Appeal).
		Set("metadata", m.Metadata).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("adjudicator/mongo: update claim: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	return s.listClaims(ctx, bson.M{"member_id": memberID, "service_date": bson.M{"$gte": since}})
}

func (s *Store) ListClaimsByProvider(ctx context.Context, providerID string, since time.Time) ([]*claim.Claim, error) {
	return s.listClaims(ctx, bson.M{"provider_id": providerID, "service_date": bson.M{"$gte": since}})
}

func (s *Store) listClaims(ctx context.Context, filter bson.M) ([]*claim.Claim, error) {
	var models []claimModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "service_date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("adjudicator/mongo: list claims: %w", err)
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
		var last auditModel
		err := s.mdb.NewFind(&last).
			Filter(bson.M{"claim_id": e.ClaimID.String()}).
			Sort(bson.D{{Key: "seq", Value: -1}}).
			Limit(1).
			Scan(ctx)
		if err != nil && !isNoDocuments(err) {
			return err
		}

		e.Seq = last.Seq + 1
		_, err = s.mdb.NewInsert(toAuditModel(e)).Exec(ctx)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}
	return claim.ErrAuditSeqConflict
}

func (s *Store) ListAudit(ctx context.Context, claimID id.ClaimID) ([]*claim.AuditEntry, error) {
	var models []auditModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"claim_id": claimID.String()}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("adjudicator/mongo: list audit: %w", err)
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
	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, benefit.ErrUsageNotFound
		}
		return nil, err
	}
	return fromUsageModel(&m), nil
}

// CompareAndSwapUsage inserts the first row for a key and afterwards only
// updates the document whose version still matches.
func (s *Store) CompareAndSwapUsage(ctx context.Context, rec *benefit.UsageRecord, expectedVersion int64) error {
	m := toUsageModel(rec)
	m.Version = expectedVersion + 1

	if expectedVersion == 0 {
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return benefit.ErrVersionConflict
			}
			return err
		}
		rec.Version = m.Version
		return nil
	}

	res, err := s.mdb.NewUpdate((*usageModel)(nil)).
		Filter(bson.M{"_id": m.ID, "version": expectedVersion}).
		Set("used_amount", m.UsedAmount).
		Set("currency", m.Currency).
		Set("version", m.Version).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("adjudicator/mongo: update usage: %w", err)
	}
	if res.MatchedCount() == 0 {
		return benefit.ErrVersionConflict
	}
	rec.Version = m.Version
	return nil
}

func (s *Store) ListUsage(ctx context.Context, memberID string) ([]*benefit.UsageRecord, error) {
	var models []usageModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"member_id": memberID}).
		Sort(bson.D{{Key: "category_id", Value: 1}, {Key: "period_key", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("adjudicator/mongo: list usage: %w", err)
	}

	result := make([]*benefit.UsageRecord, len(models))
	for i := range models {
		result[i] = fromUsageModel(&models[i])
	}
	return result, nil
}

func (s *Store) AppendEntry(ctx context.Context, e *benefit.Entry) error {
	_, err := s.mdb.NewInsert(toEntryModel(e)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return benefit.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, reference string, kind benefit.EntryKind) (*benefit.Entry, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"reference": reference, "kind": string(kind)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, benefit.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(&m)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all adjudicator collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colClaims: {
			{
				Keys: bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "member_id", Value: 1}, {Key: "service_date", Value: 1}}},
			{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "service_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colAudit: {
			{
				Keys:    bson.D{{Key: "claim_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "rejected", Value: 1}, {Key: "at", Value: -1}}},
		},
		colUsage: {
			{Keys: bson.D{{Key: "member_id", Value: 1}, {Key: "category_id", Value: 1}, {Key: "period_key", Value: 1}}},
		},
		colEntries: {
			{
				Keys:    bson.D{{Key: "reference", Value: 1}, {Key: "kind", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "member_id", Value: 1}, {Key: "category_id", Value: 1}, {Key: "period_key", Value: 1}}},
		},
	}
}
