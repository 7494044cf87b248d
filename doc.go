// Package adjudicator provides a claims adjudication and benefit utilization
// engine for Go applications.
//
// Adjudicator is a library, not a service. It decides whether a submitted
// claim is approved, denied or sent for manual review, tracks each member's
// consumption of benefit categories against periodic limits, computes the
// patient's cost-share and enforces the claim state machine. It provides:
//
//   - Fixed-point money with half-up rounding in exactly one place
//   - A versioned policy catalog mapping service types to benefit categories
//   - A benefit ledger that never commits past a category's limit, even
//     under concurrent submissions
//   - Heuristic risk scoring from provider and member history
//   - A guarded, audited lifecycle with step-up verified voids and appeals
//   - Plugin hooks for audit sinks, notifications and metrics
//
// # Quick Start
//
//	cat := catalog.New()
//	if _, err := cat.Publish(snapshot); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng := adjudicator.New(memory.New(), cat, advisor,
//	    adjudicator.WithIdentityVerifier(verifier),
//	)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	rec, err := eng.Submit(ctx, "", adjudicator.ClaimInput{
//	    MemberID:     "mem-100",
//	    ProviderID:   "prov-7",
//	    ServiceType:  "consultation",
//	    BilledAmount: adjudicator.USD(100000),
//	    ServiceDate:  time.Now(),
//	})
//
// # Outcomes and errors
//
// Denials and reviews are DecisionRecord values, never errors. Errors are
// guard violations (IsGuardViolation), transient collaborator or contention
// failures (IsRetryable), lookups of unknown things (IsNotFound) and
// bookkeeping defects (IsInvariantViolation).
//
// # Concurrency
//
// There is no global lock. Benefit usage rows and claims are updated by
// optimistic compare-and-set on a version counter, so throughput scales
// with the number of distinct members and claims in flight.
//
// # Integration
//
//   - Forge: the extension package registers the engine in a Forge app
//   - Grove: PostgreSQL, SQLite and MongoDB stores with migrations
//   - audit_hook and notify_hook bridge lifecycle events to external sinks
//   - observability records counters and histograms via a MetricFactory
package adjudicator
