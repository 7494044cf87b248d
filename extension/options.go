package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/adjudicator"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/plugin"
	"github.com/xraph/adjudicator/store"
)

// Option configures the adjudicator Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from a grove database. driver selects the
// backend: "postgres", "sqlite" or "mongo".
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.config.Driver = driver
	}
}

// WithAdvisor sets the clinical advisor. Register fails without one.
func WithAdvisor(a decision.Advisor) Option {
	return func(e *Extension) { e.advisor = a }
}

// WithCatalog sets a pre-populated benefit catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Extension) { e.catalog = c }
}

// WithEngineOption passes an adjudicator.Option through to the engine.
func WithEngineOption(opt adjudicator.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an adjudicator plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, adjudicator.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCatalogFile sets the YAML catalog loaded at registration.
func WithCatalogFile(path string) Option {
	return func(e *Extension) { e.config.CatalogFile = path }
}

// WithRequireConfig requires config to be present in YAML files.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithHighRiskThreshold sets the manual review risk threshold.
func WithHighRiskThreshold(score int) Option {
	return func(e *Extension) { e.config.HighRiskThreshold = score }
}

// WithAutoApprovalConfidence sets the minimum advisor confidence for auto-approval.
func WithAutoApprovalConfidence(confidence int) Option {
	return func(e *Extension) { e.config.AutoApprovalConfidence = confidence }
}

// WithAdvisorTimeout sets the per-attempt advisor timeout.
func WithAdvisorTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.AdvisorTimeout = d }
}
