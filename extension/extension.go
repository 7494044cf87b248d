// Package extension provides the Forge extension adapter for the
// adjudication engine.
//
// It implements the forge.Extension interface: configuration is read from
// "extensions.adjudicator" or "adjudicator" keys and merged with Option
// values, the store is built from a grove.DB or falls back to memory, and
// the *adjudicator.Engine is provided to the DI container.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/adjudicator"
	"github.com/xraph/adjudicator/catalog"
	"github.com/xraph/adjudicator/decision"
	"github.com/xraph/adjudicator/store"
	"github.com/xraph/adjudicator/store/memory"
	"github.com/xraph/adjudicator/store/mongo"
	"github.com/xraph/adjudicator/store/postgres"
	"github.com/xraph/adjudicator/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "adjudicator"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Claims adjudication and benefit utilization engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the adjudication engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *adjudicator.Engine
	store      store.Store
	groveDB    *grove.DB
	catalog    *catalog.Catalog
	advisor    decision.Advisor
	engineOpts []adjudicator.Option
}

// New creates a new adjudicator Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine. It is nil until Register is called.
func (e *Extension) Engine() *adjudicator.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration, builds the
// store and catalog, and registers the engine in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.advisor == nil {
		return errors.New("adjudicator: an advisor is required; use WithAdvisor")
	}

	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	if err := e.loadCatalog(); err != nil {
		return err
	}

	e.engine = adjudicator.New(e.store, e.catalog, e.advisor, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*adjudicator.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("adjudicator: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("adjudicator: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore picks the backend for the configured grove driver, or memory
// when no database was supplied.
func (e *Extension) buildStore() (store.Store, error) {
	if e.groveDB == nil {
		e.Logger().Warn("adjudicator: no store configured, using in-memory store")
		return memory.New(), nil
	}

	switch e.config.Driver {
	case "postgres", "pg":
		return postgres.New(e.groveDB), nil
	case "sqlite":
		return sqlite.New(e.groveDB), nil
	case "mongo", "mongodb":
		return mongo.New(e.groveDB), nil
	default:
		return nil, fmt.Errorf("adjudicator: unknown grove driver %q", e.config.Driver)
	}
}

func (e *Extension) loadCatalog() error {
	if e.catalog != nil {
		return nil
	}
	e.catalog = catalog.New()
	if e.config.CatalogFile == "" {
		return nil
	}

	snap, err := catalog.LoadFile(e.config.CatalogFile)
	if err != nil {
		return fmt.Errorf("adjudicator: load catalog: %w", err)
	}
	published, err := e.catalog.Publish(snap)
	if err != nil {
		return fmt.Errorf("adjudicator: publish catalog: %w", err)
	}
	e.Logger().Info("adjudicator: catalog published",
		forge.F("file", e.config.CatalogFile),
		forge.F("version", published.Version),
	)
	return nil
}

// buildEngineOpts constructs adjudicator.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []adjudicator.Option {
	opts := make([]adjudicator.Option, 0, len(e.engineOpts)+5)

	opts = append(opts,
		adjudicator.WithHighRiskThreshold(e.config.HighRiskThreshold),
		adjudicator.WithAutoApprovalConfidence(e.config.AutoApprovalConfidence),
		adjudicator.WithAdvisorTimeout(e.config.AdvisorTimeout),
		adjudicator.WithAdvisorRetries(e.config.AdvisorRetries),
		adjudicator.WithLedgerRetries(e.config.LedgerRetries),
	)

	// Pass-through options go last so they win over config.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("adjudicator: configuration is required but not found in config files; " +
				"ensure 'extensions.adjudicator' or 'adjudicator' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("adjudicator: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("catalog_file", e.config.CatalogFile),
		forge.F("driver", e.config.Driver),
		forge.F("high_risk_threshold", e.config.HighRiskThreshold),
		forge.F("auto_approval_confidence", e.config.AutoApprovalConfidence),
		forge.F("advisor_timeout", e.config.AdvisorTimeout),
		forge.F("advisor_retries", e.config.AdvisorRetries),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.adjudicator", "adjudicator"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("adjudicator: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("adjudicator: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.HighRiskThreshold == 0 {
		cfg.HighRiskThreshold = defaults.HighRiskThreshold
	}
	if cfg.AutoApprovalConfidence == 0 {
		cfg.AutoApprovalConfidence = defaults.AutoApprovalConfidence
	}
	if cfg.AdvisorTimeout == 0 {
		cfg.AdvisorTimeout = defaults.AdvisorTimeout
	}
	if cfg.AdvisorRetries == 0 {
		cfg.AdvisorRetries = defaults.AdvisorRetries
	}
	if cfg.LedgerRetries == 0 {
		cfg.LedgerRetries = defaults.LedgerRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.CatalogFile == "" {
		yamlConfig.CatalogFile = programmaticConfig.CatalogFile
	}
	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.HighRiskThreshold == 0 {
		yamlConfig.HighRiskThreshold = programmaticConfig.HighRiskThreshold
	}
	if yamlConfig.AutoApprovalConfidence == 0 {
		yamlConfig.AutoApprovalConfidence = programmaticConfig.AutoApprovalConfidence
	}
	if yamlConfig.AdvisorTimeout == 0 {
		yamlConfig.AdvisorTimeout = programmaticConfig.AdvisorTimeout
	}
	if yamlConfig.AdvisorRetries == 0 {
		yamlConfig.AdvisorRetries = programmaticConfig.AdvisorRetries
	}
	if yamlConfig.LedgerRetries == 0 {
		yamlConfig.LedgerRetries = programmaticConfig.LedgerRetries
	}

	return mergeWithDefaults(yamlConfig)
}
