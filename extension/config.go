package extension

import "time"

// Config holds the adjudicator extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.adjudicator" or "adjudicator" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// CatalogFile is a YAML benefit catalog published as the first snapshot
	// when no catalog was supplied with WithCatalog.
	CatalogFile string `json:"catalog_file" mapstructure:"catalog_file" yaml:"catalog_file"`

	// HighRiskThreshold is the risk score at or above which claims go to
	// manual review (default: 70).
	HighRiskThreshold int `json:"high_risk_threshold" mapstructure:"high_risk_threshold" yaml:"high_risk_threshold"`

	// AutoApprovalConfidence is the advisor confidence below which an
	// approval is routed to review (default: 75).
	AutoApprovalConfidence int `json:"auto_approval_confidence" mapstructure:"auto_approval_confidence" yaml:"auto_approval_confidence"`

	// AdvisorTimeout bounds a single advisor attempt (default: 5s).
	AdvisorTimeout time.Duration `json:"advisor_timeout" mapstructure:"advisor_timeout" yaml:"advisor_timeout"`

	// AdvisorRetries is the number of advisor attempts per adjudication (default: 3).
	AdvisorRetries uint `json:"advisor_retries" mapstructure:"advisor_retries" yaml:"advisor_retries"`

	// LedgerRetries bounds compare-and-set retries on a contended benefit
	// pool (default: 16).
	LedgerRetries int `json:"ledger_retries" mapstructure:"ledger_retries" yaml:"ledger_retries"`

	// Driver names the backend behind a grove.DB passed with WithGroveDB:
	// "postgres", "sqlite" or "mongo".
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HighRiskThreshold:      70,
		AutoApprovalConfidence: 75,
		AdvisorTimeout:         5 * time.Second,
		AdvisorRetries:         3,
		LedgerRetries:          16,
	}
}
