// Package catalog holds the versioned policy catalog: benefit categories,
// their limits and coverage, and the service types each category covers.
package catalog

import (
	"errors"
	"time"

	"github.com/xraph/adjudicator/types"
)

// ResetRule controls how a category's usage period rolls over.
type ResetRule string

const (
	ResetAnnual        ResetRule = "annual"
	ResetRolling30Days ResetRule = "rolling-30-day"
)

// BenefitCategory is one benefit pool of a scheme.
type BenefitCategory struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	CoveragePercent int         `json:"coverage_percent"`
	PeriodicLimit   types.Money `json:"periodic_limit"`
	PeriodStart     time.Time   `json:"period_start"`
	PeriodEnd       time.Time   `json:"period_end,omitzero"`
	ResetRule       ResetRule   `json:"reset_rule"`
}

// Snapshot is an immutable version of the catalog. Once published it must
// not be modified; adjudications pin the version they started with.
type Snapshot struct {
	Version     int                        `json:"version"`
	Currency    string                     `json:"currency"`
	Categories  map[string]BenefitCategory `json:"categories"`
	Services    map[string]string          `json:"services"`
	PublishedAt time.Time                  `json:"published_at"`
}

var (
	ErrUnknownServiceType = errors.New("catalog: unknown service type")
	ErrUnknownCategory    = errors.New("catalog: unknown benefit category")
	ErrVersionNotFound    = errors.New("catalog: version not found")
	ErrNoSnapshot         = errors.New("catalog: no snapshot published")
	ErrInvalidPeriodKey   = errors.New("catalog: invalid period key")
	ErrOutsideCoverage    = errors.New("catalog: service date outside coverage period")
	ErrInvalidSnapshot    = errors.New("catalog: invalid snapshot")
)
