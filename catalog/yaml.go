package catalog

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/adjudicator/types"
)

// File is the on-disk YAML form of a snapshot. Limits are written in major
// units so a catalog reads the way a policy document does.
type File struct {
	Currency   string         `yaml:"currency"`
	Categories []CategoryFile `yaml:"categories"`
}

// CategoryFile is one category entry in a catalog file.
type CategoryFile struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	CoveragePercent int      `yaml:"coverage_percent"`
	PeriodicLimit   string   `yaml:"periodic_limit"`
	PeriodStart     string   `yaml:"period_start"`
	PeriodEnd       string   `yaml:"period_end"`
	ResetRule       string   `yaml:"reset_rule"`
	ServiceTypes    []string `yaml:"service_types"`
}

// LoadFile reads a catalog snapshot from a YAML file.
func LoadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML decodes and validates a catalog snapshot. The returned snapshot
// is unpublished and carries no version.
func LoadYAML(r io.Reader) (Snapshot, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Snapshot{}, fmt.Errorf("catalog: decode: %w", err)
	}
	return file.Snapshot()
}

// Snapshot converts the file form into a validated Snapshot.
func (f *File) Snapshot() (Snapshot, error) {
	snap := Snapshot{
		Currency:   f.Currency,
		Categories: make(map[string]BenefitCategory, len(f.Categories)),
		Services:   make(map[string]string),
	}
	for _, cf := range f.Categories {
		if _, dup := snap.Categories[cf.ID]; dup {
			return Snapshot{}, fmt.Errorf("%w: duplicate category %q", ErrInvalidSnapshot, cf.ID)
		}
		limit, err := types.ParseMajor(cf.PeriodicLimit, f.Currency)
		if err != nil {
			return Snapshot{}, fmt.Errorf("catalog: category %s limit: %w", cf.ID, err)
		}
		start, err := parseDate(cf.PeriodStart)
		if err != nil {
			return Snapshot{}, fmt.Errorf("catalog: category %s period_start: %w", cf.ID, err)
		}
		var end time.Time
		if cf.PeriodEnd != "" {
			if end, err = parseDate(cf.PeriodEnd); err != nil {
				return Snapshot{}, fmt.Errorf("catalog: category %s period_end: %w", cf.ID, err)
			}
		}
		rule := ResetRule(cf.ResetRule)
		if rule == "" {
			rule = ResetAnnual
		}
		snap.Categories[cf.ID] = BenefitCategory{
			ID:              cf.ID,
			Name:            cf.Name,
			CoveragePercent: cf.CoveragePercent,
			PeriodicLimit:   limit,
			PeriodStart:     start,
			PeriodEnd:       end,
			ResetRule:       rule,
		}
		for _, svc := range cf.ServiceTypes {
			key := normalizeService(svc)
			if owner, taken := snap.Services[key]; taken {
				return Snapshot{}, fmt.Errorf("%w: service %q mapped to both %s and %s", ErrInvalidSnapshot, svc, owner, cf.ID)
			}
			snap.Services[key] = cf.ID
		}
	}
	norm := snap.clone()
	if err := norm.Validate(); err != nil {
		return Snapshot{}, err
	}
	return *norm, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
