package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const rollingWindow = 30 * 24 * time.Hour

// PeriodKey returns the usage period containing t.
//
// Annual periods run twelve months from the anniversary of PeriodStart and
// are keyed "Y<year the period starts>". Rolling periods are consecutive
// 30-day windows from PeriodStart keyed "R<window index>".
func (c *BenefitCategory) PeriodKey(t time.Time) (string, error) {
	t = t.UTC()
	start := c.PeriodStart.UTC()
	if t.Before(start) {
		return "", fmt.Errorf("%w: %s before %s starts %s", ErrOutsideCoverage,
			t.Format(time.DateOnly), c.ID, start.Format(time.DateOnly))
	}
	if !c.PeriodEnd.IsZero() && !t.Before(c.PeriodEnd.UTC().AddDate(0, 0, 1)) {
		return "", fmt.Errorf("%w: %s after %s ends %s", ErrOutsideCoverage,
			t.Format(time.DateOnly), c.ID, c.PeriodEnd.UTC().Format(time.DateOnly))
	}

	switch c.ResetRule {
	case ResetRolling30Days:
		n := int64(t.Sub(start) / rollingWindow)
		return "R" + strconv.FormatInt(n, 10), nil
	default:
		year := t.Year()
		anniversary := time.Date(year, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		if t.Before(anniversary) {
			year--
		}
		return "Y" + strconv.Itoa(year), nil
	}
}

// PeriodBounds returns the half-open interval [start, end) a period key
// covers.
func (c *BenefitCategory) PeriodBounds(key string) (time.Time, time.Time, error) {
	n, err := c.parseKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := c.PeriodStart.UTC()
	if c.ResetRule == ResetRolling30Days {
		from := start.Add(time.Duration(n) * rollingWindow)
		return from, from.Add(rollingWindow), nil
	}
	from := time.Date(int(n), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0), nil
}

func (c *BenefitCategory) parseKey(key string) (int64, error) {
	prefix := "Y"
	if c.ResetRule == ResetRolling30Days {
		prefix = "R"
	}
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("%w: %q for %s period of %s", ErrInvalidPeriodKey, key, c.ResetRule, c.ID)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
	}
	return n, nil
}
