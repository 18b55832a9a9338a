// Package vars merges GraphQL variables from the three sources a named
// query can draw on: variables declared on the definition itself,
// caller-supplied overrides, and variables derived from a reporting
// time range.
package vars

import (
	"encoding/json"
	"fmt"
	"time"
)

// Period is a calendar month boundary of a reporting time range.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a period in "2006-01" form.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// TimeRange is a pair of inclusive period boundaries.
type TimeRange struct {
	From Period
	To   Period
}

// StartDate returns the first day of the From period as an ISO date.
func (r TimeRange) StartDate() string {
	return time.Date(r.From.Year, r.From.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// EndDate returns the last calendar day of the To period as an ISO date.
func (r TimeRange) EndDate() string {
	firstOfNext := time.Date(r.To.Year, r.To.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Format("2006-01-02")
}

// ParseDeclared parses the raw variable text stored on a query
// definition. Parse failures degrade to an empty set rather than
// failing the resolution; the returned error reports the problem so the
// caller can surface a warning.
func ParseDeclared(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}, fmt.Errorf("declared variables are not a JSON object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Merge combines the three variable sources with fixed precedence,
// lowest to highest: declared < overrides < time-range-derived. Same-
// named keys are overwritten whole; nested values are never merged.
func Merge(declared, overrides map[string]any, timeRange *TimeRange) map[string]any {
	merged := make(map[string]any, len(declared)+len(overrides)+2)
	for k, v := range declared {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if timeRange != nil {
		merged["startDate"] = timeRange.StartDate()
		merged["endDate"] = timeRange.EndDate()
	}
	return merged
}
