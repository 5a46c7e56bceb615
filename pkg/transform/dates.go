package transform

import "time"

// The API emits full, year-month, and year-only dates. Partial dates resolve
// to the first day of the period, UTC.
var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// ParseFlexibleDate parses an ISO date in any of the three precisions the API
// uses. ok is false for anything else; callers keep the original string and
// leave the parsed column null.
func ParseFlexibleDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDatePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, ok := ParseFlexibleDate(*s)
	if !ok {
		return nil
	}
	return &t
}
