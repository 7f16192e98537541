package types

import "time"

// TimeLayout is the canonical storage format for instants: UTC with a fixed
// nine-digit fraction. Fixed width means lexicographic string comparison in
// SQL agrees exactly with time comparison in memory, on sqlite and postgres
// alike. Variable-length fractions (plain RFC3339Nano) would break ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders an instant in the canonical storage format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses the canonical storage format, falling back to RFC3339 for
// values written by earlier importers.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
