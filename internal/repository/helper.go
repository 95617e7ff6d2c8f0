package repository

import (
	"fmt"
	"time"
)

// ParseTime parses a timestamp string in RFC3339, "2006-01-02 15:04:05", or
// "2006-01-02" format. The engine writes RFC3339 UTC; the other layouts cover
// rows written by SQLite defaults.
func ParseTime(str string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", str)
}
