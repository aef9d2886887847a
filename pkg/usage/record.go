// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package usage

import "time"

// DayLayout is the date format stored with every record.
const DayLayout = "2006-01-02"

// Record is one interaction. Records are never deduplicated or rotated.
type Record struct {
	Day         string
	UserID      string
	DisplayName string
}

// Store persists usage records.
type Store interface {
	Append(rec Record) error
	Records(day string) ([]Record, error)
}

// Day formats t in the record date layout.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}
