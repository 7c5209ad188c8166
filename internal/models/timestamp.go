package models

import (
	"fmt"
	"time"
)

// Timestamp is the equipment's packed-decimal YYMMDDhhmmss encoding.
// The zero value means "not supplied by the log".
type Timestamp uint64

// TimestampFromTime packs a wall-clock time into the decimal encoding.
// Years are counted from 2000, matching the equipment convention.
func TimestampFromTime(t time.Time) Timestamp {
	year := t.Year() - 2000
	if year < 0 {
		year = 0
	}
	packed := uint64(year)*1e10 +
		uint64(t.Month())*1e8 +
		uint64(t.Day())*1e6 +
		uint64(t.Hour())*1e4 +
		uint64(t.Minute())*1e2 +
		uint64(t.Second())
	return Timestamp(packed)
}

// IsZero reports whether the log supplied no time.
func (ts Timestamp) IsZero() bool {
	return ts == 0
}

// String renders the packed value as "YY.MM.DD hh:mm:ss".
func (ts Timestamp) String() string {
	v := uint64(ts)
	sec := v % 100
	v /= 100
	min := v % 100
	v /= 100
	hour := v % 100
	v /= 100
	day := v % 100
	v /= 100
	month := v % 100
	v /= 100
	year := v % 100
	return fmt.Sprintf("%02d.%02d.%02d %02d:%02d:%02d", year, month, day, hour, min, sec)
}

// Time unpacks the timestamp into a wall-clock time in the local zone.
// Returns the zero time for the zero value.
func (ts Timestamp) Time() time.Time {
	if ts.IsZero() {
		return time.Time{}
	}
	v := uint64(ts)
	sec := int(v % 100)
	v /= 100
	min := int(v % 100)
	v /= 100
	hour := int(v % 100)
	v /= 100
	day := int(v % 100)
	v /= 100
	month := int(v % 100)
	v /= 100
	year := int(v%100) + 2000
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.Local)
}
