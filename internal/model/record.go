package model

import "strings"

// RawEvent is one decoded line of the upstream stream. Numbers are kept as
// json.Number so 64-bit ids survive decoding.
type RawEvent map[string]any

// RateLimitKey marks a rate-limit notice frame. Notices are not events.
const RateLimitKey = "limit"

// IsRateLimitNotice reports whether ev is a rate-limit notice rather than an event.
func IsRateLimitNotice(ev RawEvent) bool {
	_, ok := ev[RateLimitKey]
	return ok
}

// Record is a normalized event, ready to be ordered and written out.
type Record struct {
	EventTimestamp         int64  // seconds since epoch
	OriginCreatedTimestamp int64  // seconds since epoch, when the origin registered
	OriginHandle           string
	OriginID               int64
	EventID                int64
	Body                   string // never contains \n, \r or \t
	OriginDisplayName      string
}

// Key is the ordering key of a record: origin registration time first, then
// the event's own time. Events from one origin end up contiguous and sorted.
type Key struct {
	OriginCreated int64
	Event         int64
}

// Key returns the record's ordering key.
func (r Record) Key() Key {
	return Key{OriginCreated: r.OriginCreatedTimestamp, Event: r.EventTimestamp}
}

// Less orders records by Key. Equal keys fall back to EventID and then
// OriginID so the output is the same for any arrival order.
func Less(a, b Record) bool {
	if a.OriginCreatedTimestamp != b.OriginCreatedTimestamp {
		return a.OriginCreatedTimestamp < b.OriginCreatedTimestamp
	}
	if a.EventTimestamp != b.EventTimestamp {
		return a.EventTimestamp < b.EventTimestamp
	}
	if a.EventID != b.EventID {
		return a.EventID < b.EventID
	}
	return a.OriginID < b.OriginID
}

// Compare returns -1, 0 or 1 following Less.
func Compare(a, b Record) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

// Output column names, in row order.
const (
	FieldEventTimestamp         = "event_timestamp"
	FieldOriginCreatedTimestamp = "origin_created_timestamp"
	FieldOriginHandle           = "origin_handle"
	FieldOriginID               = "origin_id"
	FieldEventID                = "event_id"
	FieldBody                   = "body"
	FieldOriginDisplayName      = "origin_display_name"
)

// Fields returns the header row.
func Fields() []string {
	return []string{
		FieldEventTimestamp,
		FieldOriginCreatedTimestamp,
		FieldOriginHandle,
		FieldOriginID,
		FieldEventID,
		FieldBody,
		FieldOriginDisplayName,
	}
}

var controlReplacer = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

// CleanBody replaces newlines, carriage returns and tabs with spaces.
func CleanBody(s string) string {
	return controlReplacer.Replace(s)
}
