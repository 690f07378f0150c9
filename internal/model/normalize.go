package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// OriginCreatedLayout is the time layout of user.created_at on the stream.
const OriginCreatedLayout = "Mon Jan 02 15:04:05 -0700 2006"

// NormalizeError reports a raw event that breaks the upstream data contract.
type NormalizeError struct {
	Field   string
	Message string
}

func (e *NormalizeError) Error() string {
	return "normalize: " + e.Field + ": " + e.Message
}

// Normalize turns a raw stream event into a Record. It fails with a
// *NormalizeError when a required field is missing or malformed.
func Normalize(ev RawEvent) (Record, error) {
	var r Record

	id, err := intField(ev, "id")
	if err != nil {
		return r, err
	}
	tsMillis, err := intField(ev, "timestamp_ms")
	if err != nil {
		return r, err
	}
	text, err := stringField(ev, "text")
	if err != nil {
		return r, err
	}

	rawUser, ok := ev["user"]
	if !ok || rawUser == nil {
		return r, &NormalizeError{Field: "user", Message: "is required"}
	}
	user, ok := asObject(rawUser)
	if !ok {
		return r, &NormalizeError{Field: "user", Message: fmt.Sprintf("want object, got %T", rawUser)}
	}

	userID, err := intField(user, "user.id")
	if err != nil {
		return r, err
	}
	createdAt, err := stringField(user, "user.created_at")
	if err != nil {
		return r, err
	}
	created, err := time.Parse(OriginCreatedLayout, createdAt)
	if err != nil {
		return r, &NormalizeError{Field: "user.created_at", Message: fmt.Sprintf("malformed timestamp %q", createdAt)}
	}
	name, err := stringField(user, "user.name")
	if err != nil {
		return r, err
	}
	handle, err := stringField(user, "user.screen_name")
	if err != nil {
		return r, err
	}

	return Record{
		EventTimestamp:         millisToSeconds(tsMillis),
		OriginCreatedTimestamp: created.Unix(),
		OriginHandle:           handle,
		OriginID:               userID,
		EventID:                id,
		Body:                   CleanBody(text),
		OriginDisplayName:      name,
	}, nil
}

// millisToSeconds rounds toward negative infinity.
func millisToSeconds(ms int64) int64 {
	s := ms / 1000
	if ms%1000 < 0 {
		s--
	}
	return s
}

func asObject(v any) (RawEvent, bool) {
	switch o := v.(type) {
	case RawEvent:
		return o, true
	case map[string]any:
		return RawEvent(o), true
	}
	return nil, false
}

// lookup fetches the last segment of a dotted name from obj; the prefix
// is only there so errors name the full path.
func lookup(obj RawEvent, name string) (any, bool) {
	key := name
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			key = name[i+1:]
			break
		}
	}
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func stringField(obj RawEvent, name string) (string, error) {
	v, ok := lookup(obj, name)
	if !ok {
		return "", &NormalizeError{Field: name, Message: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &NormalizeError{Field: name, Message: fmt.Sprintf("want string, got %T", v)}
	}
	return s, nil
}

// intField accepts json.Number, float64 (plain json decoding) and numeric
// strings; timestamp_ms arrives as a string upstream.
func intField(obj RawEvent, name string) (int64, error) {
	v, ok := lookup(obj, name)
	if !ok {
		return 0, &NormalizeError{Field: name, Message: "is required"}
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, &NormalizeError{Field: name, Message: fmt.Sprintf("not an integer: %q", n.String())}
		}
		return i, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, &NormalizeError{Field: name, Message: fmt.Sprintf("not an integer: %v", n)}
		}
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, &NormalizeError{Field: name, Message: fmt.Sprintf("not an integer: %q", n)}
		}
		return i, nil
	default:
		return 0, &NormalizeError{Field: name, Message: fmt.Sprintf("want integer, got %T", v)}
	}
}
