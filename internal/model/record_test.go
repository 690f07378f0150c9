package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// decode mirrors how the stream reader decodes lines.
func decode(t *testing.T, line string) RawEvent {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var ev RawEvent
	if err := dec.Decode(&ev); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return ev
}

const sampleEvent = `{
	"id": 1234567890123456789,
	"timestamp_ms": "1600000000999",
	"text": "hello\nworld\tagain\r!",
	"user": {
		"id": 42,
		"created_at": "Wed Oct 10 20:19:24 +0000 2018",
		"name": "Alice Example",
		"screen_name": "alice"
	}
}`

func TestNormalize(t *testing.T) {
	rec, err := Normalize(decode(t, sampleEvent))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	wantCreated := time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC).Unix()
	want := Record{
		EventTimestamp:         1600000000,
		OriginCreatedTimestamp: wantCreated,
		OriginHandle:           "alice",
		OriginID:               42,
		EventID:                1234567890123456789,
		Body:                   "hello world again !",
		OriginDisplayName:      "Alice Example",
	}
	if rec != want {
		t.Fatalf("Normalize =\n%+v\nwant\n%+v", rec, want)
	}
}

func TestNormalize_Timestamp(t *testing.T) {
	for _, tc := range []struct {
		name string
		ms   any
		want int64
	}{
		{"number", json.Number("1600000001000"), 1600000001},
		{"string truncates", "1600000001999", 1600000001},
		{"negative floors", "-1500", -2},
		{"negative whole second", json.Number("-2000"), -2},
		{"zero", "0", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ev := decode(t, sampleEvent)
			ev["timestamp_ms"] = tc.ms
			rec, err := Normalize(ev)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if rec.EventTimestamp != tc.want {
				t.Errorf("EventTimestamp = %d, want %d", rec.EventTimestamp, tc.want)
			}
		})
	}
}

func TestNormalize_ContractViolations(t *testing.T) {
	for _, tc := range []struct {
		name      string
		mutate    func(ev RawEvent)
		wantField string
	}{
		{"MissingID", func(ev RawEvent) { delete(ev, "id") }, "id"},
		{"MissingTimestamp", func(ev RawEvent) { delete(ev, "timestamp_ms") }, "timestamp_ms"},
		{"BadTimestamp", func(ev RawEvent) { ev["timestamp_ms"] = "soon" }, "timestamp_ms"},
		{"MissingText", func(ev RawEvent) { delete(ev, "text") }, "text"},
		{"TextNotString", func(ev RawEvent) { ev["text"] = json.Number("7") }, "text"},
		{"MissingUser", func(ev RawEvent) { delete(ev, "user") }, "user"},
		{"UserNotObject", func(ev RawEvent) { ev["user"] = "alice" }, "user"},
		{"MissingUserID", func(ev RawEvent) { delete(ev["user"].(map[string]any), "id") }, "user.id"},
		{"BadCreatedAt", func(ev RawEvent) { ev["user"].(map[string]any)["created_at"] = "2018-10-10" }, "user.created_at"},
		{"MissingName", func(ev RawEvent) { delete(ev["user"].(map[string]any), "name") }, "user.name"},
		{"NullScreenName", func(ev RawEvent) { ev["user"].(map[string]any)["screen_name"] = nil }, "user.screen_name"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ev := decode(t, sampleEvent)
			tc.mutate(ev)

			_, err := Normalize(ev)
			var ne *NormalizeError
			if !errors.As(err, &ne) {
				t.Fatalf("expected *NormalizeError, got %v", err)
			}
			if ne.Field != tc.wantField {
				t.Fatalf("Field = %q, want %q", ne.Field, tc.wantField)
			}
		})
	}
}

func TestIsRateLimitNotice(t *testing.T) {
	if !IsRateLimitNotice(decode(t, `{"limit":{"track":12,"timestamp_ms":"1600000000000"}}`)) {
		t.Fatal("expected limit frame to be a rate-limit notice")
	}
	if IsRateLimitNotice(decode(t, sampleEvent)) {
		t.Fatal("event reported as rate-limit notice")
	}
}

func TestCleanBody(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\nb", "a b"},
		{"a\r\nb", "a  b"},
		{"\ttab\t", " tab "},
	} {
		got := CleanBody(tc.in)
		if got != tc.want {
			t.Errorf("CleanBody(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if strings.ContainsAny(got, "\n\r\t") {
			t.Errorf("CleanBody(%q) kept control characters", tc.in)
		}
	}
}

func TestLess(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b Record
		want bool
	}{
		{"OlderOriginFirst", Record{OriginCreatedTimestamp: 1, EventTimestamp: 9}, Record{OriginCreatedTimestamp: 2, EventTimestamp: 1}, true},
		{"NewerOriginLater", Record{OriginCreatedTimestamp: 2}, Record{OriginCreatedTimestamp: 1}, false},
		{"SameOriginByEventTime", Record{OriginCreatedTimestamp: 1, EventTimestamp: 1}, Record{OriginCreatedTimestamp: 1, EventTimestamp: 2}, true},
		{"TieBrokenByEventID", Record{OriginCreatedTimestamp: 1, EventTimestamp: 1, EventID: 1}, Record{OriginCreatedTimestamp: 1, EventTimestamp: 1, EventID: 2}, true},
		{"Equal", Record{EventID: 3}, Record{EventID: 3}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Less(tc.a, tc.b); got != tc.want {
				t.Fatalf("Less = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFields(t *testing.T) {
	got := strings.Join(Fields(), ",")
	want := "event_timestamp,origin_created_timestamp,origin_handle,origin_id,event_id,body,origin_display_name"
	if got != want {
		t.Fatalf("Fields() = %s, want %s", got, want)
	}
}

func TestRunStatusIsValid(t *testing.T) {
	for _, s := range []RunStatus{RunStatusRunning, RunStatusCompleted, RunStatusFailed} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if RunStatus("paused").IsValid() {
		t.Error(`"paused" should be invalid`)
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Run{StartedAt: start}
	if r.Duration() != 0 {
		t.Fatalf("running run Duration = %v, want 0", r.Duration())
	}
	end := start.Add(90 * time.Second)
	r.FinishedAt = &end
	if r.Duration() != 90*time.Second {
		t.Fatalf("Duration = %v, want 90s", r.Duration())
	}
}
