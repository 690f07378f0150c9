package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alfredjeanlab/harvest/internal/counter"
	"github.com/alfredjeanlab/harvest/internal/handoff"
	"github.com/alfredjeanlab/harvest/internal/metrics"
	"github.com/alfredjeanlab/harvest/internal/model"
)

func eventLine(id int) string {
	return fmt.Sprintf(`{"id":%d,"timestamp_ms":"1600000000000","text":"t","user":{"id":1,"created_at":"Wed Oct 10 20:19:24 +0000 2018","name":"A","screen_name":"a"}}`, id)
}

// pipeReader returns a reader wired to an in-memory pipe, plus the write end.
func pipeReader(t *testing.T, sink handoff.Sink, m *metrics.Metrics) (*Reader, *Conn, *io.PipeWriter, *counter.Counter) {
	t.Helper()
	pr, pw := io.Pipe()
	conn := NewConn(pr)
	c := &counter.Counter{}
	return NewReader(conn, sink, c, nil, m), conn, pw, c
}

func runAsync(r *Reader) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- r.Run() }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not exit")
		return nil
	}
}

func TestReader_ForwardsAndCounts(t *testing.T) {
	q := handoff.NewQueue()
	m := metrics.New()
	r, conn, pw, c := pipeReader(t, handoff.QueueSink{Queue: q}, m)
	errc := runAsync(r)

	for i := 1; i <= 3; i++ {
		fmt.Fprintln(pw, eventLine(i))
	}
	waitFor(t, func() bool { return c.Load() == 3 })

	conn.Close()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run after close: %v", err)
	}
	if q.Len() != 3 {
		t.Fatalf("queue has %d events, want 3", q.Len())
	}
	for i := 1; i <= 3; i++ {
		ev, _ := q.TryPop()
		if ev["id"].(interface{ String() string }).String() != fmt.Sprint(i) {
			t.Fatalf("event %d out of order: %v", i, ev["id"])
		}
	}
	if got := testutil.ToFloat64(m.EventsAdmitted); got != 3 {
		t.Errorf("EventsAdmitted = %v, want 3", got)
	}
	select {
	case <-r.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}
}

func TestReader_SkipsNoise(t *testing.T) {
	q := handoff.NewQueue()
	m := metrics.New()
	r, _, pw, c := pipeReader(t, handoff.QueueSink{Queue: q}, m)
	errc := runAsync(r)

	lines := []string{
		eventLine(1),
		`{"limit":{"track":7,"timestamp_ms":"1600000000000"}}`,
		"",
		"\r",
		`{"id": 2, "text": `, // truncated JSON
		`[1,2,3]`,
		`null`,
		`{"id": 1}garbage`,
		`{} {"x":1}`,
		eventLine(4) + ` trailing`,
		eventLine(3),
	}
	for _, l := range lines {
		fmt.Fprintln(pw, l)
	}
	pw.Close() // upstream EOF

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.Load() != 2 {
		t.Fatalf("counter = %d, want 2", c.Load())
	}
	var ids []string
	for q.Len() > 0 {
		ev, _ := q.TryPop()
		if model.IsRateLimitNotice(ev) {
			t.Fatal("rate-limit notice reached the handoff queue")
		}
		ids = append(ids, fmt.Sprint(ev["id"]))
	}
	if got := strings.Join(ids, ","); got != "1,3" {
		t.Errorf("admitted ids = %s, want 1,3", got)
	}
	if got := testutil.ToFloat64(m.EventsSkipped.WithLabelValues(metrics.SkipRateLimit)); got != 1 {
		t.Errorf("rate_limit skips = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsSkipped.WithLabelValues(metrics.SkipMalformed)); got != 6 {
		t.Errorf("malformed skips = %v, want 6", got)
	}
	if got := testutil.ToFloat64(m.EventsSkipped.WithLabelValues(metrics.SkipKeepalive)); got != 2 {
		t.Errorf("keepalive skips = %v, want 2", got)
	}
}

func TestReader_LastLineWithoutNewline(t *testing.T) {
	q := handoff.NewQueue()
	r, _, pw, c := pipeReader(t, handoff.QueueSink{Queue: q}, nil)
	errc := runAsync(r)

	io.WriteString(pw, eventLine(1))
	pw.Close()

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.Load() != 1 {
		t.Fatalf("counter = %d, want 1", c.Load())
	}
}

func TestReader_ReadErrorIsReported(t *testing.T) {
	q := handoff.NewQueue()
	r, _, pw, _ := pipeReader(t, handoff.QueueSink{Queue: q}, nil)
	errc := runAsync(r)

	boom := errors.New("connection reset")
	pw.CloseWithError(boom)

	if err := waitErr(t, errc); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
}

func TestReader_SinkErrorIsFatal(t *testing.T) {
	boom := errors.New("bad event")
	sink := handoff.FuncSink(func(model.RawEvent) error { return boom })
	r, _, pw, c := pipeReader(t, sink, nil)
	errc := runAsync(r)

	go fmt.Fprintln(pw, eventLine(1))

	if err := waitErr(t, errc); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if c.Load() != 0 {
		t.Fatalf("counter = %d, want 0 for a rejected event", c.Load())
	}
}

func TestOpen_PostsFilterAndSigns(t *testing.T) {
	type request struct{ method, query, auth, contentType string }
	got := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- request{r.Method, r.URL.RawQuery, r.Header.Get("Authorization"), r.Header.Get("Content-Type")}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, eventLine(1))
	}))
	defer srv.Close()

	conn, err := Open(context.Background(), srv.Client(), srv.URL+"/1.1/statuses/filter.json", "track=go", BearerSigner{Token: "tok"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	req := <-got
	if req.method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.method)
	}
	if req.query != "track=go" {
		t.Errorf("query = %q, want %q", req.query, "track=go")
	}
	if req.auth != "Bearer tok" {
		t.Errorf("Authorization = %q", req.auth)
	}
	if req.contentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", req.contentType)
	}
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "Unauthorized\n")
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.Client(), srv.URL, "track=go", NoopSigner{})
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if ce.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", ce.StatusCode)
	}
	if ce.Body != "Unauthorized" {
		t.Errorf("Body = %q", ce.Body)
	}
	if !strings.Contains(ce.Error(), "401") {
		t.Errorf("Error() = %q, want status in message", ce.Error())
	}
}

func TestOpen_CloseUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, eventLine(1))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	conn, err := Open(context.Background(), srv.Client(), srv.URL, "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	q := handoff.NewQueue()
	c := &counter.Counter{}
	r := NewReader(conn, handoff.QueueSink{Queue: q}, c, nil, nil)
	errc := runAsync(r)

	waitFor(t, func() bool { return c.Load() == 1 })
	if err := conn.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run after Close: %v", err)
	}
	if !conn.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	// Second close is a no-op.
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFilterURL(t *testing.T) {
	for _, tc := range []struct {
		endpoint, filter, want string
	}{
		{"https://h/f.json", "track=go", "https://h/f.json?track=go"},
		{"https://h/f.json?x=1", "track=go", "https://h/f.json?x=1&track=go"},
		{"https://h/f.json", "", "https://h/f.json"},
	} {
		if got := FilterURL(tc.endpoint, tc.filter); got != tc.want {
			t.Errorf("FilterURL(%q, %q) = %q, want %q", tc.endpoint, tc.filter, got, tc.want)
		}
	}
}

func TestSignerFor(t *testing.T) {
	if _, ok := SignerFor("").(NoopSigner); !ok {
		t.Error("SignerFor(\"\") should be a NoopSigner")
	}
	s, ok := SignerFor("abc").(BearerSigner)
	if !ok || s.Token != "abc" {
		t.Errorf("SignerFor(\"abc\") = %#v", s)
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := (BearerSigner{}).Sign(req); err == nil {
		t.Error("expected error for empty bearer token")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
