// Package replay serves a recorded JSONL capture as a long-lived filter
// stream, for local runs and end-to-end tests.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultKeepaliveInterval matches the upstream's keep-alive cadence.
const DefaultKeepaliveInterval = 30 * time.Second

// keepalive is the blank line the upstream sends between events.
var keepalive = []byte("\r\n")

// Options configures a Handler.
type Options struct {
	// Interval is the pause between lines. Zero sends lines back to back.
	Interval time.Duration
	// Keepalive is how often a blank line is sent once the capture is
	// exhausted. Zero uses DefaultKeepaliveInterval.
	Keepalive time.Duration
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string
	// Loop restarts the capture from the top instead of idling.
	Loop bool
}

// Handler streams the same capture to every client. The connection is held
// open after the last line until the client goes away.
type Handler struct {
	lines  [][]byte // each terminated with keepalive
	opts   Options
	logger *slog.Logger
}

// NewHandler returns a handler for lines. Lines are sent verbatim, so a
// capture may include malformed or rate-limit lines on purpose.
func NewHandler(lines [][]byte, opts Options, logger *slog.Logger) *Handler {
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepaliveInterval
	}
	framed := make([][]byte, len(lines))
	for i, line := range lines {
		framed[i] = append(bytes.Clone(line), keepalive...)
	}
	return &Handler{lines: framed, opts: opts, logger: logger}
}

// ReadLines splits a capture into lines, dropping blank ones.
func ReadLines(r io.Reader) ([][]byte, error) {
	var lines [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, bytes.Clone(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	return lines, nil
}

// LoadFile reads a capture file.
func LoadFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()
	return ReadLines(f)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.opts.Token != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != h.opts.Token {
			http.Error(w, `{"errors":[{"code":32,"message":"Could not authenticate you."}]}`, http.StatusUnauthorized)
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	h.logger.Info("replay client connected", "remote", r.RemoteAddr, "filter", r.URL.RawQuery, "lines", len(h.lines))
	sent := h.stream(ctx, w, flusher)
	h.logger.Info("replay client disconnected", "remote", r.RemoteAddr, "sent", sent)
}

// stream writes the capture and then idles with keep-alives until ctx ends.
// It returns the number of capture lines written.
func (h *Handler) stream(ctx context.Context, w io.Writer, flusher http.Flusher) int {
	sent := 0
	for {
		for _, line := range h.lines {
			if _, err := w.Write(line); err != nil {
				return sent
			}
			flusher.Flush()
			sent++
			if !sleep(ctx, h.opts.Interval) {
				return sent
			}
		}
		if !h.opts.Loop || len(h.lines) == 0 {
			break
		}
	}

	ticker := time.NewTicker(h.opts.Keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return sent
		case <-ticker.C:
			if _, err := w.Write(keepalive); err != nil {
				return sent
			}
			flusher.Flush()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
