// Package stream opens the upstream line-delimited JSON stream and feeds
// admitted events into a handoff.Sink.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alfredjeanlab/harvest/internal/counter"
	"github.com/alfredjeanlab/harvest/internal/handoff"
	"github.com/alfredjeanlab/harvest/internal/metrics"
	"github.com/alfredjeanlab/harvest/internal/model"
)

// readBufferSize is the initial line buffer; longer lines still work.
const readBufferSize = 64 * 1024

// Reader reads one event per line from a Conn. It never closes the Conn;
// the stop-condition monitor owns that.
type Reader struct {
	conn    *Conn
	sink    handoff.Sink
	counter *counter.Counter
	logger  *slog.Logger
	metrics *metrics.Metrics

	done chan struct{}
}

// NewReader creates a reader over conn. Admitted events go to sink and bump
// counter by one each. m may be nil.
func NewReader(conn *Conn, sink handoff.Sink, c *counter.Counter, logger *slog.Logger, m *metrics.Metrics) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		conn:    conn,
		sink:    sink,
		counter: c,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Done is closed when Run returns.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Run reads until the connection is closed or the upstream ends the stream.
// Both are clean exits. It returns an error for any other read failure and
// for a sink failure.
func (r *Reader) Run() error {
	defer close(r.done)

	br := bufio.NewReaderSize(r.conn.body, readBufferSize)
	for {
		if r.conn.Closed() {
			return nil
		}

		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if herr := r.handleLine(line); herr != nil {
				return herr
			}
		}
		if err == nil {
			continue
		}

		if r.conn.Closed() {
			r.logger.Debug("stream closed by monitor")
			return nil
		}
		if errors.Is(err, io.EOF) {
			r.logger.Info("upstream ended the stream")
			return nil
		}
		return fmt.Errorf("reading stream: %w", err)
	}
}

func (r *Reader) handleLine(line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		// Keep-alive newline.
		r.metrics.Skipped(metrics.SkipKeepalive)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var ev model.RawEvent
	err := dec.Decode(&ev)
	if err == nil && ev == nil {
		err = errors.New("not an object")
	}
	if err == nil {
		// A line holds exactly one value.
		if _, tail := dec.Token(); tail != io.EOF {
			err = fmt.Errorf("trailing data after offset %d", dec.InputOffset())
		}
	}
	if err != nil {
		r.logger.Debug("skipping malformed line", "err", err, "bytes", len(line))
		r.metrics.Skipped(metrics.SkipMalformed)
		return nil
	}

	if model.IsRateLimitNotice(ev) {
		r.logger.Debug("skipping rate-limit notice", "notice", ev[model.RateLimitKey])
		r.metrics.Skipped(metrics.SkipRateLimit)
		return nil
	}

	if err := r.sink.Put(ev); err != nil {
		return fmt.Errorf("handing off event: %w", err)
	}
	r.counter.Inc()
	r.metrics.Admitted()
	return nil
}
