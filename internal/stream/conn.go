package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ConnectionError is returned by Open when the upstream refuses the stream.
type ConnectionError struct {
	URL        string
	StatusCode int
	Body       string // first bytes of the response body
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("unable to open stream %s: status %d", e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Conn is an open upstream stream. Exactly one owner closes it.
type Conn struct {
	body   io.ReadCloser
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool
}

// FilterURL joins the endpoint and the filter expression.
func FilterURL(endpoint, filter string) string {
	if filter == "" {
		return endpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + filter
}

// Open POSTs to endpoint?filter and returns the streaming connection. A
// non-2xx response is reported as a *ConnectionError and the body is
// released.
func Open(ctx context.Context, client *http.Client, endpoint, filter string, signer Signer) (*Conn, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if signer == nil {
		signer = NoopSigner{}
	}

	// The request context lives as long as the stream; Close cancels it.
	streamCtx, cancel := context.WithCancel(ctx)

	u := FilterURL(endpoint, filter)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := signer.Sign(req); err != nil {
		cancel()
		return nil, fmt.Errorf("signing stream request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stream %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, &ConnectionError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	return &Conn{body: resp.Body, cancel: cancel}, nil
}

// NewConn wraps an already open body. Tests use it to drive a Reader from
// an in-memory pipe.
func NewConn(body io.ReadCloser) *Conn {
	return &Conn{body: body, cancel: func() {}}
}

// Close severs the connection, unblocking any pending read. It is safe to
// call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		err = c.body.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}
