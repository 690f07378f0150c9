// Package upload copies a finished output file to durable destinations.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Destination is a place the output file is copied to after a run.
type Destination interface {
	// Name identifies the destination in logs, e.g. "s3://bucket/key".
	Name() string
	// Write stores the file contents.
	Write(ctx context.Context, data []byte) error
}

// Upload writes data to every destination in order. A failing destination
// does not stop the others; the failures are logged and returned joined.
func Upload(ctx context.Context, dests []Destination, data []byte, logger *slog.Logger) error {
	var errs []error
	for _, dest := range dests {
		start := time.Now()
		if err := dest.Write(ctx, data); err != nil {
			logger.Error("upload failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
		logger.Info("uploaded output", "destination", dest.Name(), "bytes", len(data), "took", time.Since(start))
	}
	return errors.Join(errs...)
}
