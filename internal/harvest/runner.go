// Package harvest runs one collection: open the stream, collect until a
// budget is spent, then write the ordered output and report the run.
package harvest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alfredjeanlab/harvest/internal/collector"
	"github.com/alfredjeanlab/harvest/internal/config"
	"github.com/alfredjeanlab/harvest/internal/counter"
	"github.com/alfredjeanlab/harvest/internal/events"
	"github.com/alfredjeanlab/harvest/internal/handoff"
	"github.com/alfredjeanlab/harvest/internal/hooks"
	"github.com/alfredjeanlab/harvest/internal/idgen"
	"github.com/alfredjeanlab/harvest/internal/metrics"
	"github.com/alfredjeanlab/harvest/internal/model"
	"github.com/alfredjeanlab/harvest/internal/monitor"
	"github.com/alfredjeanlab/harvest/internal/store"
	"github.com/alfredjeanlab/harvest/internal/stream"
	"github.com/alfredjeanlab/harvest/internal/upload"
	"github.com/alfredjeanlab/harvest/internal/writer"
)

// reportTimeout bounds the post-run reporting (hook excluded), which runs
// even when the run context was cancelled.
const reportTimeout = 30 * time.Second

// Deps are the optional collaborators of a Runner. Zero values disable the
// corresponding feature.
type Deps struct {
	Client       *http.Client
	Signer       stream.Signer
	Store        store.RunStore
	Publisher    events.Publisher
	Destinations []upload.Destination
	Metrics      *metrics.Metrics

	// Progress receives the budget fraction on every monitor poll.
	Progress func(fraction float64)
}

// Runner executes harvest runs for one configuration.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// New creates a runner. cfg must already be validated.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Signer == nil {
		deps.Signer = stream.SignerFor(cfg.BearerToken)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger, now: time.Now}
}

// Run performs one harvest. The returned Run is always non-nil once an ID
// has been allocated, and carries the final status; the error is the
// fatal condition that failed the run, if any.
func (r *Runner) Run(ctx context.Context) (*model.Run, error) {
	id, err := idgen.RunID()
	if err != nil {
		return nil, err
	}
	run := &model.Run{
		ID:               id,
		Filter:           r.cfg.Filter,
		TimeLimitSeconds: r.cfg.TimeLimit,
		EventLimit:       r.cfg.EventLimit,
		OutputPath:       r.cfg.Output,
		Status:           model.RunStatusRunning,
		StartedAt:        r.now().UTC(),
	}
	logger := r.logger.With("run", run.ID)

	ledger := r.deps.Store != nil
	if ledger {
		if err := r.deps.Store.CreateRun(ctx, run); err != nil {
			// The ledger is a record, not a gate.
			logger.Warn("recording run start failed", "err", err)
			ledger = false
		}
	}
	r.publish(ctx, logger, events.TopicRunStarted, events.RunStarted{Run: run})
	logger.Info("harvest started", "filter", run.Filter, "time_limit", r.cfg.TimeBudget(), "event_limit", run.EventLimit, "handoff", r.cfg.Handoff)

	runErr := r.collect(ctx, run, logger)

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	r.finish(reportCtx, run, runErr, ledger, logger)
	return run, runErr
}

// collect streams, collects and writes the output file, filling in the
// run counters as it goes.
func (r *Runner) collect(ctx context.Context, run *model.Run, logger *slog.Logger) error {
	m := r.deps.Metrics

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	conn, err := stream.Open(streamCtx, r.deps.Client, r.cfg.StreamURL, r.cfg.Filter, r.deps.Signer)
	if err != nil {
		return err
	}
	start := r.now()

	var (
		c     counter.Counter
		sig   = handoff.NewSignal()
		queue *handoff.Queue
		col   *collector.Collector
		sink  handoff.Sink
	)
	if r.cfg.Handoff == config.HandoffDirect {
		col = collector.New(nil, nil, logger, m)
		sink = col.Sink()
	} else {
		queue = handoff.NewQueue()
		col = collector.New(queue, sig, logger, m)
		sink = handoff.QueueSink{Queue: queue}
	}

	reader := stream.NewReader(conn, sink, &c, logger, m)
	mon := monitor.New(monitor.Config{
		TimeLimit:    r.cfg.TimeBudget(),
		EventLimit:   r.cfg.EventLimit,
		PollInterval: r.cfg.PollInterval,
		Progress: func(f float64) {
			m.SetProgress(f)
			if queue != nil {
				m.SetHandoffDepth(queue.Len())
			}
			if r.deps.Progress != nil {
				r.deps.Progress(f)
			}
		},
	}, &c, conn, sig, reader.Done(), start, logger)

	var (
		wg      sync.WaitGroup
		readErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		mon.Run()
	}()
	go func() {
		defer wg.Done()
		readErr = reader.Run()
	}()

	var colErr error
	if queue != nil {
		colErr = col.Run()
		if colErr != nil {
			// The monitor closes the connection, which unblocks the reader.
			mon.Abort()
		}
	}
	wg.Wait()

	run.EventsAdmitted = c.Load()
	r.publish(ctx, logger, events.TopicRunStopped, events.RunStopped{
		RunID:          run.ID,
		Reason:         mon.Reason(),
		EventsAdmitted: run.EventsAdmitted,
	})

	switch {
	case colErr != nil:
		return colErr
	case readErr != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("harvest interrupted: %w", ctxErr)
		}
		return readErr
	}

	logger.Info("collection finished", "reason", mon.Reason(), "admitted", run.EventsAdmitted, "buffered", col.Buffer().Len())

	w := writer.Writer{Delimiter: r.cfg.DelimiterRune()}
	n, err := w.WriteFile(r.cfg.Output, col.Buffer())
	run.RecordsWritten = n
	m.Written(n)
	if err != nil {
		return fmt.Errorf("writing %s: %w", r.cfg.Output, err)
	}
	logger.Info("output written", "path", r.cfg.Output, "records", n)
	return nil
}

// finish stamps the final status and runs the post-run side effects. None
// of them can fail the run.
func (r *Runner) finish(ctx context.Context, run *model.Run, runErr error, ledger bool, logger *slog.Logger) {
	finished := r.now().UTC()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = model.RunStatusCompleted
	}
	r.deps.Metrics.Finish(run.Duration().Seconds(), finished.Unix(), runErr == nil)

	if runErr == nil && len(r.deps.Destinations) > 0 {
		if data, err := os.ReadFile(run.OutputPath); err != nil {
			logger.Error("reading output for upload failed", "err", err)
		} else {
			// Failures are logged per destination inside Upload.
			_ = upload.Upload(ctx, r.deps.Destinations, data, logger)
		}
	}

	if r.cfg.PostRunHook != "" {
		// The hook gets its own timeout, not the reporting budget.
		res := hooks.PostRun(context.WithoutCancel(ctx), r.cfg.PostRunHook, r.cfg.HookTimeout, run)
		if res.Err != nil {
			logger.Warn("post-run hook failed", "err", res.Err, "output", res.Output)
		} else if res.Output != "" {
			logger.Info("post-run hook", "output", res.Output)
		}
	}

	if err := r.deps.Metrics.Push(ctx, r.cfg.PushgatewayURL, run.Filter); err != nil {
		logger.Warn("metrics push failed", "err", err)
	}

	if ledger {
		if err := r.deps.Store.FinishRun(ctx, run); err != nil {
			logger.Warn("recording run finish failed", "err", err)
		}
	}

	if runErr != nil {
		// The caller reports runErr.
		r.publish(ctx, logger, events.TopicRunFailed, events.RunFailed{Run: run})
		return
	}
	r.publish(ctx, logger, events.TopicRunCompleted, events.RunCompleted{Run: run})
	logger.Info("harvest completed", "records", run.RecordsWritten, "admitted", run.EventsAdmitted, "took", run.Duration().Round(time.Millisecond))
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, topic string, event any) {
	if err := r.deps.Publisher.Publish(ctx, topic, event); err != nil {
		logger.Warn("publishing event failed", "topic", topic, "err", err)
	}
}
