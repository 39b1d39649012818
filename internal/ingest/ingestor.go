// Package ingest applies bus events to the analytics core through sharded
// workers. Events with the same routing key always land on the same worker,
// so they are applied in arrival order.
package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rewired-gh/betpulse/internal/events"
	"github.com/rewired-gh/betpulse/internal/logger"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/telemetry"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("ingestor closed")

// Handler applies one event.
type Handler interface {
	Handle(ctx context.Context, e events.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e events.Event) error

func (f HandlerFunc) Handle(ctx context.Context, e events.Event) error { return f(ctx, e) }

// Reporter is told when the event source starts failing and when it recovers.
type Reporter interface {
	ReportError(ctx context.Context, cause error) error
	ReportRecovery(ctx context.Context) error
}

type Config struct {
	Workers   int
	QueueSize int // per worker
}

type Ingestor struct {
	handler  Handler
	metrics  *telemetry.Metrics
	reporter Reporter
	shards   []chan events.Event
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New starts the shard workers. metrics may be nil.
func New(handler Handler, config Config, metrics *telemetry.Metrics) *Ingestor {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	in := &Ingestor{
		handler: handler,
		metrics: metrics,
		shards:  make([]chan events.Event, config.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range in.shards {
		in.shards[i] = make(chan events.Event, config.QueueSize)
		in.wg.Add(1)
		go in.work(i)
	}
	return in
}

// SetReporter installs a source health reporter. Call before Run.
func (in *Ingestor) SetReporter(r Reporter) {
	in.reporter = r
}

func (in *Ingestor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(in.shards)))
}

// Submit queues an event on its shard, blocking while the shard is full.
func (in *Ingestor) Submit(ctx context.Context, e events.Event) error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return ErrClosed
	}
	shard := in.shards[in.shardFor(e.RoutingKey())]
	select {
	case shard <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run submits events from src until src is exhausted or ctx is cancelled.
// Source errors are logged and do not stop consumption.
func (in *Ingestor) Run(ctx context.Context, src events.Source) error {
	eventCh, errCh := src.Consume(ctx)
	failing := false
	for eventCh != nil || errCh != nil {
		select {
		case e, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			if failing {
				failing = false
				in.report(func(r Reporter) error { return r.ReportRecovery(ctx) })
			}
			if err := in.Submit(ctx, e); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			logger.Warn("Event source error: %v", err)
			failing = true
			in.report(func(r Reporter) error { return r.ReportError(ctx, err) })
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (in *Ingestor) report(send func(Reporter) error) {
	if in.reporter == nil {
		return
	}
	if err := send(in.reporter); err != nil {
		logger.Warn("Failed to report source health: %v", err)
	}
}

// Close stops accepting events, drains queued events and waits for the
// workers to exit. Safe to call more than once.
func (in *Ingestor) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	for _, shard := range in.shards {
		close(shard)
	}
	in.mu.Unlock()
	in.wg.Wait()
	in.cancel()
}

func (in *Ingestor) work(idx int) {
	defer in.wg.Done()
	label := strconv.Itoa(idx)
	for e := range in.shards[idx] {
		in.apply(e)
		in.metrics.SetQueueDepth(label, len(in.shards[idx]))
	}
}

func (in *Ingestor) apply(e events.Event) {
	start := time.Now()
	err := in.handler.Handle(in.ctx, e)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	if err != nil {
		status = "rejected"
		var verr *models.ValidationError
		var nerr *models.NotFoundError
		var serr *models.InvalidStateError
		switch {
		case errors.As(err, &verr), errors.As(err, &nerr), errors.As(err, &serr):
			logger.Warn("Rejected %s event %s (key %s): %v", e.Type, e.ID, e.Key, err)
		default:
			status = "error"
			logger.Error("Failed to apply %s event %s (key %s): %v", e.Type, e.ID, e.Key, err)
		}
	}
	in.metrics.RecordEvent(string(e.Type), status, elapsed)

	// Rejected events are acknowledged too; redelivery would fail the same way.
	if status != "error" {
		if err := e.Ack(in.ctx); err != nil {
			logger.Warn("Failed to acknowledge event %s: %v", e.ID, err)
		}
	}
}
