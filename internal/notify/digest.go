package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vivarium/pkg/domain"
)

// EventSource yields the event sets the digest reports on. The core service
// satisfies this interface.
type EventSource interface {
	ExpiredEvents(ctx context.Context) ([]domain.Event, error)
	UpcomingEvents(ctx context.Context) ([]domain.Event, error)
}

// DigestSink receives generated digests.
type DigestSink interface {
	DeliverDigest(ctx context.Context, digest Digest) error
}

// DigestSinkFunc adapts a function to the DigestSink interface.
type DigestSinkFunc func(ctx context.Context, digest Digest) error

func (f DigestSinkFunc) DeliverDigest(ctx context.Context, digest Digest) error {
	return f(ctx, digest)
}

// DigestWorker periodically builds a digest of expired and upcoming events
// and hands it to a sink. It owns a single goroutine; Stop drains it.
type DigestWorker struct {
	source   EventSource
	sink     DigestSink
	interval time.Duration
	log      *zap.Logger
	nowFn    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDigestWorker constructs a worker polling source every interval.
func NewDigestWorker(source EventSource, sink DigestSink, interval time.Duration, log *zap.Logger) *DigestWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DigestWorker{
		source:   source,
		sink:     sink,
		interval: interval,
		log:      log,
		nowFn:    time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetNow overrides the worker clock for tests.
func (w *DigestWorker) SetNow(fn func() time.Time) {
	if fn != nil {
		w.nowFn = fn
	}
}

// Start begins the polling loop.
func (w *DigestWorker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *DigestWorker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *DigestWorker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(w.ctx); err != nil {
				w.log.Warn("digest run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce builds and delivers a single digest. Exposed so the digest command
// can run one pass and exit.
func (w *DigestWorker) RunOnce(ctx context.Context) error {
	expired, err := w.source.ExpiredEvents(ctx)
	if err != nil {
		return err
	}
	upcoming, err := w.source.UpcomingEvents(ctx)
	if err != nil {
		return err
	}
	digest := Digest{
		GeneratedAt: w.nowFn().UTC(),
		Expired:     expired,
		Upcoming:    upcoming,
	}
	if w.sink == nil {
		w.log.Info("digest generated",
			zap.Int("expired", len(digest.Expired)),
			zap.Int("upcoming", len(digest.Upcoming)),
		)
		return nil
	}
	return w.sink.DeliverDigest(ctx, digest)
}
