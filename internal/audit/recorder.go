package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"gatehouse.dev/internal/ids"
	"gatehouse.dev/internal/obs"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultListLimit    = 20
	maxListLimit        = 100
)

// Recorder writes entries without blocking the caller.
type Recorder struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, timeout: defaultWriteTimeout, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record schedules e for writing and returns immediately. The write outlives
// the request context; failures are logged and counted, never returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	e.Details = Redact(e.Details)
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = obs.CorrelationID(ctx)
	}
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		wctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := r.store.AppendAudit(wctx, e); err != nil {
			obs.AuditWrites.WithLabelValues("error").Inc()
			obs.Ctx(ctx).Error().Err(err).
				Str("action", e.Action).
				Str("resource", e.ResourceKind).
				Msg("audit write failed")
			return
		}
		obs.AuditWrites.WithLabelValues("ok").Inc()
		logEntry(ctx, e)
	}()
}

// Wait blocks until every scheduled write has finished or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("audit: pending writes not drained"), ctx.Err())
	}
}

// List returns stored entries newest first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return r.store.ListAudit(ctx, f)
}
