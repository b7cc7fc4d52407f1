package trial

import (
	"trialcore/internal/blob"
	"trialcore/internal/lock"
	"trialcore/internal/observability"
	"trialcore/internal/schema"
)

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock    observability.Clock
	logger   observability.Logger
	metrics  observability.MetricsRecorder
	tracer   observability.Tracer
	locker   lock.Locker
	blobs    blob.Store
	schemas  *schema.Registry
	identity []string
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   observability.SystemClock,
		logger:  observability.NoopLogger{},
		metrics: observability.NoopMetrics{},
		tracer:  observability.NoopTracer{},
		locker:  lock.NewMemory(),
	}
}

// WithClock overrides the time source.
func WithClock(c observability.Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLocker replaces the in-process per-study lock, e.g. with lock.Redis
// when several processes write the same store.
func WithLocker(l lock.Locker) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithBlobStore enables artifact uploads during Ingest.
func WithBlobStore(s blob.Store) ServiceOption {
	return func(o *serviceOptions) { o.blobs = s }
}

// WithSchemas replaces the embedded schema registry.
func WithSchemas(r *schema.Registry) ServiceOption {
	return func(o *serviceOptions) { o.schemas = r }
}

// WithIdentityFields adds top level fields that must match between a patch
// and the stored trial.
func WithIdentityFields(fields ...string) ServiceOption {
	return func(o *serviceOptions) { o.identity = append(o.identity, fields...) }
}
