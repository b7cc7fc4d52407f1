package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"trialcore/internal/blob"
	"trialcore/internal/config"
	"trialcore/internal/lock"
	"trialcore/internal/observability"
	"trialcore/internal/persistence"
	"trialcore/internal/schema"
	"trialcore/internal/template"
	"trialcore/internal/trial"
	"trialcore/pkg/document"
)

// app holds what the commands share. Backends are opened on first use.
type app struct {
	cfg      *config.Config
	logger   observability.Logger
	tracer   observability.Tracer
	schemas  *schema.Registry
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) init(cfg *config.Config, stderr io.Writer, trace bool) error {
	a.cfg = cfg
	a.logger = observability.NewSlogLogger(stderr, cfg.LogLevel)
	a.tracer = observability.NoopTracer{}
	if trace {
		a.tracer = observability.NewJSONTracer(stderr)
	}
	var err error
	if cfg.SchemaDir != "" {
		a.schemas, err = schema.NewRegistry(os.DirFS(cfg.SchemaDir))
	} else {
		a.schemas, err = schema.Default()
	}
	return err
}

func (a *app) close() error {
	if a.registry != nil {
		if families, err := a.registry.Gather(); err == nil {
			for _, mf := range families {
				a.logger.Debug("metric family", "name", mf.GetName(), "series", len(mf.GetMetric()))
			}
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) encryptKey() []byte {
	if a.cfg.EncryptKey == "" {
		return nil
	}
	return []byte(a.cfg.EncryptKey)
}

func (a *app) template(assay string) (*template.Template, error) {
	if a.cfg.TemplateDir != "" {
		return template.LoadFile(filepath.Join(a.cfg.TemplateDir, assay+"_template.yaml"), nil)
	}
	return template.Builtin(assay, nil)
}

func (a *app) merger() (*trial.Merger, error) {
	return trial.NewMerger(a.schemas, a.cfg.IdentityFields...)
}

func (a *app) metrics() (observability.MetricsRecorder, error) {
	switch a.cfg.Metrics.Driver {
	case config.MetricsExpvar:
		name := a.cfg.Metrics.Name
		if expvar.Get(name) != nil {
			name = ""
		}
		return observability.NewExpvarMetricsRecorder(name), nil
	case config.MetricsPrometheus:
		a.registry = prometheus.NewRegistry()
		return observability.NewPrometheusMetricsRecorder(a.registry)
	default:
		return observability.NoopMetrics{}, nil
	}
}

func (a *app) locker() (lock.Locker, error) {
	if a.cfg.Lock.Driver != config.LockRedis {
		return lock.NewMemory(), nil
	}
	r, err := lock.NewRedis(a.cfg.Lock.RedisURL, lock.WithTTL(a.cfg.Lock.TTL))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, r.Close)
	return r, nil
}

func (a *app) store(ctx context.Context) (persistence.Store, error) {
	s, err := trial.OpenStore(ctx, a.cfg.StoreConfig())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// service opens the trial store and, when withBlobs is set, the artifact
// store.
func (a *app) service(ctx context.Context, withBlobs bool) (*trial.Service, error) {
	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := a.metrics()
	if err != nil {
		return nil, err
	}
	locker, err := a.locker()
	if err != nil {
		return nil, err
	}
	opts := []trial.ServiceOption{
		trial.WithLogger(a.logger),
		trial.WithTracer(a.tracer),
		trial.WithMetrics(metrics),
		trial.WithLocker(locker),
		trial.WithSchemas(a.schemas),
		trial.WithIdentityFields(a.cfg.IdentityFields...),
	}
	if withBlobs {
		blobs, err := blob.Open(ctx, a.cfg.BlobConfig())
		if err != nil {
			return nil, err
		}
		opts = append(opts, trial.WithBlobStore(blobs))
	}
	return trial.NewService(store, opts...)
}

// readDocument reads a JSON object from path, or stdin for "-".
func readDocument(stdin io.Reader, path string) (document.Object, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	doc, err := document.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
