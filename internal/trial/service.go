package trial

import (
	"context"
	"errors"
	"fmt"

	"trialcore/internal/artifact"
	"trialcore/internal/blob"
	"trialcore/internal/persistence"
	"trialcore/internal/prism"
	"trialcore/internal/schema"
	"trialcore/internal/template"
	"trialcore/pkg/document"
)

// ErrNoBlobStore is returned by Ingest when the workbook references files but
// the service has no blob store.
var ErrNoBlobStore = errors.New("no blob store configured")

// Service applies patches, artifacts and workbook uploads to stored trials.
// Writes to the same study are serialized through the configured locker.
type Service struct {
	store     persistence.Store
	merger    *Merger
	artifacts *artifact.Merger
	uploader  *blob.Uploader
	opts      serviceOptions
}

// NewService constructs a service over store.
func NewService(store persistence.Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("trial store required")
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.schemas == nil {
		reg, err := schema.Default()
		if err != nil {
			return nil, err
		}
		o.schemas = reg
	}
	m, err := NewMerger(o.schemas, o.identity...)
	if err != nil {
		return nil, err
	}
	s := &Service{store: store, merger: m, artifacts: artifact.NewMerger(), opts: o}
	if o.blobs != nil {
		s.uploader = blob.NewUploader(o.blobs, blob.WithUploadClock(o.clock), blob.WithUploadLogger(o.logger))
	}
	return s, nil
}

// Store returns the underlying trial store.
func (s *Service) Store() persistence.Store { return s.store }

// Artifacts exposes the artifact merger so callers can register subsystems.
func (s *Service) Artifacts() *artifact.Merger { return s.artifacts }

// Get loads the stored trial.
func (s *Service) Get(ctx context.Context, studyID string) (document.Object, error) {
	var doc document.Object
	err := s.run(ctx, "trial.get", studyID, func(ctx context.Context) error {
		var err error
		doc, err = s.store.Get(ctx, studyID)
		return err
	})
	return doc, err
}

// List returns the stored trials.
func (s *Service) List(ctx context.Context) ([]persistence.Entry, error) {
	var out []persistence.Entry
	err := s.run(ctx, "trial.list", "", func(ctx context.Context) error {
		var err error
		out, err = s.store.List(ctx)
		return err
	})
	return out, err
}

// ApplyPatch merges patch into the stored trial of its study and persists the
// result. The first patch of a study is validated and stored as is.
func (s *Service) ApplyPatch(ctx context.Context, patch document.Object) (document.Object, error) {
	studyID, err := StudyID(patch)
	if err != nil {
		return nil, err
	}
	var out document.Object
	err = s.run(ctx, "trial.apply_patch", studyID, func(ctx context.Context) error {
		return s.locked(ctx, studyID, func(ctx context.Context) error {
			var err error
			out, err = s.applyPatch(ctx, studyID, patch)
			return err
		})
	})
	return out, err
}

// applyPatch expects the study lock to be held.
func (s *Service) applyPatch(ctx context.Context, studyID string, patch document.Object) (document.Object, error) {
	current, err := s.store.Get(ctx, studyID)
	var merged document.Object
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		if err := s.merger.Validate(patch); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
		}
		merged = document.CloneObject(patch)
	case err != nil:
		return nil, err
	default:
		merged, err = s.merger.Merge(patch, current)
		if err != nil {
			return nil, err
		}
	}
	if err := s.store.Put(ctx, studyID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ApplyArtifacts records uploaded files on the stored trial. Either every
// upload is recorded or the trial is left unchanged.
func (s *Service) ApplyArtifacts(ctx context.Context, studyID, subsystem string, uploads []artifact.Upload) (document.Object, error) {
	var out document.Object
	err := s.run(ctx, "trial.apply_artifacts", studyID, func(ctx context.Context) error {
		return s.locked(ctx, studyID, func(ctx context.Context) error {
			current, err := s.store.Get(ctx, studyID)
			if err != nil {
				return err
			}
			merged, err := s.artifacts.MergeArtifacts(current, subsystem, uploads)
			if err != nil {
				return err
			}
			if err := s.merger.Validate(merged); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidMergeResult, err)
			}
			if err := s.store.Put(ctx, studyID, merged); err != nil {
				return err
			}
			out = merged
			return nil
		})
	})
	return out, err
}

// IngestOptions tunes Ingest.
type IngestOptions struct {
	EncryptKey []byte
	// BaseDir resolves relative local file paths named in the workbook.
	BaseDir string
	// NewPlaceholder mints artifact placeholder tokens; uuid v4 when nil.
	NewPlaceholder func() string
}

// IngestResult is the stored trial after an ingest and the files uploaded for
// it.
type IngestResult struct {
	Document document.Object
	Uploads  []artifact.Upload
}

// Ingest turns wb into a trial patch, uploads the files it references,
// replaces their placeholders with file records and merges the patch into the
// stored trial. Uploaded blobs are removed again when the merge fails.
func (s *Service) Ingest(ctx context.Context, wb prism.Workbook, tpl *template.Template, opts IngestOptions) (*IngestResult, error) {
	res, err := prism.Prismify(wb, tpl, prism.Options{
		EncryptKey:     opts.EncryptKey,
		Rules:          s.opts.schemas,
		NewPlaceholder: opts.NewPlaceholder,
	})
	if err != nil {
		s.opts.logger.Error("prismify failed", "assay", tpl.Assay, "error", err)
		return nil, err
	}
	studyID, err := StudyID(res.Document)
	if err != nil {
		return nil, err
	}
	if len(res.Files) > 0 && s.uploader == nil {
		return nil, fmt.Errorf("%w: workbook references %d files", ErrNoBlobStore, len(res.Files))
	}

	out := &IngestResult{}
	err = s.run(ctx, "trial.ingest", studyID, func(ctx context.Context) error {
		return s.locked(ctx, studyID, func(ctx context.Context) error {
			patch := res.Document
			if len(res.Files) > 0 {
				uploads, err := s.uploader.Upload(ctx, studyID, opts.BaseDir, res.Files)
				if err != nil {
					return err
				}
				out.Uploads = uploads
				patch, err = linkUploads(patch, uploads)
				if err != nil {
					s.discard(ctx, uploads)
					return err
				}
			}
			merged, err := s.applyPatch(ctx, studyID, patch)
			if err != nil {
				s.discard(ctx, out.Uploads)
				return err
			}
			out.Document = merged
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func linkUploads(doc document.Object, uploads []artifact.Upload) (document.Object, error) {
	for _, up := range uploads {
		rec, err := up.Record()
		if err != nil {
			return nil, err
		}
		doc, err = artifact.LinkPlaceholder(doc, up.Placeholder, rec)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *Service) discard(ctx context.Context, uploads []artifact.Upload) {
	for _, up := range uploads {
		if _, err := s.opts.blobs.Delete(ctx, up.URL); err != nil {
			s.opts.logger.Warn("discarding uploaded artifact failed", "url", up.URL, "error", err)
		}
	}
}

func (s *Service) locked(ctx context.Context, studyID string, fn func(context.Context) error) error {
	unlock, err := s.opts.locker.Lock(ctx, "trial:"+studyID)
	if err != nil {
		return fmt.Errorf("lock study %s: %w", studyID, err)
	}
	ferr := fn(ctx)
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		s.opts.logger.Warn("study lock release failed", "study_id", studyID, "error", err)
		if ferr == nil {
			// the lock expired while fn ran; another writer may have interleaved
			return fmt.Errorf("unlock study %s: %w", studyID, err)
		}
	}
	return ferr
}

func (s *Service) run(ctx context.Context, op, studyID string, fn func(context.Context) error) error {
	start := s.opts.clock.Now()
	ctx, span := s.opts.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, s.opts.clock.Now().Sub(start))
	if err != nil {
		s.opts.logger.Error(op+" failed", "study_id", studyID, "error", err)
		return err
	}
	s.opts.logger.Debug(op+" completed", "study_id", studyID)
	return nil
}
