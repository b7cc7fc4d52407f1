package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"trialcore/internal/artifact"
	"trialcore/internal/observability"
	"trialcore/internal/prism"
)

// Uploader copies the local files a workbook references into a Store.
type Uploader struct {
	store  Store
	clock  observability.Clock
	logger observability.Logger
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithUploadClock overrides the clock used when a backend reports no
// modification time.
func WithUploadClock(c observability.Clock) UploaderOption {
	return func(u *Uploader) { u.clock = c }
}

// WithUploadLogger sets the logger.
func WithUploadLogger(l observability.Logger) UploaderOption {
	return func(u *Uploader) { u.logger = l }
}

// NewUploader returns an uploader writing to store.
func NewUploader(store Store, opts ...UploaderOption) *Uploader {
	u := &Uploader{store: store, clock: observability.SystemClock, logger: observability.NoopLogger{}}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload puts every file at "<org><storage key>". Relative local paths are
// resolved against baseDir. On failure the blobs written so far are removed.
func (u *Uploader) Upload(ctx context.Context, org, baseDir string, files []prism.FileDescriptor) ([]artifact.Upload, error) {
	out := make([]artifact.Upload, 0, len(files))
	for _, fd := range files {
		up, err := u.put(ctx, org, baseDir, fd)
		if err != nil {
			u.rollback(ctx, out)
			return nil, fmt.Errorf("upload %q (%s): %w", fd.LocalPath, fd.TemplateKey, err)
		}
		u.logger.Debug("artifact uploaded", "url", up.URL, "size", up.Size)
		out = append(out, up)
	}
	return out, nil
}

func (u *Uploader) put(ctx context.Context, org, baseDir string, fd prism.FileDescriptor) (artifact.Upload, error) {
	path := fd.LocalPath
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return artifact.Upload{}, err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return artifact.Upload{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return artifact.Upload{}, err
	}
	key := fd.ObjectURL(org)
	info, err := u.store.Put(ctx, key, f, PutOptions{
		ContentType: contentType(fd.LocalPath),
		Metadata:    map[string]string{"placeholder": fd.Placeholder, "template-key": fd.TemplateKey},
	})
	if err != nil {
		return artifact.Upload{}, err
	}
	ts := info.LastModified
	if ts.IsZero() {
		ts = u.clock.Now()
	}
	return artifact.Upload{
		URL:         key,
		Size:        info.Size,
		MD5:         hex.EncodeToString(h.Sum(nil)),
		Timestamp:   ts,
		Placeholder: fd.Placeholder,
	}, nil
}

func (u *Uploader) rollback(ctx context.Context, done []artifact.Upload) {
	for _, up := range done {
		if _, err := u.store.Delete(ctx, up.URL); err != nil {
			u.logger.Warn("rollback of uploaded artifact failed", "url", up.URL, "error", err)
		}
	}
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
