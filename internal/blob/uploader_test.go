package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trialcore/internal/artifact"
	"trialcore/internal/observability"
	"trialcore/internal/prism"
)

func descriptors() []prism.FileDescriptor {
	return []prism.FileDescriptor{
		{TemplateKey: "forward fastq", LocalPath: "a_R1.fastq.gz", StorageKey: "/P1/S1/A1/wes/fastq_1", Placeholder: "ph-1"},
		{TemplateKey: "reverse fastq", LocalPath: "a_R2.fastq.gz", StorageKey: "/P1/S1/A1/wes/fastq_2", Placeholder: "ph-2"},
	}
}

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("content of "+n), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	return dir
}

func TestUploaderStores(t *testing.T) {
	dir := writeFiles(t, "a_R1.fastq.gz", "a_R2.fastq.gz")
	for name, store := range map[string]Store{"memory": NewMemory(), "s3": NewMockS3()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ups, err := NewUploader(store).Upload(ctx, "10021", dir, descriptors())
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if len(ups) != 2 {
				t.Fatalf("expected 2 uploads, got %d", len(ups))
			}
			sum := md5.Sum([]byte("content of a_R1.fastq.gz"))
			first := ups[0]
			if first.URL != "10021/P1/S1/A1/wes/fastq_1" || first.Placeholder != "ph-1" || first.MD5 != hex.EncodeToString(sum[:]) {
				t.Fatalf("unexpected upload %+v", first)
			}
			if first.Size != int64(len("content of a_R1.fastq.gz")) || first.Timestamp.IsZero() {
				t.Fatalf("unexpected size/timestamp %+v", first)
			}
			info, err := store.Head(ctx, first.URL)
			if err != nil {
				t.Fatalf("head: %v", err)
			}
			if info.Metadata["placeholder"] != "ph-1" {
				t.Fatalf("metadata not stored: %+v", info.Metadata)
			}
			rec, err := first.Record()
			if err != nil || rec.FileName != "fastq_1" || rec.Category != artifact.CategoryAssay {
				t.Fatalf("record: %+v %v", rec, err)
			}
		})
	}
}

func TestUploaderRollsBack(t *testing.T) {
	dir := writeFiles(t, "a_R1.fastq.gz")
	store := NewMemory()
	ctx := context.Background()
	_, err := NewUploader(store).Upload(ctx, "10021", dir, descriptors())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected missing file error, got %v", err)
	}
	list, _ := store.List(ctx, "")
	if len(list) != 0 {
		t.Fatalf("expected rollback, found %+v", list)
	}
}

func TestUploaderDuplicateKey(t *testing.T) {
	dir := writeFiles(t, "a_R1.fastq.gz", "a_R2.fastq.gz")
	store := NewMemory()
	u := NewUploader(store, WithUploadLogger(observability.NoopLogger{}))
	if _, err := u.Upload(context.Background(), "10021", dir, descriptors()[:1]); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := u.Upload(context.Background(), "10021", dir, descriptors()); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

type zeroTimeStore struct{ Store }

func (z zeroTimeStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	info, err := z.Store.Put(ctx, key, r, opts)
	info.LastModified = time.Time{}
	return info, err
}

func TestUploaderClockFallback(t *testing.T) {
	dir := writeFiles(t, "a_R1.fastq.gz")
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	u := NewUploader(zeroTimeStore{NewMemory()}, WithUploadClock(observability.ClockFunc(func() time.Time { return fixed })))
	ups, err := u.Upload(context.Background(), "10021", dir, descriptors()[:1])
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !ups[0].Timestamp.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", ups[0].Timestamp)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("fs: %v", err)
	}
	s, err = Open(ctx, Config{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected bucket error")
	}
	if _, err := Open(ctx, Config{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
