package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/workpool"
)

// UploadFile is one local file to upload.
type UploadFile struct {
	// Path is the local filesystem path.
	Path string
	// Rel is the slash-separated key suffix below the destination prefix.
	Rel string
	// ContentType overrides detection when set.
	ContentType string
}

// UploadFailure is a file that could not be uploaded.
type UploadFailure struct {
	Rel string
	Key string
	Err error
}

// UploadSummary reports an upload batch. Failed files do not stop the rest.
type UploadSummary struct {
	// Uploaded are the keys written, in input order.
	Uploaded []string
	Failed   []UploadFailure
	Bytes    int64
}

// CollectUploads expands local paths into upload files. A regular file
// uploads under its base name; a directory uploads every regular file below
// it with the directory name kept as the first segment.
func CollectUploads(paths ...string) ([]UploadFile, error) {
	var files []UploadFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, UploadFile{Path: p, Rel: filepath.Base(p)})
			continue
		}

		base := filepath.Base(filepath.Clean(p))
		err = filepath.WalkDir(p, func(fp string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(p, fp)
			if err != nil {
				return err
			}
			files = append(files, UploadFile{Path: fp, Rel: path.Join(base, filepath.ToSlash(rel))})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	if len(files) == 0 {
		return nil, ErrNoUploadFiles
	}
	return files, nil
}

// Upload writes files below the root-relative destination prefix, with at
// most UploadConcurrency uploads in flight. Per-file failures are reported
// in the summary; the returned error is non-nil only for unusable input.
func (m *Mutator) Upload(ctx context.Context, files []UploadFile, destRel string) (*UploadSummary, error) {
	if len(files) == 0 {
		return nil, ErrNoUploadFiles
	}
	dest := m.cfg.Absolute(keyspace.NormalizePrefix(destRel))
	keys := make([]string, len(files))
	sizes := make([]int64, len(files))
	for i, f := range files {
		keys[i] = keyspace.Join(dest, f.Rel)
	}

	results := workpool.Run(ctx, m.opts.UploadConcurrency, files, func(ctx context.Context, i int, f UploadFile) error {
		n, err := m.uploadOne(ctx, f, keys[i])
		sizes[i] = n
		return err
	})

	sum := &UploadSummary{}
	for _, r := range results {
		if r.Err != nil {
			f := files[r.Index]
			m.log.Warn("upload failed", zap.String("file", f.Rel), zap.Error(r.Err))
			sum.Failed = append(sum.Failed, UploadFailure{Rel: f.Rel, Key: keys[r.Index], Err: r.Err})
			continue
		}
		sum.Uploaded = append(sum.Uploaded, keys[r.Index])
		sum.Bytes += sizes[r.Index]
	}
	return sum, nil
}

func (m *Mutator) uploadOne(ctx context.Context, f UploadFile, key string) (int64, error) {
	contentType := f.ContentType
	if contentType == "" {
		contentType = DetectContentType(f.Path)
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = fh.Close() }()

	info, err := fh.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, errors.New("not a regular file")
	}
	if err := m.store.PutObject(ctx, key, fh, info.Size(), contentType); err != nil {
		return 0, err
	}
	m.log.Debug("uploaded", zap.String("key", key), zap.Int64("bytes", info.Size()))
	return info.Size(), nil
}

// DetectContentType sniffs the MIME type of a local file, falling back to
// DefaultContentType.
func DetectContentType(name string) string {
	mt, err := mimetype.DetectFile(name)
	if err != nil || mt == nil {
		return DefaultContentType
	}
	return mt.String()
}
