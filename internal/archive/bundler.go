// Package archive bundles a job's stored captures into a single zip file.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/storage"
)

// Bundler assembles every capture of a job into one downloadable archive.
type Bundler struct {
	store  storage.Store
	clock  capture.Clock
	logger *zap.Logger
}

// NewBundler creates a bundler reading and writing through store.
func NewBundler(store storage.Store, clock capture.Clock, logger *zap.Logger) *Bundler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bundler{store: store, clock: clock, logger: logger}
}

// Bundle fetches all artifacts, zips them and uploads the archive under the
// job's archive key. A missing or unreadable artifact fails the whole bundle;
// a partial archive is never uploaded. Entry names are the artifact base
// names, so the index prefix assigned at capture time keeps them unique.
func (b *Bundler) Bundle(ctx context.Context, jobID string, artifacts []capture.Artifact) (capture.Artifact, error) {
	now := b.clock.Now()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, artifact := range artifacts {
		data, err := b.store.Get(ctx, artifact.Key)
		if err != nil {
			return capture.Artifact{}, fmt.Errorf("get artifact %s: %w", artifact.Key, err)
		}
		header := &zip.FileHeader{
			Name:     path.Base(artifact.Key),
			Method:   zip.Deflate,
			Modified: now,
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return capture.Artifact{}, fmt.Errorf("create archive entry %s: %w", header.Name, err)
		}
		if _, err := entry.Write(data); err != nil {
			return capture.Artifact{}, fmt.Errorf("write archive entry %s: %w", header.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return capture.Artifact{}, fmt.Errorf("close archive: %w", err)
	}

	key := capture.ArchiveKey(jobID, now)
	if err := b.store.Put(ctx, key, capture.ZipContentType, buf.Bytes()); err != nil {
		return capture.Artifact{}, fmt.Errorf("put archive %s: %w", key, err)
	}

	b.logger.Info("archive bundled",
		zap.String("job_id", jobID),
		zap.String("key", key),
		zap.Int("entries", len(artifacts)),
		zap.Int("bytes", buf.Len()),
	)

	return capture.Artifact{Key: key, ContentType: capture.ZipContentType, Size: int64(buf.Len())}, nil
}
