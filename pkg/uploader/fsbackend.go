package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockpack/blockpack/pkg/pipeline"
	"github.com/blockpack/blockpack/pkg/volume/indexaccum"
)

// FSBackend uploads volumes to a local directory, for demos and tests where
// a real remote store isn't available.
type FSBackend struct {
	dir string
}

var _ Backend = (*FSBackend)(nil)

// NewFSBackend returns a Backend that writes volumes under dir, creating it
// if necessary.
func NewFSBackend(dir string) (*FSBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploader: fs backend: mkdir: %w", err)
	}
	return &FSBackend{dir: dir}, nil
}

func (b *FSBackend) Name() string { return "filesystem" }

// PutVolume copies req.Volume's compressed bytes to <dir>/<remote_filename>,
// and, if req.IndexAccu is present, writes its entries to a sibling
// "<remote_filename>.index" file.
func (b *FSBackend) PutVolume(ctx context.Context, req pipeline.VolumeUploadRequest) error {
	dst, err := os.Create(filepath.Join(b.dir, req.Volume.RemoteFilename()))
	if err != nil {
		return fmt.Errorf("uploader: fs backend: create: %w", err)
	}
	defer dst.Close()

	if _, err := req.Volume.CopyTo(ctx, dst); err != nil {
		return fmt.Errorf("uploader: fs backend: copy volume: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("uploader: fs backend: sync: %w", err)
	}

	if req.IndexAccu == nil {
		return nil
	}
	return b.putIndexVolume(req)
}

func (b *FSBackend) putIndexVolume(req pipeline.VolumeUploadRequest) error {
	path := filepath.Join(b.dir, req.Volume.RemoteFilename()+".index")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("uploader: fs backend: create index: %w", err)
	}
	defer f.Close()

	if err := req.IndexAccu.Seal(); err != nil {
		return fmt.Errorf("uploader: fs backend: seal index: %w", err)
	}
	return req.IndexAccu.Entries(func(e indexaccum.Entry) error {
		_, err := fmt.Fprintf(f, "%s %d %d\n", e.HashKey, e.Size, len(e.Data))
		return err
	})
}
