package uploader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockpack/blockpack/pkg/pipeline"
	"github.com/blockpack/blockpack/pkg/volume"
	"github.com/blockpack/blockpack/pkg/volume/indexaccum"
)

func TestFSBackend_PutVolume_WritesBlocksFile(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(filepath.Join(dir, "remote"))
	require.NoError(t, err)

	w, err := volume.New(volume.Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	_, err = w.AddBlock(context.Background(), "hash-1", []byte("payload"), 0, 7, "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = backend.PutVolume(context.Background(), pipeline.VolumeUploadRequest{Volume: w, Close: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "remote", w.RemoteFilename()))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestFSBackend_PutVolume_WritesIndexSidecar(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(filepath.Join(dir, "remote"))
	require.NoError(t, err)

	w, err := volume.New(volume.Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	_, err = w.AddBlock(context.Background(), "hash-1", []byte("payload"), 0, 7, "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	accu, err := indexaccum.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, accu.Append(indexaccum.Entry{HashKey: "hash-1", Size: 7, Data: []byte("hash-1")}))

	err = backend.PutVolume(context.Background(), pipeline.VolumeUploadRequest{
		Volume:    w,
		Close:     true,
		IndexAccu: accu,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "remote", w.RemoteFilename()+".index"))
	require.NoError(t, err)
	require.Contains(t, string(data), "hash-1 7 6")
}
