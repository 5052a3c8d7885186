package uploader

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockpack/blockpack/pkg/index"
	"github.com/blockpack/blockpack/pkg/pipeline"
	"github.com/blockpack/blockpack/pkg/volume"
)

// fakeIndex is a minimal index.Client standing in for a real backend in
// MergeSpill tests — only RegisterRemoteVolume is ever exercised.
type fakeIndex struct {
	mu   sync.Mutex
	next int64
}

func (f *fakeIndex) FindBlockID(ctx context.Context, hashKey string, size uint64) (int64, error) {
	return index.NoVolume, nil
}

func (f *fakeIndex) RegisterRemoteVolume(ctx context.Context, filename string, kind index.VolumeKind) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.next, nil
}

func (f *fakeIndex) AddBlock(ctx context.Context, hashKey string, size uint64, volumeID int64) (bool, error) {
	return true, nil
}

func (f *fakeIndex) MoveBlockToVolume(ctx context.Context, hashKey string, size uint64, fromVolumeID, toVolumeID int64) error {
	return nil
}

func (f *fakeIndex) CommitTransaction(ctx context.Context, tag string) error { return nil }

func (f *fakeIndex) Close() error { return nil }

func TestMergeSpill_SingleVolumeIsPassthrough(t *testing.T) {
	w := newClosedVolume(t)
	reqs := []pipeline.VolumeUploadRequest{{Volume: w, Close: true}}

	out, err := MergeSpill(context.Background(), &fakeIndex{}, reqs, volume.Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	require.Same(t, w, out.Volume)
}

func TestMergeSpill_CombinesMultipleVolumes(t *testing.T) {
	a := newClosedVolume(t)
	b := newClosedVolume(t)
	aSourceSize := a.SourceSize()
	bSourceSize := b.SourceSize()

	reqs := []pipeline.VolumeUploadRequest{
		{Volume: a, Close: true},
		{Volume: b, Close: true},
	}

	out, err := MergeSpill(context.Background(), &fakeIndex{}, reqs, volume.Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, volume.StateClosed, out.Volume.State())
	require.Equal(t, aSourceSize+bSourceSize, out.Volume.SourceSize())

	require.Equal(t, volume.StateDisposed, a.State())
	require.Equal(t, volume.StateDisposed, b.State())
}

func TestMergeSpill_NoVolumesIsError(t *testing.T) {
	_, err := MergeSpill(context.Background(), &fakeIndex{}, nil, volume.Options{TempDir: t.TempDir()})
	require.Error(t, err)
}
