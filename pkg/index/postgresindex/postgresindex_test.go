package postgresindex

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blockpack/blockpack/pkg/index"
)

// newTestStore starts a disposable Postgres container (or reuses
// BLOCKPACK_PG_TEST_DSN if set), applies the schema migration, and returns
// a ready Store. Skipped when neither Docker nor a DSN is available, mirroring
// the opt-in integration suite the teacher runs against its own Postgres backend.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("BLOCKPACK_PG_TEST_DSN")
	if dsn == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("blockpack_test"),
			tcpostgres.WithUsername("blockpack_test"),
			tcpostgres.WithPassword("blockpack_test"),
			tcpostgres.BasicWaitStrategies(),
			testcontainersWaitFor(),
		)
		if err != nil {
			t.Skipf("postgres test container unavailable: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(ctx) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	require.NoError(t, Migrate(dsn))

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testcontainersWaitFor() tcpostgres.ContainerCustomizer {
	return tcpostgres.WithWaitStrategy(
		wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	)
}

func TestFindBlockID_AbsentReturnsNoVolume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.FindBlockID(ctx, "A", 1000)
	require.NoError(t, err)
	require.Equal(t, index.NoVolume, id)
}

func TestAddBlock_FirstCallerWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	volID, err := s.RegisterRemoteVolume(ctx, "vol-1", index.KindBlocks)
	require.NoError(t, err)

	wasNew, err := s.AddBlock(ctx, "A", 1000, volID)
	require.NoError(t, err)
	require.True(t, wasNew)

	wasNew, err = s.AddBlock(ctx, "A", 1000, volID+1)
	require.NoError(t, err)
	require.False(t, wasNew)
}

func TestMoveBlockToVolume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	volA, err := s.RegisterRemoteVolume(ctx, "vol-a", index.KindBlocks)
	require.NoError(t, err)
	volB, err := s.RegisterRemoteVolume(ctx, "vol-b", index.KindBlocks)
	require.NoError(t, err)

	_, err = s.AddBlock(ctx, "A", 1000, volA)
	require.NoError(t, err)

	require.NoError(t, s.MoveBlockToVolume(ctx, "A", 1000, volA, volB))

	foundID, err := s.FindBlockID(ctx, "A", 1000)
	require.NoError(t, err)
	require.Equal(t, volB, foundID)
}

func TestMoveBlockToVolume_WrongSourceFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	volA, err := s.RegisterRemoteVolume(ctx, "vol-a", index.KindBlocks)
	require.NoError(t, err)

	_, err = s.AddBlock(ctx, "A", 1000, volA)
	require.NoError(t, err)

	err = s.MoveBlockToVolume(ctx, "A", 1000, volA+999, volA+1)
	require.Error(t, err)
}
