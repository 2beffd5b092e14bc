package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"silocore/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	require.Equal(t, core.DriverS3, store.Driver())

	info, err := store.Put(ctx, "snapshots/day-1.json", strings.NewReader(`{"x":1}`), core.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.Equal(t, "snapshots/day-1.json", info.Key)

	_, err = store.Put(ctx, "snapshots/day-1.json", strings.NewReader("{}"), core.PutOptions{})
	require.Error(t, err, "create-only semantics")

	_, rc, err := store.Get(ctx, "snapshots/day-1.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, `{"x":1}`, string(body))

	infos, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	require.Len(t, infos, 1)

	existed, err := store.Delete(ctx, "snapshots/day-1.json")
	require.NoError(t, err)
	require.True(t, existed)
	_, err = store.Head(ctx, "snapshots/day-1.json")
	require.Error(t, err)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("SILOCORE_ARCHIVE_S3_BUCKET", "")
	_, err := OpenFromEnv(context.Background())
	require.Error(t, err)
}

func TestPresignRejectsNonGet(t *testing.T) {
	store := NewMockForTests()
	_, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"})
	require.ErrorIs(t, err, core.ErrUnsupported)
}
