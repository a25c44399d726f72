package service_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/openrelik/chopchopgo-worker/internal/model"
	"github.com/openrelik/chopchopgo-worker/internal/service"

	"github.com/stretchr/testify/require"
)

func TestUploaders(t *testing.T) {
	t.Parallel()

	t.Run("default_stdout", func(t *testing.T) {
		uploaders, err := service.Uploaders(nil)
		require.NoError(t, err)
		require.Len(t, uploaders, 1)
		require.IsType(t, service.WriteUploader{}, uploaders[0])
	})

	t.Run("empty_results", func(t *testing.T) {
		uploaders, err := service.Uploaders(&model.Results{})
		require.NoError(t, err)
		require.Len(t, uploaders, 1)
		require.IsType(t, service.WriteUploader{}, uploaders[0])
	})

	t.Run("dir_and_url", func(t *testing.T) {
		uploaders, err := service.Uploaders(&model.Results{
			Dir: t.TempDir(),
			URL: "http://collector.local",
		})
		require.NoError(t, err)
		require.Len(t, uploaders, 2)
	})

	t.Run("missing_dir", func(t *testing.T) {
		_, err := service.Uploaders(&model.Results{
			Dir: filepath.Join(t.TempDir(), "nope"),
		})
		require.Error(t, err)
	})
}

func TestWriteUploader(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	u := service.NewWriteUploader(&buf)
	require.NoError(t, u.Upload(t.Context(), []byte("ZW5jb2RlZA==")))
	require.Equal(t, "ZW5jb2RlZA==", buf.String())
}

func TestOSRootUploader(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	u, err := service.NewOSRootUploader(dir)
	require.NoError(t, err)

	require.NoError(t, u.Upload(t.Context(), []byte("ZW5jb2RlZA==")))

	matches, err := filepath.Glob(filepath.Join(dir, "chopchopgo-*.result"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, "ZW5jb2RlZA==", string(content))

	require.NoError(t, u.Close())
	require.Error(t, u.Upload(t.Context(), []byte("x")))
	require.Error(t, u.Close())
}
