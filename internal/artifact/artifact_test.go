package artifact_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/openrelik/chopchopgo-worker/internal/artifact"

	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()

	dir, err := artifact.OpenDir(outDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	out, err := dir.Create("syslog_chopchopgo", "json", "openrelik:chopchopgo:json")
	require.NoError(t, err)
	require.Equal(t, "syslog_chopchopgo.json", out.DisplayName)
	require.Equal(t, "json", out.Extension)
	require.Equal(t, "openrelik:chopchopgo:json", out.DataType)
	require.Equal(t, outDir, filepath.Dir(out.Path))

	base := strings.TrimSuffix(filepath.Base(out.Path), ".json")
	_, err = uuid.Parse(base)
	require.NoError(t, err, "on-disk name must be a uuid")

	// created empty, payload arrives later
	content, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Empty(t, content)

	require.NoError(t, dir.Write(out, []byte(`[{"message":"hit"}]`)))
	content, err = os.ReadFile(out.Path)
	require.NoError(t, err)
	require.JSONEq(t, `[{"message":"hit"}]`, string(content))
}

func TestDirUniqueNames(t *testing.T) {
	t.Parallel()
	dir, err := artifact.OpenDir(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	a, err := dir.Create("syslog_chopchopgo", "json", "")
	require.NoError(t, err)
	b, err := dir.Create("syslog_chopchopgo", "json", "")
	require.NoError(t, err)
	require.NotEqual(t, a.Path, b.Path)
	require.Equal(t, a.DisplayName, b.DisplayName)
}

func TestDirMissing(t *testing.T) {
	t.Parallel()
	_, err := artifact.OpenDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestDirClosed(t *testing.T) {
	t.Parallel()
	dir, err := artifact.OpenDir(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, dir.Close())

	_, err = dir.Create("x", "json", "")
	require.Error(t, err)
	err = dir.Close()
	require.Error(t, err)
}
