package input_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openrelik/chopchopgo-worker/internal/input"
	"github.com/openrelik/chopchopgo-worker/internal/model"

	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("explicit_only", func(t *testing.T) {
		explicit := []model.InputFile{
			{Path: "/evidence/syslog", DisplayName: "syslog.log"},
			{Path: "/evidence/audit", DisplayName: "audit.log"},
		}
		files, err := input.Files(ctx, "", explicit, input.Filter{})
		require.NoError(t, err)
		require.Equal(t, explicit, files)
	})

	t.Run("pipe_result", func(t *testing.T) {
		upstream := model.TaskResult{
			OutputFiles: []model.OutputFile{{
				Path:        "/out/extracted.log",
				DisplayName: "extracted.log",
				DataType:    "openrelik:extract:text",
			}},
		}
		encoded, err := upstream.Encode()
		require.NoError(t, err)

		files, err := input.Files(ctx, encoded, nil, input.Filter{})
		require.NoError(t, err)
		require.Len(t, files, 1)
		require.Equal(t, "/out/extracted.log", files[0].Path)
		require.Equal(t, "extracted.log", files[0].DisplayName)
		require.Equal(t, "openrelik:extract:text", files[0].DataType)
	})

	t.Run("pipe_result_before_explicit", func(t *testing.T) {
		upstream := model.TaskResult{
			OutputFiles: []model.OutputFile{{Path: "/out/first.log", DisplayName: "first.log"}},
		}
		encoded, err := upstream.Encode()
		require.NoError(t, err)

		explicit := []model.InputFile{{Path: "/evidence/second.log", DisplayName: "second.log"}}
		files, err := input.Files(ctx, encoded, explicit, input.Filter{})
		require.NoError(t, err)
		require.Len(t, files, 2)
		require.Equal(t, "first.log", files[0].Name())
		require.Equal(t, "second.log", files[1].Name())
	})

	t.Run("broken_pipe_result", func(t *testing.T) {
		_, err := input.Files(ctx, "definitely not base64 json", nil, input.Filter{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "upstream result")
	})

	t.Run("filtered", func(t *testing.T) {
		explicit := []model.InputFile{
			{Path: "/evidence/syslog.log", DisplayName: "syslog.log"},
			{Path: "/evidence/photo.jpg", DisplayName: "photo.jpg"},
		}
		files, err := input.Files(ctx, "", explicit, input.Filter{Filenames: []string{"*.log"}})
		require.NoError(t, err)
		require.Len(t, files, 1)
		require.Equal(t, "syslog.log", files[0].Name())
	})
}

func TestFilterMatch(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	logFile := filepath.Join(t.TempDir(), "messages")
	require.NoError(t, os.WriteFile(logFile, []byte("Jan  2 15:04:05 host sshd[1]: Accepted publickey\n"), 0644))

	cases := []struct {
		scenario string
		filter   input.Filter
		file     model.InputFile
		then     bool
	}{
		{"empty_filter_passes", input.Filter{}, model.InputFile{Path: "/x/anything.bin"}, true},
		{"data_type", input.Filter{DataTypes: []string{"openrelik:extract:text"}},
			model.InputFile{DataType: "openrelik:extract:text"}, true},
		{"data_type_mismatch", input.Filter{DataTypes: []string{"openrelik:extract:text"}},
			model.InputFile{DataType: "openrelik:hash:sha256"}, false},
		{"declared_mime", input.Filter{MimeTypes: []string{"text/plain"}},
			model.InputFile{MimeType: "text/plain"}, true},
		{"detected_mime", input.Filter{MimeTypes: []string{"text/plain"}},
			model.InputFile{Path: logFile}, true},
		{"glob_on_display_name", input.Filter{Filenames: []string{"*.log"}},
			model.InputFile{Path: "/spool/3f2c", DisplayName: "auth.log"}, true},
		{"glob_on_base_name", input.Filter{Filenames: []string{"*.txt"}},
			model.InputFile{Path: "/evidence/notes.txt"}, true},
		{"no_match", input.Filter{Filenames: []string{"*.log"}, MimeTypes: []string{"text/csv"}},
			model.InputFile{Path: "/evidence/image.iso", MimeType: "application/x-iso9660-image"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Equal(t, tc.then, tc.filter.Match(ctx, tc.file))
		})
	}
}

func TestCompatibleFilter(t *testing.T) {
	t.Parallel()
	// the catch-all glob keeps extension-less evidence in the batch
	require.True(t, input.Compatible.Match(t.Context(), model.InputFile{
		Path: "/spool/3f2c", DisplayName: "syslog",
	}))
}
