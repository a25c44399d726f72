package model_test

import (
	"testing"

	"github.com/openrelik/chopchopgo-worker/internal/model"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    any
		then     any
	}{
		{"nil", nil, nil},
		{"scalar", "csv", "csv"},
		{"number", 42, 42},
		{"wrapped", []any{"csv"}, "csv"},
		{"wrapped_string_slice", []string{"json"}, "json"},
		{"empty_list", []any{}, nil},
		{"empty_string_slice", []string{}, nil},
		{"multi_element_first_wins", []any{"json", "csv"}, "json"},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Equal(t, tc.then, model.Unwrap(tc.given))
		})
	}
}

func TestTaskConfigValue(t *testing.T) {
	t.Parallel()
	cfg := model.TaskConfig{
		"target":  []any{"auditd"},
		"format":  " csv ",
		"nothing": nil,
		"empty":   []any{},
		"count":   3,
	}

	cases := []struct {
		scenario string
		key      string
		value    string
		ok       bool
	}{
		{"wrapped", "target", "auditd", true},
		{"trimmed", "format", "csv", true},
		{"absent", "missing", "", false},
		{"nil_value", "nothing", "", false},
		{"empty_list", "empty", "", false},
		{"non_string", "count", "3", true},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			got, ok := cfg.Value(tc.key)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.value, got)
		})
	}

	t.Run("nil_map", func(t *testing.T) {
		var none model.TaskConfig
		_, ok := none.Value("target")
		require.False(t, ok)
	})
}

func TestInputFileName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "pretty.log", model.InputFile{
		Path:        "/spool/3f2c",
		DisplayName: "pretty.log",
	}.Name())
	require.Equal(t, "3f2c", model.InputFile{Path: "/spool/3f2c"}.Name())
}
