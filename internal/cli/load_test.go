package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	db := filepath.Join(t.TempDir(), "strata.db")

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "load", "diamonds=testdata/diamonds.csv", "--sqlite", db, "--time-attribute", "time")
		require.NoError(t, err)
		assert.Contains(t, out, "diamonds (8 rows)")
	})

	t.Run("json with catalog", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "load", "testdata/diamonds.csv",
			"--sqlite", db, "--sources", "testdata/sources.yaml")
		require.NoError(t, err)

		resp := decodeResponse(t, out)
		loaded, ok := resp.Data.([]any)
		require.True(t, ok, "got %T", resp.Data)
		require.Len(t, loaded, 1)
		entry := loaded[0].(map[string]any)
		assert.Equal(t, "diamonds", entry["name"])
		assert.Equal(t, float64(8), entry["rows"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "load", "diamonds=testdata/nope.csv", "--sqlite", db)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestIntrospect(t *testing.T) {
	db := filepath.Join(t.TempDir(), "strata.db")
	_, err := execute(t, "load", "diamonds=testdata/diamonds.csv", "--sqlite", db, "--sources", "testdata/sources.yaml")
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "introspect", "--sqlite", db, "--table", "diamonds", "--time-attribute", "time")
		require.NoError(t, err)
		assert.Contains(t, out, "price")
		assert.Contains(t, out, "NUMBER")
		assert.Contains(t, out, "TIME")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "introspect", "--sqlite", db, "--table", "diamonds")
		require.NoError(t, err)

		resp := decodeResponse(t, out)
		desc, ok := resp.Data.(map[string]any)
		require.True(t, ok, "got %T", resp.Data)
		assert.Equal(t, "diamonds", desc["source"])
		attrs, ok := desc["attributes"].([]any)
		require.True(t, ok)
		assert.Len(t, attrs, 5)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := execute(t, "introspect", "--sqlite", db, "--table", "rubies")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}
