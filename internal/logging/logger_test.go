package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesToOutputAndFile(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "sim.log")

	log, closer, err := New(&out, "warn", path)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("unknown commodity", "commodity", "Durian")
	require.NoError(t, closer.Close())

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "commodity=Durian")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(b))
}
