package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Console(t *testing.T) {
	log, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	defer log.Close()

	assert.Equal(t, zerolog.InfoLevel, log.GetZerolog().GetLevel())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "bogus", Console: true})
	require.NoError(t, err)
	defer log.Close()

	assert.Equal(t, zerolog.InfoLevel, log.GetZerolog().GetLevel())
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "coursebot.log")

	log, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	log.Info().Str("key", "value").Msg("written to file")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestSetGlobalLevel(t *testing.T) {
	SetGlobalLevel("warn")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	// Invalid level is ignored
	SetGlobalLevel("nope")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	SetGlobalLevel("info")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
}
