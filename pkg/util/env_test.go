package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadEnvFilesParsesCommentsAndQuotes(t *testing.T) {
	unsetEnv(t, "TTS_ADDR", "TTS_QUOTED", "TTS_HASH", "TTS_EXPORTED")
	path := writeEnvFile(t, "# comment line\n"+
		"TTS_ADDR=:8080 # listen port\n"+
		"TTS_QUOTED=\"a b\"\n"+
		"TTS_HASH='#not-a-comment'\n"+
		"export TTS_EXPORTED=yes\n")

	require.NoError(t, loadEnvFiles(path))
	assert.Equal(t, ":8080", os.Getenv("TTS_ADDR"))
	assert.Equal(t, "a b", os.Getenv("TTS_QUOTED"))
	assert.Equal(t, "#not-a-comment", os.Getenv("TTS_HASH"))
	assert.Equal(t, "yes", os.Getenv("TTS_EXPORTED"))
}

func TestLoadEnvFilesKeepsExistingAndSkipsMissing(t *testing.T) {
	t.Setenv("TTS_ADDR", ":9000")
	path := writeEnvFile(t, "TTS_ADDR=:8080\n")

	require.NoError(t, loadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, ":9000", os.Getenv("TTS_ADDR"))
}

func TestEnvGetters(t *testing.T) {
	t.Setenv("TTS_INT", "42")
	t.Setenv("TTS_BOOL", "true")
	t.Setenv("TTS_SECONDS", "45")
	t.Setenv("TTS_DURATION", "2m")
	t.Setenv("TTS_LIST", "a, ,b")

	assert.Equal(t, int64(42), GetIntEnv("TTS_INT"))
	assert.Equal(t, int64(7), GetIntEnvDefault("TTS_UNSET_INT", 7))
	assert.True(t, GetBoolEnv("TTS_BOOL"))
	assert.Equal(t, 45*time.Second, GetDurationEnv("TTS_SECONDS", time.Second))
	assert.Equal(t, 2*time.Minute, GetDurationEnv("TTS_DURATION", time.Second))
	assert.Equal(t, []string{"a", "b"}, GetListEnv("TTS_LIST"))
}
