package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		debug     bool
		checkFunc func(t *testing.T, output string)
	}{
		{
			name:   "Text Logger Info Level",
			config: Config{Level: "info", Format: "text"},
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "level=INFO")
				assert.Contains(t, output, `msg="test message"`)
				assert.Contains(t, output, "service=boss-launcher-webhook")
			},
		},
		{
			name:   "JSON Logger Debug Level",
			config: Config{Level: "debug", Format: "json"},
			debug:  true,
			checkFunc: func(t *testing.T, output string) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(output), &entry), output)
				assert.Equal(t, "DEBUG", entry["level"])
				assert.Equal(t, "test message", entry["msg"])
			},
		},
		{
			name:   "Unknown Level Falls Back To Info",
			config: Config{Level: "verbose", Format: "text"},
			debug:  true,
			checkFunc: func(t *testing.T, output string) {
				assert.Empty(t, output, "debug must be filtered at info level")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewLogger(tt.config, &buf)
			if tt.debug {
				log.Debug("test message")
			} else {
				log.Info("test message")
			}
			tt.checkFunc(t, buf.String())
		})
	}
}

func TestOpenOutput(t *testing.T) {
	w, closeFn, err := OpenOutput(Config{Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)
	closeFn()

	path := filepath.Join(t.TempDir(), "webhook.log")
	w, closeFn, err = OpenOutput(Config{Output: path})
	require.NoError(t, err)
	NewLogger(Config{Level: "info"}, w).Info("to file")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))

	_, _, err = OpenOutput(Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
