// internal/observability/logger_test.go
package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/ceqfill/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferSyncer adapts a bytes.Buffer to zapcore.WriteSyncer.
type bufferSyncer struct{ bytes.Buffer }

func (b *bufferSyncer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &bufferSyncer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "ceqfill",
			Colors:      config.ColorConfig{Info: "green"},
		}, buf)
		GetLogger().Named("loop").Info("round finished", zap.Int("completed", 2))
		Sync()

		output := buf.String()
		assert.Contains(t, output, colorGreen+"INFO"+colorReset)
		assert.Contains(t, output, "ceqfill.loop.")
		assert.Contains(t, output, "round finished")
		assert.Contains(t, output, `"completed": 2`)
	})

	t.Run("json logger respects level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &bufferSyncer{}

		Initialize(config.LoggerConfig{Level: "warn", Format: "json", ServiceName: "svc"}, buf)
		logger := GetLogger()
		logger.Info("dropped")
		logger.Warn("kept", zap.String("item", "3"))

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal(lines[0], &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "3", entry["item"])
	})

	t.Run("only the first initialisation wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		first, second := &bufferSyncer{}, &bufferSyncer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)
		GetLogger().Info("hello")

		assert.NotZero(t, first.Len())
		assert.Zero(t, second.Len())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		buf := &bufferSyncer{}
		logger := NewLogger(config.LoggerConfig{Level: "chatty", Format: "json"}, buf)
		logger.Debug("hidden")
		logger.Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestLogFileRotationTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ceqfill.log")
	logger := NewLogger(config.LoggerConfig{Level: "info", Format: "console", LogFile: path, MaxSize: 1}, zapcore.AddSync(&bufferSyncer{}))
	logger.Info("to file", zap.String("run_id", "abc"))
	require.NoError(t, logger.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry), "the file is always JSON")
	assert.Equal(t, "abc", entry["run_id"])
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger())
}
