package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpilot/config"
)

func TestGetLogger_BeforeInit(t *testing.T) {
	ResetLoggerForTest()
	defer ResetLoggerForTest()

	assert.NotNil(t, GetLogger())
	assert.NotPanics(t, func() {
		LogInfo("not initialized")
		LogError("not initialized", errors.New("boom"))
	})
}

func TestInitLogger_WritesFile(t *testing.T) {
	ResetLoggerForTest()
	defer ResetLoggerForTest()

	path := filepath.Join(t.TempDir(), "jobpilot.log")
	InitLogger(config.LoggerConfig{ServiceName: "test", Level: "debug", File: path, MaxSize: 1})

	Named("workflow").Info("state changed")
	LogWarn("warned")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"state changed"`)
	assert.Contains(t, string(data), `"logger":"test.workflow"`)
	assert.Contains(t, string(data), `"level":"WARN"`)
}

func TestInitLogger_OnlyOnce(t *testing.T) {
	ResetLoggerForTest()
	defer ResetLoggerForTest()

	InitLogger(config.LoggerConfig{ServiceName: "first", Level: "info"})
	first := GetLogger()
	InitLogger(config.LoggerConfig{ServiceName: "second", Level: "debug"})

	assert.Same(t, first, GetLogger())
}
