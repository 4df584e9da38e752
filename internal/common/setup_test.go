package common

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"privacy-relay-settlement/internal/models"
)

func TestBootstrapLogger_ReplacesNoopGlobal(t *testing.T) {
	restore := zap.ReplaceGlobals(zap.NewNop())
	defer restore()

	logger := BootstrapLogger()
	if zap.L() != logger {
		t.Fatal("BootstrapLogger must install itself as the global logger")
	}
	if !zap.L().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("Bootstrap logger should write errors")
	}
}

func TestInitializeLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	restore := zap.ReplaceGlobals(zap.NewNop())
	defer restore()

	logger, cleanup := InitializeLogger(models.LoggingConfig{Level: "loud"})
	defer cleanup()

	if zap.L() != logger {
		t.Fatal("InitializeLogger must replace the global logger")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) || !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info level for an unparseable level")
	}
}
