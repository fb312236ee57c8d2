package bridge

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/registry"
	"github.com/wippyai/plugin-host/runner"
)

// APIVersion is the version of the boundary contract implemented by this
// package. Initialize rejects callers compiled against any other version.
const APIVersion = 16

const defaultFinishTimeout = 2 * time.Second

// Config holds configuration for gateway creation
type Config struct {
	// Logger receives gateway and registry diagnostics.
	// nil means the package logger (no-op unless SetLogger was called).
	Logger *zap.Logger

	// Launcher creates the session for each started instance.
	// nil means a wazero package runner with default settings.
	Launcher registry.Launcher

	// FinishTimeout bounds how long InstanceFinish and Finalize wait for a
	// worker goroutine to exit after cancelling it. 0 means 2s; a negative
	// value disables waiting.
	FinishTimeout time.Duration

	// ContentsRoot resolves relative package references passed to
	// InstanceStart. Empty means references are used as given.
	ContentsRoot string
}

func (c *Config) withDefaults() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = Logger()
	}
	if out.Launcher == nil {
		out.Launcher = runner.NewWasmLauncher(nil)
	}
	if out.FinishTimeout == 0 {
		out.FinishTimeout = defaultFinishTimeout
	}
	return out
}
