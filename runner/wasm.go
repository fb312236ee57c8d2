package runner

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/registry"
	"github.com/wippyai/plugin-host/value"
)

const (
	defaultEntry    = "_start"
	defaultEventBuf = 64
	hostModuleName  = "p3d"
	fileScheme      = "file://"
)

// WasmConfig holds configuration for the wazero package runner
type WasmConfig struct {
	// Logger receives session diagnostics. nil means the package logger.
	Logger *zap.Logger

	// ReadFile loads the package bytes for a file reference.
	// nil means os.ReadFile, with a file:// prefix stripped.
	ReadFile func(ref string) ([]byte, error)

	// Stdout and Stderr receive the guest's WASI output. nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Entry is the exported function run as the package's main.
	// Empty means "_start".
	Entry string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// EventBuffer is how many undelivered events a session holds before
	// HandleEvent starts rejecting them. 0 means 64.
	EventBuffer int
}

// WasmLauncher starts wazero sessions.
type WasmLauncher struct {
	cfg WasmConfig
	log *zap.Logger
}

func NewWasmLauncher(cfg *WasmConfig) *WasmLauncher {
	var c WasmConfig
	if cfg != nil {
		c = *cfg
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	if c.ReadFile == nil {
		c.ReadFile = readPackage
	}
	if c.Entry == "" {
		c.Entry = defaultEntry
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuf
	}
	return &WasmLauncher{cfg: c, log: c.Logger}
}

func readPackage(ref string) ([]byte, error) {
	return os.ReadFile(strings.TrimPrefix(ref, fileScheme))
}

// Launch prepares a session. Loading and compiling happen in Run, on the
// worker goroutine.
func (l *WasmLauncher) Launch(info registry.LaunchInfo) (registry.Session, error) {
	if info.FileRef == "" {
		return nil, errors.InvalidInput(errors.PhaseSession, "empty package reference")
	}
	return &wasmSession{
		cfg:    &l.cfg,
		info:   info,
		events: make(chan registry.Event, l.cfg.EventBuffer),
		log:    l.log.With(zap.Stringer("instance", info.Instance), zap.String("package", info.FileRef)),
	}, nil
}

type wasmSession struct {
	cfg    *WasmConfig
	events chan registry.Event
	log    *zap.Logger
	info   registry.LaunchInfo
}

// HandleEvent queues the event for the guest's poll_event. It never blocks.
func (s *wasmSession) HandleEvent(ev registry.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *wasmSession) Run(ctx context.Context, host registry.Host) (err error) {
	wasm, err := s.cfg.ReadFile(s.info.FileRef)
	if err != nil {
		return errors.Load("read "+s.info.FileRef, err)
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if s.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(s.cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer func() {
		err = multierr.Append(err, rt.Close(context.Background()))
	}()

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return errors.Instantiation(err)
	}
	hm := newHostModule(host, s.events)
	if _, err := hm.instantiate(ctx, rt); err != nil {
		return errors.Instantiation(err)
	}
	defer hm.release()

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return errors.Load("compile "+s.info.FileRef, err)
	}

	modCfg := wazero.NewModuleConfig().
		WithName(moduleName(s.info.FileRef)).
		WithArgs(s.info.FileRef).
		WithStartFunctions()
	if s.cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(s.cfg.Stdout)
	}
	if s.cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(s.cfg.Stderr)
	}
	for _, t := range s.info.Tokens {
		modCfg = modCfg.WithEnv(t.Key, t.Value)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Instantiation(err)
	}

	entry := mod.ExportedFunction(s.cfg.Entry)
	if entry == nil {
		return errors.NotFound(errors.PhaseSession, "export", s.cfg.Entry)
	}

	host.SetPandaScriptObject(s.scriptObject(compiled))
	host.Notify(registry.NotifyScriptReady)
	s.log.Debug("package running", zap.String("entry", s.cfg.Entry))

	if _, err := entry.Call(ctx); err != nil {
		if exit, ok := err.(*sys.ExitError); ok && exit.ExitCode() == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(errors.PhaseSession, errors.KindInstantiation, err, "run "+s.cfg.Entry)
	}
	return nil
}

// scriptObject describes the package to the host: its reference and the
// names of its exported functions.
func (s *wasmSession) scriptObject(compiled wazero.CompiledModule) value.Value {
	d := value.NewDict()
	d.Set("package", value.NewStringFrom(s.info.FileRef))
	d.Set("entry", value.NewStringFrom(s.cfg.Entry))

	exports := value.NewDict()
	for name := range compiled.ExportedFunctions() {
		exports.Set(name, value.NewBool(true))
	}
	d.Set("exports", exports.Object())
	return d.Object()
}

func moduleName(ref string) string {
	name := path.Base(strings.TrimPrefix(ref, fileScheme))
	return strings.TrimSuffix(name, path.Ext(name))
}
