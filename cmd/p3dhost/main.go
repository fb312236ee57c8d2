package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/plugin-host/bridge"
	"github.com/wippyai/plugin-host/registry"
	"github.com/wippyai/plugin-host/runner"
)

func main() {
	var (
		pkgFile     = flag.String("pkg", "", "Path to the package wasm file")
		contents    = flag.String("contents", "", "Contents root for relative package references")
		downloadURL = flag.String("download-url", "", "Base URL for relative fetches")
		platform    = flag.String("platform", "", "Platform string passed to sessions")
		tokens      = flag.String("tokens", "", "Instance tokens (KEY=VAL,KEY2=VAL2)")
		logFile     = flag.String("log", "", "Write logs to this file instead of stderr")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		timeout     = flag.Duration("finish-timeout", 2*time.Second, "Wait for a finished worker to exit")
		interactive = flag.Bool("i", false, "Interactive monitor with TUI")
	)
	flag.Parse()

	if *pkgFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: p3dhost -pkg <file.wasm> [-tokens K=V,...] [-download-url url]")
		fmt.Fprintln(os.Stderr, "       p3dhost -pkg <file.wasm> -i  (interactive monitor)")
		os.Exit(1)
	}

	log, err := newLogger(*logFile, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := hostOptions{
		pkg:         *pkgFile,
		contents:    *contents,
		downloadURL: *downloadURL,
		platform:    *platform,
		tokens:      parseTokens(*tokens),
		timeout:     *timeout,
	}

	if *interactive && term.IsTerminal(int(os.Stdout.Fd())) {
		err = runInteractive(log, opts)
	} else {
		if *interactive {
			log.Warn("stdout is not a terminal, running without the monitor")
		}
		err = run(log, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type hostOptions struct {
	pkg         string
	contents    string
	downloadURL string
	platform    string
	tokens      []registry.Token
	timeout     time.Duration
}

func newLogger(path string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func parseTokens(s string) []registry.Token {
	if s == "" {
		return nil
	}
	var out []registry.Token
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			out = append(out, registry.Token{Key: parts[0], Value: parts[1]})
		}
	}
	return out
}

// startHost creates the gateway and starts the package's instance.
func startHost(log *zap.Logger, opts hostOptions, stdout, stderr io.Writer) (*bridge.Gateway, error) {
	launcher := runner.NewWasmLauncher(&runner.WasmConfig{
		Logger: log.Named("runner"),
		Stdout: stdout,
		Stderr: stderr,
	})
	gw := bridge.New(&bridge.Config{
		Logger:        log.Named("bridge"),
		Launcher:      launcher,
		FinishTimeout: opts.timeout,
		ContentsRoot:  opts.contents,
	})
	if !gw.Initialize(bridge.APIVersion, opts.contents, opts.downloadURL, opts.platform) {
		return nil, fmt.Errorf("initialize: API version %d rejected", bridge.APIVersion)
	}
	return gw, nil
}

func run(log *zap.Logger, opts hostOptions) error {
	gw, err := startHost(log, opts, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer gw.Finalize()

	inst := gw.NewInstance(nil, opts.tokens, nil)
	if !gw.InstanceStart(inst, opts.pkg) {
		return fmt.Errorf("start %s failed", opts.pkg)
	}
	log.Info("instance started", zap.Stringer("instance", inst), zap.String("package", opts.pkg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loop := newHostLoop(gw, newFetcher(opts.downloadURL, log), log)
	err = loop.run(ctx)
	gw.InstanceFinish(inst)
	return err
}
