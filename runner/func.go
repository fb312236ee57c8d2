package runner

import (
	"context"
	"sync"

	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/registry"
)

// SessionFunc adapts a function to registry.Session. Its sessions reject
// every event.
type SessionFunc func(ctx context.Context, host registry.Host) error

func (f SessionFunc) Run(ctx context.Context, host registry.Host) error {
	return f(ctx, host)
}

func (SessionFunc) HandleEvent(registry.Event) bool { return false }

// Factory creates a fresh session for one instance.
type Factory func(info registry.LaunchInfo) registry.Session

// FuncLauncher launches Go sessions registered under package references.
type FuncLauncher struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewFuncLauncher() *FuncLauncher {
	return &FuncLauncher{factories: make(map[string]Factory)}
}

// Register makes fn the session for ref. Every instance started with ref
// runs its own call of fn.
func (l *FuncLauncher) Register(ref string, fn SessionFunc) *FuncLauncher {
	return l.RegisterFactory(ref, func(registry.LaunchInfo) registry.Session { return fn })
}

// RegisterFactory is Register for sessions that carry per-instance state.
func (l *FuncLauncher) RegisterFactory(ref string, f Factory) *FuncLauncher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[ref] = f
	return l
}

func (l *FuncLauncher) Launch(info registry.LaunchInfo) (registry.Session, error) {
	l.mu.RLock()
	f, ok := l.factories[info.FileRef]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseSession, "package", info.FileRef)
	}
	return f(info), nil
}
