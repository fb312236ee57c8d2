package bridge

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/registry"
	"github.com/wippyai/plugin-host/value"
)

// Gateway serializes every boundary call behind one lock.
type Gateway struct {
	mu     sync.Mutex
	cfg    Config
	log    *zap.Logger
	values *value.Arena
	reg    *registry.Registry
	ready  bool
}

// New creates a gateway. The gateway is unusable for instances until
// Initialize succeeds; value entry points work at any time.
func New(cfg *Config) *Gateway {
	c := cfg.withDefaults()
	g := &Gateway{
		cfg:    c,
		log:    c.Logger,
		values: value.NewArena(),
	}
	g.reg = registry.New(&g.mu, g.values, c.Launcher, c.Logger.Named("registry"))
	return g
}

// Initialize checks apiVersion and stores the process-wide settings.
// Repeat calls after a successful one return true without changing anything.
func (g *Gateway) Initialize(apiVersion int, contentsRef, downloadURL, platform string) bool {
	if apiVersion != APIVersion {
		g.log.Warn("initialize rejected", zap.Error(errors.VersionMismatch(apiVersion, APIVersion)))
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready {
		return true
	}
	g.ready = g.reg.Initialize(registry.Settings{
		ContentsRef: contentsRef,
		DownloadURL: downloadURL,
		Platform:    platform,
	})
	return g.ready
}

// Finalize finishes every instance, releases every value and waits, bounded
// by the finish timeout, for the workers to exit. Calls before Initialize or
// after a previous Finalize do nothing.
func (g *Gateway) Finalize() error {
	g.mu.Lock()
	if !g.ready {
		g.mu.Unlock()
		return nil
	}
	done := g.reg.Shutdown()
	g.values.Clear()
	g.ready = false
	g.mu.Unlock()

	var err error
	for _, ch := range done {
		err = multierr.Append(err, g.awaitWorker(ch))
	}
	if err != nil {
		g.log.Warn("finalize incomplete", zap.Error(err))
	}
	return err
}

func (g *Gateway) awaitWorker(done <-chan struct{}) error {
	if g.cfg.FinishTimeout < 0 {
		return nil
	}
	timer := time.NewTimer(g.cfg.FinishTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.New(errors.PhaseGateway, errors.KindNotRunning).
			Detail("worker still running after %s", g.cfg.FinishTimeout).
			Build()
	}
}

func (g *Gateway) invalid(op string, what string, h handle.Handle) {
	g.log.Debug(op, zap.Error(errors.InvalidHandle(errors.PhaseGateway, what, uint64(h))))
}

func (g *Gateway) instance(op string, h handle.Handle) (*registry.Instance, bool) {
	inst, ok := g.reg.ValidateInstance(h)
	if !ok {
		g.invalid(op, "instance", h)
	}
	return inst, ok
}

// NewInstance registers an instance in the created state and returns its
// handle, or 0 before Initialize.
func (g *Gateway) NewInstance(notify registry.NotifyFunc, tokens []registry.Token, userData any) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		g.log.Debug("new_instance", zap.Error(errors.NotInitialized(errors.PhaseGateway, "gateway")))
		return 0
	}
	return g.reg.CreateInstance(notify, tokens, userData).Handle()
}

// InstanceStart launches the package at fileRef for a created instance.
func (g *Gateway) InstanceStart(h handle.Handle, fileRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_start", h)
	if !ok {
		return false
	}
	if err := g.reg.StartInstance(inst, g.packagePath(fileRef)); err != nil {
		g.log.Warn("instance_start failed", zap.Stringer("instance", h), zap.Error(err))
		return false
	}
	return true
}

func (g *Gateway) packagePath(fileRef string) string {
	if g.cfg.ContentsRoot == "" || fileRef == "" || filepath.IsAbs(fileRef) || strings.Contains(fileRef, "://") {
		return fileRef
	}
	return filepath.Join(g.cfg.ContentsRoot, fileRef)
}

// InstanceFinish finishes the instance and waits, outside the lock and
// bounded by the finish timeout, for its worker to exit.
func (g *Gateway) InstanceFinish(h handle.Handle) {
	g.mu.Lock()
	inst, ok := g.instance("instance_finish", h)
	if !ok {
		g.mu.Unlock()
		return
	}
	done := g.reg.FinishInstance(inst)
	g.mu.Unlock()

	if err := g.awaitWorker(done); err != nil {
		g.log.Warn("instance_finish", zap.Stringer("instance", h), zap.Error(err))
	}
}

func (g *Gateway) InstanceSetupWindow(h handle.Handle, typ registry.WindowType, x, y, width, height int, parent uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_setup_window", h)
	if !ok {
		return
	}
	inst.SetWindowParams(registry.WindowParams{
		Type:   typ,
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
		Parent: parent,
	})
}

// InstanceGetPandaScriptObject returns a new reference to the object the
// session published, or 0 if it has not published one.
func (g *Gateway) InstanceGetPandaScriptObject(h handle.Handle) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_get_panda_script_object", h)
	if !ok {
		return 0
	}
	v := inst.PandaScriptObject()
	if v == nil {
		return 0
	}
	return g.values.Export(v)
}

// InstanceSetBrowserScriptObject stores the host's object on the instance.
// No reference is taken: the caller keeps obj alive. 0 clears it.
func (g *Gateway) InstanceSetBrowserScriptObject(h handle.Handle, obj handle.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_set_browser_script_object", h)
	if !ok {
		return
	}
	if obj != 0 {
		if _, ok := g.values.Resolve(obj); !ok {
			g.invalid("instance_set_browser_script_object", "value", obj)
			return
		}
	}
	inst.SetBrowserScriptObject(obj)
}

// InstanceGetRequest pops the oldest request queued by the instance, or nil.
// The request belongs to the caller until RequestFinish.
func (g *Gateway) InstanceGetRequest(h handle.Handle) *registry.Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_get_request", h)
	if !ok {
		return nil
	}
	return inst.GetRequest()
}

// CheckRequest returns the handle of an instance with a queued request, or 0.
// With wait set it blocks until a request is queued or no instances remain.
func (g *Gateway) CheckRequest(wait bool) handle.Handle {
	return g.CheckRequestContext(context.Background(), wait)
}

// CheckRequestContext is CheckRequest whose wait also ends when ctx is done.
func (g *Gateway) CheckRequestContext(ctx context.Context, wait bool) handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	if inst := g.awaitRequest(ctx, wait); inst != nil {
		return inst.Handle()
	}
	return 0
}

// NextRequest combines CheckRequest and InstanceGetRequest.
func (g *Gateway) NextRequest(ctx context.Context, wait bool) *registry.Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	if inst := g.awaitRequest(ctx, wait); inst != nil {
		return inst.GetRequest()
	}
	return nil
}

// awaitRequest runs with the lock held. Every wake re-checks for a queued
// request before the exit conditions, so a request queued together with the
// last finish is still returned.
func (g *Gateway) awaitRequest(ctx context.Context, wait bool) *registry.Instance {
	if wait && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, g.reg.Wake)
		defer stop()
	}
	for {
		if inst := g.reg.CheckRequest(); inst != nil {
			return inst
		}
		if !wait || g.reg.NumInstances() == 0 || ctx.Err() != nil {
			return nil
		}
		g.reg.WaitRequest()
	}
}

// RequestFinish records the outcome of a delivered request. It is safe after
// the owning instance has been finished. Returns false for requests that were
// never delivered or are already finished.
func (g *Gateway) RequestFinish(req *registry.Request, handled bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.reg.FinishRequest(req, handled); err != nil {
		g.log.Debug("request_finish", zap.Error(err))
		return false
	}
	return true
}

// InstanceFeedURLStream delivers a chunk of a download the instance asked for.
func (g *Gateway) InstanceFeedURLStream(h handle.Handle, id int, code registry.ResultCode, httpStatus, totalExpected int, data []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_feed_url_stream", h)
	if !ok {
		return false
	}
	if err := inst.FeedURLStream(id, code, httpStatus, totalExpected, data); err != nil {
		g.log.Debug("instance_feed_url_stream", zap.Stringer("instance", h), zap.Error(err))
		return false
	}
	return true
}

func (g *Gateway) InstanceHandleEvent(h handle.Handle, ev registry.Event) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instance("instance_handle_event", h)
	if !ok {
		return false
	}
	if err := inst.HandleEvent(ev); err != nil {
		g.log.Debug("instance_handle_event", zap.Stringer("instance", h), zap.Error(err))
		return false
	}
	return true
}

func (g *Gateway) NumInstances() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg.NumInstances()
}

// Instances returns the live instance handles.
func (g *Gateway) Instances() []handle.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg.Instances()
}

// Subscribe adds an observer for every handle the gateway issues or
// releases: instances, values and delivered requests. Observers run with the
// gateway lock held and must not call back into the gateway or block.
func (g *Gateway) Subscribe(o handle.Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reg.Subscribe(o)
	g.values.Subscribe(o)
}

// InstanceState reports the lifecycle state of a live instance.
func (g *Gateway) InstanceState(h handle.Handle) (registry.State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.reg.ValidateInstance(h)
	if !ok {
		return registry.StateFinished, false
	}
	return inst.State(), true
}
