package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/value"
)

// State is the lifecycle position of an instance.
type State uint8

const (
	StateCreated State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Instance is one embedded session: its worker, its request queue and its
// script roots. All methods must be called with the bridge lock held.
type Instance struct {
	userData  any
	err       error
	session   Session
	panda     value.Value
	reg       *Registry
	notify    NotifyFunc
	cancel    context.CancelFunc
	done      chan struct{}
	downloads map[int]*Download
	log       *zap.Logger
	tokens    []Token
	queue     []*Request
	wparams   WindowParams
	nextID    uint64
	handle    handle.Handle
	browser   handle.Handle
	nextSID   int
	state     State
}

func (i *Instance) Handle() handle.Handle { return i.handle }

func (i *Instance) State() State { return i.state }

func (i *Instance) UserData() any { return i.userData }

func (i *Instance) Tokens() []Token { return i.tokens }

func (i *Instance) WindowParams() WindowParams { return i.wparams }

// Err returns the error the session's Run returned, once it has returned.
func (i *Instance) Err() error { return i.err }

// Done is closed when the worker goroutine exits. It is nil before start.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Pending returns the number of queued, undelivered requests.
func (i *Instance) Pending() int { return len(i.queue) }

// SetWindowParams stores window geometry. Changes made while running are
// forwarded to sessions implementing WindowObserver.
func (i *Instance) SetWindowParams(p WindowParams) {
	i.wparams = p
	if i.state != StateRunning {
		return
	}
	if wo, ok := i.session.(WindowObserver); ok {
		wo.WindowParamsChanged(p)
	}
}

func (i *Instance) setPanda(v value.Value) {
	old := i.panda
	value.Retain(v)
	i.panda = v
	value.Drop(old)
}

// PandaScriptObject returns the runtime-rooted object, or nil if the session
// has not published one.
func (i *Instance) PandaScriptObject() value.Value {
	return i.panda
}

// SetBrowserScriptObject stores the host-rooted object handle. No reference
// is taken; the caller keeps the handle alive.
func (i *Instance) SetBrowserScriptObject(h handle.Handle) {
	i.browser = h
}

// BrowserScriptObject resolves the host-rooted object, or nil if it was never
// set or has since been released.
func (i *Instance) BrowserScriptObject() value.Value {
	if i.browser == 0 {
		return nil
	}
	v, ok := i.reg.values.Resolve(i.browser)
	if !ok {
		return nil
	}
	return v
}

// enqueue appends a request and wakes waiting hosts. Fails once the instance
// is no longer running.
func (i *Instance) enqueue(req *Request) bool {
	if i.state != StateRunning {
		return false
	}
	i.nextID++
	i.reg.seq++
	req.ID = i.nextID
	req.seq = i.reg.seq
	req.Instance = i.handle
	i.queue = append(i.queue, req)
	i.reg.cond.Broadcast()

	i.log.Debug("request queued",
		zap.Stringer("kind", req.Kind),
		zap.Uint64("id", req.ID),
		zap.Int("pending", len(i.queue)))
	return true
}

func (i *Instance) head() (*Request, bool) {
	if len(i.queue) == 0 {
		return nil, false
	}
	return i.queue[0], true
}

// GetRequest pops the head of this instance's queue and registers it as
// delivered. Returns nil unless the instance is running.
func (i *Instance) GetRequest() *Request {
	if i.state != StateRunning || len(i.queue) == 0 {
		return nil
	}
	req := i.queue[0]
	i.queue[0] = nil
	i.queue = i.queue[1:]
	req.handle = i.reg.delivered.Insert(req)
	return req
}

// FinishRequest applies the side effects of a request outcome: an unhandled
// fetch fails its download, and the session is told the outcome.
func (i *Instance) FinishRequest(req *Request, handled bool) {
	if req.finished {
		return
	}
	req.finished = true
	req.handled = handled

	if req.isDownload() && !handled {
		if d, ok := i.downloads[req.StreamID]; ok {
			delete(i.downloads, req.StreamID)
			d.finish(Result{Code: ResultGenericError})
		}
	}

	if ro, ok := i.session.(RequestObserver); ok {
		ro.RequestFinished(req, handled)
	}
}

func (i *Instance) newDownload(url string) *Download {
	i.nextSID++
	d := newDownload(i.nextSID, url)
	i.downloads[d.ID] = d
	return d
}

// FeedURLStream delivers a chunk into an outstanding download.
func (i *Instance) FeedURLStream(id int, code ResultCode, httpStatus int, totalExpected int, data []byte) error {
	if i.state != StateRunning {
		return errors.NotRunning(errors.PhaseStream, i.state.String())
	}
	if !code.Feedable() {
		return errors.New(errors.PhaseStream, errors.KindInvalidInput).
			Detail("result code %d cannot be fed", code).
			Value(int(code)).
			Build()
	}
	d, ok := i.downloads[id]
	if !ok {
		return errors.UnknownStream(id)
	}
	if d.feed(code, httpStatus, totalExpected, data) {
		delete(i.downloads, id)
		i.log.Debug("download complete",
			zap.Int("stream", id),
			zap.Stringer("result", code),
			zap.Int("http_status", httpStatus))
	}
	return nil
}

// HandleEvent delivers a host event into the running session.
func (i *Instance) HandleEvent(ev Event) error {
	if i.state != StateRunning {
		return errors.NotRunning(errors.PhaseInstance, i.state.String())
	}
	if !ev.Valid() {
		return errors.InvalidEvent("unknown event kind")
	}
	if !i.session.HandleEvent(ev) {
		return errors.New(errors.PhaseInstance, errors.KindInvalidEvent).
			Detail("event rejected by session").
			Value(ev.Kind).
			Build()
	}
	return nil
}

// shutdown moves the instance to finished, cancels its worker, reports every
// queued request unhandled and fails open downloads.
func (i *Instance) shutdown() {
	i.state = StateFinished
	if i.cancel != nil {
		i.cancel()
	}

	for id, d := range i.downloads {
		delete(i.downloads, id)
		d.finish(Result{Code: ResultShutdown})
	}
	i.setPanda(nil)

	pending := i.queue
	i.queue = nil
	for _, req := range pending {
		i.FinishRequest(req, false)
	}

	i.log.Debug("instance finished", zap.Int("drained", len(pending)))
}
