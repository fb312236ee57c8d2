package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/value"
)

// Registry owns the live instances and the pending-request signal.
//
// The registry shares the bridge's global lock: every method except Wake
// must be called with that lock held, and WaitRequest releases it while
// parked.
type Registry struct {
	lock      sync.Locker
	cond      *sync.Cond
	log       *zap.Logger
	instances *handle.Table[*Instance]
	delivered *handle.Table[*Request]
	values    *value.Arena
	launcher  Launcher
	settings  Settings
	seq       uint64
	ready     bool
}

// New creates a registry guarded by lock. values resolves browser script
// object handles; launcher creates sessions at start.
func New(lock sync.Locker, values *value.Arena, launcher Launcher, log *zap.Logger) *Registry {
	if log == nil {
		log = Logger()
	}
	return &Registry{
		lock:      lock,
		cond:      sync.NewCond(lock),
		log:       log,
		instances: handle.NewTable[*Instance](handle.KindInstance),
		delivered: handle.NewTable[*Request](handle.KindRequest),
		values:    values,
		launcher:  launcher,
	}
}

// Initialize stores the process-wide settings.
func (r *Registry) Initialize(s Settings) bool {
	r.settings = s
	r.ready = true
	r.log.Info("registry initialized",
		zap.String("contents", s.ContentsRef),
		zap.String("download_url", s.DownloadURL),
		zap.String("platform", s.Platform))
	return true
}

func (r *Registry) IsInitialized() bool { return r.ready }

func (r *Registry) Settings() Settings { return r.settings }

// CreateInstance registers a new instance in the created state. No worker
// activity starts until StartInstance.
func (r *Registry) CreateInstance(notify NotifyFunc, tokens []Token, userData any) *Instance {
	inst := &Instance{
		reg:       r,
		notify:    notify,
		tokens:    append([]Token(nil), tokens...),
		userData:  userData,
		downloads: make(map[int]*Download),
		state:     StateCreated,
	}
	inst.handle = r.instances.Insert(inst)
	inst.log = r.log.With(zap.Stringer("instance", inst.handle))
	inst.log.Debug("instance created", zap.Int("tokens", len(tokens)))
	return inst
}

// ValidateInstance resolves a handle against the live set. Null, unknown and
// finished handles never resolve.
func (r *Registry) ValidateInstance(h handle.Handle) (*Instance, bool) {
	return r.instances.Get(h)
}

// StartInstance launches the session for fileRef and moves the instance to
// running.
func (r *Registry) StartInstance(inst *Instance, fileRef string) error {
	if inst.state != StateCreated {
		return errors.AlreadyRunning(inst.state.String())
	}
	if r.launcher == nil {
		return errors.NotInitialized(errors.PhaseRegistry, "launcher")
	}

	sess, err := r.launcher.Launch(LaunchInfo{
		FileRef:  fileRef,
		Tokens:   inst.tokens,
		Settings: r.settings,
		Window:   inst.wparams,
		Instance: inst.handle,
	})
	if err != nil {
		return errors.Load("launch "+fileRef, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	inst.session = sess
	inst.cancel = cancel
	inst.done = make(chan struct{})
	inst.state = StateRunning

	go r.runWorker(ctx, inst, &workerHost{reg: r, inst: inst})

	inst.log.Info("instance started", zap.String("file", fileRef))
	return nil
}

func (r *Registry) runWorker(ctx context.Context, inst *Instance, host *workerHost) {
	defer close(inst.done)

	err := runSession(ctx, inst.session, host)

	r.lock.Lock()
	inst.err = err
	stopped := false
	if inst.state == StateRunning {
		// The package ended on its own; ask the host to finish us.
		stopped = inst.enqueue(&Request{Kind: RequestStop})
	}
	notify := inst.notify
	r.lock.Unlock()

	if err != nil && ctx.Err() == nil {
		inst.log.Warn("session ended with error", zap.Error(err))
	}
	if stopped && notify != nil {
		notify(inst.handle)
	}
}

func runSession(ctx context.Context, sess Session, host Host) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.PhaseSession, errors.KindInstantiation).
				Detail("session panicked: %v", p).
				Build()
		}
	}()
	return sess.Run(ctx, host)
}

// FinishInstance moves the instance to finished, reports its queued requests
// unhandled and removes it from the live set. It does not wait for the
// worker; the returned channel closes when the worker exits.
func (r *Registry) FinishInstance(inst *Instance) <-chan struct{} {
	inst.shutdown()
	r.instances.Remove(inst.handle)
	r.cond.Broadcast()

	if inst.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return inst.done
}

// CheckRequest returns the instance owning the oldest queued request across
// the registry, or nil. Ordering uses a global enqueue sequence, so no
// instance can starve another.
func (r *Registry) CheckRequest() *Instance {
	var (
		best    *Instance
		bestSeq uint64
	)
	r.instances.Each(func(_ handle.Handle, inst *Instance) bool {
		if inst.state != StateRunning {
			return true
		}
		req, ok := inst.head()
		if !ok {
			return true
		}
		if best == nil || req.seq < bestSeq {
			best, bestSeq = inst, req.seq
		}
		return true
	})
	return best
}

// WaitRequest parks the caller until a request is queued, an instance is
// finished, or Wake is called. The lock is released while parked and held
// again on return. Wakeups may be spurious; callers loop.
func (r *Registry) WaitRequest() {
	r.cond.Wait()
}

// Wake releases every goroutine parked in WaitRequest. Must be called without
// the lock held.
func (r *Registry) Wake() {
	r.lock.Lock()
	r.cond.Broadcast()
	r.lock.Unlock()
}

func (r *Registry) NumInstances() int {
	return r.instances.Len()
}

// Instances returns the live instance handles in slot order.
func (r *Registry) Instances() []handle.Handle {
	out := make([]handle.Handle, 0, r.instances.Len())
	r.instances.Each(func(h handle.Handle, _ *Instance) bool {
		out = append(out, h)
		return true
	})
	return out
}

// Subscribe adds an observer for instance and delivered-request handle
// events. Observers run with the lock held.
func (r *Registry) Subscribe(o handle.Observer) {
	r.instances.Subscribe(o)
	r.delivered.Subscribe(o)
}

// FinishRequest releases a delivered request. Side effects run only if the
// owning instance is still live; the outcome is recorded either way.
func (r *Registry) FinishRequest(req *Request, handled bool) error {
	if req == nil {
		return errors.InvalidHandle(errors.PhaseRequest, "request", 0)
	}
	if _, ok := r.delivered.Remove(req.handle); !ok {
		return errors.InvalidHandle(errors.PhaseRequest, "request", uint64(req.handle))
	}

	if inst, ok := r.ValidateInstance(req.Instance); ok {
		inst.FinishRequest(req, handled)
		return nil
	}

	req.finished = true
	req.handled = handled
	return nil
}

// Outstanding returns the number of delivered, unfinished requests.
func (r *Registry) Outstanding() int {
	return r.delivered.Len()
}

// Shutdown finishes every instance, forgets outstanding requests and wakes
// all waiters. It returns the worker done channels.
func (r *Registry) Shutdown() []<-chan struct{} {
	var live []*Instance
	r.instances.Each(func(_ handle.Handle, inst *Instance) bool {
		live = append(live, inst)
		return true
	})

	done := make([]<-chan struct{}, 0, len(live))
	for _, inst := range live {
		done = append(done, r.FinishInstance(inst))
	}
	r.delivered.Clear(nil)
	r.ready = false
	r.cond.Broadcast()

	r.log.Info("registry shut down", zap.Int("instances", len(live)))
	return done
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d instances, %d outstanding)", r.instances.Len(), r.delivered.Len())
}
