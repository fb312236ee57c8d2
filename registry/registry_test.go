package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	perrors "github.com/wippyai/plugin-host/errors"
	"github.com/wippyai/plugin-host/value"
)

// scriptSession is a Session driven by the test through its run function.
type scriptSession struct {
	run      func(ctx context.Context, host Host) error
	events   []Event
	finished []*Request
	handled  []bool
	windows  []WindowParams
	reject   bool
}

func (s *scriptSession) Run(ctx context.Context, host Host) error {
	if s.run == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.run(ctx, host)
}

func (s *scriptSession) HandleEvent(ev Event) bool {
	s.events = append(s.events, ev)
	return !s.reject
}

func (s *scriptSession) RequestFinished(req *Request, handled bool) {
	s.finished = append(s.finished, req)
	s.handled = append(s.handled, handled)
}

func (s *scriptSession) WindowParamsChanged(p WindowParams) {
	s.windows = append(s.windows, p)
}

type fixture struct {
	t      *testing.T
	reg    *Registry
	values *value.Arena
	mu     sync.Mutex
}

func newFixture(t *testing.T, sessions ...*scriptSession) *fixture {
	f := &fixture{t: t, values: value.NewArena()}
	next := 0
	launcher := LauncherFunc(func(info LaunchInfo) (Session, error) {
		if info.FileRef == "missing" {
			return nil, errors.New("no such package")
		}
		if next >= len(sessions) {
			return &scriptSession{}, nil
		}
		s := sessions[next]
		next++
		return s, nil
	})
	f.reg = New(&f.mu, f.values, launcher, zaptest.NewLogger(t))
	f.reg.Initialize(Settings{Platform: "test"})
	return f
}

func (f *fixture) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fixture) start() *Instance {
	var inst *Instance
	f.locked(func() {
		inst = f.reg.CreateInstance(nil, nil, nil)
		if err := f.reg.StartInstance(inst, "app.wasm"); err != nil {
			f.t.Fatalf("StartInstance: %v", err)
		}
	})
	return inst
}

// waitFor polls cond under the lock until it holds.
func (f *fixture) waitFor(what string, cond func() bool) {
	f.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		f.locked(func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	f.t.Fatalf("timed out waiting for %s", what)
}

// finish finishes inst under the lock and waits for its worker after
// releasing it; the worker takes the lock on its way out.
func (f *fixture) finish(inst *Instance) {
	f.t.Helper()
	var done <-chan struct{}
	f.locked(func() { done = f.reg.FinishInstance(inst) })
	waitClosed(f.t, done)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestRegistry_CreateValidateFinish(t *testing.T) {
	f := newFixture(t)

	var done <-chan struct{}
	f.locked(func() {
		inst := f.reg.CreateInstance(nil, []Token{{Key: "src", Value: "a"}}, "ud")
		h := inst.Handle()

		got, ok := f.reg.ValidateInstance(h)
		if !ok || got != inst {
			t.Fatal("fresh instance does not validate")
		}
		if inst.State() != StateCreated {
			t.Fatalf("state = %v, want created", inst.State())
		}
		if inst.UserData() != "ud" || len(inst.Tokens()) != 1 {
			t.Fatal("instance lost its creation arguments")
		}
		if f.reg.NumInstances() != 1 {
			t.Fatalf("NumInstances = %d, want 1", f.reg.NumInstances())
		}

		done = f.reg.FinishInstance(inst)

		if _, ok := f.reg.ValidateInstance(h); ok {
			t.Fatal("finished instance still validates")
		}
		if f.reg.NumInstances() != 0 {
			t.Fatalf("NumInstances = %d, want 0", f.reg.NumInstances())
		}
		if _, ok := f.reg.ValidateInstance(0); ok {
			t.Fatal("null handle validated")
		}
	})
	waitClosed(t, done)
}

func TestRegistry_StartTwice(t *testing.T) {
	f := newFixture(t)
	inst := f.start()

	f.locked(func() {
		err := f.reg.StartInstance(inst, "app.wasm")
		if !errors.Is(err, &perrors.Error{Phase: perrors.PhaseRegistry, Kind: perrors.KindAlreadyRunning}) {
			t.Fatalf("second start err = %v, want already running", err)
		}
	})
	f.finish(inst)
}

func TestRegistry_LaunchFailure(t *testing.T) {
	f := newFixture(t)

	f.locked(func() {
		inst := f.reg.CreateInstance(nil, nil, nil)
		err := f.reg.StartInstance(inst, "missing")
		if !errors.Is(err, &perrors.Error{Phase: perrors.PhaseSession, Kind: perrors.KindLoad}) {
			t.Fatalf("err = %v, want load error", err)
		}
		if inst.State() != StateCreated {
			t.Fatalf("failed start changed state to %v", inst.State())
		}
	})
}

func TestRegistry_RequestFIFO(t *testing.T) {
	sess := &scriptSession{run: func(ctx context.Context, host Host) error {
		host.Notify("first")
		host.Notify("second")
		<-ctx.Done()
		return nil
	}}
	f := newFixture(t, sess)
	inst := f.start()

	f.waitFor("two requests", func() bool { return inst.Pending() == 2 })

	f.locked(func() {
		r1 := inst.GetRequest()
		r2 := inst.GetRequest()
		if r1 == nil || r2 == nil {
			t.Fatal("expected two requests")
		}
		if r1.Message != "first" || r2.Message != "second" {
			t.Fatalf("order = %q, %q", r1.Message, r2.Message)
		}
		if r1.ID >= r2.ID {
			t.Fatalf("ids not increasing: %d, %d", r1.ID, r2.ID)
		}
		if inst.GetRequest() != nil {
			t.Fatal("queue should be empty")
		}
		if f.reg.Outstanding() != 2 {
			t.Fatalf("Outstanding = %d, want 2", f.reg.Outstanding())
		}
	})
	f.finish(inst)
}

func TestRegistry_FinishDrainsPending(t *testing.T) {
	const n = 5
	sess := &scriptSession{run: func(ctx context.Context, host Host) error {
		for range n {
			host.Notify("tick")
		}
		<-ctx.Done()
		if host.Notify("late") {
			return errors.New("notify succeeded after finish")
		}
		return nil
	}}
	f := newFixture(t, sess)
	inst := f.start()
	f.waitFor("pending requests", func() bool { return inst.Pending() == n })

	var done <-chan struct{}
	f.locked(func() { done = f.reg.FinishInstance(inst) })
	waitClosed(t, done)

	f.locked(func() {
		if len(sess.finished) != n {
			t.Fatalf("finished %d requests, want %d", len(sess.finished), n)
		}
		for i, req := range sess.finished {
			finished, handled := req.Outcome()
			if !finished || handled || sess.handled[i] {
				t.Fatalf("request %d outcome = (%v, %v), want unhandled", i, finished, handled)
			}
		}
		if _, ok := f.reg.ValidateInstance(inst.Handle()); ok {
			t.Fatal("finished instance still validates")
		}
		if inst.Err() != nil {
			t.Fatalf("session error: %v", inst.Err())
		}
	})
}

func TestRegistry_CheckRequestOldestFirst(t *testing.T) {
	postA := make(chan struct{})
	postB := make(chan struct{})
	mk := func(post chan struct{}, msg string) *scriptSession {
		return &scriptSession{run: func(ctx context.Context, host Host) error {
			select {
			case <-post:
				host.Notify(msg)
			case <-ctx.Done():
				return nil
			}
			<-ctx.Done()
			return nil
		}}
	}
	f := newFixture(t, mk(postA, "a"), mk(postB, "b"))
	a := f.start()
	b := f.start()

	f.locked(func() {
		if f.reg.CheckRequest() != nil {
			t.Fatal("CheckRequest should be empty")
		}
	})

	close(postB)
	f.waitFor("b pending", func() bool { return b.Pending() == 1 })
	close(postA)
	f.waitFor("a pending", func() bool { return a.Pending() == 1 })

	f.locked(func() {
		if got := f.reg.CheckRequest(); got != b {
			t.Fatal("CheckRequest should return the instance with the oldest request")
		}
		b.GetRequest()
		if got := f.reg.CheckRequest(); got != a {
			t.Fatal("CheckRequest should move on to the next instance")
		}
		f.reg.Shutdown()
	})
}

func TestRegistry_SessionEndQueuesStop(t *testing.T) {
	sess := &scriptSession{run: func(context.Context, Host) error { return nil }}
	f := newFixture(t, sess)
	inst := f.start()

	waitClosed(t, inst.Done())
	f.locked(func() {
		req := inst.GetRequest()
		if req == nil || req.Kind != RequestStop {
			t.Fatalf("expected stop request, got %+v", req)
		}
		f.reg.FinishInstance(inst)
	})
}

func TestRegistry_SessionPanic(t *testing.T) {
	sess := &scriptSession{run: func(context.Context, Host) error { panic("boom") }}
	f := newFixture(t, sess)
	inst := f.start()

	waitClosed(t, inst.Done())
	f.locked(func() {
		if inst.Err() == nil {
			t.Fatal("panic was not converted to an error")
		}
		if inst.Pending() != 1 {
			t.Fatalf("Pending = %d, want the stop request", inst.Pending())
		}
		f.reg.FinishInstance(inst)
	})
}

func TestRegistry_FinishRequestAfterInstanceGone(t *testing.T) {
	sess := &scriptSession{run: func(ctx context.Context, host Host) error {
		host.Notify(NotifyScriptReady)
		<-ctx.Done()
		return nil
	}}
	f := newFixture(t, sess)
	inst := f.start()
	f.waitFor("notify", func() bool { return inst.Pending() == 1 })

	var req *Request
	f.locked(func() { req = inst.GetRequest() })
	f.finish(inst)

	f.locked(func() {
		if err := f.reg.FinishRequest(req, true); err != nil {
			t.Fatalf("FinishRequest: %v", err)
		}
		if finished, handled := req.Outcome(); !finished || !handled {
			t.Fatalf("outcome = (%v, %v)", finished, handled)
		}
		if len(sess.finished) != 0 {
			t.Fatal("session observed a request finished after its instance was gone")
		}

		err := f.reg.FinishRequest(req, true)
		if !errors.Is(err, &perrors.Error{Phase: perrors.PhaseRequest, Kind: perrors.KindInvalidHandle}) {
			t.Fatalf("second FinishRequest err = %v", err)
		}
		if err := f.reg.FinishRequest(nil, true); err == nil {
			t.Fatal("nil request should fail")
		}
	})
}

func TestRegistry_Shutdown(t *testing.T) {
	f := newFixture(t)
	a := f.start()
	b := f.start()

	var done []<-chan struct{}
	f.locked(func() { done = f.reg.Shutdown() })
	for _, ch := range done {
		waitClosed(t, ch)
	}

	f.locked(func() {
		if f.reg.NumInstances() != 0 || f.reg.IsInitialized() {
			t.Fatal("shutdown left state behind")
		}
		for _, inst := range []*Instance{a, b} {
			if inst.State() != StateFinished {
				t.Fatalf("state = %v, want finished", inst.State())
			}
		}
	})
}
