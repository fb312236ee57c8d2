package bridge

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/registry"
	"github.com/wippyai/plugin-host/runner"
	"github.com/wippyai/plugin-host/value"
)

// idle blocks until the instance is finished.
func idle(ctx context.Context, _ registry.Host) error {
	<-ctx.Done()
	return nil
}

func newGateway(t *testing.T, l *runner.FuncLauncher) *Gateway {
	t.Helper()
	if l == nil {
		l = runner.NewFuncLauncher()
	}
	l.Register("idle", idle)
	gw := New(&Config{Logger: zaptest.NewLogger(t), Launcher: l, FinishTimeout: 5 * time.Second})
	if !gw.Initialize(APIVersion, "", "", "test") {
		t.Fatal("Initialize failed")
	}
	t.Cleanup(func() {
		if err := gw.Finalize(); err != nil {
			t.Errorf("Finalize: %v", err)
		}
	})
	return gw
}

func startInstance(t *testing.T, gw *Gateway, ref string, notify registry.NotifyFunc) handle.Handle {
	t.Helper()
	h := gw.NewInstance(notify, nil, nil)
	if h == 0 {
		t.Fatal("NewInstance returned 0")
	}
	if !gw.InstanceStart(h, ref) {
		t.Fatalf("InstanceStart(%s) failed", ref)
	}
	return h
}

func returnsWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("call did not return")
	}
}

func TestGateway_Initialize(t *testing.T) {
	gw := New(&Config{Logger: zaptest.NewLogger(t), Launcher: runner.NewFuncLauncher()})

	if gw.Initialize(APIVersion+1, "contents", "", "") {
		t.Fatal("mismatched version accepted")
	}
	if h := gw.NewInstance(nil, nil, nil); h != 0 {
		t.Fatal("rejected initialize left the gateway usable")
	}

	if !gw.Initialize(APIVersion, "contents", "https://example.org", "linux") {
		t.Fatal("Initialize failed")
	}
	if !gw.Initialize(APIVersion, "other", "", "") {
		t.Fatal("repeat Initialize should succeed")
	}
	if gw.reg.Settings().ContentsRef != "contents" {
		t.Fatal("repeat Initialize replaced the settings")
	}

	if err := gw.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Finalize(); err != nil {
		t.Fatal("second Finalize should be a no-op")
	}
	if h := gw.NewInstance(nil, nil, nil); h != 0 {
		t.Fatal("finalized gateway created an instance")
	}
}

func TestGateway_InvalidInstanceHandles(t *testing.T) {
	gw := newGateway(t, nil)

	finished := startInstance(t, gw, "idle", nil)
	gw.InstanceFinish(finished)
	val := gw.NewInt(1)
	defer gw.ValueDecref(val)

	handles := map[string]handle.Handle{
		"null":     0,
		"unknown":  handle.Handle(0xdeadbeef),
		"finished": finished,
		"value":    val,
	}
	for name, h := range handles {
		t.Run(name, func(t *testing.T) {
			if gw.InstanceStart(h, "idle") {
				t.Error("InstanceStart")
			}
			if gw.InstanceGetRequest(h) != nil {
				t.Error("InstanceGetRequest")
			}
			if gw.InstanceGetPandaScriptObject(h) != 0 {
				t.Error("InstanceGetPandaScriptObject")
			}
			if gw.InstanceFeedURLStream(h, 1, registry.ResultDone, 200, 0, nil) {
				t.Error("InstanceFeedURLStream")
			}
			if gw.InstanceHandleEvent(h, registry.Event{Kind: registry.EventKey}) {
				t.Error("InstanceHandleEvent")
			}
			if _, ok := gw.InstanceState(h); ok {
				t.Error("InstanceState")
			}
			gw.InstanceSetupWindow(h, registry.WindowEmbedded, 0, 0, 10, 10, 0)
			gw.InstanceSetBrowserScriptObject(h, val)
			gw.InstanceFinish(h)

			if gw.NumInstances() != 0 {
				t.Errorf("NumInstances = %d", gw.NumInstances())
			}
		})
	}

	if gw.ValueRefs(val) != 1 {
		t.Fatal("invalid instance calls touched the value's refcount")
	}
}

func TestGateway_InstanceLifecycle(t *testing.T) {
	gw := newGateway(t, nil)

	h := gw.NewInstance(nil, []registry.Token{{Key: "src", Value: "idle"}}, nil)
	if st, _ := gw.InstanceState(h); st != registry.StateCreated {
		t.Fatalf("state = %v", st)
	}
	gw.InstanceSetupWindow(h, registry.WindowToplevel, 1, 2, 300, 200, 0)
	if gw.InstanceStart(h, "unregistered") {
		t.Fatal("start of unknown package succeeded")
	}
	if !gw.InstanceStart(h, "idle") {
		t.Fatal("InstanceStart failed")
	}
	if gw.InstanceStart(h, "idle") {
		t.Fatal("second start succeeded")
	}
	if st, _ := gw.InstanceState(h); st != registry.StateRunning {
		t.Fatalf("state = %v", st)
	}
	if gw.NumInstances() != 1 {
		t.Fatalf("NumInstances = %d", gw.NumInstances())
	}

	gw.InstanceFinish(h)
	if gw.NumInstances() != 0 {
		t.Fatalf("NumInstances = %d after finish", gw.NumInstances())
	}
}

func TestGateway_CheckRequestNoInstances(t *testing.T) {
	gw := newGateway(t, nil)

	returnsWithin(t, time.Second, func() {
		if h := gw.CheckRequest(true); h != 0 {
			t.Errorf("CheckRequest = %v", h)
		}
	})
	if gw.NextRequest(context.Background(), true) != nil {
		t.Fatal("NextRequest returned a request")
	}
}

func TestGateway_CheckRequestReturnsWhenLastInstanceFinishes(t *testing.T) {
	gw := newGateway(t, nil)
	h := startInstance(t, gw, "idle", nil)

	got := make(chan handle.Handle, 1)
	go func() { got <- gw.CheckRequest(true) }()

	time.Sleep(10 * time.Millisecond)
	gw.InstanceFinish(h)

	select {
	case r := <-got:
		if r != 0 {
			t.Fatalf("CheckRequest = %v, want 0", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter hung after the last instance finished")
	}
}

func TestGateway_CheckRequestContext(t *testing.T) {
	gw := newGateway(t, nil)
	startInstance(t, gw, "idle", nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	returnsWithin(t, 5*time.Second, func() {
		if h := gw.CheckRequestContext(ctx, true); h != 0 {
			t.Errorf("CheckRequestContext = %v", h)
		}
	})
	if h := gw.CheckRequest(false); h != 0 {
		t.Fatalf("non-blocking CheckRequest = %v", h)
	}
}

// The worker queues one request at a random moment while the host is, or
// is about to be, parked in CheckRequest. The host must get exactly that
// request.
func TestGateway_WaitWakesOnEnqueue(t *testing.T) {
	trigger := make(chan string)
	l := runner.NewFuncLauncher().Register("poster", func(ctx context.Context, host registry.Host) error {
		for {
			select {
			case msg := <-trigger:
				host.Notify(msg)
			case <-ctx.Done():
				return nil
			}
		}
	})
	gw := newGateway(t, l)
	h := startInstance(t, gw, "poster", nil)

	const rounds = 300
	for i := range rounds {
		msg := fmt.Sprintf("round-%d", i)
		delay := rand.N(200 * time.Microsecond)
		go func() {
			time.Sleep(delay)
			trigger <- msg
		}()

		got := gw.CheckRequest(true)
		if got != h {
			t.Fatalf("round %d: CheckRequest = %v, want %v", i, got, h)
		}
		req := gw.InstanceGetRequest(h)
		if req == nil || req.Message != msg {
			t.Fatalf("round %d: request = %+v, want %q", i, req, msg)
		}
		if extra := gw.InstanceGetRequest(h); extra != nil {
			t.Fatalf("round %d: duplicate request %+v", i, extra)
		}
		if !gw.RequestFinish(req, true) {
			t.Fatalf("round %d: RequestFinish failed", i)
		}
	}
}

type recordingSession struct {
	runner.SessionFunc
	outcomes []bool
}

func (s *recordingSession) RequestFinished(_ *registry.Request, handled bool) {
	s.outcomes = append(s.outcomes, handled)
}

func TestGateway_FinishReportsPendingUnhandled(t *testing.T) {
	const n = 4
	queued := make(chan struct{})
	sess := &recordingSession{SessionFunc: func(ctx context.Context, host registry.Host) error {
		for i := range n {
			host.Notify(fmt.Sprint(i))
		}
		close(queued)
		<-ctx.Done()
		return nil
	}}
	l := runner.NewFuncLauncher().RegisterFactory("burst", func(registry.LaunchInfo) registry.Session { return sess })
	gw := newGateway(t, l)
	h := startInstance(t, gw, "burst", nil)

	<-queued
	delivered := gw.InstanceGetRequest(h)
	gw.InstanceFinish(h)

	if len(sess.outcomes) != n-1 {
		t.Fatalf("reported %d outcomes, want %d", len(sess.outcomes), n-1)
	}
	for i, handled := range sess.outcomes {
		if handled {
			t.Fatalf("outcome %d reported handled", i)
		}
	}
	if _, ok := gw.InstanceState(h); ok {
		t.Fatal("finished instance still validates")
	}

	// The delivered request outlives its instance.
	if !gw.RequestFinish(delivered, true) {
		t.Fatal("RequestFinish after instance finish failed")
	}
	if gw.RequestFinish(delivered, true) {
		t.Fatal("second RequestFinish succeeded")
	}
	if len(sess.outcomes) != n-1 {
		t.Fatal("finished instance observed a late outcome")
	}
}

func TestGateway_Download(t *testing.T) {
	body := make(chan string, 1)
	l := runner.NewFuncLauncher().Register("fetch", func(ctx context.Context, host registry.Host) error {
		d, ok := host.GetURL("https://example.org/a.txt")
		if !ok {
			return nil
		}
		res, err := d.Wait(ctx)
		if err == nil && res.OK() {
			body <- string(res.Data)
		}
		<-ctx.Done()
		return nil
	})
	gw := newGateway(t, l)
	h := startInstance(t, gw, "fetch", nil)

	req := gw.NextRequest(context.Background(), true)
	if req == nil || req.Kind != registry.RequestGetURL || req.Instance != h {
		t.Fatalf("request = %+v", req)
	}
	if gw.InstanceFeedURLStream(h, req.StreamID+100, registry.ResultDone, 200, 0, nil) {
		t.Fatal("unknown stream accepted")
	}
	if !gw.InstanceFeedURLStream(h, req.StreamID, registry.ResultInProgress, 200, 6, []byte("abc")) {
		t.Fatal("first chunk rejected")
	}
	if !gw.InstanceFeedURLStream(h, req.StreamID, registry.ResultDone, 200, 6, []byte("def")) {
		t.Fatal("last chunk rejected")
	}
	gw.RequestFinish(req, true)

	select {
	case got := <-body:
		if got != "abcdef" {
			t.Fatalf("body = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session never got the body")
	}
}

func TestGateway_ScriptObjects(t *testing.T) {
	l := runner.NewFuncLauncher().Register("scripted", func(ctx context.Context, host registry.Host) error {
		d := value.NewDict().Set("title", value.NewStringFrom("demo"))
		host.SetPandaScriptObject(d.Object())
		host.Notify(registry.NotifyScriptReady)
		<-ctx.Done()
		return nil
	})
	gw := newGateway(t, l)
	h := startInstance(t, gw, "scripted", nil)

	req := gw.NextRequest(context.Background(), true)
	if req == nil || req.Message != registry.NotifyScriptReady {
		t.Fatalf("request = %+v", req)
	}
	gw.RequestFinish(req, true)

	obj := gw.InstanceGetPandaScriptObject(h)
	if obj == 0 {
		t.Fatal("no script object after onscriptready")
	}
	again := gw.InstanceGetPandaScriptObject(h)
	if again != obj {
		t.Fatal("same object exported under two handles")
	}
	refs := gw.ValueRefs(obj)
	if refs < 2 {
		t.Fatalf("refs = %d, want at least 2", refs)
	}

	title := gw.ValueGetProperty(obj, "title")
	buf := make([]byte, 16)
	if n := gw.ValueGetString(title, buf); n != 4 || string(buf[:n]) != "demo" {
		t.Fatalf("title length = %d", n)
	}
	gw.ValueDecref(title)

	browser := gw.NewBool(true)
	gw.InstanceSetBrowserScriptObject(h, browser)
	gw.InstanceSetBrowserScriptObject(h, handle.Handle(0xfeed))

	for range refs {
		gw.ValueDecref(obj)
	}
	gw.ValueDecref(browser)
}

func TestGateway_Subscribe(t *testing.T) {
	gw := newGateway(t, nil)

	var mu sync.Mutex
	live := map[handle.Kind]int{}
	gw.Subscribe(handle.ObserverFunc(func(e handle.Event) {
		mu.Lock()
		defer mu.Unlock()
		if e.Type == handle.EventCreated {
			live[e.Kind]++
		} else {
			live[e.Kind]--
		}
	}))
	count := func(k handle.Kind) int {
		mu.Lock()
		defer mu.Unlock()
		return live[k]
	}

	h := startInstance(t, gw, "idle", nil)
	v := gw.NewInt(3)
	if count(handle.KindInstance) != 1 || count(handle.KindValue) != 1 {
		t.Fatalf("live instances %d, values %d", count(handle.KindInstance), count(handle.KindValue))
	}
	if got := gw.Instances(); len(got) != 1 || got[0] != h {
		t.Fatalf("Instances() = %v", got)
	}

	gw.ValueDecref(v)
	gw.InstanceFinish(h)
	if count(handle.KindInstance) != 0 || count(handle.KindValue) != 0 {
		t.Fatalf("after release: instances %d, values %d", count(handle.KindInstance), count(handle.KindValue))
	}
	if got := gw.Instances(); len(got) != 0 {
		t.Fatalf("Instances() = %v", got)
	}
}
