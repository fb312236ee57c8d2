// Package bridge is the API gateway between an embedding host and the plugin
// runtime.
//
// Every exported Gateway method is a boundary entry point. Each one takes the
// gateway's single global lock for its whole duration, validates the handles
// it was given and delegates to the instance registry or the value arena.
// Failures never cross the boundary as panics or errors: they are logged and
// reported as the documented sentinel (false, a zero handle, -1 or nil).
//
// # Lifecycle
//
//	gw := bridge.New(&bridge.Config{Logger: log})
//	if !gw.Initialize(bridge.APIVersion, contents, downloadURL, "linux") {
//		// version mismatch
//	}
//	defer gw.Finalize()
//
//	inst := gw.NewInstance(notify, tokens, nil)
//	gw.InstanceSetupWindow(inst, registry.WindowEmbedded, 0, 0, 640, 480, 0)
//	gw.InstanceStart(inst, "app.wasm")
//
// # Requests
//
// Instances queue requests from their worker goroutines. A host drains them
// with the two-step protocol:
//
//	for {
//		h := gw.CheckRequest(true)
//		if h == 0 {
//			break // no instances left
//		}
//		for req := gw.InstanceGetRequest(h); req != nil; req = gw.InstanceGetRequest(h) {
//			handled := serve(req)
//			gw.RequestFinish(req, handled)
//		}
//	}
//
// CheckRequest with wait set releases the lock while parked, so workers can
// keep queueing. It returns 0 once no instances remain. NextRequest combines
// both steps.
//
// # Values
//
// Scripting values cross the boundary as reference-counted handles. Every
// handle returned by a Value or New method owns one reference that the
// caller must drop with ValueDecref. Dropping a reference that is not held is
// a contract violation and is logged at DPanic level, which panics under a
// development logger.
package bridge
