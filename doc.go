// Package pluginhost bridges an embedding host application and a plugin
// runtime that executes packages on worker goroutines.
//
// The root package is the process-wide boundary: package-level functions
// that forward to one default bridge.Gateway, mirroring a C-style plugin API
// where the host holds only opaque handles.
//
// # Architecture Overview
//
//	pluginhost/          Process-wide API over a default gateway
//	├── bridge/          Gateway: global lock, version gate, handle validation
//	├── registry/        Instances, request queues, downloads, worker-side Host
//	├── value/           Reference-counted scripting values and object classes
//	├── handle/          Generation-checked handle tables
//	├── runner/          Session launchers (wazero packages, Go functions)
//	├── errors/          Structured error types for diagnostics
//	└── cmd/p3dhost/     Reference embedding host
//
// # Quick Start
//
//	if !pluginhost.Initialize(pluginhost.APIVersion, "/srv/contents", "", "linux") {
//		log.Fatal("plugin API version mismatch")
//	}
//	defer pluginhost.Finalize()
//
//	inst := pluginhost.NewInstance(nil, []pluginhost.Token{{Key: "src", Value: "app.wasm"}}, nil)
//	pluginhost.InstanceStart(inst, "app.wasm")
//
//	for h := pluginhost.CheckRequest(true); h != 0; h = pluginhost.CheckRequest(true) {
//		for req := pluginhost.InstanceGetRequest(h); req != nil; req = pluginhost.InstanceGetRequest(h) {
//			pluginhost.RequestFinish(req, serve(req))
//		}
//	}
//
// # Concurrency
//
// Every call takes the gateway's single lock. CheckRequest with wait set
// releases it while parked, so instance workers keep queueing requests, and
// returns 0 once no instances remain. Notify callbacks run on worker
// goroutines without the lock and may call back into this package.
//
// # Values
//
// Values are passed as handles owning one reference each; release them with
// ValueDecref. Decrementing a released value is a contract violation,
// reported through the logger at DPanic level.
package pluginhost
