// Package registry implements the instance registry behind the bridge.
//
// A Registry owns the live Instances, the table of delivered Requests and the
// condition used by hosts to wait for work. It shares the bridge's single
// global lock instead of taking its own, so there is no nested locking:
//
//	var mu sync.Mutex
//	reg := registry.New(&mu, value.NewArena(), launcher, log)
//
//	mu.Lock()
//	inst := reg.CreateInstance(notify, tokens, nil)
//	err := reg.StartInstance(inst, "app.wasm")
//	mu.Unlock()
//
// # Instances
//
// An instance moves Created -> Running -> Finished. Starting it asks the
// Launcher for a Session and runs Session.Run on a dedicated goroutine.
// Finishing it cancels that goroutine's context, reports every queued request
// as unhandled, fails open downloads and removes the handle from the live
// set; after that the handle never validates again.
//
// # Requests
//
// Sessions talk to the host through the Host passed to Run: Notify, GetURL,
// PostURL and RequestStop queue Requests on the instance and wake any host
// parked in WaitRequest. The host finds work with CheckRequest (the instance
// owning the oldest queued request), pops it with Instance.GetRequest and
// resolves it with FinishRequest.
//
// # Downloads
//
// GetURL and PostURL return a Download. The host fetches the data and feeds
// it back in chunks with Instance.FeedURLStream; the session collects the
// body with Download.Wait.
package registry
