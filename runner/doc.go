// Package runner provides the session launchers that execute an instance's
// package on its worker goroutine.
//
// WasmLauncher runs WebAssembly packages with wazero. Each session gets its
// own runtime, WASI preview1, and a host module named "p3d" through which
// the guest talks to the embedding host:
//
//	notify(msg_ptr, msg_len i32) i32
//	get_url(url_ptr, url_len i32) i32                 stream id, 0 on failure
//	post_url(url_ptr, url_len, data_ptr, data_len i32) i32
//	wait_download(id, buf_ptr, buf_len i32) i32       body length, -1 on failure
//	request_stop() i32
//	poll_event(buf_ptr, buf_len i32) i32              event kind, 0 if none
//	token(key_ptr, key_len, buf_ptr, buf_len i32) i32 value length, -1 if absent
//
// Functions returning a length report the full length even when buf is too
// small, in which case the data is truncated.
//
// FuncLauncher runs Go functions as sessions, which is what tests and
// embedders without a package format use.
package runner
