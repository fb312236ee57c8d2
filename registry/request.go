package registry

import (
	"github.com/wippyai/plugin-host/handle"
)

type RequestKind uint8

const (
	RequestStop RequestKind = iota
	RequestGetURL
	RequestPostURL
	RequestNotify
)

func (k RequestKind) String() string {
	switch k {
	case RequestStop:
		return "stop"
	case RequestGetURL:
		return "get_url"
	case RequestPostURL:
		return "post_url"
	case RequestNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// NotifyScriptReady is the notification a session sends once its script
// object is available.
const NotifyScriptReady = "onscriptready"

// Request is an asynchronous notification from an instance to the host.
//
// A request refers to its instance only by handle, so it stays safe to finish
// after the instance is gone. Once delivered by GetRequest it belongs to the
// host until FinishRequest.
type Request struct {
	PostData []byte
	URL      string
	Message  string
	ID       uint64
	seq      uint64
	Instance handle.Handle
	handle   handle.Handle
	StreamID int
	Kind     RequestKind
	finished bool
	handled  bool
}

// Handle returns the delivery handle, or 0 if the request was never delivered.
func (r *Request) Handle() handle.Handle {
	return r.handle
}

// Outcome reports whether the request has been finished and how.
func (r *Request) Outcome() (finished, handled bool) {
	return r.finished, r.handled
}

func (r *Request) isDownload() bool {
	return r.Kind == RequestGetURL || r.Kind == RequestPostURL
}
