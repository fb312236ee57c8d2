package registry

import (
	"bytes"
	"context"
	"sync/atomic"
)

type ResultCode int8

const (
	ResultInProgress ResultCode = iota
	ResultDone
	ResultGenericError
	ResultHTTPError
	ResultShutdown
)

func (c ResultCode) String() string {
	switch c {
	case ResultInProgress:
		return "in_progress"
	case ResultDone:
		return "done"
	case ResultGenericError:
		return "generic_error"
	case ResultHTTPError:
		return "http_error"
	case ResultShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Feedable reports whether a host may deliver c through FeedURLStream.
// ResultShutdown is reserved for instance teardown.
func (c ResultCode) Feedable() bool {
	switch c {
	case ResultInProgress, ResultDone, ResultGenericError, ResultHTTPError:
		return true
	}
	return false
}

// Result is the terminal state of a download.
type Result struct {
	Data       []byte
	HTTPStatus int
	Code       ResultCode
}

func (r Result) OK() bool {
	return r.Code == ResultDone
}

// Download is an in-flight fetch requested by a session and fed by the host
// through feed_url_stream.
//
// Chunks are buffered under the bridge lock; the session receives the whole
// body once, through Wait, when a terminal result code arrives.
type Download struct {
	done     chan Result
	URL      string
	buf      bytes.Buffer
	received atomic.Int64
	expected atomic.Int64
	ID       int
	status   int
	closed   bool
}

func newDownload(id int, url string) *Download {
	return &Download{
		ID:   id,
		URL:  url,
		done: make(chan Result, 1),
	}
}

// feed appends a chunk and reports whether the download reached a terminal
// state. Lock held.
func (d *Download) feed(code ResultCode, httpStatus int, totalExpected int, data []byte) bool {
	if d.closed {
		return true
	}
	if httpStatus != 0 {
		d.status = httpStatus
	}
	if totalExpected > 0 {
		d.expected.Store(int64(totalExpected))
	}
	if len(data) > 0 {
		d.buf.Write(data)
		d.received.Add(int64(len(data)))
	}
	if code == ResultInProgress {
		return false
	}

	res := Result{Code: code, HTTPStatus: d.status}
	if code == ResultDone {
		res.Data = bytes.Clone(d.buf.Bytes())
	}
	d.finish(res)
	return true
}

// finish delivers the terminal result exactly once. Lock held.
func (d *Download) finish(res Result) {
	if d.closed {
		return
	}
	d.closed = true
	d.buf.Reset()
	d.done <- res
}

// Wait blocks until the download completes or ctx is done.
func (d *Download) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-d.done:
		d.done <- res
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Progress returns bytes received so far and the size the host announced.
func (d *Download) Progress() (received, expected int64) {
	return d.received.Load(), d.expected.Load()
}
