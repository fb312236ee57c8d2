package registry

import (
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/value"
)

// workerHost is the Host handed to a session's Run. Each call takes the
// bridge lock; the notify callback runs after it is released.
type workerHost struct {
	reg  *Registry
	inst *Instance
}

func (w *workerHost) Instance() handle.Handle {
	return w.inst.handle
}

func (w *workerHost) Settings() Settings {
	w.reg.lock.Lock()
	defer w.reg.lock.Unlock()
	return w.reg.settings
}

func (w *workerHost) Tokens() []Token {
	return append([]Token(nil), w.inst.tokens...)
}

func (w *workerHost) Token(key string) (string, bool) {
	for _, t := range w.inst.tokens {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

func (w *workerHost) WindowParams() WindowParams {
	w.reg.lock.Lock()
	defer w.reg.lock.Unlock()
	return w.inst.wparams
}

func (w *workerHost) Notify(message string) bool {
	return w.post(&Request{Kind: RequestNotify, Message: message})
}

func (w *workerHost) RequestStop() bool {
	return w.post(&Request{Kind: RequestStop})
}

func (w *workerHost) GetURL(url string) (*Download, bool) {
	return w.fetch(&Request{Kind: RequestGetURL, URL: url})
}

func (w *workerHost) PostURL(url string, data []byte) (*Download, bool) {
	return w.fetch(&Request{Kind: RequestPostURL, URL: url, PostData: append([]byte(nil), data...)})
}

func (w *workerHost) fetch(req *Request) (*Download, bool) {
	w.reg.lock.Lock()
	if w.inst.state != StateRunning {
		w.reg.lock.Unlock()
		return nil, false
	}
	d := w.inst.newDownload(req.URL)
	req.StreamID = d.ID
	w.inst.enqueue(req)
	notify := w.inst.notify
	w.reg.lock.Unlock()

	if notify != nil {
		notify(w.inst.handle)
	}
	return d, true
}

func (w *workerHost) post(req *Request) bool {
	w.reg.lock.Lock()
	ok := w.inst.enqueue(req)
	notify := w.inst.notify
	w.reg.lock.Unlock()

	if ok && notify != nil {
		notify(w.inst.handle)
	}
	return ok
}

func (w *workerHost) SetPandaScriptObject(v value.Value) {
	w.reg.lock.Lock()
	defer w.reg.lock.Unlock()
	w.inst.setPanda(v)
}

func (w *workerHost) BrowserScriptObject() value.Value {
	w.reg.lock.Lock()
	defer w.reg.lock.Unlock()
	return w.inst.BrowserScriptObject()
}
