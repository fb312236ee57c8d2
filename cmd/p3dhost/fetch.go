package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/wippyai/plugin-host/bridge"
	"github.com/wippyai/plugin-host/registry"
)

const fetchChunk = 32 << 10

// fetcher performs the URL requests instances ask for and feeds the
// responses back as streams.
type fetcher struct {
	client *http.Client
	base   *url.URL
	log    *zap.Logger
}

func newFetcher(downloadURL string, log *zap.Logger) *fetcher {
	f := &fetcher{
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    log.Named("fetch"),
	}
	if downloadURL != "" {
		if u, err := url.Parse(downloadURL); err == nil {
			f.base = u
		} else {
			f.log.Warn("ignoring download url", zap.String("url", downloadURL), zap.Error(err))
		}
	}
	return f
}

func (f *fetcher) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if f.base != nil && !u.IsAbs() {
		u = f.base.ResolveReference(u)
	}
	return u.String(), nil
}

// serve runs one fetch request to completion and reports whether the
// instance received a terminal result.
func (f *fetcher) serve(ctx context.Context, gw *bridge.Gateway, req *registry.Request) bool {
	feed := func(code registry.ResultCode, status, total int, data []byte) bool {
		return gw.InstanceFeedURLStream(req.Instance, req.StreamID, code, status, total, data)
	}
	log := f.log.With(zap.Stringer("instance", req.Instance), zap.Int("stream", req.StreamID))

	target, err := f.resolve(req.URL)
	if err != nil {
		log.Warn("bad url", zap.String("url", req.URL), zap.Error(err))
		return feed(registry.ResultGenericError, 0, 0, nil)
	}

	method, body := http.MethodGet, io.Reader(nil)
	if req.Kind == registry.RequestPostURL {
		method, body = http.MethodPost, bytes.NewReader(req.PostData)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		log.Warn("build request", zap.Error(err))
		return feed(registry.ResultGenericError, 0, 0, nil)
	}
	hreq.Header.Set("Accept-Encoding", "br")

	resp, err := f.client.Do(hreq)
	if err != nil {
		log.Warn("fetch failed", zap.String("url", target), zap.Error(err))
		return feed(registry.ResultGenericError, 0, 0, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		log.Info("fetch http error", zap.String("url", target), zap.Int("status", resp.StatusCode))
		return feed(registry.ResultHTTPError, resp.StatusCode, 0, nil)
	}

	var (
		r     io.Reader = resp.Body
		total           = int(max(resp.ContentLength, 0))
	)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		r = brotli.NewReader(resp.Body)
		total = 0
	}

	buf := make([]byte, fetchChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 && !feed(registry.ResultInProgress, resp.StatusCode, total, buf[:n]) {
			// The instance is gone or stopped listening.
			return false
		}
		if errors.Is(err, io.EOF) {
			return feed(registry.ResultDone, resp.StatusCode, total, nil)
		}
		if err != nil {
			log.Warn("read body", zap.String("url", target), zap.Error(err))
			return feed(registry.ResultGenericError, resp.StatusCode, total, nil)
		}
	}
}
