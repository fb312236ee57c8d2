package main

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/plugin-host/bridge"
	"github.com/wippyai/plugin-host/registry"
)

// hostLoop drains requests from every instance and serves them. Fetches run
// concurrently; everything else is served inline.
type hostLoop struct {
	gw      *bridge.Gateway
	fetch   *fetcher
	log     *zap.Logger
	observe func(req *registry.Request, handled bool)
}

func newHostLoop(gw *bridge.Gateway, f *fetcher, log *zap.Logger) *hostLoop {
	return &hostLoop{gw: gw, fetch: f, log: log}
}

// run returns once no instances remain or ctx is done, after in-flight
// fetches complete.
func (l *hostLoop) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for {
		req := l.gw.NextRequest(gctx, true)
		if req == nil {
			break
		}
		l.log.Debug("request",
			zap.Stringer("instance", req.Instance),
			zap.Stringer("kind", req.Kind),
			zap.Uint64("id", req.ID))

		switch req.Kind {
		case registry.RequestGetURL, registry.RequestPostURL:
			g.Go(func() error {
				l.finish(req, l.fetch.serve(gctx, l.gw, req))
				return nil
			})

		case registry.RequestStop:
			l.finish(req, true)
			l.gw.InstanceFinish(req.Instance)

		case registry.RequestNotify:
			l.log.Info("notify", zap.Stringer("instance", req.Instance), zap.String("message", req.Message))
			l.finish(req, true)

		default:
			l.finish(req, false)
		}
	}

	return g.Wait()
}

func (l *hostLoop) finish(req *registry.Request, handled bool) {
	l.gw.RequestFinish(req, handled)
	if l.observe != nil {
		l.observe(req, handled)
	}
}
