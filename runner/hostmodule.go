package runner

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/plugin-host/registry"
)

var (
	i32     = api.ValueTypeI32
	fail    = api.EncodeI32(-1)
	false32 = uint64(0)
	true32  = uint64(1)
)

// hostModule backs the "p3d" import module of one session. Its functions
// are only ever called from that session's worker goroutine.
type hostModule struct {
	host      registry.Host
	events    <-chan registry.Event
	downloads map[int32]*registry.Download
}

func newHostModule(host registry.Host, events <-chan registry.Event) *hostModule {
	return &hostModule{
		host:      host,
		events:    events,
		downloads: make(map[int32]*registry.Download),
	}
}

func (h *hostModule) instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(hostModuleName)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.notify), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("notify")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.getURL), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("get_url")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.postURL), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("post_url")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.waitDownload), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("wait_download")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = boolResult(h.host.RequestStop())
		}), nil, []api.ValueType{i32}).
		Export("request_stop")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.pollEvent), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("poll_event")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.token), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("token")

	return builder.Instantiate(ctx)
}

// release drops downloads the guest never waited for.
func (h *hostModule) release() {
	clear(h.downloads)
}

func (h *hostModule) notify(_ context.Context, mod api.Module, stack []uint64) {
	msg, ok := readString(mod, stack[0], stack[1])
	if !ok {
		stack[0] = false32
		return
	}
	stack[0] = boolResult(h.host.Notify(msg))
}

func (h *hostModule) getURL(_ context.Context, mod api.Module, stack []uint64) {
	url, ok := readString(mod, stack[0], stack[1])
	if !ok {
		stack[0] = 0
		return
	}
	d, ok := h.host.GetURL(url)
	stack[0] = h.track(d, ok)
}

func (h *hostModule) postURL(_ context.Context, mod api.Module, stack []uint64) {
	url, ok := readString(mod, stack[0], stack[1])
	if !ok {
		stack[0] = 0
		return
	}
	data, ok := readBytes(mod, stack[2], stack[3])
	if !ok {
		stack[0] = 0
		return
	}
	d, ok := h.host.PostURL(url, data)
	stack[0] = h.track(d, ok)
}

func (h *hostModule) track(d *registry.Download, ok bool) uint64 {
	if !ok {
		return 0
	}
	id := int32(d.ID)
	h.downloads[id] = d
	return api.EncodeI32(id)
}

// waitDownload blocks the guest until the host finishes feeding the stream.
func (h *hostModule) waitDownload(ctx context.Context, mod api.Module, stack []uint64) {
	id := api.DecodeI32(stack[0])
	d, ok := h.downloads[id]
	if !ok {
		stack[0] = fail
		return
	}
	res, err := d.Wait(ctx)
	if err != nil {
		stack[0] = fail
		return
	}
	delete(h.downloads, id)
	if !res.OK() {
		stack[0] = fail
		return
	}
	stack[0] = writeOut(mod, stack[1], stack[2], res.Data)
}

// pollEvent writes code, x and y as little-endian i32s when buf has room for
// them and returns the event kind.
func (h *hostModule) pollEvent(_ context.Context, mod api.Module, stack []uint64) {
	select {
	case ev := <-h.events:
		ptr, n := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
		if n >= 12 && mod.Memory() != nil {
			var buf [12]byte
			binary.LittleEndian.PutUint32(buf[0:], uint32(ev.Code))
			binary.LittleEndian.PutUint32(buf[4:], uint32(ev.X))
			binary.LittleEndian.PutUint32(buf[8:], uint32(ev.Y))
			mod.Memory().Write(ptr, buf[:])
		}
		stack[0] = api.EncodeI32(int32(ev.Kind))
	default:
		stack[0] = 0
	}
}

func (h *hostModule) token(_ context.Context, mod api.Module, stack []uint64) {
	key, ok := readString(mod, stack[0], stack[1])
	if !ok {
		stack[0] = fail
		return
	}
	v, ok := h.host.Token(key)
	if !ok {
		stack[0] = fail
		return
	}
	stack[0] = writeOut(mod, stack[2], stack[3], []byte(v))
}

func readBytes(mod api.Module, ptr, n uint64) ([]byte, bool) {
	if mod.Memory() == nil {
		return nil, false
	}
	b, ok := mod.Memory().Read(api.DecodeU32(ptr), api.DecodeU32(n))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

func readString(mod api.Module, ptr, n uint64) (string, bool) {
	if mod.Memory() == nil {
		return "", false
	}
	b, ok := mod.Memory().Read(api.DecodeU32(ptr), api.DecodeU32(n))
	if !ok {
		return "", false
	}
	return string(b), true
}

// writeOut copies data into guest memory, truncating to n, and returns the
// full length.
func writeOut(mod api.Module, ptr, n uint64, data []byte) uint64 {
	limit := api.DecodeU32(n)
	out := data
	if uint32(len(out)) > limit {
		out = out[:limit]
	}
	if len(out) > 0 && (mod.Memory() == nil || !mod.Memory().Write(api.DecodeU32(ptr), out)) {
		return fail
	}
	return api.EncodeI32(int32(len(data)))
}

func boolResult(ok bool) uint64 {
	if ok {
		return true32
	}
	return false32
}
