package pluginhost

import (
	"context"
	"sync"

	"github.com/wippyai/plugin-host/bridge"
	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/registry"
	"github.com/wippyai/plugin-host/value"
)

const APIVersion = bridge.APIVersion

type (
	Handle     = handle.Handle
	Token      = registry.Token
	Request    = registry.Request
	Event      = registry.Event
	NotifyFunc = registry.NotifyFunc
	WindowType = registry.WindowType
	ResultCode = registry.ResultCode
	ValueType  = value.Type
	Class      = value.Class
)

var (
	gwMu  sync.Mutex
	gwCfg *bridge.Config
	gw    *bridge.Gateway
)

// Configure sets the configuration of the default gateway. It only has an
// effect before the first call that creates the gateway.
func Configure(cfg *bridge.Config) {
	gwMu.Lock()
	defer gwMu.Unlock()
	gwCfg = cfg
}

// Default returns the process-wide gateway, creating it on first use.
func Default() *bridge.Gateway {
	gwMu.Lock()
	defer gwMu.Unlock()
	if gw == nil {
		gw = bridge.New(gwCfg)
	}
	return gw
}

func Initialize(apiVersion int, contentsRef, downloadURL, platform string) bool {
	return Default().Initialize(apiVersion, contentsRef, downloadURL, platform)
}

func Finalize() error {
	return Default().Finalize()
}

func NewInstance(notify NotifyFunc, tokens []Token, userData any) Handle {
	return Default().NewInstance(notify, tokens, userData)
}

func InstanceStart(h Handle, fileRef string) bool {
	return Default().InstanceStart(h, fileRef)
}

func InstanceFinish(h Handle) {
	Default().InstanceFinish(h)
}

func InstanceSetupWindow(h Handle, typ WindowType, x, y, width, height int, parent uintptr) {
	Default().InstanceSetupWindow(h, typ, x, y, width, height, parent)
}

func InstanceGetPandaScriptObject(h Handle) Handle {
	return Default().InstanceGetPandaScriptObject(h)
}

func InstanceSetBrowserScriptObject(h, obj Handle) {
	Default().InstanceSetBrowserScriptObject(h, obj)
}

func InstanceGetRequest(h Handle) *Request {
	return Default().InstanceGetRequest(h)
}

func CheckRequest(wait bool) Handle {
	return Default().CheckRequest(wait)
}

func CheckRequestContext(ctx context.Context, wait bool) Handle {
	return Default().CheckRequestContext(ctx, wait)
}

func NextRequest(ctx context.Context, wait bool) *Request {
	return Default().NextRequest(ctx, wait)
}

func RequestFinish(req *Request, handled bool) bool {
	return Default().RequestFinish(req, handled)
}

func InstanceFeedURLStream(h Handle, id int, code ResultCode, httpStatus, totalExpected int, data []byte) bool {
	return Default().InstanceFeedURLStream(h, id, code, httpStatus, totalExpected, data)
}

func InstanceHandleEvent(h Handle, ev Event) bool {
	return Default().InstanceHandleEvent(h, ev)
}

func NumInstances() int {
	return Default().NumInstances()
}

func NewUndefined() Handle         { return Default().NewUndefined() }
func NewNone() Handle              { return Default().NewNone() }
func NewBool(v bool) Handle        { return Default().NewBool(v) }
func NewInt(v int32) Handle        { return Default().NewInt(v) }
func NewFloat(v float64) Handle    { return Default().NewFloat(v) }
func NewString(data []byte) Handle { return Default().NewString(data) }

func NewObject(c *Class, state any) Handle {
	return Default().NewObject(c, state)
}

func ValueGetType(h Handle) ValueType         { return Default().ValueGetType(h) }
func ValueGetBool(h Handle) bool              { return Default().ValueGetBool(h) }
func ValueGetInt(h Handle) int32              { return Default().ValueGetInt(h) }
func ValueGetFloat(h Handle) float64          { return Default().ValueGetFloat(h) }
func ValueGetString(h Handle, buf []byte) int { return Default().ValueGetString(h, buf) }
func ValueGetRepr(h Handle, buf []byte) int   { return Default().ValueGetRepr(h, buf) }

func ValueGetProperty(h Handle, name string) Handle {
	return Default().ValueGetProperty(h, name)
}

func ValueSetProperty(h Handle, name string, v Handle) bool {
	return Default().ValueSetProperty(h, name, v)
}

func ValueHasMethod(h Handle, name string) bool {
	return Default().ValueHasMethod(h, name)
}

func ValueCall(h Handle, method string, needsResponse bool, args []Handle) Handle {
	return Default().ValueCall(h, method, needsResponse, args)
}

func ValueEval(h Handle, expr string) Handle {
	return Default().ValueEval(h, expr)
}

func ValueIncref(h Handle) { Default().ValueIncref(h) }
func ValueDecref(h Handle) { Default().ValueDecref(h) }
