package registry

import (
	"context"

	"github.com/wippyai/plugin-host/handle"
	"github.com/wippyai/plugin-host/value"
)

// Settings is the process-wide configuration passed to initialize.
type Settings struct {
	ContentsRef string
	DownloadURL string
	Platform    string
}

// Token is one key/value pair from the embedding page.
type Token struct {
	Key   string
	Value string
}

// NotifyFunc is called from the instance's worker goroutine, without the
// bridge lock held, each time the instance queues a request.
type NotifyFunc func(instance handle.Handle)

type WindowType uint8

const (
	WindowToplevel WindowType = iota
	WindowEmbedded
	WindowFullscreen
	WindowHidden
)

func (t WindowType) String() string {
	switch t {
	case WindowToplevel:
		return "toplevel"
	case WindowEmbedded:
		return "embedded"
	case WindowFullscreen:
		return "fullscreen"
	case WindowHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// WindowParams describes where the session should draw.
type WindowParams struct {
	Type   WindowType
	X      int
	Y      int
	Width  int
	Height int
	Parent uintptr
}

type EventKind uint8

const (
	EventNone EventKind = iota
	EventKey
	EventMouse
	EventFocus
	EventPaint
	EventResize
	EventCustom
)

// Event is a host-originated event delivered into a running session.
type Event struct {
	Data []byte
	Kind EventKind
	Code int32
	X    int32
	Y    int32
}

// Valid reports whether the event kind is known.
func (e Event) Valid() bool {
	return e.Kind > EventNone && e.Kind <= EventCustom
}

// LaunchInfo is what a Launcher receives when an instance starts.
type LaunchInfo struct {
	FileRef  string
	Tokens   []Token
	Settings Settings
	Window   WindowParams
	Instance handle.Handle
}

// Session is the runtime half of an instance.
type Session interface {
	// Run executes the package on the instance's worker goroutine. It must
	// return promptly once ctx is cancelled.
	Run(ctx context.Context, host Host) error

	// HandleEvent is called with the bridge lock held and must not block.
	HandleEvent(ev Event) bool
}

// Launcher creates the session for an instance. Launch is called with the
// bridge lock held; loading and compiling belong in Session.Run.
type Launcher interface {
	Launch(info LaunchInfo) (Session, error)
}

type LauncherFunc func(info LaunchInfo) (Session, error)

func (f LauncherFunc) Launch(info LaunchInfo) (Session, error) { return f(info) }

// WindowObserver is implemented by sessions that want geometry changes made
// after start. Called with the bridge lock held.
type WindowObserver interface {
	WindowParamsChanged(p WindowParams)
}

// RequestObserver is implemented by sessions that want the outcome of their
// requests. Called with the bridge lock held, exactly once per request.
type RequestObserver interface {
	RequestFinished(req *Request, handled bool)
}

// Host is the worker-side view of an instance. Every method takes the bridge
// lock itself; none may be called while holding it.
type Host interface {
	Instance() handle.Handle
	Settings() Settings
	Tokens() []Token
	Token(key string) (string, bool)
	WindowParams() WindowParams

	// Notify queues a notification request; see NotifyScriptReady.
	Notify(message string) bool
	// GetURL queues a fetch request and returns the download the host will
	// feed. It fails once the instance is no longer running.
	GetURL(url string) (*Download, bool)
	PostURL(url string, data []byte) (*Download, bool)
	// RequestStop asks the host to finish this instance.
	RequestStop() bool

	SetPandaScriptObject(v value.Value)
	// BrowserScriptObject returns the host-rooted object, or nil.
	BrowserScriptObject() value.Value
}
