package handle

import "fmt"

// Handle is an opaque, validated reference into a Table.
//
// Layout: bits 0-31 hold the slot index plus one, bits 32-55 the slot
// generation and bits 56-63 the table kind. Handle 0 is reserved and always
// invalid.
type Handle uint64

// Kind tags the table a handle was issued by, so a handle of one kind never
// resolves in a table of another.
type Kind uint8

const (
	KindNone Kind = iota
	KindInstance
	KindValue
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindValue:
		return "value"
	case KindRequest:
		return "request"
	default:
		return "none"
	}
}

const (
	indexBits      = 32
	generationBits = 24
	maxGeneration  = 1<<generationBits - 1
)

func makeHandle(kind Kind, gen uint32, slot uint32) Handle {
	return Handle(uint64(kind)<<(indexBits+generationBits) |
		uint64(gen&maxGeneration)<<indexBits |
		uint64(slot+1))
}

// Kind returns the table kind encoded in the handle.
func (h Handle) Kind() Kind {
	return Kind(h >> (indexBits + generationBits))
}

func (h Handle) slot() (uint32, bool) {
	idx := uint32(h)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h>>indexBits) & maxGeneration
}

func (h Handle) String() string {
	if h == 0 {
		return "nil"
	}
	return fmt.Sprintf("%s#%d.%d", h.Kind(), uint32(h), h.generation())
}

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

// Event represents a handle lifecycle event.
type Event struct {
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }
