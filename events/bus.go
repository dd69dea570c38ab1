package events

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unsafe"
)

var ErrUnknownEventType = errors.New("events: unknown event type")

// Handler receives dispatched events. Implementations registered more than
// once for the same type are deduplicated by identity; see HandlerFunc for the
// identity semantics of bare functions.
type Handler interface {
	Handle(event *Event) error
}

// HandlerFunc adapts a function to the Handler interface. Identity for
// deduplication is the func value itself, so re-registering the same value is
// suppressed while two closures built from the same literal stay distinct
// registrations. A freshly-built method value is a new func value; keep the
// registered value around when Off must find it later.
type HandlerFunc func(event *Event) error

func (f HandlerFunc) Handle(event *Event) error {
	return f(event)
}

type registration struct {
	key     any
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. Constructed with declared type
// names it operates in fixed-type mode, rejecting registration and dispatch of
// undeclared types; constructed bare it accepts any type name. The mutex only
// guards registration bookkeeping; dispatch runs handlers on the caller's
// goroutine with no isolation between them.
type Bus struct {
	mu       sync.RWMutex
	declared map[string]struct{}
	handlers map[string][]registration
}

func NewBus(declaredTypes ...string) *Bus {
	bus := &Bus{handlers: make(map[string][]registration)}
	if len(declaredTypes) > 0 {
		bus.declared = make(map[string]struct{}, len(declaredTypes))
		for _, eventType := range declaredTypes {
			eventType = strings.TrimSpace(eventType)
			if eventType == "" {
				continue
			}
			bus.declared[eventType] = struct{}{}
		}
	}
	return bus
}

// On registers handler for eventType. Registering the same handler identity
// twice for one type is a no-op, preserving the original position.
func (b *Bus) On(eventType string, handler Handler) error {
	if b == nil {
		return fmt.Errorf("events: bus is nil")
	}
	if handler == nil {
		return fmt.Errorf("events: handler is required")
	}
	eventType = strings.TrimSpace(eventType)
	if err := b.checkType(eventType); err != nil {
		return err
	}
	key := handlerKey(handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.handlers[eventType] {
		if existing.key == key {
			return nil
		}
	}
	b.handlers[eventType] = append(b.handlers[eventType], registration{key: key, handler: handler})
	return nil
}

// Off removes handler from eventType by identity; absent handlers are a no-op.
func (b *Bus) Off(eventType string, handler Handler) {
	if b == nil || handler == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	key := handlerKey(handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.handlers[eventType]
	for idx, existing := range current {
		if existing.key == key {
			b.handlers[eventType] = append(current[:idx:idx], current[idx+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for eventType in registration
// order, passing the same event instance. It stops as soon as a handler stops
// propagation, and a handler error aborts the remaining invocations and is
// returned verbatim.
func (b *Bus) Dispatch(eventType string, event *Event) error {
	if b == nil {
		return fmt.Errorf("events: bus is nil")
	}
	eventType = strings.TrimSpace(eventType)
	if err := b.checkType(eventType); err != nil {
		return err
	}
	if event == nil {
		event = New(nil)
	}

	b.mu.RLock()
	registered := make([]registration, len(b.handlers[eventType]))
	copy(registered, b.handlers[eventType])
	b.mu.RUnlock()

	for _, entry := range registered {
		if !event.Propagating() {
			return nil
		}
		if err := entry.handler.Handle(event); err != nil {
			return err
		}
	}
	return nil
}

// Relay registers a handler on this bus that re-dispatches events of
// eventType verbatim to target under the same type name. Used to bridge a
// session manager's bus up to an enclosing context-level bus so callers only
// subscribe once at the top.
func (b *Bus) Relay(target *Bus, eventType string) error {
	if target == nil {
		return fmt.Errorf("events: relay target bus is required")
	}
	return b.On(eventType, &relayHandler{target: target, eventType: strings.TrimSpace(eventType)})
}

type relayHandler struct {
	target    *Bus
	eventType string
}

func (r *relayHandler) Handle(event *Event) error {
	return r.target.Dispatch(r.eventType, event)
}

func (b *Bus) checkType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("events: event type is required")
	}
	b.mu.RLock()
	declared := b.declared
	b.mu.RUnlock()
	if declared == nil {
		return nil
	}
	if _, ok := declared[eventType]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return nil
}

// handlerKey derives the identity used for duplicate suppression and removal.
// Func-kinded handlers (HandlerFunc included) key on their closure pointer;
// every other implementation must be comparable and keys on its own value.
func handlerKey(handler Handler) any {
	value := reflect.ValueOf(handler)
	switch value.Kind() {
	case reflect.Func:
		return funcIdentity(handler)
	case reflect.Map, reflect.Slice, reflect.Chan, reflect.UnsafePointer:
		return value.Pointer()
	}
	return handler
}

// funcIdentity reads the interface data word, which for func values points at
// the closure object. reflect.Value.Pointer would return the code pointer,
// shared by every closure built from the same literal.
func funcIdentity(handler Handler) uintptr {
	type iface struct {
		typ  unsafe.Pointer
		data unsafe.Pointer
	}
	return uintptr((*iface)(unsafe.Pointer(&handler)).data)
}
