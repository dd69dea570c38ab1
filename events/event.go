package events

// Event carries an immutable detail payload plus a mutable propagation flag.
// Events are constructed immediately before dispatch and discarded once every
// handler for that dispatch has run; they are never stored by the bus.
type Event struct {
	details    map[string]any
	propagated bool
}

func New(details map[string]any) *Event {
	copied := make(map[string]any, len(details))
	for key, value := range details {
		copied[key] = value
	}
	return &Event{details: copied, propagated: true}
}

// Detail returns the payload value for key, or nil when absent.
func (e *Event) Detail(key string) any {
	if e == nil {
		return nil
	}
	return e.details[key]
}

// Details returns a copy of the payload so handlers cannot mutate it.
func (e *Event) Details() map[string]any {
	if e == nil {
		return map[string]any{}
	}
	copied := make(map[string]any, len(e.details))
	for key, value := range e.details {
		copied[key] = value
	}
	return copied
}

// StopPropagation prevents handlers registered after the current one from
// running for this dispatch. Handlers registered before it are unaffected.
func (e *Event) StopPropagation() {
	if e == nil {
		return
	}
	e.propagated = false
}

func (e *Event) Propagating() bool {
	if e == nil {
		return false
	}
	return e.propagated
}
