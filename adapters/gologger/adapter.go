// Package gologger bridges glog loggers into the endpoints event surface.
package gologger

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/events"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// EventLogger mirrors dispatched events into a glog logger at info level.
// Each instance is a distinct handler identity, so several buses can share one
// logger without colliding on registration dedup.
type EventLogger struct {
	eventType string
	logger    glog.Logger
}

func NewEventLogger(eventType string, logger glog.Logger) *EventLogger {
	return &EventLogger{eventType: eventType, logger: logger}
}

func (l *EventLogger) Handle(event *events.Event) error {
	if l == nil || l.logger == nil {
		return nil
	}
	fields := event.Details()
	fields["event"] = l.eventType
	core.LogInfo(l.logger, context.Background(), "event dispatched", fields)
	return nil
}

// Attach subscribes an EventLogger for every listed event type. The returned
// detach func removes exactly the registrations Attach made.
func Attach(bus *events.Bus, logger glog.Logger, eventTypes ...string) (func(), error) {
	if bus == nil || logger == nil {
		return func() {}, nil
	}
	attached := make(map[string]*EventLogger, len(eventTypes))
	for _, eventType := range eventTypes {
		handler := NewEventLogger(eventType, logger)
		if err := bus.On(eventType, handler); err != nil {
			for registeredType, registered := range attached {
				bus.Off(registeredType, registered)
			}
			return nil, err
		}
		attached[eventType] = handler
	}
	detach := func() {
		for eventType, handler := range attached {
			bus.Off(eventType, handler)
		}
	}
	return detach, nil
}
