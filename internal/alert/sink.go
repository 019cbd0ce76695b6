package alert

import (
	"fmt"
	"log"
)

// Sink interface for pluggable alert delivery.
type Sink interface {
	Send(a Alert) error
}

// LogSink writes alerts to the process log. The default sink; production
// wiring swaps in the notification collaborator.
type LogSink struct{}

func (LogSink) Send(a Alert) error {
	log.Printf("ALERT [%s/%s] %s: %s (action: %s)", a.Severity, a.Kind, a.Symbol, a.Issue, a.Action)
	return nil
}

// FuncSink adapts a function to the Sink interface.
type FuncSink func(a Alert) error

func (f FuncSink) Send(a Alert) error { return f(a) }

// MultiSink fans one alert out to several sinks, returning the first error.
type MultiSink []Sink

func (m MultiSink) Send(a Alert) error {
	var firstErr error
	for _, s := range m {
		if err := s.Send(a); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("alert sink: %w", err)
		}
	}
	return firstErr
}
