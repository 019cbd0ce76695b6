package alert

import (
	"context"
	"log"
	"time"

	"tradeguard/internal/events"
)

// Dispatcher watches alert topics on the bus and forwards them to the sink.
type Dispatcher struct {
	Bus  *events.Bus
	Sink Sink
}

var alertTopics = []events.Event{
	events.EventProtectionAlert,
	events.EventComplianceAlert,
	events.EventGapRiskAlert,
	events.EventFillQualityAlert,
}

func (d *Dispatcher) Start(ctx context.Context) {
	if d.Bus == nil || d.Sink == nil {
		log.Println("alert dispatcher not fully configured; skipping")
		return
	}
	for _, topic := range alertTopics {
		stream, unsub := d.Bus.Subscribe(topic, 50)
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					d.deliver(msg)
				}
			}
		}()
	}
}

func (d *Dispatcher) deliver(msg any) {
	a, ok := msg.(Alert)
	if !ok {
		// Tolerate loosely-typed publishers; better a generic alert than a
		// dropped one.
		a = Alert{
			Kind:     KindBrokerFailure,
			Severity: SeverityWarning,
			Issue:    "unrecognized alert payload",
		}
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if err := d.Sink.Send(a); err != nil {
		log.Printf("alert delivery failed: %v (alert: %s %s)", err, a.Kind, a.Symbol)
	}
}
