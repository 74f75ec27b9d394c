package audit

import (
	"encoding/json"
	"log"

	"github.com/rvaldes/tributario/internal/domain"
)

// Sink receives structured audit events. Delivery is fire-and-forget:
// implementations absorb their own failures.
type Sink interface {
	Record(action string, identity domain.Identity, details map[string]any)
}

// LogSink writes audit events to the process log.
type LogSink struct{}

func (LogSink) Record(action string, identity domain.Identity, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	log.Printf("[AUDIT] %s user=%s details=%s", action, identity.ShortID(), payload)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(string, domain.Identity, map[string]any) {}
