package scanner

import (
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
)

// EventType names one step of the scan lifecycle.
type EventType string

const (
	EventStart    EventType = "start"
	EventInitiate EventType = "initiate"
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Status is the liveness verdict for one address.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Outcome is the result for one scanned address. Hostname is only set for
// active hosts whose name could be resolved.
type Outcome struct {
	Address  string `json:"address"`
	Status   Status `json:"status"`
	Hostname string `json:"hostname,omitempty"`
	Known    bool   `json:"known"`
}

// Active reports whether the address answered on any probed port.
func (o Outcome) Active() bool {
	return o.Status == StatusActive
}

// StartData is the payload of an EventStart.
type StartData struct {
	Total     int      `json:"total"`
	Addresses []string `json:"addresses"`
}

// InitiateData is the payload of an EventInitiate.
type InitiateData struct {
	Address string `json:"address"`
	Known   bool   `json:"known"`
}

// CompleteData is the payload of an EventComplete.
type CompleteData struct {
	Results  []Outcome `json:"results"`
	Canceled bool      `json:"canceled"`
}

// ErrorData is the payload of an EventError.
type ErrorData struct {
	Message string           `json:"message"`
	Code    errors.ErrorCode `json:"code"`
}

// Event is a scan notification. Data holds the payload matching Type:
// StartData, InitiateData, Outcome, CompleteData or ErrorData.
type Event struct {
	Type      EventType `json:"type"`
	ScanID    string    `json:"scan_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func newEvent(t EventType, scanID string, data any) Event {
	return Event{Type: t, ScanID: scanID, Timestamp: time.Now().UTC(), Data: data}
}

// Listener receives scan events. Events are delivered one at a time in
// emission order. OnEvent must not call Start or Cancel on the engine that
// delivered the event.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) { f(e) }
