package feed

// EventType names a display event.
type EventType string

const (
	EventChatMessage    EventType = "chat_message"
	EventHeart          EventType = "heart"
	EventState          EventType = "state"
	EventAlert          EventType = "alert"
	EventRecordingReady EventType = "recording_ready"
	EventMetrics        EventType = "metrics"
)

// Event is pushed to the display layer whenever studio state changes.
type Event struct {
	Type EventType   `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

// Alert is the payload of a blocking user-facing notice.
type Alert struct {
	Message string `json:"message"`
}

// Sink receives display events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
