package events

// Event enumerates the topics the gateway publishes.
type Event string

const (
	EventTick     Event = "tick"
	EventOrder    Event = "order"
	EventTrade    Event = "trade"
	EventPosition Event = "position"
	EventAccount  Event = "account"
	EventContract Event = "contract"
	EventLog      Event = "log"
)

// All lists every topic, in a stable order.
var All = []Event{EventTick, EventOrder, EventTrade, EventPosition, EventAccount, EventContract, EventLog}

// LogMessage is a human-readable gateway notice for hosts.
type LogMessage struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}
