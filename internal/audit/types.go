package audit

// EventType names a receiver log entry.
type EventType string

const (
	EventReceiverConnected    EventType = "RECEIVER_CONNECTED"
	EventReceiverDisconnected EventType = "RECEIVER_DISCONNECTED"
	EventConnectFailed        EventType = "RECEIVER_CONNECT_FAILED"
	EventInputsDiscovered     EventType = "INPUTS_DISCOVERED"
	EventDeviceFault          EventType = "DEVICE_FAULT"
	EventCommandSent          EventType = "COMMAND_SENT"
)

// EventLevel represents the severity level of a receiver event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

var validEventLevels = map[string]EventLevel{
	"DEBUG": EventLevelDebug,
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

var validEventTypes = map[string]bool{
	string(EventReceiverConnected):    true,
	string(EventReceiverDisconnected): true,
	string(EventConnectFailed):        true,
	string(EventInputsDiscovered):     true,
	string(EventDeviceFault):          true,
	string(EventCommandSent):          true,
}
