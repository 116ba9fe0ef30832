package core

import "sync"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// LogLevel is the severity of a log line
type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// DispatchEvent captures a controller decision for post-mortem analysis
type DispatchEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Channel the event applies to
	Millis    uint32 // Controller time at event, in milliseconds since boot
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtFeed              = 1 // Pulses queued in the current direction
	EvtReversal          = 2 // Direction pins changed
	EvtHold              = 3 // Hold deadline set
	EvtEndstop           = 4 // Endstop trigger handled
	EvtEndstopSuppressed = 5 // Endstop trigger inside the reversal guard
	EvtIdle              = 6 // Driver powered down
	EvtFeedRejected      = 7 // Pulse generator refused a count
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether LevelDebug lines are written
	debugEnabled bool = false

	// minLevel filters everything below it
	minLevel = LevelInfo

	// Dispatch event ring buffer (non-blocking, for post-mortem)
	eventMu       sync.Mutex
	eventRing     [EventRingSize]DispatchEvent
	eventRingHead uint8

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables LevelDebug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetLogLevel drops lines below the given level
func SetLogLevel(level LogLevel) {
	minLevel = level
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// emit writes through the async channel when it is running, otherwise inline.
// A full channel drops the message rather than stall the control loop.
func emit(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
		return
	}
	if debugPrintln != nil {
		debugPrintln(msg)
	}
}

func logAt(level LogLevel, prefix, msg string) {
	if level < minLevel {
		return
	}
	emit(prefix + msg)
}

// DebugPrintln writes a debug message when debug output is enabled
func DebugPrintln(msg string) {
	if debugEnabled {
		emit("[DEBUG] " + msg)
	}
}

// LogInfo writes an informational line
func LogInfo(msg string) { logAt(LevelInfo, "[INFO] ", msg) }

// LogWarn writes a warning line
func LogWarn(msg string) { logAt(LevelWarn, "[WARN] ", msg) }

// LogError writes an error line
func LogError(msg string) { logAt(LevelError, "[ERROR] ", msg) }

// RecordEvent captures a dispatch event in the ring buffer
func RecordEvent(eventType, channel uint8, millis, value1, value2 uint32) {
	eventMu.Lock()
	idx := eventRingHead
	eventRing[idx] = DispatchEvent{
		EventType: eventType,
		Channel:   channel,
		Millis:    millis,
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	eventMu.Unlock()
}

// RecentEvents returns the recorded events, oldest first
func RecentEvents() []DispatchEvent {
	eventMu.Lock()
	defer eventMu.Unlock()

	events := make([]DispatchEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

func eventName(eventType uint8) string {
	switch eventType {
	case EvtFeed:
		return "FEED"
	case EvtReversal:
		return "REVERSAL"
	case EvtHold:
		return "HOLD"
	case EvtEndstop:
		return "ENDSTOP"
	case EvtEndstopSuppressed:
		return "ENDSTOP_SUPPRESSED"
	case EvtIdle:
		return "IDLE"
	case EvtFeedRejected:
		return "FEED_REJECTED"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing outputs the event ring buffer (call on shutdown/error)
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Dispatch Event Dump ===")
	for _, evt := range RecentEvents() {
		debugPrintln("[EVENTS] " + eventName(evt.EventType) +
			" ch=" + Itoa(int(evt.Channel)) +
			" ms=" + Itoa(int(evt.Millis)) +
			" v1=" + Itoa(int(evt.Value1)) +
			" v2=" + Itoa(int(evt.Value2)))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	eventMu.Lock()
	for i := range eventRing {
		eventRing[i] = DispatchEvent{}
	}
	eventRingHead = 0
	eventMu.Unlock()
}
