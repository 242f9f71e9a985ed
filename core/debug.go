package core

import "sync/atomic"

// DebugWriter is a function type for writing log lines
type DebugWriter func(string)

// Level orders log messages by severity
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) prefix() string {
	switch l {
	case LevelDebug:
		return "[DBG] "
	case LevelInfo:
		return "[INF] "
	case LevelWarn:
		return "[WRN] "
	default:
		return "[ERR] "
	}
}

// TraceEvent captures a bus or scheduling event for post-mortem analysis
type TraceEvent struct {
	Kind   uint8
	Clock  uint32
	Value1 uint32
	Value2 uint32
}

// Trace kinds
const (
	TraceRx          = 1 // frame received (id, dlc)
	TraceTx          = 2 // frame handed to a mailbox (id, dlc)
	TraceBumped      = 3 // frame evicted from a mailbox (id, 0)
	TraceDropped     = 4 // frame or event dropped (id, reason)
	TraceDecodeError = 5 // undecodable frame (id, dlc)
	TraceOverrun     = 6 // ADC half completed twice (half, 0)
	TraceLink        = 7 // link state change (up, 0)
	TraceHalt        = 8
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the platform log sink (UART, USB, stdout)
	debugPrintln DebugWriter = func(s string) {}

	logLevel = LevelInfo

	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8

	// Async log channel; lines are dropped when it is full
	debugChan    chan string
	droppedLines atomic.Uint32
)

// SetDebugWriter sets the platform-specific log output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetLogLevel sets the minimum level that is written
func SetLogLevel(l Level) {
	logLevel = l
}

// InitAsyncDebug starts the log output goroutine. After this call log lines
// are queued and never block the calling task.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DroppedLogLines returns the number of async log lines lost to a full channel
func DroppedLogLines() uint32 {
	return droppedLines.Load()
}

func logLine(l Level, msg string) {
	if l < logLevel || debugPrintln == nil {
		return
	}
	line := l.prefix() + msg
	if debugChan == nil {
		debugPrintln(line)
		return
	}
	select {
	case debugChan <- line:
	default:
		droppedLines.Add(1)
	}
}

func logDebug(msg string) { logLine(LevelDebug, msg) }
func logInfo(msg string)  { logLine(LevelInfo, msg) }
func logWarn(msg string)  { logLine(LevelWarn, msg) }
func logError(msg string) { logLine(LevelError, msg) }

// RecordTrace captures an event in the trace ring. Never blocks.
func RecordTrace(kind uint8, clock, value1, value2 uint32) {
	state := disableInterrupts()
	idx := traceRingHead
	traceRing[idx] = TraceEvent{Kind: kind, Clock: clock, Value1: value1, Value2: value2}
	traceRingHead = (idx + 1) % TraceRingSize
	restoreInterrupts(state)
}

// TraceSnapshot returns the recorded events, oldest first
func TraceSnapshot() []TraceEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(traceRingHead+i)%TraceRingSize]
		if evt.Kind != 0 {
			out = append(out, evt)
		}
	}
	return out
}

func traceName(kind uint8) string {
	switch kind {
	case TraceRx:
		return "RX"
	case TraceTx:
		return "TX"
	case TraceBumped:
		return "BUMPED"
	case TraceDropped:
		return "DROPPED"
	case TraceDecodeError:
		return "DECODE_ERR"
	case TraceOverrun:
		return "ADC_OVERRUN"
	case TraceLink:
		return "LINK"
	case TraceHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// DumpTrace writes the trace ring synchronously. Called on halt, when the
// async worker may no longer get a chance to run.
func DumpTrace() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === Trace Dump ===")
	for _, evt := range TraceSnapshot() {
		debugPrintln("[TRACE] " + traceName(evt.Kind) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + hex(evt.Value1, 3) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTrace empties the trace ring
func ClearTrace() {
	state := disableInterrupts()
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
	restoreInterrupts(state)
}
