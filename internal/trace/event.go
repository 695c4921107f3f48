package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1 // span start
	KindSpanEnd                   // span end
	KindPoint                     // instant event
	KindHeartbeat                 // periodic liveness signal
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	// ScopeSession covers a whole test session and the artifact pipeline.
	ScopeSession Scope = iota + 1
	// ScopeTest covers one test case, fuzz or not.
	ScopeTest
	// ScopeTrial covers one randomized trial of a fuzz test.
	ScopeTrial
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeTest:
		return "test"
	case ScopeTrial:
		return "trial"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time         // wall-clock timestamp
	Seq      uint64            // global sequence number
	Kind     Kind              // event kind
	Scope    Scope             // granularity
	SpanID   uint64            // span identifier
	ParentID uint64            // parent span, 0 for roots
	Name     string            // e.g. "session", "fuzz:pkg::test", "trial#3"
	Detail   string            // optional detail
	Extra    map[string]string // extra key/value pairs
}
