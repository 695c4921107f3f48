package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff     Level = iota // no tracing
	LevelSession              // session + pipeline
	LevelTest                 // + per test
	LevelTrial                // + per trial
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelSession:
		return "session"
	case LevelTest:
		return "test"
	case LevelTrial:
		return "trial"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off":
		return LevelOff, nil
	case "session":
		return LevelSession, nil
	case "test":
		return LevelTest, nil
	case "trial":
		return LevelTrial, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|session|test|trial)", s)
	}
}

// ShouldEmit reports whether events of scope pass this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelSession:
		return scope <= ScopeSession
	case LevelTest:
		return scope <= ScopeTest
	case LevelTrial:
		return scope <= ScopeTrial
	default:
		return false
	}
}
