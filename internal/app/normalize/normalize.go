// Package normalize maps raw OPC UA values to the string form forwarded to the
// PDT agent. State-class properties are folded into a small ordinal domain.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Machine state ordinals sent for state-class properties.
const (
	StateUnknown = "0"
	StateIdle    = "1"
	StateRunning = "2"
)

// Missing is forwarded for a non-state property whose value could not be read.
const Missing = ""

const (
	stateToken     = "state"
	tokenSeparator = "_"
	runningText    = "Running"
	idleText       = "Idle"
)

// IsStateProperty reports whether name carries the "state" token, e.g.
// machine_state or state_spindle.
func IsStateProperty(name string) bool {
	for _, tok := range strings.Split(name, tokenSeparator) {
		if strings.EqualFold(tok, stateToken) {
			return true
		}
	}
	return false
}

// Value normalizes raw for property. A nil raw value means the point was
// absent or unreadable.
func Value(property string, raw any) string {
	if !IsStateProperty(property) {
		if raw == nil {
			return Missing
		}
		return Stringify(raw)
	}
	return classifyState(raw)
}

func classifyState(raw any) string {
	if raw == nil {
		return StateUnknown
	}
	if s, ok := raw.(string); ok {
		switch s {
		case runningText:
			return StateRunning
		case idleText:
			return StateIdle
		}
	}
	if f, ok := numeric(raw); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if f != 0 {
			return StateRunning
		}
		return StateIdle
	}
	return Stringify(raw)
}

func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Stringify renders raw the way the PDT agent expects to see it in "v".
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return Missing
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
