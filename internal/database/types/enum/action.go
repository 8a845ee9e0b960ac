package enum

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAction = errors.New("invalid action")

// Action represents the primary enforcement action chosen for a violation.
type Action int

const (
	// ActionWarn sends the user a warning.
	ActionWarn Action = iota
	// ActionMuteTemp mutes the user for a bounded duration.
	ActionMuteTemp
	// ActionMutePermanent mutes the user until administrative review.
	ActionMutePermanent
	// ActionBlock blocks the user from the organization's channels.
	ActionBlock
	// ActionReport reports the user to the hosting platform.
	ActionReport
	// ActionEscalate hands the case to human moderators.
	ActionEscalate
)

// ParseAction converts a string to an Action, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn":
		return ActionWarn, nil
	case "mute_temp":
		return ActionMuteTemp, nil
	case "mute_permanent":
		return ActionMutePermanent, nil
	case "block":
		return ActionBlock, nil
	case "report":
		return ActionReport, nil
	case "escalate":
		return ActionEscalate, nil
	default:
		return ActionWarn, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionMuteTemp:
		return "mute_temp"
	case ActionMutePermanent:
		return "mute_permanent"
	case ActionBlock:
		return "block"
	case ActionReport:
		return "report"
	case ActionEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// ActionStatus represents the outcome of one dispatched action tag.
type ActionStatus int

const (
	// StatusExecuted indicates the handler completed normally.
	StatusExecuted ActionStatus = iota
	// StatusSkipped indicates a policy gate intentionally bypassed the handler.
	StatusSkipped
	// StatusFailed indicates the handler returned an error or panicked.
	StatusFailed
)

func (s ActionStatus) String() string {
	switch s {
	case StatusExecuted:
		return "executed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("ActionStatus(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ActionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ActionStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "executed":
		*s = StatusExecuted
	case "skipped":
		*s = StatusSkipped
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, string(text))
	}

	return nil
}
