package enum

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidOffenseLevel  = errors.New("invalid offense level")
	ErrInvalidOffensePolicy = errors.New("invalid escalation policy")
)

// OffenseLevel represents the discrete escalation stage a user has reached.
type OffenseLevel int

const (
	// OffenseFirst indicates a user with no recorded violations.
	OffenseFirst OffenseLevel = iota
	// OffenseRepeat indicates a user with prior violations below the reincidence threshold.
	OffenseRepeat
	// OffensePersistent indicates a user at or above the reincidence threshold.
	OffensePersistent
	// OffenseDangerous indicates a user well past the reincidence threshold.
	OffenseDangerous
)

func (o OffenseLevel) String() string {
	switch o {
	case OffenseFirst:
		return "first"
	case OffenseRepeat:
		return "repeat"
	case OffensePersistent:
		return "persistent"
	case OffenseDangerous:
		return "dangerous"
	default:
		return fmt.Sprintf("OffenseLevel(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o OffenseLevel) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OffenseLevel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "first":
		*o = OffenseFirst
	case "repeat":
		*o = OffenseRepeat
	case "persistent":
		*o = OffensePersistent
	case "dangerous":
		*o = OffenseDangerous
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOffenseLevel, string(text))
	}

	return nil
}

// OffensePolicy represents a platform's configured escalation posture.
type OffensePolicy int

const (
	// PolicyStandard applies the action matrix as-is.
	PolicyStandard OffensePolicy = iota
	// PolicyAggressive escalates actions one step for repeat offenders.
	PolicyAggressive
	// PolicyLenient de-escalates actions one step, except at critical severity.
	PolicyLenient
)

// ParseOffensePolicy converts a string to an OffensePolicy, case-insensitively.
// Unknown values fall back to the standard policy rather than erroring.
func ParseOffensePolicy(s string) OffensePolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aggressive":
		return PolicyAggressive
	case "lenient":
		return PolicyLenient
	default:
		return PolicyStandard
	}
}

func (p OffensePolicy) String() string {
	switch p {
	case PolicyStandard:
		return "standard"
	case PolicyAggressive:
		return "aggressive"
	case PolicyLenient:
		return "lenient"
	default:
		return fmt.Sprintf("OffensePolicy(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p OffensePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OffensePolicy) UnmarshalText(text []byte) error {
	*p = ParseOffensePolicy(string(text))
	return nil
}

// TimeWindow represents the recency modifier applied to a user's offense level.
type TimeWindow int

const (
	// WindowAggressive covers repeat activity within the last hour.
	WindowAggressive TimeWindow = iota
	// WindowStandard covers activity between one and twenty-four hours ago.
	WindowStandard
	// WindowReduced covers activity between one and seven days ago.
	WindowReduced
	// WindowMinimal covers activity older than seven days.
	WindowMinimal
)

func (w TimeWindow) String() string {
	switch w {
	case WindowAggressive:
		return "aggressive"
	case WindowStandard:
		return "standard"
	case WindowReduced:
		return "reduced"
	case WindowMinimal:
		return "minimal"
	default:
		return fmt.Sprintf("TimeWindow(%d)", int(w))
	}
}
