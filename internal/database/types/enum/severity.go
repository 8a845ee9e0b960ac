package enum

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSeverity = errors.New("invalid severity")

// Severity represents how harmful an analyzed piece of content is.
type Severity int

const (
	// SeverityLow indicates mildly problematic content.
	SeverityLow Severity = iota
	// SeverityMedium indicates clearly toxic content.
	SeverityMedium
	// SeverityHigh indicates severely toxic content.
	SeverityHigh
	// SeverityCritical indicates content requiring immediate intervention.
	SeverityCritical
)

// SeverityForScore buckets a toxicity score into a severity tier.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 0.8:
		return SeverityCritical
	case score >= 0.6:
		return SeverityHigh
	case score >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ParseSeverity converts a string to a Severity, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler so severities serialize
// by name, including when used as JSON map keys.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}
