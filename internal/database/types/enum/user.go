package enum

import (
	"fmt"
	"strings"
)

// UserType represents the class of account being moderated.
type UserType int

const (
	// UserTypeStandard indicates a regular account with no special handling.
	UserTypeStandard UserType = iota
	// UserTypeVerifiedCreator indicates a verified creator account eligible for leniency.
	UserTypeVerifiedCreator
	// UserTypePartner indicates a partner account eligible for leniency.
	UserTypePartner
)

// IsSpecial reports whether the user class receives leniency downgrades.
func (u UserType) IsSpecial() bool {
	return u == UserTypeVerifiedCreator || u == UserTypePartner
}

// ParseUserType converts a string to a UserType, defaulting to standard
// for unknown values.
func ParseUserType(s string) UserType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verified_creator":
		return UserTypeVerifiedCreator
	case "partner":
		return UserTypePartner
	default:
		return UserTypeStandard
	}
}

func (u UserType) String() string {
	switch u {
	case UserTypeStandard:
		return "standard"
	case UserTypeVerifiedCreator:
		return "verified_creator"
	case UserTypePartner:
		return "partner"
	default:
		return fmt.Sprintf("UserType(%d)", int(u))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u UserType) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UserType) UnmarshalText(text []byte) error {
	*u = ParseUserType(string(text))
	return nil
}
