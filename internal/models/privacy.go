package models

import (
	"errors"
	"strings"
)

// PrivacyLevel is how much of a user's location their friends may see.
type PrivacyLevel string

const (
	PrivacyNone     PrivacyLevel = "none"
	PrivacyCity     PrivacyLevel = "city"
	PrivacyRealtime PrivacyLevel = "realtime"
)

// DefaultPrivacyLevel applies to newly registered users.
const DefaultPrivacyLevel = PrivacyCity

var ErrInvalidPrivacyLevel = errors.New(`invalid privacy_level. Must be "none", "city", or "realtime"`)

func (p PrivacyLevel) Valid() bool {
	switch p {
	case PrivacyNone, PrivacyCity, PrivacyRealtime:
		return true
	}
	return false
}

func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	level := PrivacyLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.Valid() {
		return "", ErrInvalidPrivacyLevel
	}
	return level, nil
}
