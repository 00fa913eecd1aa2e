package attendance

import (
	"fmt"
	"strings"
)

// Session is one of the two daily attendance halves.
type Session string

const (
	Morning   Session = "morning"
	Afternoon Session = "afternoon"
)

// Sessions lists both halves in display order.
var Sessions = []Session{Morning, Afternoon}

// Code returns the wire code used by the school service.
func (s Session) Code() string {
	if s == Afternoon {
		return "A"
	}
	return "M"
}

// Label is the human name shown in toasts and reports.
func (s Session) Label() string {
	if s == Afternoon {
		return "Afternoon"
	}
	return "Morning"
}

// Other returns the opposite half.
func (s Session) Other() Session {
	if s == Afternoon {
		return Morning
	}
	return Afternoon
}

// Valid reports whether s is a known half.
func (s Session) Valid() bool {
	return s == Morning || s == Afternoon
}

// ParseSession accepts "morning"/"afternoon" or the wire codes "M"/"A".
func ParseSession(v string) (Session, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "morning", "m":
		return Morning, nil
	case "afternoon", "a":
		return Afternoon, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownSession, v)
}

// HolidayScope selects which halves a holiday request applies to.
type HolidayScope string

const (
	HolidayMorning   HolidayScope = "M"
	HolidayAfternoon HolidayScope = "A"
	HolidayFullDay   HolidayScope = "F"
)

// ScopeOf returns the holiday scope covering only s.
func ScopeOf(s Session) HolidayScope {
	if s == Afternoon {
		return HolidayAfternoon
	}
	return HolidayMorning
}

// ParseHolidayScope accepts a session name, a wire code, or "full".
func ParseHolidayScope(v string) (HolidayScope, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "morning", "m":
		return HolidayMorning, nil
	case "afternoon", "a":
		return HolidayAfternoon, nil
	case "full", "full_day", "f":
		return HolidayFullDay, nil
	}
	return "", fmt.Errorf("unknown holiday scope %q", v)
}
