package attendance

import (
	"errors"
	"time"
)

// DateLayout is the calendar-day format exchanged with the school service.
const DateLayout = "2006-01-02"

var (
	ErrFutureDate = errors.New("cannot select future dates")
	ErrNoClass    = errors.New("no class selected")

	ErrUnknownSession = errors.New("unknown session")
)

// Selection is the date/class/session triple that drives a desk.
type Selection struct {
	Date           time.Time `json:"date"`
	ClassSectionID int64     `json:"class_section_id"`
	ClassLabel     string    `json:"class_label"`
	SchoolID       int64     `json:"school_id"`
	Session        Session   `json:"session"`
}

// HasClass reports whether a class section has been chosen.
func (s Selection) HasClass() bool { return s.ClassSectionID > 0 }

// DateString formats the selected day for the wire.
func (s Selection) DateString() string { return s.Date.Format(DateLayout) }

// Equal reports whether both selections address the same session.
func (s Selection) Equal(o Selection) bool {
	return s.sameRoster(o) && s.ClassLabel == o.ClassLabel && s.Session == o.Session
}

// sameRoster reports whether both selections address the same student list.
func (s Selection) sameRoster(o Selection) bool {
	return s.ClassSectionID == o.ClassSectionID && s.SchoolID == o.SchoolID && s.Date.Equal(o.Date)
}

// Calendar answers day-level questions against an injectable clock.
type Calendar struct {
	Now func() time.Time
	Loc *time.Location
}

// NewCalendar returns a calendar on the wall clock in loc (UTC when nil).
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Now: time.Now, Loc: loc}
}

// Day truncates t to midnight in the calendar's location.
func (c Calendar) Day(t time.Time) time.Time {
	t = t.In(c.location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location())
}

// Clock returns the current instant.
func (c Calendar) Clock() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Today returns midnight of the current day.
func (c Calendar) Today() time.Time { return c.Day(c.Clock()) }

// IsPast reports whether d is strictly before today.
func (c Calendar) IsPast(d time.Time) bool { return c.Day(d).Before(c.Today()) }

// IsFuture reports whether d is after today.
func (c Calendar) IsFuture(d time.Time) bool { return c.Day(d).After(c.Today()) }

// ParseDate parses a DateLayout string in the calendar's location.
func (c Calendar) ParseDate(v string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, v, c.location())
}

func (c Calendar) location() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// IsSunday reports whether d falls on a Sunday.
func IsSunday(d time.Time) bool { return d.Weekday() == time.Sunday }

// Selector guards changes to a Selection. Each setter reports whether the
// selection actually changed.
type Selector struct {
	cal Calendar
	cur Selection
}

// NewSelector starts on today with the morning session active.
func NewSelector(cal Calendar, schoolID int64) *Selector {
	return &Selector{cal: cal, cur: Selection{Date: cal.Today(), SchoolID: schoolID, Session: Morning}}
}

// Current returns the active selection.
func (s *Selector) Current() Selection { return s.cur }

// Calendar returns the calendar the selector validates against.
func (s *Selector) Calendar() Calendar { return s.cal }

// SetDate moves to another day; days after today are rejected.
func (s *Selector) SetDate(d time.Time) (bool, error) {
	if s.cal.IsFuture(d) {
		return false, ErrFutureDate
	}
	d = s.cal.Day(d)
	if d.Equal(s.cur.Date) {
		return false, nil
	}
	s.cur.Date = d
	return true, nil
}

// SetClass switches class section.
func (s *Selector) SetClass(id int64, label string) bool {
	if id == s.cur.ClassSectionID && label == s.cur.ClassLabel {
		return false
	}
	s.cur.ClassSectionID = id
	s.cur.ClassLabel = label
	return true
}

// SetSession switches the active half.
func (s *Selector) SetSession(sess Session) (bool, error) {
	if !sess.Valid() {
		return false, ErrUnknownSession
	}
	if sess == s.cur.Session {
		return false, nil
	}
	s.cur.Session = sess
	return true, nil
}

// restore replaces the selection wholesale, e.g. from a snapshot.
func (s *Selector) restore(sel Selection) { s.cur = sel }
