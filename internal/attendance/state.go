package attendance

import "time"

// ViewMode is what the desk currently renders.
type ViewMode string

const (
	ModeNoClassSelected ViewMode = "no_class_selected"
	ModeSundayHoliday   ViewMode = "sunday_holiday"
	ModePastReport      ViewMode = "past_report"
	ModeHoliday         ViewMode = "holiday"
	ModeEditSubmitted   ViewMode = "edit_submitted"
	ModeTakeAttendance  ViewMode = "take_attendance"
)

// Inputs are the guard values Resolve looks at.
type Inputs struct {
	HasClass   bool
	IsSunday   bool
	IsPastDate bool
	Holiday    bool
	Submitted  bool
	// Editing is true once the user asked to edit or start attendance for
	// any session of the selected day.
	Editing bool
	// EditingActive is true when that request targets the active session.
	EditingActive bool
}

// Resolve picks the view mode. Rules are checked in order and the first
// match wins.
func Resolve(in Inputs) ViewMode {
	switch {
	case !in.HasClass:
		return ModeNoClassSelected
	case in.IsSunday:
		return ModeSundayHoliday
	case in.IsPastDate && !in.Editing:
		return ModePastReport
	case in.Holiday:
		return ModeHoliday
	case in.Submitted && !in.EditingActive:
		return ModeEditSubmitted
	default:
		return ModeTakeAttendance
	}
}

// SessionFacts is the server-confirmed status of one session half.
type SessionFacts struct {
	Loaded    bool `json:"loaded"`
	Holiday   bool `json:"holiday"`
	Submitted bool `json:"submitted"`
}

// Facts holds SessionFacts for both halves.
type Facts struct {
	Morning   SessionFacts `json:"morning"`
	Afternoon SessionFacts `json:"afternoon"`
}

// For returns the facts of one half.
func (f Facts) For(s Session) SessionFacts {
	if s == Afternoon {
		return f.Afternoon
	}
	return f.Morning
}

func (f Facts) with(s Session, sf SessionFacts) Facts {
	if s == Afternoon {
		f.Afternoon = sf
	} else {
		f.Morning = sf
	}
	return f
}

// State is the desk's view state. It is a plain value; Transition never
// mutates its argument.
type State struct {
	Selection Selection `json:"selection"`
	Today     time.Time `json:"today"`
	// Editing names the session the user opened for editing, empty if none.
	Editing Session  `json:"editing,omitempty"`
	Facts   Facts    `json:"facts"`
	Mode    ViewMode `json:"mode"`
}

// Inputs derives the guard values for the active session.
func (s State) Inputs() Inputs {
	active := s.Facts.For(s.Selection.Session)
	return Inputs{
		HasClass:      s.Selection.HasClass(),
		IsSunday:      IsSunday(s.Selection.Date),
		IsPastDate:    !s.Today.IsZero() && s.Selection.Date.Before(s.Today),
		Holiday:       active.Holiday,
		Submitted:     active.Submitted,
		Editing:       s.Editing != "",
		EditingActive: s.Editing != "" && s.Editing == s.Selection.Session,
	}
}

// ListVisible reports whether the per-student list is rendered.
func (s State) ListVisible() bool {
	return s.Mode == ModeTakeAttendance || s.Mode == ModeEditSubmitted
}

// Editable reports whether toggles and submit are accepted.
func (s State) Editable() bool { return s.Mode == ModeTakeAttendance }

// Event is an input to Transition.
type Event interface{ isEvent() }

// Selected replaces the selection. Changing the date or class drops
// the edit flag and all cached session facts.
type Selected struct {
	Selection Selection
	Today     time.Time
}

// SessionSwitched activates the other half.
type SessionSwitched struct{ Session Session }

// EditRequested opens a submitted (or past) session for editing.
type EditRequested struct{ Session Session }

// NewAttendanceRequested starts attendance for a past session that has none.
type NewAttendanceRequested struct{ Session Session }

// BackRequested leaves edit mode.
type BackRequested struct{}

// SessionLoaded carries the server's view of one session half.
type SessionLoaded struct {
	Session   Session
	Holiday   bool
	Submitted bool
}

// Submitted records a successful submit of one session half.
type Submitted struct{ Session Session }

func (Selected) isEvent()               {}
func (SessionSwitched) isEvent()        {}
func (EditRequested) isEvent()          {}
func (NewAttendanceRequested) isEvent() {}
func (BackRequested) isEvent()          {}
func (SessionLoaded) isEvent()          {}
func (Submitted) isEvent()              {}

// Transition returns the state that follows s after e.
func Transition(s State, e Event) State {
	switch ev := e.(type) {
	case Selected:
		if !ev.Today.IsZero() {
			s.Today = ev.Today
		}
		if !ev.Selection.sameRoster(s.Selection) || ev.Selection.ClassLabel != s.Selection.ClassLabel {
			s.Editing = ""
			s.Facts = Facts{}
		}
		s.Selection = ev.Selection
	case SessionSwitched:
		if ev.Session.Valid() {
			s.Selection.Session = ev.Session
		}
	case EditRequested:
		if ev.Session.Valid() {
			s.Editing = ev.Session
			s.Selection.Session = ev.Session
		}
	case NewAttendanceRequested:
		if ev.Session.Valid() {
			s.Editing = ev.Session
			s.Selection.Session = ev.Session
		}
	case BackRequested:
		s.Editing = ""
	case SessionLoaded:
		s.Facts = s.Facts.with(ev.Session, SessionFacts{Loaded: true, Holiday: ev.Holiday, Submitted: ev.Submitted})
	case Submitted:
		f := s.Facts.For(ev.Session)
		f.Submitted = true
		s.Facts = s.Facts.with(ev.Session, f)
		if s.Editing == ev.Session {
			s.Editing = ""
		}
	}
	s.Mode = Resolve(s.Inputs())
	return s
}
