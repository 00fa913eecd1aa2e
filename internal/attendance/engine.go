package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"classdesk/internal/metrics"
)

// ErrReadOnly is returned for toggles and submits outside take-attendance mode.
var ErrReadOnly = errors.New("attendance is read-only in the current view")

// SessionData is the school service's answer for one session half.
type SessionData struct {
	Session Session
	Rows    []StudentRow
	Holiday bool
	Taken   bool
}

// Remote is the authoritative attendance service.
type Remote interface {
	FetchSession(ctx context.Context, sel Selection) (SessionData, error)
	FetchPast(ctx context.Context, sel Selection) (PastReport, error)
	Submit(ctx context.Context, sel Selection, marks []Mark) (string, error)
	MarkHoliday(ctx context.Context, sel Selection, scope HolidayScope) (string, error)
	UnmarkHoliday(ctx context.Context, sel Selection, scope HolidayScope) (string, error)
}

// View is what a client renders for a desk.
type View struct {
	State
	ListVisible bool         `json:"list_visible"`
	Editable    bool         `json:"editable"`
	Rows        []StudentRow `json:"rows,omitempty"`
	Stats       *Stats       `json:"stats,omitempty"`
	Past        *PastReport  `json:"past,omitempty"`
	// PastSummary holds per-session counts when Past is set.
	PastSummary []SessionSummary `json:"past_summary,omitempty"`
}

// SessionSummary is one session's totals in a past report.
type SessionSummary struct {
	Session Session `json:"session"`
	Holiday bool    `json:"holiday"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
}

func summarize(p PastReport) []SessionSummary {
	out := make([]SessionSummary, 0, len(Sessions))
	for _, s := range Sessions {
		sum := SessionSummary{Session: s, Holiday: p.Holiday(s)}
		if !sum.Holiday {
			sum.Present, sum.Absent = p.Counts(s)
		}
		out = append(out, sum)
	}
	return out
}

// Snapshot is the serialisable form of an engine.
type Snapshot struct {
	State  State        `json:"state"`
	Rows   []StudentRow `json:"rows"`
	Roster Selection    `json:"roster"`
	Past   *PastReport  `json:"past,omitempty"`
}

// Engine reconciles one desk's selection with the remote service. It is
// safe for concurrent use; remote calls run without holding the lock and
// results are applied only if no newer refresh has landed first.
type Engine struct {
	remote Remote
	log    *zap.Logger

	mu        sync.Mutex
	sel       *Selector
	state     State
	roster    *Roster
	rosterSel Selection
	past      *PastReport
	issued    uint64
	applied   uint64
}

// NewEngine creates an engine on today's date with no class selected.
func NewEngine(remote Remote, cal Calendar, schoolID int64, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	sel := NewSelector(cal, schoolID)
	e := &Engine{remote: remote, log: log, sel: sel, roster: NewRoster(nil)}
	e.state = Transition(State{}, Selected{Selection: sel.Current(), Today: cal.Today()})
	return e
}

// View returns the current render model.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

func (e *Engine) viewLocked() View {
	v := View{State: e.state, ListVisible: e.state.ListVisible(), Editable: e.state.Editable()}
	if v.ListVisible {
		v.Rows = e.roster.Rows()
		st := e.roster.Stats(e.state.Selection.Session)
		v.Stats = &st
	}
	if e.state.Mode == ModePastReport && e.past != nil {
		p := *e.past
		v.Past = &p
		v.PastSummary = summarize(p)
	}
	return v
}

// Select changes date and class. The roster is discarded when either
// changes, and the new selection is fetched.
func (e *Engine) Select(ctx context.Context, date time.Time, classID int64, label string) (View, error) {
	e.mu.Lock()
	dateChanged, err := e.sel.SetDate(date)
	if err != nil {
		e.mu.Unlock()
		return View{}, err
	}
	classChanged := e.sel.SetClass(classID, label)
	if dateChanged || classChanged {
		e.state = Transition(e.state, Selected{Selection: e.sel.Current(), Today: e.sel.Calendar().Today()})
		e.roster = NewRoster(nil)
		e.rosterSel = Selection{}
		e.past = nil
	}
	e.mu.Unlock()
	return e.refresh(ctx)
}

// SwitchSession activates the other half and fetches it.
func (e *Engine) SwitchSession(ctx context.Context, s Session) (View, error) {
	e.mu.Lock()
	if _, err := e.sel.SetSession(s); err != nil {
		e.mu.Unlock()
		return View{}, err
	}
	e.state = Transition(e.state, SessionSwitched{Session: s})
	e.mu.Unlock()
	return e.refresh(ctx)
}

// Edit opens session s for editing.
func (e *Engine) Edit(ctx context.Context, s Session) (View, error) {
	return e.openSession(ctx, EditRequested{Session: s}, s)
}

// NewAttendance starts attendance for session s on a past date.
func (e *Engine) NewAttendance(ctx context.Context, s Session) (View, error) {
	return e.openSession(ctx, NewAttendanceRequested{Session: s}, s)
}

func (e *Engine) openSession(ctx context.Context, ev Event, s Session) (View, error) {
	e.mu.Lock()
	if !e.state.Selection.HasClass() {
		e.mu.Unlock()
		return View{}, ErrNoClass
	}
	if _, err := e.sel.SetSession(s); err != nil {
		e.mu.Unlock()
		return View{}, err
	}
	e.state = Transition(e.state, ev)
	e.mu.Unlock()
	return e.refresh(ctx)
}

// Back leaves edit mode without fetching.
func (e *Engine) Back() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Transition(e.state, BackRequested{})
	return e.viewLocked()
}

// Toggle marks one student present or absent for the active session.
func (e *Engine) Toggle(studentID int64, present bool) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Editable() {
		return View{}, ErrReadOnly
	}
	sess := e.state.Selection.Session
	if err := e.roster.Toggle(studentID, sess, present); err != nil {
		e.log.Warn("toggle on unknown student",
			zap.Int64("student_id", studentID),
			zap.Int64("class_section_id", e.state.Selection.ClassSectionID),
			zap.String("session", string(sess)))
		return View{}, err
	}
	return e.viewLocked(), nil
}

// Submit sends the whole roster for the active session. Undecided students
// go out as absent. On success the session is re-fetched.
func (e *Engine) Submit(ctx context.Context) (string, View, error) {
	e.mu.Lock()
	if !e.state.Editable() {
		e.mu.Unlock()
		return "", View{}, ErrReadOnly
	}
	sel := e.state.Selection
	marks := e.roster.Submission(sel.Session)
	e.mu.Unlock()

	msg, err := e.remote.Submit(ctx, sel, marks)
	if err != nil {
		metrics.Submits.WithLabelValues("error").Inc()
		return "", View{}, err
	}
	metrics.Submits.WithLabelValues("ok").Inc()
	e.log.Info("attendance submitted",
		zap.Int64("class_section_id", sel.ClassSectionID),
		zap.String("date", sel.DateString()),
		zap.String("session", string(sel.Session)),
		zap.Int("students", len(marks)))

	e.mu.Lock()
	if e.state.Selection.Equal(sel) {
		e.state = Transition(e.state, Submitted{Session: sel.Session})
	}
	e.mu.Unlock()

	v, err := e.refresh(ctx)
	return msg, v, err
}

// MarkHoliday flags the selected day as a holiday for scope. The view is
// only updated by the follow-up fetch.
func (e *Engine) MarkHoliday(ctx context.Context, scope HolidayScope) (string, View, error) {
	return e.holiday(ctx, scope, e.remote.MarkHoliday)
}

// UnmarkHoliday clears a holiday flag set by MarkHoliday.
func (e *Engine) UnmarkHoliday(ctx context.Context, scope HolidayScope) (string, View, error) {
	return e.holiday(ctx, scope, e.remote.UnmarkHoliday)
}

func (e *Engine) holiday(ctx context.Context, scope HolidayScope,
	call func(context.Context, Selection, HolidayScope) (string, error)) (string, View, error) {
	e.mu.Lock()
	sel := e.state.Selection
	e.mu.Unlock()
	if !sel.HasClass() {
		return "", View{}, ErrNoClass
	}
	msg, err := call(ctx, sel, scope)
	if err != nil {
		return "", View{}, err
	}
	v, err := e.fetch(ctx, scope == HolidayFullDay)
	return msg, v, err
}

// Refresh re-fetches the current selection.
func (e *Engine) Refresh(ctx context.Context) (View, error) { return e.refresh(ctx) }

func (e *Engine) refresh(ctx context.Context) (View, error) { return e.fetch(ctx, false) }

// Report returns the aggregated report for the selected day, fetching it
// if the desk does not hold one.
func (e *Engine) Report(ctx context.Context) (Selection, PastReport, error) {
	e.mu.Lock()
	sel := e.state.Selection
	past := e.past
	e.mu.Unlock()
	if !sel.HasClass() {
		return sel, PastReport{}, ErrNoClass
	}
	if past != nil {
		return sel, *past, nil
	}
	rep, err := e.remote.FetchPast(ctx, sel)
	if err != nil {
		return sel, PastReport{}, err
	}
	return sel, rep, nil
}

// fetch loads session data and, for past dates, the aggregated report in
// one coordinated round. With both set the inactive half is loaded too.
// Results from a round that was overtaken by a newer one, or whose
// selection is no longer current, are dropped.
func (e *Engine) fetch(ctx context.Context, both bool) (View, error) {
	e.mu.Lock()
	e.issued++
	gen := e.issued
	st := e.state
	today := e.sel.Calendar().Today()
	e.mu.Unlock()

	sel := st.Selection
	if !sel.HasClass() || IsSunday(sel.Date) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen > e.applied {
			e.applied = gen
		}
		return e.viewLocked(), nil
	}
	wantPast := sel.Date.Before(today)

	var (
		data, otherData SessionData
		rep             PastReport
	)
	otherSel := sel
	otherSel.Session = sel.Session.Other()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = e.remote.FetchSession(gctx, sel)
		return err
	})
	if both {
		g.Go(func() error {
			var err error
			otherData, err = e.remote.FetchSession(gctx, otherSel)
			return err
		})
	}
	if wantPast {
		g.Go(func() error {
			var err error
			rep, err = e.remote.FetchPast(gctx, sel)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen < e.applied || !e.state.Selection.Equal(sel) {
		metrics.StaleResponses.Inc()
		e.log.Debug("dropping stale attendance response",
			zap.Uint64("generation", gen),
			zap.Uint64("applied", e.applied))
		return e.viewLocked(), nil
	}
	e.applied = gen
	e.state.Today = today
	e.state = Transition(e.state, SessionLoaded{
		Session:   sel.Session,
		Holiday:   data.Holiday,
		Submitted: data.Taken && !data.Holiday,
	})
	if e.rosterSel.sameRoster(sel) {
		e.roster.Merge(sel.Session, data.Rows)
	} else {
		e.roster = NewRoster(data.Rows)
		e.rosterSel = sel
	}
	if both {
		e.state = Transition(e.state, SessionLoaded{
			Session:   otherSel.Session,
			Holiday:   otherData.Holiday,
			Submitted: otherData.Taken && !otherData.Holiday,
		})
		// Holiday sessions come back without rows.
		if len(otherData.Rows) > 0 {
			e.roster.Merge(otherSel.Session, otherData.Rows)
		}
	}
	if wantPast {
		e.past = &rep
	} else {
		e.past = nil
	}
	return e.viewLocked(), nil
}

// Snapshot captures the engine for persistence.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{State: e.state, Rows: e.roster.Rows(), Roster: e.rosterSel}
	if e.past != nil {
		p := *e.past
		snap.Past = &p
	}
	return snap
}

// Restore loads a snapshot taken by Snapshot.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sel.restore(s.State.Selection)
	e.roster = NewRoster(s.Rows)
	e.rosterSel = s.Roster
	e.past = s.Past
	s.State.Today = e.sel.Calendar().Today()
	s.State.Mode = Resolve(s.State.Inputs())
	e.state = s.State
}
