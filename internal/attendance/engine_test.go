package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdesk/internal/metrics"
)

type fakeRemote struct {
	mu          sync.Mutex
	rows        []StudentRow
	taken       map[Session]bool
	holiday     map[Session]bool
	past        PastReport
	submits     [][]Mark
	submitSel   []Selection
	fetches     int
	pastFetches int
	err         error
	beforeFetch func(n int)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows: []StudentRow{
			{StudentID: 10, Name: "Asha", RollNumber: "1"},
			{StudentID: 11, Name: "Bilal", RollNumber: "2"},
			{StudentID: 12, Name: "Chen", RollNumber: "3"},
		},
		taken:   map[Session]bool{},
		holiday: map[Session]bool{},
	}
}

func (f *fakeRemote) FetchSession(_ context.Context, sel Selection) (SessionData, error) {
	f.mu.Lock()
	f.fetches++
	n := f.fetches
	hook := f.beforeFetch
	data := SessionData{
		Session: sel.Session,
		Holiday: f.holiday[sel.Session],
		Taken:   f.taken[sel.Session],
	}
	if !data.Holiday {
		data.Rows = make([]StudentRow, len(f.rows))
		for i, row := range f.rows {
			data.Rows[i] = StudentRow{StudentID: row.StudentID, Name: row.Name, RollNumber: row.RollNumber}
			data.Rows[i].set(sel.Session, row.Flag(sel.Session))
		}
	}
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return data, err
}

func (f *fakeRemote) FetchPast(_ context.Context, _ Selection) (PastReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pastFetches++
	rep := f.past
	rep.MorningHoliday = f.holiday[Morning]
	rep.AfternoonHoliday = f.holiday[Afternoon]
	return rep, f.err
}

func (f *fakeRemote) Submit(_ context.Context, sel Selection, marks []Mark) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submits = append(f.submits, marks)
	f.submitSel = append(f.submitSel, sel)
	f.taken[sel.Session] = true
	for _, m := range marks {
		for i := range f.rows {
			if f.rows[i].StudentID == m.StudentID {
				v := m.IsPresent
				f.rows[i].set(sel.Session, &v)
			}
		}
	}
	return sel.Session.Label() + " attendance submitted successfully!", nil
}

func (f *fakeRemote) scoped(scope HolidayScope, v bool) {
	switch scope {
	case HolidayMorning:
		f.holiday[Morning] = v
	case HolidayAfternoon:
		f.holiday[Afternoon] = v
	case HolidayFullDay:
		f.holiday[Morning] = v
		f.holiday[Afternoon] = v
	}
}

func (f *fakeRemote) MarkHoliday(_ context.Context, _ Selection, scope HolidayScope) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoped(scope, true)
	return "Holiday marked", nil
}

func (f *fakeRemote) UnmarkHoliday(_ context.Context, _ Selection, scope HolidayScope) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoped(scope, false)
	return "Holiday removed", nil
}

func testCalendar() Calendar {
	now := wednesday.Add(10 * time.Hour)
	return Calendar{Now: func() time.Time { return now }, Loc: time.UTC}
}

func newTestEngine(t *testing.T, remote Remote) *Engine {
	t.Helper()
	return NewEngine(remote, testCalendar(), 7, nil)
}

func TestEngine_NewEngine(t *testing.T) {
	eng := newTestEngine(t, newFakeRemote())
	v := eng.View()
	assert.Equal(t, ModeNoClassSelected, v.Mode)
	assert.Equal(t, wednesday, v.Selection.Date)
	assert.Equal(t, Morning, v.Selection.Session)
	assert.Equal(t, int64(7), v.Selection.SchoolID)
	assert.Nil(t, v.Rows)
}

func TestEngine_FutureDateRejected(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	before := eng.View()

	_, err = eng.Select(ctx, wednesday.AddDate(0, 0, 1), 1, "5-A")
	assert.ErrorIs(t, err, ErrFutureDate)
	assert.Equal(t, before.Selection, eng.View().Selection)
	assert.Equal(t, 1, remote.fetches)
}

func TestEngine_SundayNeedsNoFetch(t *testing.T) {
	remote := newFakeRemote()
	remote.holiday[Morning] = false
	eng := newTestEngine(t, remote)

	v, err := eng.Select(context.Background(), sunday, 1, "5-A")
	require.NoError(t, err)
	assert.Equal(t, ModeSundayHoliday, v.Mode)
	assert.False(t, v.ListVisible)
	assert.Zero(t, remote.fetches)
	assert.Zero(t, remote.pastFetches)
}

func TestEngine_TakeAndSubmit(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()

	v, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	require.Equal(t, ModeTakeAttendance, v.Mode)
	require.Len(t, v.Rows, 3)
	assert.Equal(t, Stats{Total: 3, Unmarked: 3}, *v.Stats)

	v, err = eng.Toggle(10, true)
	require.NoError(t, err)
	assert.True(t, *v.Rows[0].Morning)
	assert.Nil(t, v.Rows[0].Afternoon)
	assert.Nil(t, v.Rows[1].Morning)

	_, err = eng.Toggle(11, false)
	require.NoError(t, err)

	_, err = eng.Toggle(404, true)
	assert.ErrorIs(t, err, ErrStudentNotFound)

	msg, v, err := eng.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Morning attendance submitted successfully!", msg)
	require.Len(t, remote.submits, 1)
	assert.Equal(t, []Mark{
		{StudentID: 10, IsPresent: true},
		{StudentID: 11, IsPresent: false},
		{StudentID: 12, IsPresent: false},
	}, remote.submits[0])
	assert.Equal(t, "2024-03-13", remote.submitSel[0].DateString())

	assert.Equal(t, ModeEditSubmitted, v.Mode)
	assert.True(t, v.ListVisible)
	assert.True(t, v.Facts.Morning.Submitted)

	_, err = eng.Toggle(10, false)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, _, err = eng.Submit(ctx)
	assert.ErrorIs(t, err, ErrReadOnly)

	v, err = eng.Edit(ctx, Morning)
	require.NoError(t, err)
	assert.Equal(t, ModeTakeAttendance, v.Mode)
	assert.False(t, *v.Rows[1].Morning)

	v = eng.Back()
	assert.Equal(t, ModeEditSubmitted, v.Mode)
}

func TestEngine_SubmitFailureKeepsState(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	_, err = eng.Toggle(12, true)
	require.NoError(t, err)

	remote.err = errors.New("boom")
	_, _, err = eng.Submit(ctx)
	assert.Error(t, err)

	v := eng.View()
	assert.Equal(t, ModeTakeAttendance, v.Mode)
	assert.True(t, *v.Rows[2].Morning)
}

func TestEngine_HolidayRoundTrip(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	before, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)

	msg, v, err := eng.MarkHoliday(ctx, HolidayMorning)
	require.NoError(t, err)
	assert.Equal(t, "Holiday marked", msg)
	assert.Equal(t, ModeHoliday, v.Mode)
	assert.False(t, v.ListVisible)
	assert.Nil(t, v.Rows)

	_, err = eng.Toggle(10, true)
	assert.ErrorIs(t, err, ErrReadOnly)

	_, v, err = eng.UnmarkHoliday(ctx, HolidayMorning)
	require.NoError(t, err)
	assert.Equal(t, before.Mode, v.Mode)
	assert.Equal(t, before.Facts, v.Facts)
	assert.Equal(t, before.Rows, v.Rows)
}

func TestEngine_HolidayRoundTripAfterSubmit(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	_, err = eng.Toggle(10, true)
	require.NoError(t, err)
	_, before, err := eng.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, ModeEditSubmitted, before.Mode)

	_, v, err := eng.MarkHoliday(ctx, HolidayFullDay)
	require.NoError(t, err)
	assert.Equal(t, ModeHoliday, v.Mode)
	assert.False(t, v.ListVisible)
	assert.True(t, v.Facts.Morning.Holiday)
	assert.True(t, v.Facts.Afternoon.Holiday, "full day refreshes both halves")
	assert.True(t, v.Facts.Afternoon.Loaded)

	_, v, err = eng.UnmarkHoliday(ctx, HolidayFullDay)
	require.NoError(t, err)
	assert.Equal(t, ModeEditSubmitted, v.Mode)
	assert.False(t, v.Facts.Afternoon.Holiday)
	require.Len(t, v.Rows, 3)
	assert.Equal(t, before.Rows, v.Rows)
	assert.True(t, *v.Rows[0].Morning)
}

func TestEngine_FullDayHolidayFetchesBothHalves(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	require.Equal(t, 1, remote.fetches)

	_, _, err = eng.MarkHoliday(ctx, HolidayMorning)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.fetches)

	_, v, err := eng.MarkHoliday(ctx, HolidayFullDay)
	require.NoError(t, err)
	assert.Equal(t, 4, remote.fetches)
	assert.True(t, v.Facts.Afternoon.Holiday)
}

func TestEngine_PastEditHoliday(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, tuesday, 1, "5-A")
	require.NoError(t, err)

	v, err := eng.Edit(ctx, Morning)
	require.NoError(t, err)
	require.Equal(t, ModeTakeAttendance, v.Mode)
	require.True(t, v.ListVisible)

	_, v, err = eng.MarkHoliday(ctx, HolidayMorning)
	require.NoError(t, err)
	assert.Equal(t, ModeHoliday, v.Mode)
	assert.False(t, v.ListVisible)
	assert.Nil(t, v.Rows)

	_, err = eng.Toggle(10, true)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestEngine_PastDate(t *testing.T) {
	remote := newFakeRemote()
	remote.taken[Morning] = true
	remote.past = PastReport{Date: "2024-03-12", Records: []PastRecord{
		{StudentID: 10, StudentName: "Asha", Morning: flag(true)},
	}}
	eng := newTestEngine(t, remote)
	ctx := context.Background()

	v, err := eng.Select(ctx, tuesday, 1, "5-A")
	require.NoError(t, err)
	assert.Equal(t, ModePastReport, v.Mode)
	require.NotNil(t, v.Past)
	assert.Len(t, v.Past.Records, 1)
	assert.False(t, v.ListVisible)
	assert.Equal(t, 1, remote.pastFetches)
	assert.Equal(t, []SessionSummary{
		{Session: Morning, Present: 1},
		{Session: Afternoon},
	}, v.PastSummary)

	sel, rep, err := eng.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5-A", sel.ClassLabel)
	assert.Equal(t, "2024-03-12", rep.Date)
	assert.Equal(t, 1, remote.pastFetches, "report is served from the desk")

	v, err = eng.NewAttendance(ctx, Afternoon)
	require.NoError(t, err)
	assert.Equal(t, ModeTakeAttendance, v.Mode)
	assert.Equal(t, Afternoon, v.Selection.Session)

	v, err = eng.Edit(ctx, Morning)
	require.NoError(t, err)
	assert.Equal(t, ModeTakeAttendance, v.Mode)

	v = eng.Back()
	assert.Equal(t, ModePastReport, v.Mode)
}

func TestEngine_ClassChangeDropsRoster(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	_, err = eng.Toggle(10, true)
	require.NoError(t, err)

	v, err := eng.SwitchSession(ctx, Afternoon)
	require.NoError(t, err)
	assert.True(t, *v.Rows[0].Morning, "switching half keeps the roster")

	v, err = eng.Select(ctx, wednesday, 2, "5-B")
	require.NoError(t, err)
	assert.Nil(t, v.Rows[0].Morning)
	assert.Equal(t, Afternoon, v.Selection.Session)
}

func TestEngine_NoClassOperations(t *testing.T) {
	eng := newTestEngine(t, newFakeRemote())
	ctx := context.Background()

	_, err := eng.Edit(ctx, Morning)
	assert.ErrorIs(t, err, ErrNoClass)
	_, _, err = eng.MarkHoliday(ctx, HolidayFullDay)
	assert.ErrorIs(t, err, ErrNoClass)
	_, _, err = eng.Report(ctx)
	assert.ErrorIs(t, err, ErrNoClass)
	_, err = eng.SwitchSession(ctx, "evening")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestEngine_StaleResponseDropped(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	remote.mu.Lock()
	remote.beforeFetch = func(n int) {
		if n == 2 {
			close(started)
			<-release
		}
	}
	remote.mu.Unlock()

	staleBefore := testutil.ToFloat64(metrics.StaleResponses)
	done := make(chan View, 1)
	go func() {
		v, _ := eng.Refresh(ctx)
		done <- v
	}()
	<-started

	remote.mu.Lock()
	remote.taken[Morning] = true
	remote.mu.Unlock()
	v, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeEditSubmitted, v.Mode)

	close(release)
	<-done
	assert.Equal(t, staleBefore+1, testutil.ToFloat64(metrics.StaleResponses))
	assert.Equal(t, ModeEditSubmitted, eng.View().Mode)
}

func TestEngine_SnapshotRestore(t *testing.T) {
	remote := newFakeRemote()
	eng := newTestEngine(t, remote)
	ctx := context.Background()
	_, err := eng.Select(ctx, wednesday, 1, "5-A")
	require.NoError(t, err)
	_, err = eng.Toggle(11, true)
	require.NoError(t, err)
	want := eng.View()

	restored := newTestEngine(t, remote)
	restored.Restore(eng.Snapshot())
	assert.Equal(t, want, restored.View())

	_, err = restored.Toggle(12, false)
	require.NoError(t, err)
	_, _, err = restored.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Mark{
		{StudentID: 10, IsPresent: false},
		{StudentID: 11, IsPresent: true},
		{StudentID: 12, IsPresent: false},
	}, remote.submits[0])
}
