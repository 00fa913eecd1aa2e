package attendance

import (
	"errors"
	"fmt"
)

// ErrStudentNotFound is returned when a toggle names a student that is not
// on the current roster.
var ErrStudentNotFound = errors.New("student not found")

// StudentRow is one student's attendance on the selected day. A nil flag
// means the session has not been decided on this visit.
type StudentRow struct {
	StudentID  int64  `json:"student_id"`
	Name       string `json:"student_name"`
	RollNumber string `json:"roll_number"`
	Morning    *bool  `json:"morning"`
	Afternoon  *bool  `json:"afternoon"`
}

// Flag returns the row's flag for one session.
func (r StudentRow) Flag(s Session) *bool {
	if s == Afternoon {
		return r.Afternoon
	}
	return r.Morning
}

func (r *StudentRow) set(s Session, v *bool) {
	if s == Afternoon {
		r.Afternoon = v
	} else {
		r.Morning = v
	}
}

// Mark is one entry of a submission.
type Mark struct {
	StudentID int64 `json:"student_id"`
	IsPresent bool  `json:"is_present"`
}

// Stats summarises the active session of a roster.
type Stats struct {
	Total    int `json:"total"`
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Unmarked int `json:"unmarked"`
}

// Roster is the per-student toggle store for one class and day.
type Roster struct {
	rows  []StudentRow
	index map[int64]int
}

// NewRoster builds a roster from rows, preserving their order.
func NewRoster(rows []StudentRow) *Roster {
	r := &Roster{}
	r.reset(rows)
	return r
}

func (r *Roster) reset(rows []StudentRow) {
	r.rows = make([]StudentRow, len(rows))
	copy(r.rows, rows)
	r.index = make(map[int64]int, len(rows))
	for i, row := range r.rows {
		r.index[row.StudentID] = i
	}
}

// Rows returns a copy of the current rows.
func (r *Roster) Rows() []StudentRow {
	out := make([]StudentRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// Toggle sets one student's flag for one session. Other sessions and other
// students are left untouched.
func (r *Roster) Toggle(studentID int64, s Session, present bool) error {
	i, ok := r.index[studentID]
	if !ok {
		return fmt.Errorf("toggle %d: %w", studentID, ErrStudentNotFound)
	}
	v := present
	r.rows[i].set(s, &v)
	return nil
}

// Merge loads server rows for session s. Students already on the roster
// keep their flag for the other session; the server's list defines order
// and membership.
func (r *Roster) Merge(s Session, rows []StudentRow) {
	other := s.Other()
	merged := make([]StudentRow, len(rows))
	for i, row := range rows {
		if j, ok := r.index[row.StudentID]; ok {
			row.set(other, r.rows[j].Flag(other))
		}
		merged[i] = row
	}
	r.reset(merged)
}

// Submission resolves the session into a full list of marks. Undecided
// students are submitted as absent.
func (r *Roster) Submission(s Session) []Mark {
	out := make([]Mark, 0, len(r.rows))
	for _, row := range r.rows {
		f := row.Flag(s)
		out = append(out, Mark{StudentID: row.StudentID, IsPresent: f != nil && *f})
	}
	return out
}

// Stats counts present, absent and undecided students for s.
func (r *Roster) Stats(s Session) Stats {
	st := Stats{Total: len(r.rows)}
	for _, row := range r.rows {
		switch f := row.Flag(s); {
		case f == nil:
			st.Unmarked++
		case *f:
			st.Present++
		default:
			st.Absent++
		}
	}
	return st
}
