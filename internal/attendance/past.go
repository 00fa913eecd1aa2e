package attendance

// PastRecord is a read-only row of the aggregated report for one day.
type PastRecord struct {
	StudentID   int64  `json:"student_id"`
	RollNumber  string `json:"roll_number"`
	StudentName string `json:"student_name"`
	Morning     *bool  `json:"morning"`
	Afternoon   *bool  `json:"afternoon"`
}

// PastReport is the server's aggregated view of both sessions of a day.
type PastReport struct {
	Date             string       `json:"date"`
	ClassSectionID   int64        `json:"class_section_id"`
	Records          []PastRecord `json:"records"`
	MorningHoliday   bool         `json:"morning_holiday"`
	AfternoonHoliday bool         `json:"afternoon_holiday"`
}

// Holiday reports the holiday flag for one session.
func (p PastReport) Holiday(s Session) bool {
	if s == Afternoon {
		return p.AfternoonHoliday
	}
	return p.MorningHoliday
}

// Counts returns how many students were present and absent in s. Students
// with no record for s are counted in neither.
func (p PastReport) Counts(s Session) (present, absent int) {
	for _, r := range p.Records {
		v := r.Morning
		if s == Afternoon {
			v = r.Afternoon
		}
		if v == nil {
			continue
		}
		if *v {
			present++
		} else {
			absent++
		}
	}
	return present, absent
}
