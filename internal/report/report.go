// Package report renders a day's attendance as an xlsx workbook.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"classdesk/internal/attendance"
)

const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
	StatusHoliday = "Holiday"

	OverallFullDay = "Full Day Present"
	OverallPartial = "Partial"
	OverallAbsent  = "Full Day Absent"

	// ContentType is the MIME type of Build's output.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName = "Attendance"
)

// Columns are the header cells of the exported sheet.
var Columns = []string{"Roll No", "Student Name", "Morning", "Afternoon", "Overall"}

// SessionStatus is the text of a session cell in the export.
func SessionStatus(v *bool, holiday bool) string {
	if holiday {
		return StatusHoliday
	}
	return Badge(v)
}

// Badge is the per-session status shown on the desk. It does not look at
// holiday flags.
func Badge(v *bool) string {
	if v != nil && *v {
		return StatusPresent
	}
	return StatusAbsent
}

// OverallStatus combines both halves. A holiday half counts as attended,
// but a holiday never produces Partial: one attended half next to a
// holiday is reported as absent.
func OverallStatus(morning, afternoon *bool, morningHoliday, afternoonHoliday bool) string {
	if morningHoliday && afternoonHoliday {
		return StatusHoliday
	}
	m := morningHoliday || (morning != nil && *morning)
	a := afternoonHoliday || (afternoon != nil && *afternoon)
	switch {
	case m && a:
		return OverallFullDay
	case m != a && !morningHoliday && !afternoonHoliday:
		return OverallPartial
	default:
		return OverallAbsent
	}
}

// Meta names the class and day of a report.
type Meta struct {
	ClassLabel string
	Date       time.Time
}

// FileName is Attendance_<ClassLabel>_<dd-MM-yyyy>.xlsx.
func FileName(classLabel string, date time.Time) string {
	label := strings.NewReplacer("/", "-", `\`, "-", `"`, "").Replace(strings.TrimSpace(classLabel))
	return fmt.Sprintf("Attendance_%s_%s.xlsx", label, date.Format("02-01-2006"))
}

// Row is one rendered line of the sheet.
type Row struct {
	RollNumber  string
	StudentName string
	Morning     string
	Afternoon   string
	Overall     string
}

// Rows derives the status text for every record.
func Rows(rep attendance.PastReport) []Row {
	out := make([]Row, 0, len(rep.Records))
	for _, r := range rep.Records {
		out = append(out, Row{
			RollNumber:  r.RollNumber,
			StudentName: r.StudentName,
			Morning:     SessionStatus(r.Morning, rep.MorningHoliday),
			Afternoon:   SessionStatus(r.Afternoon, rep.AfternoonHoliday),
			Overall:     OverallStatus(r.Morning, r.Afternoon, rep.MorningHoliday, rep.AfternoonHoliday),
		})
	}
	return out
}

// Build renders rep as an xlsx workbook.
func Build(rep attendance.PastReport, meta Meta) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("report: rename sheet: %w", err)
	}
	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("report: header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "E1", styles.header); err != nil {
		return nil, fmt.Errorf("report: header style: %w", err)
	}

	for i, r := range Rows(rep) {
		line := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, line)
		values := []interface{}{r.RollNumber, r.StudentName, r.Morning, r.Afternoon, r.Overall}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("report: row %d: %w", line, err)
		}
		for col, text := range map[int]string{3: r.Morning, 4: r.Afternoon, 5: r.Overall} {
			style, ok := styles.forStatus(text)
			if !ok {
				continue
			}
			ref, _ := excelize.CoordinatesToCellName(col, line)
			if err := f.SetCellStyle(sheetName, ref, ref, style); err != nil {
				return nil, fmt.Errorf("report: style %s: %w", ref, err)
			}
		}
	}

	for col, width := range map[string]float64{"A": 10, "B": 28, "C": 12, "D": 12, "E": 18} {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("report: width %s: %w", col, err)
		}
	}
	if meta.ClassLabel != "" {
		_ = f.SetDocProps(&excelize.DocProperties{
			Title:   fmt.Sprintf("Attendance %s %s", meta.ClassLabel, meta.Date.Format("02-01-2006")),
			Creator: "classdesk",
		})
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("report: write: %w", err)
	}
	return buf.Bytes(), nil
}

type styleSet struct {
	header  int
	present int
	absent  int
	partial int
	holiday int
}

func (s styleSet) forStatus(text string) (int, bool) {
	switch text {
	case StatusPresent, OverallFullDay:
		return s.present, true
	case StatusAbsent, OverallAbsent:
		return s.absent, true
	case OverallPartial:
		return s.partial, true
	case StatusHoliday:
		return s.holiday, true
	}
	return 0, false
}

func newStyles(f *excelize.File) (styleSet, error) {
	var (
		s   styleSet
		err error
	)
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, fmt.Errorf("report: header style: %w", err)
	}
	fonts := []struct {
		dst *int
		f   excelize.Font
	}{
		{&s.present, excelize.Font{Bold: true, Color: "008000"}},
		{&s.absent, excelize.Font{Bold: true, Color: "FF0000"}},
		{&s.partial, excelize.Font{Bold: true, Color: "FFA500"}},
		{&s.holiday, excelize.Font{Italic: true, Color: "808080"}},
	}
	for _, ft := range fonts {
		font := ft.f
		if *ft.dst, err = f.NewStyle(&excelize.Style{Font: &font}); err != nil {
			return s, fmt.Errorf("report: status style: %w", err)
		}
	}
	return s, nil
}
