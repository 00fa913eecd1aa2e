package schoolapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdesk/internal/attendance"
)

func testSelection() attendance.Selection {
	return attendance.Selection{
		Date:           time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC),
		ClassSectionID: 42,
		ClassLabel:     "5-A",
		SchoolID:       7,
		Session:        attendance.Afternoon,
	}
}

func TestClient_FetchSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/student/manage_attendance/getAttendanceByClassSection", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "42", q.Get("class_section_id"))
		assert.Equal(t, "A", q.Get("session"))
		assert.Equal(t, "2024-03-13", q.Get("date"))
		assert.Equal(t, "7", q.Get("school_id"))
		_, _ = w.Write([]byte(`{"data":{"session":"A","attendance_taken":true,"is_holiday":false,"attendance_data":[
			{"student_id":1,"roll_number":"01","student_name":"Asha","is_present":true},
			{"student_id":2,"roll_number":7,"student_name":"Bilal","is_present":null},
			{"student_id":3,"roll_number":null,"student_name":"Chen","is_present":false}
		]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", time.Second)
	data, err := c.FetchSession(WithToken(context.Background(), "tok-1"), testSelection())
	require.NoError(t, err)

	assert.True(t, data.Taken)
	assert.False(t, data.Holiday)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "01", data.Rows[0].RollNumber)
	assert.True(t, *data.Rows[0].Afternoon)
	assert.Nil(t, data.Rows[0].Morning)
	assert.Equal(t, "7", data.Rows[1].RollNumber)
	assert.Nil(t, data.Rows[1].Afternoon)
	assert.Equal(t, "", data.Rows[2].RollNumber)
	assert.False(t, *data.Rows[2].Afternoon)
}

func TestClient_FetchPast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/student/manage_attendance/getPastAttendance", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("session"))
		_, _ = w.Write([]byte(`{"data":{"morning_holiday":true,"afternoon_holiday":false,"attendance_data":[
			{"student_id":1,"roll_number":"1","student_name":"Asha","morning":null,"afternoon":true}
		]}}`))
	}))
	defer srv.Close()

	rep, err := New(srv.URL, time.Second).FetchPast(context.Background(), testSelection())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-13", rep.Date)
	assert.True(t, rep.MorningHoliday)
	require.Len(t, rep.Records, 1)
	assert.Nil(t, rep.Records[0].Morning)
	assert.True(t, *rep.Records[0].Afternoon)
}

func TestClient_Submit(t *testing.T) {
	var got struct {
		ClassSectionID int64             `json:"class_section_id"`
		Session        string            `json:"session"`
		Date           string            `json:"date"`
		SchoolID       int64             `json:"school_id"`
		AttendanceData []attendance.Mark `json:"attendance_data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/student/manage_attendance/markAttendance", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"Afternoon attendance submitted successfully!"}`))
	}))
	defer srv.Close()

	marks := []attendance.Mark{{StudentID: 1, IsPresent: true}, {StudentID: 2}}
	msg, err := New(srv.URL, time.Second).Submit(context.Background(), testSelection(), marks)
	require.NoError(t, err)
	assert.Equal(t, "Afternoon attendance submitted successfully!", msg)
	assert.Equal(t, int64(42), got.ClassSectionID)
	assert.Equal(t, "A", got.Session)
	assert.Equal(t, "2024-03-13", got.Date)
	assert.Equal(t, int64(7), got.SchoolID)
	assert.Equal(t, marks, got.AttendanceData)
}

func TestClient_Holiday(t *testing.T) {
	var paths, scopes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		paths = append(paths, r.URL.Path)
		scopes = append(scopes, body["session"].(string))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.MarkHoliday(context.Background(), testSelection(), attendance.HolidayFullDay)
	require.NoError(t, err)
	_, err = c.UnmarkHoliday(context.Background(), testSelection(), attendance.HolidayAfternoon)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/student/manage_attendance/markHoliday",
		"/student/manage_attendance/unmarkHoliday",
	}, paths)
	assert.Equal(t, []string{"F", "A"}, scopes)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "error field", status: http.StatusBadRequest, body: `{"error":"Attendance already marked"}`, wantMsg: "Attendance already marked"},
		{name: "message field", status: http.StatusConflict, body: `{"message":"Holiday exists"}`, wantMsg: "Holiday exists"},
		{name: "no body", status: http.StatusInternalServerError, body: ``, wantMsg: FallbackMessage},
		{name: "html body", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantMsg: FallbackMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Submit(context.Background(), testSelection(), nil)
			require.Error(t, err)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMsg, Message(err))
		})
	}
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).FetchPast(context.Background(), testSelection())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, FallbackMessage, Message(err))
}
