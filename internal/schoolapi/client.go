package schoolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"classdesk/internal/attendance"
	"classdesk/internal/metrics"
)

const basePath = "/student/manage_attendance"

// FallbackMessage is shown when the service gives no usable error text.
const FallbackMessage = "Something went wrong"

// ErrUnavailable wraps transport failures reaching the school service.
var ErrUnavailable = errors.New("school service unavailable")

// APIError is a non-2xx answer from the school service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("school service %d: %s", e.Status, e.Message)
}

// Message extracts the user-facing text of err, using the server's message
// when there is one.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}

type tokenKey struct{}

// WithToken returns a context whose school service calls carry token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the token attached by WithToken, if any.
func TokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

// Client calls the school attendance service. It implements attendance.Remote.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

var _ attendance.Remote = (*Client)(nil)

// FetchSession returns the roster and status of one session half.
func (c *Client) FetchSession(ctx context.Context, sel attendance.Selection) (attendance.SessionData, error) {
	q := url.Values{}
	q.Set("class_section_id", strconv.FormatInt(sel.ClassSectionID, 10))
	q.Set("session", sel.Session.Code())
	q.Set("date", sel.DateString())
	q.Set("school_id", strconv.FormatInt(sel.SchoolID, 10))

	var out struct {
		Data struct {
			Session         string       `json:"session"`
			AttendanceTaken bool         `json:"attendance_taken"`
			IsHoliday       bool         `json:"is_holiday"`
			AttendanceData  []studentRow `json:"attendance_data"`
		} `json:"data"`
	}
	if err := c.do(ctx, "fetch_session", http.MethodGet, "/getAttendanceByClassSection", q, nil, &out); err != nil {
		return attendance.SessionData{}, err
	}

	rows := make([]attendance.StudentRow, 0, len(out.Data.AttendanceData))
	for _, r := range out.Data.AttendanceData {
		row := attendance.StudentRow{StudentID: r.StudentID, Name: r.StudentName, RollNumber: string(r.RollNumber)}
		if sel.Session == attendance.Afternoon {
			row.Afternoon = r.IsPresent
		} else {
			row.Morning = r.IsPresent
		}
		rows = append(rows, row)
	}
	return attendance.SessionData{
		Session: sel.Session,
		Rows:    rows,
		Holiday: out.Data.IsHoliday,
		Taken:   out.Data.AttendanceTaken,
	}, nil
}

// FetchPast returns the aggregated two-session report for the selected day.
func (c *Client) FetchPast(ctx context.Context, sel attendance.Selection) (attendance.PastReport, error) {
	q := url.Values{}
	q.Set("class_section_id", strconv.FormatInt(sel.ClassSectionID, 10))
	q.Set("date", sel.DateString())
	q.Set("school_id", strconv.FormatInt(sel.SchoolID, 10))

	var out struct {
		Data struct {
			AttendanceData   []pastRow `json:"attendance_data"`
			MorningHoliday   bool      `json:"morning_holiday"`
			AfternoonHoliday bool      `json:"afternoon_holiday"`
		} `json:"data"`
	}
	if err := c.do(ctx, "fetch_past", http.MethodGet, "/getPastAttendance", q, nil, &out); err != nil {
		return attendance.PastReport{}, err
	}

	rep := attendance.PastReport{
		Date:             sel.DateString(),
		ClassSectionID:   sel.ClassSectionID,
		Records:          make([]attendance.PastRecord, 0, len(out.Data.AttendanceData)),
		MorningHoliday:   out.Data.MorningHoliday,
		AfternoonHoliday: out.Data.AfternoonHoliday,
	}
	for _, r := range out.Data.AttendanceData {
		rep.Records = append(rep.Records, attendance.PastRecord{
			StudentID:   r.StudentID,
			RollNumber:  string(r.RollNumber),
			StudentName: r.StudentName,
			Morning:     r.Morning,
			Afternoon:   r.Afternoon,
		})
	}
	return rep, nil
}

// Submit sends the full roster for one session.
func (c *Client) Submit(ctx context.Context, sel attendance.Selection, marks []attendance.Mark) (string, error) {
	body := map[string]interface{}{
		"class_section_id": sel.ClassSectionID,
		"session":          sel.Session.Code(),
		"date":             sel.DateString(),
		"school_id":        sel.SchoolID,
		"attendance_data":  marks,
	}
	var out messageResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/markAttendance", nil, body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// MarkHoliday flags the selected day as a holiday for scope.
func (c *Client) MarkHoliday(ctx context.Context, sel attendance.Selection, scope attendance.HolidayScope) (string, error) {
	return c.holiday(ctx, "mark_holiday", "/markHoliday", sel, scope)
}

// UnmarkHoliday clears a holiday flag.
func (c *Client) UnmarkHoliday(ctx context.Context, sel attendance.Selection, scope attendance.HolidayScope) (string, error) {
	return c.holiday(ctx, "unmark_holiday", "/unmarkHoliday", sel, scope)
}

func (c *Client) holiday(ctx context.Context, op, path string, sel attendance.Selection, scope attendance.HolidayScope) (string, error) {
	body := map[string]interface{}{
		"class_section_id": sel.ClassSectionID,
		"date":             sel.DateString(),
		"school_id":        sel.SchoolID,
		"session":          string(scope),
	}
	var out messageResponse
	if err := c.do(ctx, op, http.MethodPost, path, nil, body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, payload, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RemoteRequests.WithLabelValues(op, outcome).Inc()
		metrics.RemoteLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	endpoint := c.BaseURL + basePath + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := TokenFrom(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Status: resp.StatusCode, Message: errorText(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func errorText(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	default:
		return e.Detail
	}
}
