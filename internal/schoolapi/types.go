package schoolapi

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type studentRow struct {
	StudentID   int64      `json:"student_id"`
	RollNumber  rollNumber `json:"roll_number"`
	StudentName string     `json:"student_name"`
	IsPresent   *bool      `json:"is_present"`
}

type pastRow struct {
	StudentID   int64      `json:"student_id"`
	RollNumber  rollNumber `json:"roll_number"`
	StudentName string     `json:"student_name"`
	Morning     *bool      `json:"morning"`
	Afternoon   *bool      `json:"afternoon"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// rollNumber accepts the string, number or null forms the service emits.
type rollNumber string

func (r *rollNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = rollNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*r = rollNumber(strconv.FormatInt(i, 10))
		return nil
	}
	*r = rollNumber(n.String())
	return nil
}
