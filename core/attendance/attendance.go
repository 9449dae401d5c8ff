// Package attendance records whether students attended their group's session on a given day.
// Taking the attendance of a student twice on the same day replaces the first entry.
package attendance

import (
	"math"
	"time"

	"github.com/trezcool/chuo/core/record"
)

// DateLayout is the layout of session dates.
const DateLayout = "2006-01-02"

// SessionType is the record type of attendance entries.
const SessionType = "session"

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

type Method string

const (
	MethodQR     Method = "qr"
	MethodPhone  Method = "phone"
	MethodManual Method = "manual"
)

// Attendance is the payload of an attendance record.
type Attendance struct {
	GroupID string    `json:"group_id"`
	Date    string    `json:"date"`
	Status  Status    `json:"status"`
	Method  Method    `json:"method"`
	TakenBy string    `json:"taken_by"`
	TakenAt time.Time `json:"taken_at"`
	Notes   string    `json:"notes,omitempty"`
}

type Entry struct {
	record.Record
	Attendance Attendance `json:"-"`
}

// Stats counts the entries of a student per status.
type Stats struct {
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Excused int     `json:"excused"`
	Rate    float64 `json:"attendance_rate"` // (present + late) / total, in percent
}

func computeStats(entries []Entry) Stats {
	var st Stats
	for _, e := range entries {
		st.Total++
		switch e.Attendance.Status {
		case StatusPresent:
			st.Present++
		case StatusAbsent:
			st.Absent++
		case StatusLate:
			st.Late++
		case StatusExcused:
			st.Excused++
		}
	}
	if st.Total > 0 {
		st.Rate = math.Round(float64(st.Present+st.Late)/float64(st.Total)*10000) / 100
	}
	return st
}
