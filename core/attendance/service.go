package attendance

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
)

type (
	// Mark is a manual attendance entry.
	Mark struct {
		StudentID string `json:"student_id" validate:"required"`
		GroupID   string `json:"group_id" validate:"required"`
		Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
		Status    Status `json:"status" validate:"required,oneof=present absent late excused"`
		Notes     string `json:"notes" validate:"max=500"`
	}

	// Scan is the content of a student's QR code, read by the instructor's device.
	Scan struct {
		QRData  string `json:"qr_data" validate:"required"`
		GroupID string `json:"group_id"`
		Date    string `json:"date" validate:"omitempty,datetime=2006-01-02"`
		Status  Status `json:"status" validate:"omitempty,oneof=present late"`
	}

	// PhoneMark identifies the student by phone number.
	PhoneMark struct {
		Phone   string `json:"phone" validate:"required,phone"`
		GroupID string `json:"group_id" validate:"required"`
		Date    string `json:"date" validate:"omitempty,datetime=2006-01-02"`
		Status  Status `json:"status" validate:"omitempty,oneof=present absent late excused"`
		Notes   string `json:"notes" validate:"max=500"`
	}

	// Change is a correction of an existing entry; nil/empty fields are kept.
	Change struct {
		Status Status  `json:"status" validate:"omitempty,oneof=present absent late excused"`
		Notes  *string `json:"notes" validate:"omitempty,max=500"`
	}
)

type Service struct {
	records  *record.Service
	users    *user.Service
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

// NewService returns the attendance service. Session dates default to today in loc.
func NewService(store record.Store, users *user.Service, validate *validator.Validate, loc *time.Location) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		records:  record.NewService(store, record.KindAttendance, record.ModeUpsert),
		users:    users,
		validate: validate,
		loc:      loc,
		now:      time.Now,
	}
}

// Take records the attendance of a student.
func (svc *Service) Take(ctx context.Context, p record.Principal, m Mark) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	m.StudentID = core.CleanString(m.StudentID)
	m.GroupID = core.CleanString(m.GroupID)
	if err := svc.validate.Struct(m); err != nil {
		return Entry{}, err
	}
	student, err := svc.users.GetByID(ctx, m.StudentID)
	if err != nil {
		return Entry{}, err
	}
	return svc.take(ctx, p, student, m.GroupID, m.Date, m.Status, MethodManual, m.Notes)
}

// ScanQR records a student as present from the content of their QR code: either the bare user id,
// or a JSON object with the user id and optionally the group id.
func (svc *Service) ScanQR(ctx context.Context, p record.Principal, s Scan) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	if err := svc.validate.Struct(s); err != nil {
		return Entry{}, err
	}
	studentID, groupID, err := ParseQR(s.QRData)
	if err != nil {
		return Entry{}, err
	}
	if g := core.CleanString(s.GroupID); g != "" {
		groupID = g
	}
	if groupID == "" {
		return Entry{}, core.NewFieldError("group_id", "this field is required")
	}
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return Entry{}, err
	}
	status := s.Status
	if status == "" {
		status = StatusPresent
	}
	return svc.take(ctx, p, student, groupID, s.Date, status, MethodQR, "")
}

// TakeByPhone records the attendance of the student owning the phone number.
func (svc *Service) TakeByPhone(ctx context.Context, p record.Principal, m PhoneMark) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	m.GroupID = core.CleanString(m.GroupID)
	if err := svc.validate.Struct(m); err != nil {
		return Entry{}, err
	}
	student, err := svc.users.GetByPhone(ctx, m.Phone)
	if err != nil {
		return Entry{}, err
	}
	status := m.Status
	if status == "" {
		status = StatusPresent
	}
	return svc.take(ctx, p, student, m.GroupID, m.Date, status, MethodPhone, m.Notes)
}

func (svc *Service) take(
	ctx context.Context,
	p record.Principal,
	student user.User,
	groupID, date string,
	status Status,
	method Method,
	notes string,
) (Entry, error) {
	if !student.Active() {
		return Entry{}, core.NewFieldError("student", "this account is deactivated")
	}
	now := svc.now()
	if date == "" {
		date = now.In(svc.loc).Format(DateLayout)
	}
	att := Attendance{
		GroupID: groupID,
		Date:    date,
		Status:  status,
		Method:  method,
		TakenBy: p.ID,
		TakenAt: now.UTC(),
		Notes:   core.CleanString(notes),
	}
	data, err := json.Marshal(att)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encoding attendance")
	}
	rec, _, err := svc.records.Upsert(ctx, p, record.Key{
		UserID:   student.ID,
		CourseID: groupID,
		LessonID: date,
		Type:     SessionType,
	}, data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Record: rec, Attendance: att}, nil
}

// ListForUser returns the entries of userID (empty for the caller) whose session date falls
// within [from, to], read in the service location. Zero bounds are open.
func (svc *Service) ListForUser(ctx context.Context, p record.Principal, userID string, from, to time.Time) ([]Entry, error) {
	period, err := svc.period(from, to)
	if err != nil {
		return []Entry{}, err
	}
	recs, err := svc.records.Query(ctx, p, record.Filter{UserID: userID, Type: SessionType})
	if err != nil {
		return []Entry{}, err
	}
	return decodeEntries(recs, period)
}

// ListForGroup returns the entries of every student of groupID within [from, to].
func (svc *Service) ListForGroup(ctx context.Context, p record.Principal, groupID string, from, to time.Time) ([]Entry, error) {
	if groupID = core.CleanString(groupID); groupID == "" {
		return []Entry{}, core.NewFieldError("group_id", "this field is required")
	}
	period, err := svc.period(from, to)
	if err != nil {
		return []Entry{}, err
	}
	recs, err := svc.records.QueryAll(ctx, p, record.Filter{CourseID: groupID, Type: SessionType})
	if err != nil {
		return []Entry{}, err
	}
	return decodeEntries(recs, period)
}

// sessionPeriod bounds session dates; empty bounds are open. Dates compare as strings.
type sessionPeriod struct{ from, to string }

func (sp sessionPeriod) contains(date string) bool {
	return (sp.from == "" || date >= sp.from) && (sp.to == "" || date <= sp.to)
}

func (svc *Service) period(from, to time.Time) (sessionPeriod, error) {
	var sp sessionPeriod
	if !from.IsZero() {
		sp.from = from.In(svc.loc).Format(DateLayout)
	}
	if !to.IsZero() {
		sp.to = to.In(svc.loc).Format(DateLayout)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return sp, core.NewFieldError("to", "must not be before from")
	}
	return sp, nil
}

func decodeEntries(recs []record.Record, period sessionPeriod) ([]Entry, error) {
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		if !period.contains(rec.Key.LessonID) {
			continue
		}
		var att Attendance
		if err := rec.Decode(&att); err != nil {
			return []Entry{}, errors.Wrapf(err, "decoding attendance %s", rec.ID)
		}
		entries = append(entries, Entry{Record: rec, Attendance: att})
	}
	return entries, nil
}

func (svc *Service) Stats(ctx context.Context, p record.Principal, userID string, from, to time.Time) (Stats, error) {
	entries, err := svc.ListForUser(ctx, p, userID, from, to)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(entries), nil
}

// Update changes the status & notes of the entry with id. The student, group and date stay.
func (svc *Service) Update(ctx context.Context, p record.Principal, id string, c Change) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	if err := svc.validate.Struct(c); err != nil {
		return Entry{}, err
	}
	rec, err := svc.records.Get(ctx, p, id)
	if err != nil {
		return Entry{}, err
	}
	var att Attendance
	if err = rec.Decode(&att); err != nil {
		return Entry{}, errors.Wrapf(err, "decoding attendance %s", rec.ID)
	}
	if c.Status != "" {
		att.Status = c.Status
	}
	if c.Notes != nil {
		att.Notes = core.CleanString(*c.Notes)
	}
	att.TakenBy = p.ID
	att.TakenAt = svc.now().UTC()

	data, err := json.Marshal(att)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encoding attendance")
	}
	rec, _, err = svc.records.Upsert(ctx, p, rec.Key, data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Record: rec, Attendance: att}, nil
}

func (svc *Service) Delete(ctx context.Context, p record.Principal, id string) (string, error) {
	if err := p.RequireElevated(); err != nil {
		return "", err
	}
	return svc.records.Delete(ctx, p, id)
}

// MonthRange returns the first and last instants of month ("2006-01", empty for the current month) in the service location.
func (svc *Service) MonthRange(month string) (time.Time, time.Time, error) {
	var start time.Time
	if month == "" {
		now := svc.now().In(svc.loc)
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, svc.loc)
	} else {
		t, err := time.ParseInLocation("2006-01", month, svc.loc)
		if err != nil {
			return time.Time{}, time.Time{}, core.NewFieldError("month", "must be formatted as YYYY-MM")
		}
		start = t
	}
	return start, start.AddDate(0, 1, 0).Add(-time.Nanosecond), nil
}

// ParseQR extracts the user id and the optional group id from QR code data.
func ParseQR(data string) (userID, groupID string, err error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "{") {
		if data == "" {
			return "", "", core.NewFieldError("qr_data", "this field is required")
		}
		return data, "", nil
	}

	var payload struct {
		UserID   string `json:"userId"`
		UserIDSC string `json:"user_id"`
		GroupID  string `json:"groupId"`
		GroupSC  string `json:"group_id"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return "", "", core.NewFieldError("qr_data", "invalid QR code")
	}
	userID = core.CleanString(payload.UserID)
	if userID == "" {
		userID = core.CleanString(payload.UserIDSC)
	}
	groupID = core.CleanString(payload.GroupID)
	if groupID == "" {
		groupID = core.CleanString(payload.GroupSC)
	}
	if userID == "" {
		return "", "", core.NewFieldError("qr_data", "invalid QR code: missing user id")
	}
	return userID, groupID, nil
}
