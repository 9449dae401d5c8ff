// Package student aggregates everything known about a student for the student details view.
package student

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/grade"
	"github.com/trezcool/chuo/core/record"
)

// Section names
const (
	SectionAttendance    = "attendance"
	SectionExamResults   = "exam_results"
	SectionAchievements  = "achievements"
	SectionOfflineGrades = "offline_grades"
	SectionPayment       = "payment"
)

// ErrPaymentsNotConfigured is reported in the payment section when no payment source is set up.
var ErrPaymentsNotConfigured = errors.New("payment status source is not configured")

// PartialFetchError tells why a section of the details could not be loaded.
type PartialFetchError struct {
	Section string `json:"section"`
	Reason  string `json:"reason"`
	err     error
}

func (e *PartialFetchError) Error() string {
	return e.Section + ": " + e.Reason
}

func (e *PartialFetchError) Unwrap() error {
	return e.err
}

// Section is either the data of a lookup or the reason it failed, with empty data.
type Section[T any] struct {
	Data  T                  `json:"data"`
	Error *PartialFetchError `json:"error"`
}

func (s Section[T]) OK() bool { return s.Error == nil }

type (
	PaymentStatus struct {
		Month    string     `json:"month"`
		Status   string     `json:"status"` // paid, partial, unpaid
		Amount   float64    `json:"amount"`
		Paid     float64    `json:"paid"`
		Currency string     `json:"currency"`
		PaidAt   *time.Time `json:"paid_at"`
	}

	// PaymentStatusSource reports whether a student paid the fees of a month ("2006-01").
	PaymentStatusSource interface {
		PaymentStatus(ctx context.Context, studentID, month string) (PaymentStatus, error)
	}

	AttendanceSummary struct {
		Entries []attendance.Entry `json:"entries"`
		Stats   attendance.Stats   `json:"stats"`
	}

	Details struct {
		StudentID     string                       `json:"student_id"`
		Month         string                       `json:"month"`
		Attendance    Section[AttendanceSummary]   `json:"attendance"`
		ExamResults   Section[[]examresult.Entry]  `json:"exam_results"`
		Achievements  Section[[]achievement.Entry] `json:"achievements"`
		OfflineGrades Section[[]grade.Entry]       `json:"offline_grades"`
		Payment       Section[*PaymentStatus]      `json:"payment"`
	}
)

// Failures lists the sections that could not be loaded.
func (d Details) Failures() []*PartialFetchError {
	errs := make([]*PartialFetchError, 0)
	for _, err := range []*PartialFetchError{
		d.Attendance.Error, d.ExamResults.Error, d.Achievements.Error, d.OfflineGrades.Error, d.Payment.Error,
	} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type Service struct {
	attendance   *attendance.Service
	results      *examresult.Service
	achievements *achievement.Service
	grades       *grade.Service
	payments     PaymentStatusSource // optional
	logger       core.Logger
}

// NewService returns the details service. payments may be nil.
func NewService(
	att *attendance.Service,
	results *examresult.Service,
	achievements *achievement.Service,
	grades *grade.Service,
	payments PaymentStatusSource,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(att, "attendance"),
		vala.IsNotNil(results, "results"),
		vala.IsNotNil(achievements, "achievements"),
		vala.IsNotNil(grades, "grades"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{
		attendance:   att,
		results:      results,
		achievements: achievements,
		grades:       grades,
		payments:     payments,
		logger:       logger,
	}
}

// fetch runs fn and folds its outcome into a section. A failure yields empty instead of data.
func fetch[T any](ctx context.Context, logger core.Logger, name string, empty T, fn func(context.Context) (T, error)) Section[T] {
	data, err := fn(ctx)
	if err != nil {
		logger.Warn(fmt.Sprintf("student details: loading %s: %v", name, err))
		return Section[T]{Data: empty, Error: &PartialFetchError{Section: name, Reason: err.Error(), err: err}}
	}
	return Section[T]{Data: data}
}

// Details loads the sections concurrently. Only a bad request fails the whole call: an
// unknown month, or a student the principal may not see. Failed lookups are reported per section.
func (svc *Service) Details(ctx context.Context, p record.Principal, studentID, month string) (Details, error) {
	owner, err := p.Owner(studentID)
	if err != nil {
		return Details{}, err
	}
	from, to, err := svc.attendance.MonthRange(month)
	if err != nil {
		return Details{}, err
	}
	month = from.Format("2006-01")

	d := Details{StudentID: owner, Month: month}
	var g errgroup.Group

	g.Go(func() error {
		d.Attendance = fetch(ctx, svc.logger, SectionAttendance, AttendanceSummary{Entries: []attendance.Entry{}},
			func(ctx context.Context) (AttendanceSummary, error) {
				entries, err := svc.attendance.ListForUser(ctx, p, owner, from, to)
				if err != nil {
					return AttendanceSummary{}, err
				}
				st, err := svc.attendance.Stats(ctx, p, owner, from, to)
				if err != nil {
					return AttendanceSummary{}, err
				}
				return AttendanceSummary{Entries: entries, Stats: st}, nil
			})
		return nil
	})
	g.Go(func() error {
		d.ExamResults = fetch(ctx, svc.logger, SectionExamResults, []examresult.Entry{},
			func(ctx context.Context) ([]examresult.Entry, error) {
				return svc.results.ListForUser(ctx, p, owner, "")
			})
		return nil
	})
	g.Go(func() error {
		d.Achievements = fetch(ctx, svc.logger, SectionAchievements, []achievement.Entry{},
			func(ctx context.Context) ([]achievement.Entry, error) {
				return svc.achievements.ListForUser(ctx, p, owner)
			})
		return nil
	})
	g.Go(func() error {
		d.OfflineGrades = fetch(ctx, svc.logger, SectionOfflineGrades, []grade.Entry{},
			func(ctx context.Context) ([]grade.Entry, error) {
				return svc.grades.ListForUser(ctx, p, owner, "")
			})
		return nil
	})
	g.Go(func() error {
		d.Payment = fetch(ctx, svc.logger, SectionPayment, (*PaymentStatus)(nil),
			func(ctx context.Context) (*PaymentStatus, error) {
				if svc.payments == nil {
					return nil, ErrPaymentsNotConfigured
				}
				st, err := svc.payments.PaymentStatus(ctx, owner, month)
				if err != nil {
					return nil, err
				}
				return &st, nil
			})
		return nil
	})

	_ = g.Wait() // sections never fail the group
	return d, nil
}
