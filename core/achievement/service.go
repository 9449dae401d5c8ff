// Package achievement awards badges to students. A student holds a given achievement once;
// awarding it again updates it.
package achievement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
)

type (
	Achievement struct {
		Title       string    `json:"title"`
		Description string    `json:"description,omitempty"`
		Category    string    `json:"category,omitempty"`
		Points      int       `json:"points"`
		AwardedBy   string    `json:"awarded_by"`
		AwardedAt   time.Time `json:"awarded_at"`
	}

	Award struct {
		Title       string `json:"title" validate:"required,max=150"`
		Description string `json:"description" validate:"max=1000"`
		Category    string `json:"category" validate:"omitempty,oneof=academic attendance behavior participation other"`
		Points      int    `json:"points" validate:"min=0,max=1000"`
	}

	// Change edits an awarded achievement. The title identifies it and cannot change.
	Change struct {
		Description *string `json:"description" validate:"omitempty,max=1000"`
		Category    *string `json:"category" validate:"omitempty,oneof=academic attendance behavior participation other"`
		Points      *int    `json:"points" validate:"omitempty,min=0,max=1000"`
	}

	Entry struct {
		record.Record
		Achievement Achievement `json:"-"`
	}
)

type Service struct {
	records  *record.Service
	users    *user.Service
	validate *validator.Validate
}

func NewService(store record.Store, users *user.Service, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	return &Service{
		records:  record.NewService(store, record.KindAchievement, record.ModeUpsert),
		users:    users,
		validate: validate,
	}
}

// Award gives the achievement to studentID. Achievements are identified by their title.
func (svc *Service) Award(ctx context.Context, p record.Principal, studentID string, a Award) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	if studentID = core.CleanString(studentID); studentID == "" {
		return Entry{}, core.NewFieldError("user", "this field is required")
	}
	a.Title = core.CleanString(a.Title)
	a.Category = core.CleanString(a.Category, true /* lower */)
	if err := svc.validate.Struct(a); err != nil {
		return Entry{}, err
	}
	slug := core.Slugify(a.Title)
	if slug == "" {
		return Entry{}, core.NewFieldError("title", "must contain letters or digits")
	}
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return Entry{}, err
	}

	ach := Achievement{
		Title:       a.Title,
		Description: core.CleanString(a.Description),
		Category:    a.Category,
		Points:      a.Points,
		AwardedBy:   p.ID,
		AwardedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(ach)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encoding achievement")
	}
	rec, _, err := svc.records.Upsert(ctx, p, record.Key{UserID: student.ID, Type: slug}, data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Record: rec, Achievement: ach}, nil
}

// Update edits the achievement with id.
func (svc *Service) Update(ctx context.Context, p record.Principal, id string, c Change) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	if c.Category != nil {
		cat := core.CleanString(*c.Category, true /* lower */)
		c.Category = &cat
	}
	if err := svc.validate.Struct(c); err != nil {
		return Entry{}, err
	}
	rec, err := svc.records.Get(ctx, p, id)
	if err != nil {
		return Entry{}, err
	}
	var ach Achievement
	if err = rec.Decode(&ach); err != nil {
		return Entry{}, errors.Wrapf(err, "decoding achievement %s", rec.ID)
	}
	if c.Description != nil {
		ach.Description = core.CleanString(*c.Description)
	}
	if c.Category != nil {
		ach.Category = *c.Category
	}
	if c.Points != nil {
		ach.Points = *c.Points
	}

	data, err := json.Marshal(ach)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encoding achievement")
	}
	rec, _, err = svc.records.Upsert(ctx, p, rec.Key, data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Record: rec, Achievement: ach}, nil
}

// Delete withdraws the achievement with id.
func (svc *Service) Delete(ctx context.Context, p record.Principal, id string) (string, error) {
	if err := p.RequireElevated(); err != nil {
		return "", err
	}
	return svc.records.Delete(ctx, p, id)
}

func (svc *Service) ListForUser(ctx context.Context, p record.Principal, userID string) ([]Entry, error) {
	recs, err := svc.records.Query(ctx, p, record.Filter{UserID: userID})
	if err != nil {
		return []Entry{}, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		var ach Achievement
		if err := rec.Decode(&ach); err != nil {
			return []Entry{}, errors.Wrapf(err, "decoding achievement %s", rec.ID)
		}
		entries = append(entries, Entry{Record: rec, Achievement: ach})
	}
	return entries, nil
}

// TotalPoints sums the points of entries.
func TotalPoints(entries []Entry) int {
	var total int
	for _, e := range entries {
		total += e.Achievement.Points
	}
	return total
}
