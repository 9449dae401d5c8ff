// Package draft keeps a student's work in progress on a lesson: one draft per user, lesson & draft type.
package draft

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
)

// Path locates drafts. The unit is optional; Type is optional when listing.
type Path struct {
	CourseID string `json:"course_id" validate:"required"`
	UnitID   string `json:"unit_id"`
	LessonID string `json:"lesson_id" validate:"required"`
	Type     string `json:"type"`
}

func (p Path) key() record.Key {
	return record.Key{CourseID: p.CourseID, UnitID: p.UnitID, LessonID: p.LessonID, Type: p.Type}
}

type Service struct {
	records  *record.Service
	validate *validator.Validate
}

func NewService(store record.Store, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	return &Service{
		records:  record.NewService(store, record.KindDraft, record.ModeUpsert),
		validate: validate,
	}
}

func (svc *Service) clean(path *Path) error {
	path.CourseID = core.CleanString(path.CourseID)
	path.UnitID = core.CleanString(path.UnitID)
	path.LessonID = core.CleanString(path.LessonID)
	path.Type = core.CleanString(path.Type, true /* lower */)
	return svc.validate.Struct(path)
}

// Save stores data as the caller's draft at path, replacing any previous draft.
func (svc *Service) Save(ctx context.Context, p record.Principal, path Path, data json.RawMessage) (record.Record, error) {
	if err := svc.clean(&path); err != nil {
		return record.Record{}, err
	}
	if path.Type == "" {
		return record.Record{}, core.NewFieldError("type", "this field is required")
	}
	if len(data) == 0 {
		return record.Record{}, core.NewValidationError(errors.New("Missing draft data"), core.FieldError{Field: "data", Error: "this field is required"})
	}

	content, err := Decode(path.Type, data, svc.validate)
	if err != nil {
		return record.Record{}, err
	}
	canonical, err := Encode(content)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "encoding draft")
	}

	rec, _, err := svc.records.Upsert(ctx, p, path.key(), canonical)
	return rec, err
}

// List returns the caller's drafts at path, most recent first.
func (svc *Service) List(ctx context.Context, p record.Principal, path Path) ([]record.Record, error) {
	if err := svc.clean(&path); err != nil {
		return []record.Record{}, err
	}
	unit := path.UnitID
	return svc.records.Query(ctx, p, record.Filter{
		CourseID: path.CourseID,
		UnitID:   &unit,
		LessonID: path.LessonID,
		Type:     path.Type,
	})
}

func (svc *Service) Delete(ctx context.Context, p record.Principal, id string) (string, error) {
	return svc.records.Delete(ctx, p, id)
}

// Content decodes the payload of a stored draft.
func (svc *Service) Content(rec record.Record) (Content, error) {
	return Decode(rec.Key.Type, rec.Data, svc.validate)
}
