package draft

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/chuo/core"
)

// Known draft types. Any other type is stored as an opaque Blob.
const (
	TypeNotes   = "notes"
	TypeEssay   = "essay"
	TypeAnswers = "answers"
)

// Content is the payload of a draft, one variant per draft type.
type Content interface {
	DraftType() string
}

type (
	Notes struct {
		Text string `json:"text" validate:"required"`
	}

	Essay struct {
		Title string `json:"title,omitempty"`
		Body  string `json:"body" validate:"required"`
	}

	Answer struct {
		QuestionIndex  int  `json:"question_index" validate:"min=0"`
		SelectedAnswer *int `json:"selected_answer" validate:"omitempty,min=0"`
		Flagged        bool `json:"flagged,omitempty"`
	}

	Answers struct {
		Answers []Answer `json:"answers" validate:"required,min=1,dive"`
	}

	// Blob is free-form content of a draft type without a known shape.
	Blob struct {
		Type string
		Raw  json.RawMessage
	}
)

func (Notes) DraftType() string   { return TypeNotes }
func (Essay) DraftType() string   { return TypeEssay }
func (Answers) DraftType() string { return TypeAnswers }
func (b Blob) DraftType() string  { return b.Type }

func (b Blob) MarshalJSON() ([]byte, error) {
	return b.Raw, nil
}

// Decode parses data as the content of a draftType draft. Known types reject unknown fields.
func Decode(draftType string, data json.RawMessage, validate *validator.Validate) (Content, error) {
	var c Content
	switch draftType {
	case TypeNotes:
		c = new(Notes)
	case TypeEssay:
		c = new(Essay)
	case TypeAnswers:
		c = new(Answers)
	default:
		if !json.Valid(data) {
			return nil, core.NewFieldError("data", "invalid JSON")
		}
		return Blob{Type: draftType, Raw: data}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, core.NewFieldError("data", "invalid "+draftType+" draft: "+err.Error())
	}
	if err := validate.Struct(c); err != nil {
		return nil, err
	}

	// deref so that callers get values, not pointers
	switch v := c.(type) {
	case *Notes:
		return *v, nil
	case *Essay:
		return *v, nil
	case *Answers:
		return *v, nil
	}
	return c, nil
}

// Encode returns the canonical JSON of c.
func Encode(c Content) (json.RawMessage, error) {
	return json.Marshal(c)
}
