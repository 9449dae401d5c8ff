// Package examresult records the outcome of training & final exam attempts.
// A result is written once per user, course, lesson & exam type; later submissions are ignored.
package examresult

import (
	"math"
	"time"

	"github.com/trezcool/chuo/core"
)

type ExamType string

const (
	ExamTraining ExamType = "training"
	ExamFinal    ExamType = "final"
)

func ParseExamType(s string) (ExamType, error) {
	switch et := ExamType(core.CleanString(s, true /* lower */)); et {
	case ExamTraining, ExamFinal:
		return et, nil
	}
	return "", core.NewFieldError("exam_type", "must be one of: training, final")
}

// DefaultPassingScore is the passing percentage used when an exam doesn't set one.
const DefaultPassingScore = 50

type (
	Answer struct {
		QuestionIndex  int  `json:"question_index"`
		SelectedAnswer *int `json:"selected_answer"`
		CorrectAnswer  int  `json:"correct_answer"`
		IsCorrect      bool `json:"is_correct"`
	}

	// Result is the payload of an exam result record.
	Result struct {
		LessonTitle    string    `json:"lesson_title"`
		UnitID         *string   `json:"unit_id"`
		UnitTitle      *string   `json:"unit_title"`
		ExamType       ExamType  `json:"exam_type"`
		Score          int       `json:"score"` // number of correct answers
		TotalQuestions int       `json:"total_questions"`
		CorrectAnswers int       `json:"correct_answers"`
		WrongAnswers   int       `json:"wrong_answers"`
		Percentage     float64   `json:"percentage"`
		TimeTaken      int       `json:"time_taken"` // seconds
		TimeLimit      int       `json:"time_limit"` // minutes
		PassingScore   float64   `json:"passing_score"`
		Passed         bool      `json:"passed"`
		Answers        []Answer  `json:"answers"`
		CompletedAt    time.Time `json:"completed_at"`
	}
)

// percentage returns part/total as a percentage rounded to 2 decimal places.
func percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

func optional(s string) *string {
	if s = core.CleanString(s); s == "" {
		return nil
	}
	return &s
}

type (
	SubmittedAnswer struct {
		QuestionIndex  int  `json:"question_index" validate:"min=0"`
		SelectedAnswer *int `json:"selected_answer" validate:"omitempty,min=0"`
		CorrectAnswer  int  `json:"correct_answer" validate:"min=0"`
	}

	// Submission is a finished attempt as sent by the client.
	Submission struct {
		LessonTitle    string            `json:"lesson_title" validate:"max=255"`
		UnitID         string            `json:"unit_id"`
		UnitTitle      string            `json:"unit_title" validate:"max=255"`
		TotalQuestions int               `json:"total_questions" validate:"min=0"`
		TimeTaken      int               `json:"time_taken" validate:"min=0"`
		TimeLimit      int               `json:"time_limit" validate:"min=0"`
		PassingScore   *float64          `json:"passing_score" validate:"omitempty,min=0,max=100"`
		Answers        []SubmittedAnswer `json:"answers" validate:"required,min=1,dive"`
		CompletedAt    *time.Time        `json:"completed_at"`
	}
)

// result scores the submission. TotalQuestions defaults to the number of answers.
func (sub Submission) result(examType ExamType, now time.Time) (Result, error) {
	total := sub.TotalQuestions
	if total == 0 {
		total = len(sub.Answers)
	}
	if total < len(sub.Answers) {
		return Result{}, core.NewFieldError("total_questions", "must not be less than the number of answers")
	}

	res := Result{
		LessonTitle:    core.CleanString(sub.LessonTitle),
		UnitID:         optional(sub.UnitID),
		UnitTitle:      optional(sub.UnitTitle),
		ExamType:       examType,
		TotalQuestions: total,
		TimeTaken:      sub.TimeTaken,
		TimeLimit:      sub.TimeLimit,
		PassingScore:   DefaultPassingScore,
		Answers:        make([]Answer, 0, len(sub.Answers)),
		CompletedAt:    now,
	}
	if sub.PassingScore != nil {
		res.PassingScore = *sub.PassingScore
	}
	if sub.CompletedAt != nil && !sub.CompletedAt.IsZero() {
		res.CompletedAt = sub.CompletedAt.UTC()
	}

	for _, ans := range sub.Answers {
		correct := ans.SelectedAnswer != nil && *ans.SelectedAnswer == ans.CorrectAnswer
		if correct {
			res.CorrectAnswers++
		}
		res.Answers = append(res.Answers, Answer{
			QuestionIndex:  ans.QuestionIndex,
			SelectedAnswer: ans.SelectedAnswer,
			CorrectAnswer:  ans.CorrectAnswer,
			IsCorrect:      correct,
		})
	}
	res.Score = res.CorrectAnswers
	res.WrongAnswers = total - res.CorrectAnswers
	res.Percentage = percentage(res.CorrectAnswers, total)
	res.Passed = res.Percentage >= res.PassingScore
	return res, nil
}
