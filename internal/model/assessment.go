package model

import (
	"github.com/google/uuid"
)

// AssessmentKind distinguishes the two assessment flavors the platform serves.
// Both run through the same attempt engine; a quiz is simply a single-section
// assessment.
type AssessmentKind string

const (
	AssessmentKindQuiz      AssessmentKind = "QUIZ"
	AssessmentKindSkillTest AssessmentKind = "SKILL_TEST"
)

// QuestionType enumerates the supported question shapes. Grouped types carry
// sub-answers keyed by sub-question index; simple types carry a single scalar.
type QuestionType string

const (
	QuestionTypeChoice     QuestionType = "CHOICE"
	QuestionTypeText       QuestionType = "TEXT"
	QuestionTypeMatching   QuestionType = "MATCHING"
	QuestionTypeCompletion QuestionType = "COMPLETION"
)

// IsGrouped reports whether answers for this question type are sub-answer
// maps rather than scalars.
func (t QuestionType) IsGrouped() bool {
	return t == QuestionTypeMatching || t == QuestionTypeCompletion
}

// Question is a single scoreable unit inside a question group.
type Question struct {
	ID     int64        `json:"id"`
	Type   QuestionType `json:"type"`
	Points float64      `json:"points"`
}

// QuestionGroup is an ordered run of questions rendered together.
type QuestionGroup struct {
	ID        int64      `json:"id"`
	Questions []Question `json:"questions"`
}

// Section is one page of a multi-section assessment. Quizzes have exactly one.
type Section struct {
	Title  string          `json:"title"`
	Groups []QuestionGroup `json:"groups"`
}

// Assessment is the read-only definition fetched from the platform. The
// engine never mutates it.
type Assessment struct {
	ID               uuid.UUID      `json:"id"`
	Title            string         `json:"title"`
	Kind             AssessmentKind `json:"kind"`
	Sections         []Section      `json:"sections"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	MaxRetakes       int            `json:"max_retakes"`
}

// SectionCount returns the number of sections; position indexes are bounded
// by [0, SectionCount-1].
func (a *Assessment) SectionCount() int {
	return len(a.Sections)
}

// QuestionByID looks up a question across all sections and groups.
func (a *Assessment) QuestionByID(id int64) (Question, bool) {
	for si := range a.Sections {
		for gi := range a.Sections[si].Groups {
			for _, q := range a.Sections[si].Groups[gi].Questions {
				if q.ID == id {
					return q, true
				}
			}
		}
	}
	return Question{}, false
}

// OrderedQuestions returns every question in definition order. The submission
// payload preserves this ordering regardless of the order answers arrived in.
func (a *Assessment) OrderedQuestions() []Question {
	var out []Question
	for si := range a.Sections {
		for gi := range a.Sections[si].Groups {
			out = append(out, a.Sections[si].Groups[gi].Questions...)
		}
	}
	return out
}
