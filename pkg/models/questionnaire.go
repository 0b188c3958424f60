package models

import "time"

// Questionnaire is a test users can take. Namespace selects the scoring
// algorithm.
type Questionnaire struct {
	ID        string     `json:"id" db:"id"`
	Namespace string     `json:"namespace" db:"namespace"`
	Name      string     `json:"name" db:"name"`
	Questions []Question `json:"questions,omitempty" db:"-"`
}

type Question struct {
	ID              string   `json:"id" db:"id"`
	QuestionnaireID string   `json:"-" db:"questionnaire_id"`
	QuestionText    string   `json:"question_text" db:"question_text"`
	Position        int      `json:"position" db:"position"`
	Options         []Option `json:"options" db:"-"`
}

type Option struct {
	ID         string `json:"id" db:"id"`
	QuestionID string `json:"-" db:"question_id"`
	OptionText string `json:"option_text" db:"option_text"`
	Position   int    `json:"position" db:"position"`
}

// QuestionnaireSubmission is one user's ordered answers to a questionnaire
type QuestionnaireSubmission struct {
	UserID        string `json:"user_id" validate:"required,uuid"`
	Questionnaire string `json:"questionnaire" validate:"required"`
	Responses     []int  `json:"responses" validate:"required,min=1"`
}

// QuestionnaireResponse is an archived raw submission
type QuestionnaireResponse struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Questionnaire string    `json:"questionnaire" db:"questionnaire"`
	Responses     []int     `json:"responses" db:"-"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
