// Package scoring implements the deterministic psychometric scoring
// algorithms, one per questionnaire category.
package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrNoScoringLogic is returned for a questionnaire category with no
// registered algorithm. It is not a system error; callers report it to the
// user as a failed submission.
var ErrNoScoringLogic = errors.New("no scoring logic implemented")

// ValidationError describes a submission whose shape violates the
// category's input contract.
type ValidationError struct {
	Category models.QuestionnaireCategory
	Expected int
	Actual   int
	// Item is the 1-based position of an out-of-range response, 0 for count errors
	Item  int
	Value int
	Min   int
	Max   int
}

func (e *ValidationError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("%s: response %d has value %d, expected %d-%d", e.Category, e.Item, e.Value, e.Min, e.Max)
	}
	return fmt.Sprintf("%s: expected %d responses, got %d", e.Category, e.Expected, e.Actual)
}

// Scorer turns an ordered response sequence into a score map
type Scorer func(responses []int) (models.ScoreMap, error)

// Engine dispatches submissions to the scorer for their category
type Engine struct {
	scorers map[models.QuestionnaireCategory]Scorer
}

// NewEngine creates an engine with the four built-in questionnaires
func NewEngine() *Engine {
	return &Engine{
		scorers: map[models.QuestionnaireCategory]Scorer{
			models.CategoryHexaco:     func(r []int) (models.ScoreMap, error) { return ScoreHexaco(r) },
			models.CategoryMBTI:       func(r []int) (models.ScoreMap, error) { return ScoreMBTI(r) },
			models.CategoryAttachment: func(r []int) (models.ScoreMap, error) { return ScoreAttachment(r) },
			models.CategoryValues:     func(r []int) (models.ScoreMap, error) { return ScoreValues(r) },
		},
	}
}

// Score scores responses for the named questionnaire
func (e *Engine) Score(category string, responses []int) (models.ScoreMap, error) {
	scorer, ok := e.scorers[models.QuestionnaireCategory(category)]
	if !ok {
		return nil, fmt.Errorf("%w for questionnaire %q", ErrNoScoringLogic, category)
	}
	return scorer(responses)
}

// Categories lists the supported questionnaire categories in name order
func (e *Engine) Categories() []models.QuestionnaireCategory {
	categories := make([]models.QuestionnaireCategory, 0, len(e.scorers))
	for category := range e.scorers {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories
}

// ScoreNames lists the names a category's scores are keyed by: factors,
// styles, values, or the sixteen MBTI types.
func ScoreNames(category models.QuestionnaireCategory) []string {
	switch category {
	case models.CategoryHexaco:
		return HexacoFactors()
	case models.CategoryMBTI:
		return MBTITypes()
	case models.CategoryAttachment:
		return AttachmentStyles()
	case models.CategoryValues:
		return SchwartzValues()
	default:
		return nil
	}
}

func validate(category models.QuestionnaireCategory, responses []int, expected, min, max int) error {
	if len(responses) != expected {
		return &ValidationError{Category: category, Expected: expected, Actual: len(responses)}
	}
	for i, r := range responses {
		if r < min || r > max {
			return &ValidationError{
				Category: category,
				Expected: expected,
				Actual:   len(responses),
				Item:     i + 1,
				Value:    r,
				Min:      min,
				Max:      max,
			}
		}
	}
	return nil
}
