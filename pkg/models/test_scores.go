package models

// QuestionnaireCategory names a questionnaire with its own scoring algorithm
type QuestionnaireCategory string

const (
	CategoryHexaco     QuestionnaireCategory = "hexaco"
	CategoryMBTI       QuestionnaireCategory = "mbti"
	CategoryAttachment QuestionnaireCategory = "attachment_styles"
	CategoryValues     QuestionnaireCategory = "schwartz_survey"
)

// ScoreMap is the scored result of one questionnaire category. Each
// category has exactly one implementation with a fixed field set.
type ScoreMap interface {
	Category() QuestionnaireCategory
	mergeInto(scores *TestScores)
}

// TestScores accumulates the score maps of every questionnaire a user has
// completed. It is stored as JSONB; the JSON keys are part of the stored
// format and must not change.
type TestScores struct {
	FacetScores      map[string]float64 `json:"Facet Scores,omitempty"`
	FactorScores     map[string]float64 `json:"Factor Scores,omitempty"`
	MBTIType         string             `json:"MBTI Type,omitempty"`
	AttachmentScores map[string]int     `json:"Attachment Style Scores,omitempty"`
	ValuesScores     map[string]int     `json:"Values Scores,omitempty"`
}

// Merge replaces the section owned by score's category and leaves every
// other category untouched.
func (t *TestScores) Merge(score ScoreMap) {
	if score == nil {
		return
	}
	score.mergeInto(t)
}

// IsEmpty reports whether no questionnaire has been scored yet
func (t *TestScores) IsEmpty() bool {
	return t == nil || (len(t.FactorScores) == 0 && len(t.FacetScores) == 0 && t.MBTIType == "" &&
		len(t.AttachmentScores) == 0 && len(t.ValuesScores) == 0)
}

// HexacoScores holds facet means and factor means (factor = mean of its facets)
type HexacoScores struct {
	Facets  map[string]float64 `json:"Facet Scores"`
	Factors map[string]float64 `json:"Factor Scores"`
}

func (s *HexacoScores) Category() QuestionnaireCategory { return CategoryHexaco }

func (s *HexacoScores) mergeInto(t *TestScores) {
	t.FacetScores = copyMap(s.Facets)
	t.FactorScores = copyMap(s.Factors)
}

// MBTIScores holds the four-letter type
type MBTIScores struct {
	Type string `json:"MBTI Type"`
}

func (s *MBTIScores) Category() QuestionnaireCategory { return CategoryMBTI }

func (s *MBTIScores) mergeInto(t *TestScores) {
	t.MBTIType = s.Type
}

// AttachmentScores holds the summed score of each attachment style
type AttachmentScores struct {
	Styles map[string]int `json:"Attachment Style Scores"`
}

func (s *AttachmentScores) Category() QuestionnaireCategory { return CategoryAttachment }

func (s *AttachmentScores) mergeInto(t *TestScores) {
	t.AttachmentScores = copyMap(s.Styles)
}

// ValuesScores holds the raw response for each Schwartz value
type ValuesScores struct {
	Values map[string]int `json:"Values Scores"`
}

func (s *ValuesScores) Category() QuestionnaireCategory { return CategoryValues }

func (s *ValuesScores) mergeInto(t *TestScores) {
	t.ValuesScores = copyMap(s.Values)
}

func copyMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
