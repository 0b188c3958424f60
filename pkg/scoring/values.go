package scoring

import "github.com/Ramsey-B/clover/pkg/models"

// Schwartz values in questionnaire order
var schwartzValues = []string{
	"Power", "Achievement", "Hedonism", "Stimulation", "Self-Direction",
	"Universalism", "Benevolence", "Tradition", "Conformity", "Security",
}

// SchwartzValues lists the ten value names in questionnaire order
func SchwartzValues() []string {
	return append([]string(nil), schwartzValues...)
}

// ScoreValues maps each response to the value at the same position
func ScoreValues(responses []int) (*models.ValuesScores, error) {
	if err := validate(models.CategoryValues, responses, len(schwartzValues), 1, 5); err != nil {
		return nil, err
	}

	scores := &models.ValuesScores{Values: make(map[string]int, len(schwartzValues))}
	for i, name := range schwartzValues {
		scores.Values[name] = responses[i]
	}

	return scores, nil
}
