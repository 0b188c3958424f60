package scoring

import "github.com/Ramsey-B/clover/pkg/models"

const (
	hexacoItems    = 60
	hexacoScaleMin = 1
	hexacoScaleMax = 5
)

type hexacoFacet struct {
	name  string
	items []int // 1-based item positions
}

type hexacoFactor struct {
	name   string
	facets []hexacoFacet
}

// HEXACO-60 facet scoring key
var hexacoKey = []hexacoFactor{
	{"Honesty-Humility", []hexacoFacet{
		{"Sincerity", []int{6, 30, 54}},
		{"Fairness", []int{12, 36, 60}},
		{"Greed-Avoidance", []int{18, 42}},
		{"Modesty", []int{24, 48}},
	}},
	{"Emotionality", []hexacoFacet{
		{"Fearfulness", []int{5, 29, 53}},
		{"Anxiety", []int{11, 35}},
		{"Dependence", []int{17, 41}},
		{"Sentimentality", []int{23, 47, 59}},
	}},
	{"Extraversion", []hexacoFacet{
		{"Social Self-Esteem", []int{4, 28, 52}},
		{"Social Boldness", []int{10, 34, 58}},
		{"Sociability", []int{16, 40}},
		{"Liveliness", []int{22, 46}},
	}},
	{"Agreeableness", []hexacoFacet{
		{"Forgiveness", []int{3, 27}},
		{"Gentleness", []int{9, 33, 51}},
		{"Flexibility", []int{15, 39, 57}},
		{"Patience", []int{21, 45}},
	}},
	{"Conscientiousness", []hexacoFacet{
		{"Organization", []int{2, 26}},
		{"Diligence", []int{8, 32}},
		{"Perfectionism", []int{14, 38, 50}},
		{"Prudence", []int{20, 44, 56}},
	}},
	{"Openness to Experience", []hexacoFacet{
		{"Aesthetic Appreciation", []int{1, 25}},
		{"Inquisitiveness", []int{7, 31}},
		{"Creativity", []int{13, 37, 49}},
		{"Unconventionality", []int{19, 43, 55}},
	}},
}

// 1-based items scored in reverse. Changing any entry flips a facet.
var hexacoReverseKeyed = map[int]struct{}{
	1: {}, 4: {}, 6: {}, 10: {}, 12: {}, 14: {}, 15: {}, 19: {}, 20: {}, 21: {},
	22: {}, 24: {}, 26: {}, 28: {}, 30: {}, 31: {}, 33: {}, 35: {}, 36: {}, 38: {},
	39: {}, 41: {}, 42: {}, 44: {}, 45: {}, 46: {}, 48: {}, 49: {}, 50: {}, 52: {},
	54: {}, 56: {}, 57: {}, 59: {}, 60: {},
}

// HexacoFactors lists the six factor names in key order
func HexacoFactors() []string {
	names := make([]string, len(hexacoKey))
	for i, factor := range hexacoKey {
		names[i] = factor.name
	}
	return names
}

// ScoreHexaco scores a 60-item HEXACO inventory answered on a 1-5 scale
func ScoreHexaco(responses []int) (*models.HexacoScores, error) {
	if err := validate(models.CategoryHexaco, responses, hexacoItems, hexacoScaleMin, hexacoScaleMax); err != nil {
		return nil, err
	}

	adjusted := make([]float64, len(responses))
	for i, r := range responses {
		if _, ok := hexacoReverseKeyed[i+1]; ok {
			adjusted[i] = float64(hexacoScaleMax + hexacoScaleMin - r)
		} else {
			adjusted[i] = float64(r)
		}
	}

	scores := &models.HexacoScores{
		Facets:  make(map[string]float64, 24),
		Factors: make(map[string]float64, len(hexacoKey)),
	}

	for _, factor := range hexacoKey {
		facetMeans := make([]float64, 0, len(factor.facets))
		for _, facet := range factor.facets {
			values := make([]float64, len(facet.items))
			for i, item := range facet.items {
				values[i] = adjusted[item-1]
			}
			m := mean(values)
			scores.Facets[facet.name] = m
			facetMeans = append(facetMeans, m)
		}
		scores.Factors[factor.name] = mean(facetMeans)
	}

	return scores, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
