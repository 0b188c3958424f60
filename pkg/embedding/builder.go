// Package embedding compresses a profile and its accumulated test scores
// into a fixed-length feature vector.
package embedding

import (
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/featuremap"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalize"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

// Score scales of each questionnaire section
var (
	hexacoRange     = normalize.Range{Min: 1, Max: 5}
	attachmentRange = normalize.Range{Min: 5, Max: 35}
	valuesRange     = normalize.Range{Min: 0, Max: 8}
)

// NumericRanges lists the numeric profile attributes that are embedded and
// their expected bounds. Numeric attributes not listed here are skipped.
var NumericRanges = map[string]normalize.Range{
	"height_cm": {Min: 140, Max: 210},
}

const (
	sourceProfile    = "profile"
	sourceHexaco     = "hexaco"
	sourceAttachment = "attachment"
	sourceValues     = "values"
	sourceMBTI       = "mbti"
)

// Builder turns profiles into embedding vectors. It holds no mutable state
// and is safe for concurrent use.
type Builder struct {
	features *featuremap.FeatureMap
	logger   ectologger.Logger
}

func NewBuilder(features *featuremap.FeatureMap, logger ectologger.Logger) *Builder {
	if features == nil {
		features = featuremap.Empty()
	}
	return &Builder{
		features: features,
		logger:   logger,
	}
}

// Dimension is the length of every vector Build returns
func (b *Builder) Dimension() int {
	return featuremap.Dimension
}

// Build computes the embedding of profile from scratch. The result depends
// only on the profile and the feature map.
func (b *Builder) Build(profile *models.Profile) []float32 {
	vec := make([]float32, featuremap.Dimension)
	if profile == nil {
		return vec
	}

	var unmapped []string

	// every attribute may have a one-hot slot; numeric ones may also have a
	// scaled slot under the bare attribute name
	for _, attr := range profile.Attributes() {
		value := attr.Text
		if attr.Numeric {
			value = strconv.FormatFloat(attr.Number, 'f', -1, 64)
		}
		key := CategoricalKey(attr.Name, value)
		mapped := b.put(vec, key, 1)

		if r, ok := NumericRanges[attr.Name]; attr.Numeric && ok {
			if b.put(vec, "profile_"+attr.Name, float32(r.Apply(attr.Number))) {
				mapped = true
			} else {
				key = "profile_" + attr.Name
			}
		}

		if !mapped {
			metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceProfile).Inc()
			unmapped = append(unmapped, key)
		}
	}

	scores := profile.TestScores
	for factor, score := range scores.FactorScores {
		key := ScoreKey(models.CategoryHexaco, factor)
		if !b.set(vec, key, float32(hexacoRange.Apply(score)), sourceHexaco) {
			unmapped = append(unmapped, key)
		}
	}
	for style, score := range scores.AttachmentScores {
		key := ScoreKey(models.CategoryAttachment, style)
		if !b.set(vec, key, float32(attachmentRange.Apply(float64(score))), sourceAttachment) {
			unmapped = append(unmapped, key)
		}
	}
	for value, score := range scores.ValuesScores {
		key := ScoreKey(models.CategoryValues, value)
		if !b.set(vec, key, float32(valuesRange.Apply(float64(score))), sourceValues) {
			unmapped = append(unmapped, key)
		}
	}
	if scores.MBTIType != "" {
		key := ScoreKey(models.CategoryMBTI, scores.MBTIType)
		if !b.set(vec, key, 1, sourceMBTI) {
			unmapped = append(unmapped, key)
		}
	}

	if len(unmapped) > 0 {
		b.logger.WithFields(map[string]any{
			"profile_id": profile.ID,
			"keys":       unmapped,
		}).Debug("Dropped unmapped feature keys")
	}

	return vec
}

func (b *Builder) set(vec []float32, key string, value float32, source string) bool {
	if !b.put(vec, key, value) {
		metrics.UnmappedFeatureKeysTotal.WithLabelValues(source).Inc()
		return false
	}
	return true
}

func (b *Builder) put(vec []float32, key string, value float32) bool {
	index, ok := b.features.Index(key)
	if !ok {
		return false
	}
	vec[index] = value
	return true
}

// ScoreKey is the feature key of one named score within a category
func ScoreKey(category models.QuestionnaireCategory, name string) string {
	switch category {
	case models.CategoryHexaco:
		return "test_hexaco_" + slug(name, "-")
	case models.CategoryAttachment:
		return "test_attachment_" + slug(name, "-")
	case models.CategoryValues:
		return "test_values_" + strings.ToLower(name)
	case models.CategoryMBTI:
		return "test_mbti_type_" + strings.ToLower(name)
	default:
		return "test_" + string(category) + "_" + slug(name, "-")
	}
}

// MissingScoreKeys lists the score keys of categories that have no slot in
// the feature map. Those scores never reach the embedding.
func (b *Builder) MissingScoreKeys(categories []models.QuestionnaireCategory) []string {
	var missing []string
	for _, category := range categories {
		for _, name := range scoring.ScoreNames(category) {
			key := ScoreKey(category, name)
			if _, ok := b.features.Index(key); !ok {
				missing = append(missing, key)
			}
		}
	}
	return missing
}

// CategoricalKey is the one-hot feature key for a categorical attribute
func CategoricalKey(attr, value string) string {
	return "profile_" + attr + "_" + slug(value, "_")
}

func slug(s, space string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", space)
}
