package embedding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/featuremap"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr[T any](v T) *T { return &v }

func testFeatureMap(t *testing.T) *featuremap.FeatureMap {
	t.Helper()
	fm, err := featuremap.New(map[string]int{
		"profile_gender_female":               0,
		"profile_gender_male":                 1,
		"profile_height_cm":                   2,
		"profile_smoking_when_drink":          3,
		"profile_country_new_zealand":         4,
		"test_hexaco_openness-to-experience":  10,
		"test_hexaco_honesty-humility":        11,
		"test_attachment_anxious-preoccupied": 20,
		"test_values_self-direction":          30,
		"test_mbti_type_intj":                 40,
	}, "test")
	require.NoError(t, err)
	return fm
}

func TestBuilder_Build(t *testing.T) {
	builder := NewBuilder(testFeatureMap(t), testLogger())

	gender := models.GenderFemale
	profile := &models.Profile{
		ID:       "u1",
		Gender:   &gender,
		HeightCM: ptr(175),
		Smoking:  ptr("when_drink"),
		Country:  ptr("New Zealand"),
		TestScores: models.TestScores{
			FactorScores: map[string]float64{
				"Openness to Experience": 4,
				"Honesty-Humility":       1,
			},
			AttachmentScores: map[string]int{"Anxious-Preoccupied": 20},
			ValuesScores:     map[string]int{"Self-Direction": 6},
			MBTIType:         "INTJ",
		},
	}

	vec := builder.Build(profile)
	require.Len(t, vec, 128)

	assert.Equal(t, float32(1), vec[0])
	assert.Equal(t, float32(0), vec[1])
	assert.InDelta(t, 0.5, vec[2], 1e-6)
	assert.Equal(t, float32(1), vec[3])
	assert.Equal(t, float32(1), vec[4])
	assert.InDelta(t, 0.75, vec[10], 1e-6)
	assert.InDelta(t, 0.0, vec[11], 1e-6)
	assert.InDelta(t, 0.5, vec[20], 1e-6)
	assert.InDelta(t, 0.75, vec[30], 1e-6)
	assert.Equal(t, float32(1), vec[40])

	for i, v := range vec {
		assert.GreaterOrEqual(t, v, float32(0), "slot %d", i)
		assert.LessOrEqual(t, v, float32(1), "slot %d", i)
	}
}

func TestBuilder_BuildIsPure(t *testing.T) {
	builder := NewBuilder(testFeatureMap(t), testLogger())

	gender := models.GenderMale
	profile := &models.Profile{
		ID:       "u2",
		Gender:   &gender,
		HeightCM: ptr(190),
		TestScores: models.TestScores{
			FactorScores: map[string]float64{"Honesty-Humility": 3.5},
			MBTIType:     "INTJ",
		},
	}

	first := builder.Build(profile)
	second := builder.Build(profile)
	assert.Equal(t, first, second)

	// the builder never carries state from a previous profile
	other := builder.Build(&models.Profile{ID: "u3"})
	assert.Equal(t, make([]float32, 128), other)
	assert.Equal(t, first, builder.Build(profile))
}

func TestBuilder_HeightIsClamped(t *testing.T) {
	builder := NewBuilder(testFeatureMap(t), testLogger())

	assert.InDelta(t, 1.0, builder.Build(&models.Profile{HeightCM: ptr(300)})[2], 1e-6)
	assert.InDelta(t, 0.0, builder.Build(&models.Profile{HeightCM: ptr(100)})[2], 1e-6)
}

func TestBuilder_EmptyFeatureMap(t *testing.T) {
	fm, err := featuremap.Load(filepath.Join(t.TempDir(), "missing.json"), testLogger())
	require.NoError(t, err)

	builder := NewBuilder(fm, testLogger())
	gender := models.GenderMale
	vec := builder.Build(&models.Profile{Gender: &gender, TestScores: models.TestScores{MBTIType: "ENFP"}})
	assert.Equal(t, make([]float32, 128), vec)
}

func TestBuilder_CountsUnmappedKeys(t *testing.T) {
	builder := NewBuilder(testFeatureMap(t), testLogger())

	before := testutil.ToFloat64(metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceProfile))
	beforeMBTI := testutil.ToFloat64(metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceMBTI))

	vec := builder.Build(&models.Profile{
		Religion:   ptr("pastafarian"),
		Pets:       ptr("dragons"),
		TestScores: models.TestScores{MBTIType: "ESFP"},
	})

	assert.Equal(t, make([]float32, 128), vec)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceProfile)))
	assert.Equal(t, beforeMBTI+1, testutil.ToFloat64(metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceMBTI)))
}

func TestBuilder_NumericAttributeBuckets(t *testing.T) {
	fm, err := featuremap.New(map[string]int{
		"profile_height_cm":     0,
		"profile_height_cm_170": 1,
		"profile_height_cm_180": 2,
	}, "buckets")
	require.NoError(t, err)
	builder := NewBuilder(fm, testLogger())

	vec := builder.Build(&models.Profile{HeightCM: ptr(170)})
	assert.InDelta(t, 30.0/70.0, vec[0], 1e-6)
	assert.Equal(t, float32(1), vec[1])
	assert.Zero(t, vec[2])

	onlyBucket, err := featuremap.New(map[string]int{"profile_height_cm_180": 5}, "bucket-only")
	require.NoError(t, err)
	before := testutil.ToFloat64(metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceProfile))

	vec = NewBuilder(onlyBucket, testLogger()).Build(&models.Profile{HeightCM: ptr(180)})
	assert.Equal(t, float32(1), vec[5])
	assert.Equal(t, before, testutil.ToFloat64(metrics.UnmappedFeatureKeysTotal.WithLabelValues(sourceProfile)))
}

func TestBuilder_DefaultFeatureMap(t *testing.T) {
	path := filepath.Join("..", "..", "config", "feature_map.json")
	if _, err := os.Stat(path); err != nil {
		t.Skip("feature map not present")
	}

	fm, err := featuremap.Load(path, testLogger())
	require.NoError(t, err)

	for _, key := range []string{
		CategoricalKey("gender", "non-binary"),
		CategoricalKey("kids", "more_than_3"),
		"profile_height_cm",
		"test_hexaco_openness-to-experience",
		"test_attachment_fearful-avoidant",
		"test_values_self-direction",
		"test_mbti_type_infp",
	} {
		_, ok := fm.Index(key)
		assert.True(t, ok, key)
	}
}

func TestBuilder_MissingScoreKeys(t *testing.T) {
	builder := NewBuilder(testFeatureMap(t), testLogger())
	categories := scoring.NewEngine().Categories()

	missing := builder.MissingScoreKeys(categories)
	assert.Contains(t, missing, "test_hexaco_emotionality")
	assert.Contains(t, missing, "test_mbti_type_enfp")
	assert.NotContains(t, missing, "test_mbti_type_intj")
	assert.NotContains(t, missing, "test_values_self-direction")
	assert.Len(t, missing, 36-5)

	path := filepath.Join("..", "..", "config", "feature_map.json")
	if _, err := os.Stat(path); err != nil {
		return
	}
	fm, err := featuremap.Load(path, testLogger())
	require.NoError(t, err)
	assert.Empty(t, NewBuilder(fm, testLogger()).MissingScoreKeys(categories))
}

func TestCategoricalKey(t *testing.T) {
	assert.Equal(t, "profile_country_united_states", CategoricalKey("country", "United States"))
	assert.Equal(t, "profile_gender_prefer-not-to-say", CategoricalKey("gender", "prefer-not-to-say"))
}
