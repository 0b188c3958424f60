package matching

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/vectorsearch"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeProfiles struct {
	profiles map[string]*models.Profile
	err      error
}

func (f *fakeProfiles) Find(_ context.Context, id string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[id], nil
}

func (f *fakeProfiles) ListEligibleCandidateIDs(_ context.Context, user *models.Profile) ([]string, error) {
	var ids []string
	for _, p := range f.profiles {
		if Eligible(user, p) {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type matchKey struct{ user, match string }

type fakeMatches struct {
	mu        sync.Mutex
	rows      map[matchKey]models.Match
	upsertErr error
	deletes   int
}

func newFakeMatches() *fakeMatches {
	return &fakeMatches{rows: map[matchKey]models.Match{}}
}

func (f *fakeMatches) UpsertMany(_ context.Context, matches []models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, m := range matches {
		f.rows[matchKey{m.UserID, m.MatchID}] = m
	}
	return nil
}

func (f *fakeMatches) DeleteExcept(_ context.Context, userID string, keep []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	kept := map[string]bool{}
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for k := range f.rows {
		if k.user == userID && !kept[k.match] {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, []float32, []string, int) ([]vectorsearch.Result, error) {
	return nil, errors.New("connection refused")
}

type fixedSearcher []vectorsearch.Result

func (s fixedSearcher) Search(context.Context, []float32, []string, int) ([]vectorsearch.Result, error) {
	return s, nil
}

type recordingEmitter struct {
	calls int
	err   error
}

func (e *recordingEmitter) EmitMatchesUpdated(context.Context, string, []models.Match) error {
	e.calls++
	return e.err
}

func profile(id string, gender models.Gender, pref models.Preference, vec ...float32) *models.Profile {
	p := &models.Profile{ID: id, Gender: &gender, Preference: &pref}
	if len(vec) > 0 {
		p.Embedding = database.Vector(vec)
	}
	return p
}

type fixture struct {
	profiles *fakeProfiles
	matches  *fakeMatches
	searcher *vectorsearch.MemorySearcher
	emitter  *recordingEmitter
}

func newFixture(profiles ...*models.Profile) *fixture {
	f := &fixture{
		profiles: &fakeProfiles{profiles: map[string]*models.Profile{}},
		matches:  newFakeMatches(),
		searcher: vectorsearch.NewMemorySearcher(),
		emitter:  &recordingEmitter{},
	}
	for _, p := range profiles {
		f.profiles.profiles[p.ID] = p
		if len(p.Embedding) > 0 {
			f.searcher.Put(p.ID, p.Embedding)
		}
	}
	return f
}

func (f *fixture) pipeline(cfg Config) *Pipeline {
	return NewPipeline(f.profiles, f.matches, f.searcher, f.emitter, cfg, testLogger())
}

func TestPipeline_Prerequisites(t *testing.T) {
	noPref := &models.Profile{ID: "nopref", Embedding: database.Vector{1}}
	noEmbedding := profile("noemb", models.GenderMale, models.PreferenceWomen)

	f := newFixture(noPref, noEmbedding)
	p := f.pipeline(Config{})

	_, err := p.Run(context.Background(), "ghost", 0)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = p.Run(context.Background(), "nopref", 0)
	assert.ErrorIs(t, err, ErrPreferenceNotSet)

	_, err = p.Run(context.Background(), "noemb", 0)
	assert.ErrorIs(t, err, ErrEmbeddingNotBuilt)

	f.profiles.err = errors.New("db down")
	_, err = p.Run(context.Background(), "noemb", 0)
	require.Error(t, err)
	assert.False(t, isPrerequisiteError(err))
}

func TestPipeline_NoCandidates(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderMale, models.PreferenceWomen, 1, 0),
		profile("c1", models.GenderFemale, models.PreferenceWomen, 1, 0),
		profile("c2", models.GenderMale, models.PreferenceBoth, 1, 0),
	)

	result, err := f.pipeline(Config{}).Run(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNoCandidates, result.Status)
	assert.Empty(t, result.Matches)
	assert.Empty(t, f.matches.rows)
	assert.Zero(t, f.emitter.calls)
}

func TestPipeline_RanksAndPersists(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderMale, models.PreferenceWomen, 1, 0, 0),
		profile("close", models.GenderFemale, models.PreferenceMen, 1, 0.1, 0),
		profile("far", models.GenderFemale, models.PreferenceBoth, 0, 0, 1),
		profile("mid", models.GenderFemale, models.PreferenceMen, 1, 1, 0),
		profile("wrong-gender", models.GenderMale, models.PreferenceBoth, 1, 0, 0),
		profile("not-into-men", models.GenderFemale, models.PreferenceWomen, 1, 0, 0),
	)

	result, err := f.pipeline(Config{}).Run(context.Background(), "u", 2)
	require.NoError(t, err)

	assert.Equal(t, StatusMatched, result.Status)
	assert.True(t, result.Persisted)
	assert.Equal(t, 3, result.Candidates)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "close", result.Matches[0].MatchID)
	assert.Equal(t, "mid", result.Matches[1].MatchID)
	assert.GreaterOrEqual(t, result.Matches[0].Score, result.Matches[1].Score)

	assert.Len(t, f.matches.rows, 2)
	assert.Equal(t, 1, f.emitter.calls)
}

func TestPipeline_Idempotent(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderFemale, models.PreferenceBoth, 1, 0),
		profile("a", models.GenderMale, models.PreferenceBoth, 1, 0.2),
		profile("b", models.GenderFemale, models.PreferenceWomen, 0.3, 1),
	)
	p := f.pipeline(Config{})

	first, err := p.Run(context.Background(), "u", 0)
	require.NoError(t, err)
	rowsAfterFirst := len(f.matches.rows)

	second, err := p.Run(context.Background(), "u", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, rowsAfterFirst)
	assert.Len(t, f.matches.rows, rowsAfterFirst)
	assert.Equal(t, len(first.Matches), len(second.Matches))
	for i := range first.Matches {
		assert.Equal(t, first.Matches[i].MatchID, second.Matches[i].MatchID)
		assert.Equal(t, first.Matches[i].Score, second.Matches[i].Score)
	}
}

func TestPipeline_SearchFailureIsNoMatches(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderMale, models.PreferenceWomen, 1, 0),
		profile("c", models.GenderFemale, models.PreferenceMen, 1, 0),
	)
	p := NewPipeline(f.profiles, f.matches, failingSearcher{}, f.emitter, Config{}, testLogger())

	result, err := p.Run(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatches, result.Status)
	assert.Equal(t, 1, result.Candidates)
	assert.Empty(t, f.matches.rows)
}

func TestPipeline_UndefinedSimilarityIsDropped(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderMale, models.PreferenceWomen, 1, 0),
		profile("zero", models.GenderFemale, models.PreferenceMen, 0, 0),
		profile("c", models.GenderFemale, models.PreferenceMen, 1, 0),
	)
	searcher := fixedSearcher{
		{ID: "zero", Score: math.NaN()},
		{ID: "c", Score: 1.0000001},
	}
	p := NewPipeline(f.profiles, f.matches, searcher, f.emitter, Config{}, testLogger())

	result, err := p.Run(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, result.Status)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "c", result.Matches[0].MatchID)
	assert.Equal(t, 1.0, result.Matches[0].Score)
	assert.Len(t, f.matches.rows, 1)

	_, err = json.Marshal(result)
	assert.NoError(t, err)

	p = NewPipeline(f.profiles, f.matches, fixedSearcher{{ID: "zero", Score: math.NaN()}}, f.emitter, Config{}, testLogger())
	result, err = p.Run(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatches, result.Status)
	assert.Empty(t, result.Matches)
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.4, 0},
		{0.25, 0.25},
		{1.2, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampScore(tt.in))
	}
}

func TestPipeline_PersistFailure(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderMale, models.PreferenceWomen, 1, 0),
		profile("c", models.GenderFemale, models.PreferenceMen, 1, 0),
	)
	f.matches.upsertErr = errors.New("write failed")

	result, err := f.pipeline(Config{StalePolicy: StalePolicyPrune}).Run(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, result.Status)
	assert.False(t, result.Persisted)
	assert.Len(t, result.Matches, 1)
	assert.Zero(t, f.matches.deletes, "prune must not run after a failed write")
	assert.Zero(t, f.emitter.calls)
}

func TestPipeline_StalePolicy(t *testing.T) {
	setup := func() *fixture {
		f := newFixture(
			profile("u", models.GenderMale, models.PreferenceWomen, 1, 0),
			profile("c", models.GenderFemale, models.PreferenceMen, 1, 0),
		)
		f.matches.rows[matchKey{"u", "gone"}] = models.Match{UserID: "u", MatchID: "gone", Score: 0.9}
		f.matches.rows[matchKey{"other", "x"}] = models.Match{UserID: "other", MatchID: "x", Score: 0.5}
		return f
	}

	t.Run("retain", func(t *testing.T) {
		f := setup()
		result, err := f.pipeline(Config{StalePolicy: StalePolicyRetain}).Run(context.Background(), "u", 0)
		require.NoError(t, err)
		assert.Zero(t, result.Pruned)
		assert.Contains(t, f.matches.rows, matchKey{"u", "gone"})
		assert.Len(t, f.matches.rows, 3)
	})

	t.Run("prune", func(t *testing.T) {
		f := setup()
		result, err := f.pipeline(Config{StalePolicy: StalePolicyPrune}).Run(context.Background(), "u", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Pruned)
		assert.NotContains(t, f.matches.rows, matchKey{"u", "gone"})
		assert.Contains(t, f.matches.rows, matchKey{"other", "x"})
		assert.Contains(t, f.matches.rows, matchKey{"u", "c"})
	})
}

func TestPipeline_EmitterFailureIsIgnored(t *testing.T) {
	f := newFixture(
		profile("u", models.GenderMale, models.PreferenceWomen, 1, 0),
		profile("c", models.GenderFemale, models.PreferenceMen, 1, 0),
	)
	f.emitter.err = errors.New("kafka down")

	result, err := f.pipeline(Config{}).Run(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.True(t, result.Persisted)
}

func TestPipeline_Limit(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil, Config{DefaultLimit: 7}, testLogger())
	assert.Equal(t, 7, p.limit(0))
	assert.Equal(t, 3, p.limit(3))
	assert.Equal(t, MaxLimit, p.limit(MaxLimit+50))

	p = NewPipeline(nil, nil, nil, nil, Config{}, testLogger())
	assert.Equal(t, DefaultLimit, p.limit(-1))
}

func TestParseStalePolicy(t *testing.T) {
	policy, err := ParseStalePolicy("")
	require.NoError(t, err)
	assert.Equal(t, StalePolicyRetain, policy)

	policy, err = ParseStalePolicy("prune")
	require.NoError(t, err)
	assert.Equal(t, StalePolicyPrune, policy)

	_, err = ParseStalePolicy("archive")
	assert.Error(t, err)
}
