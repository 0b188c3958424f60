package profile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
)

type fakeRepo struct {
	mu             sync.Mutex
	profiles       map[string]*models.Profile
	embeddingErr   error
	embeddingCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{profiles: map[string]*models.Profile{}}
}

func (f *fakeRepo) clone(p *models.Profile) *models.Profile {
	c := *p
	return &c
}

func (f *fakeRepo) Create(_ context.Context, req models.CreateProfileRequest) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &models.Profile{ID: uuid.New().String(), Email: &req.Email, FirstName: &req.FirstName, Progress: 1}
	f.profiles[p.ID] = p
	return f.clone(p), nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	return f.clone(p), nil
}

func (f *fakeRepo) FindForUpdate(_ context.Context, id string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	return f.clone(p), nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.Email != nil && *p.Email == email {
			return f.clone(p), nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "profile not found")
}

func (f *fakeRepo) Upsert(_ context.Context, id string, update *models.ProfileUpdate) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		p = &models.Profile{ID: id}
		f.profiles[id] = p
	}
	if update.Gender != nil {
		g := models.Gender(*update.Gender)
		p.Gender = &g
	}
	if update.Preference != nil {
		pref := models.Preference(*update.Preference)
		p.Preference = &pref
	}
	if update.HeightCM != nil {
		p.HeightCM = update.HeightCM
	}
	if update.Description != nil {
		p.Description = update.Description
	}
	return f.clone(p), nil
}

func (f *fakeRepo) MarkComplete(_ context.Context, id string, at time.Time) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	p.IsComplete = true
	p.CompletedAt = &at
	return f.clone(p), nil
}

func (f *fakeRepo) UpdateTestScores(_ context.Context, id string, scores models.TestScores) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[id].TestScores = scores
	return nil
}

func (f *fakeRepo) UpdateEmbedding(_ context.Context, id string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddingCalls++
	if f.embeddingErr != nil {
		return f.embeddingErr
	}
	f.profiles[id].Embedding = embedding
	return nil
}

type fakeTx struct {
	database.Querier
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool                   { return !t.committed && !t.rolledBack }
func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type fakeTxProvider struct {
	txs []*fakeTx
}

func (p *fakeTxProvider) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	tx := &fakeTx{}
	p.txs = append(p.txs, tx)
	return ctx, tx, nil
}

// heightBuilder writes the height into slot 0 so tests can see what was read
type heightBuilder struct{}

func (heightBuilder) Build(p *models.Profile) []float32 {
	vec := make([]float32, 4)
	if p.HeightCM != nil {
		vec[0] = float32(*p.HeightCM)
	}
	if p.TestScores.MBTIType != "" {
		vec[1] = 1
	}
	return vec
}

func (heightBuilder) Dimension() int { return 4 }

type recordingEmitter struct {
	events []events.EmbeddingRebuiltData
}

func (r *recordingEmitter) EmitEmbeddingRebuilt(_ context.Context, data events.EmbeddingRebuiltData) error {
	r.events = append(r.events, data)
	return nil
}

type failingLocker struct{}

func (failingLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redis.ErrLockNotAcquired
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr[T any](v T) *T { return &v }

func newTestService(repo *fakeRepo) (*Service, *recordingEmitter, *fakeTxProvider) {
	emitter := &recordingEmitter{}
	txs := &fakeTxProvider{}
	return NewService(repo, txs, heightBuilder{}, nil, emitter, testLogger()), emitter, txs
}

func TestService_Create(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	req := models.CreateProfileRequest{Email: "a@example.com", FirstName: "A", LastName: "B", DOB: "1990-01-01"}
	p, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Progress)

	_, err = svc.Create(ctx, req)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestService_Update(t *testing.T) {
	t.Run("rebuilds when an embeddable field changes", func(t *testing.T) {
		repo := newFakeRepo()
		svc, emitter, _ := newTestService(repo)

		result, err := svc.Update(context.Background(), "u1", &models.ProfileUpdate{HeightCM: ptr(180)})
		require.NoError(t, err)
		assert.True(t, result.ProfileSaved)
		assert.True(t, result.EmbeddingRebuilt)
		assert.False(t, result.EmbeddingStale)
		assert.Equal(t, database.Vector{180, 0, 0, 0}, repo.profiles["u1"].Embedding)
		require.Len(t, emitter.events, 1)
		assert.Equal(t, TriggerProfileUpdate, emitter.events[0].Trigger)
	})

	t.Run("skips the rebuild for non embeddable fields", func(t *testing.T) {
		repo := newFakeRepo()
		svc, emitter, _ := newTestService(repo)

		result, err := svc.Update(context.Background(), "u1", &models.ProfileUpdate{Description: ptr("hi")})
		require.NoError(t, err)
		assert.True(t, result.ProfileSaved)
		assert.False(t, result.EmbeddingRebuilt)
		assert.False(t, result.EmbeddingStale)
		assert.Zero(t, repo.embeddingCalls)
		assert.Empty(t, emitter.events)
	})

	t.Run("reports a failed rebuild without failing the save", func(t *testing.T) {
		repo := newFakeRepo()
		repo.embeddingErr = errors.New("write failed")
		svc, emitter, _ := newTestService(repo)

		result, err := svc.Update(context.Background(), "u1", &models.ProfileUpdate{HeightCM: ptr(170)})
		require.NoError(t, err)
		assert.True(t, result.ProfileSaved)
		assert.False(t, result.EmbeddingRebuilt)
		assert.True(t, result.EmbeddingStale)
		assert.Equal(t, 170, *repo.profiles["u1"].HeightCM)
		assert.Empty(t, emitter.events)
	})

	t.Run("rejects an empty update", func(t *testing.T) {
		svc, _, _ := newTestService(newFakeRepo())
		_, err := svc.Update(context.Background(), "u1", &models.ProfileUpdate{})
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}

func TestService_RebuildReadsStoredState(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["u1"] = &models.Profile{ID: "u1", HeightCM: ptr(150), Embedding: database.Vector{9, 9, 9, 9}}
	svc, _, _ := newTestService(repo)

	p, err := svc.RebuildEmbedding(context.Background(), "u1", TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, database.Vector{150, 0, 0, 0}, p.Embedding)
}

func TestService_RebuildLockContention(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["u1"] = &models.Profile{ID: "u1"}
	svc := NewService(repo, &fakeTxProvider{}, heightBuilder{}, failingLocker{}, nil, testLogger())

	_, err := svc.RebuildEmbedding(context.Background(), "u1", TriggerManual)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.Zero(t, repo.embeddingCalls)
}

func TestService_ApplyScores(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["u1"] = &models.Profile{
		ID:         "u1",
		TestScores: models.TestScores{ValuesScores: map[string]int{"Power": 3}},
	}
	svc, emitter, txs := newTestService(repo)

	result, err := svc.ApplyScores(context.Background(), "u1", &models.MBTIScores{Type: "ENFP"})
	require.NoError(t, err)
	assert.True(t, result.EmbeddingRebuilt)

	stored := repo.profiles["u1"].TestScores
	assert.Equal(t, "ENFP", stored.MBTIType)
	assert.Equal(t, map[string]int{"Power": 3}, stored.ValuesScores, "other categories are kept")
	assert.Equal(t, database.Vector{0, 1, 0, 0}, repo.profiles["u1"].Embedding)

	require.Len(t, txs.txs, 1)
	assert.True(t, txs.txs[0].committed)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, TriggerQuestionnaire, emitter.events[0].Trigger)
}

func TestService_ApplyScoresLockContention(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["u1"] = &models.Profile{ID: "u1"}
	txs := &fakeTxProvider{}
	svc := NewService(repo, txs, heightBuilder{}, failingLocker{}, nil, testLogger())

	result, err := svc.ApplyScores(context.Background(), "u1", &models.MBTIScores{Type: "ENFP"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	assert.Empty(t, txs.txs)
	assert.Empty(t, repo.profiles["u1"].TestScores.MBTIType)
}

func TestService_ApplyScoresMissingProfile(t *testing.T) {
	svc, _, txs := newTestService(newFakeRepo())

	_, err := svc.ApplyScores(context.Background(), "ghost", &models.MBTIScores{Type: "ENFP"})
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	require.Len(t, txs.txs, 1)
	assert.True(t, txs.txs[0].rolledBack)
}

func TestService_Complete(t *testing.T) {
	repo := newFakeRepo()
	repo.profiles["u1"] = &models.Profile{ID: "u1"}
	svc, _, _ := newTestService(repo)

	result, err := svc.Complete(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, result.Profile.IsComplete)
	assert.NotNil(t, result.Profile.CompletedAt)
	assert.True(t, result.EmbeddingRebuilt)
}
