// Package matching selects and stores ranked match candidates for a user:
// a reciprocal hard filter, a similarity ranking over the survivors, and an
// idempotent write of the results.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/vectorsearch"
)

var (
	ErrProfileNotFound   = errors.New("user profile not found")
	ErrPreferenceNotSet  = errors.New("user preference not set")
	ErrEmbeddingNotBuilt = errors.New("user embedding not generated, complete questionnaires first")
)

// StalePolicy decides what happens to stored matches that a new run no
// longer returns.
type StalePolicy string

const (
	// StalePolicyRetain keeps earlier matches untouched
	StalePolicyRetain StalePolicy = "retain"
	// StalePolicyPrune deletes the user's matches missing from the new result
	StalePolicyPrune StalePolicy = "prune"
)

// ParseStalePolicy accepts "retain" and "prune"; empty means retain
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case "", StalePolicyRetain:
		return StalePolicyRetain, nil
	case StalePolicyPrune:
		return StalePolicyPrune, nil
	default:
		return "", fmt.Errorf("unknown stale match policy %q", s)
	}
}

// Status of a successful run
type Status string

const (
	StatusMatched      Status = "matched"
	StatusNoCandidates Status = "no_candidates"
	StatusNoMatches    Status = "no_matches"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ProfileStore is the read side of the profile store used by the pipeline
type ProfileStore interface {
	// Find returns nil without error when the profile does not exist
	Find(ctx context.Context, id string) (*models.Profile, error)
	// ListEligibleCandidateIDs applies the hard filter in the store
	ListEligibleCandidateIDs(ctx context.Context, user *models.Profile) ([]string, error)
}

type MatchStore interface {
	UpsertMany(ctx context.Context, matches []models.Match) error
	// DeleteExcept removes the user's matches whose match_id is not in keep
	DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error)
}

type Emitter interface {
	EmitMatchesUpdated(ctx context.Context, userID string, matches []models.Match) error
}

type Config struct {
	DefaultLimit int
	StalePolicy  StalePolicy
}

// Result describes a completed run. Runs that find nothing are still
// successful; Persisted is false when matches were found but not stored.
type Result struct {
	Status     Status         `json:"status"`
	Message    string         `json:"message"`
	Candidates int            `json:"candidates"`
	Matches    []models.Match `json:"matches"`
	Persisted  bool           `json:"persisted"`
	Pruned     int64          `json:"pruned,omitempty"`
}

type Pipeline struct {
	profiles ProfileStore
	matches  MatchStore
	searcher vectorsearch.Searcher
	emitter  Emitter
	config   Config
	logger   ectologger.Logger
	now      func() time.Time
}

func NewPipeline(profiles ProfileStore, matches MatchStore, searcher vectorsearch.Searcher, emitter Emitter, config Config, logger ectologger.Logger) *Pipeline {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultLimit
	}
	if config.StalePolicy == "" {
		config.StalePolicy = StalePolicyRetain
	}
	return &Pipeline{
		profiles: profiles,
		matches:  matches,
		searcher: searcher,
		emitter:  emitter,
		config:   config,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run finds and stores up to limit matches for userID. limit <= 0 uses the
// configured default.
func (p *Pipeline) Run(ctx context.Context, userID string, limit int) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Pipeline.Run")
	defer span.End()

	result, err := p.run(ctx, userID, p.limit(limit))
	switch {
	case err != nil && isPrerequisiteError(err):
		metrics.MatchRunsTotal.WithLabelValues("rejected").Inc()
	case err != nil:
		metrics.MatchRunsTotal.WithLabelValues("error").Inc()
		tracing.RecordError(span, err)
	default:
		metrics.MatchRunsTotal.WithLabelValues(string(result.Status)).Inc()
	}
	return result, err
}

func (p *Pipeline) limit(limit int) int {
	if limit <= 0 {
		limit = p.config.DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

func (p *Pipeline) run(ctx context.Context, userID string, limit int) (*Result, error) {
	logger := p.logger.WithContext(ctx).WithField("user_id", userID)

	user, err := p.profiles.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrProfileNotFound
	}
	if user.Preference == nil || *user.Preference == "" {
		return nil, ErrPreferenceNotSet
	}
	if len(user.Embedding) == 0 {
		return nil, ErrEmbeddingNotBuilt
	}

	candidateIDs, err := p.profiles.ListEligibleCandidateIDs(ctx, user)
	if err != nil {
		return nil, err
	}
	candidateIDs = ectolinq.Filter(candidateIDs, func(id string) bool { return id != user.ID })
	metrics.MatchCandidates.WithLabelValues("filtered").Observe(float64(len(candidateIDs)))

	if len(candidateIDs) == 0 {
		logger.Info("No eligible candidates after filtering")
		return &Result{
			Status:  StatusNoCandidates,
			Message: "No eligible candidates found after filtering.",
			Matches: []models.Match{},
		}, nil
	}

	ranked, err := p.searcher.Search(ctx, user.Embedding, candidateIDs, limit)
	if err != nil {
		// a failed search is reported like an empty one
		logger.WithError(err).Warn("Vector search failed")
		ranked = nil
	}

	eligible := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		eligible[id] = struct{}{}
	}
	ranked = ectolinq.Filter(ranked, func(r vectorsearch.Result) bool {
		_, ok := eligible[r.ID]
		// similarity is undefined when either embedding is all zeros
		return ok && !math.IsNaN(r.Score) && !math.IsInf(r.Score, 0)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	metrics.MatchCandidates.WithLabelValues("ranked").Observe(float64(len(ranked)))

	if len(ranked) == 0 {
		return &Result{
			Status:     StatusNoMatches,
			Message:    "No matches found in vector search.",
			Candidates: len(candidateIDs),
			Matches:    []models.Match{},
		}, nil
	}

	now := p.now()
	matches := ectolinq.Map(ranked, func(r vectorsearch.Result) models.Match {
		return models.Match{
			UserID:    user.ID,
			MatchID:   r.ID,
			Score:     clampScore(r.Score),
			CreatedAt: now,
			UpdatedAt: now,
		}
	})

	result := &Result{
		Status:     StatusMatched,
		Candidates: len(candidateIDs),
		Matches:    matches,
	}

	if err := p.matches.UpsertMany(ctx, matches); err != nil {
		logger.WithError(err).Error("Failed to store matches")
		result.Message = fmt.Sprintf("Found %d potential matches but failed to store them.", len(matches))
		return result, nil
	}
	result.Persisted = true
	result.Message = fmt.Sprintf("Successfully found and stored %d potential matches.", len(matches))

	if p.config.StalePolicy == StalePolicyPrune {
		keep := ectolinq.Map(matches, func(m models.Match) string { return m.MatchID })
		pruned, err := p.matches.DeleteExcept(ctx, user.ID, keep)
		if err != nil {
			logger.WithError(err).Warn("Failed to prune stale matches")
		} else {
			result.Pruned = pruned
		}
	}

	if p.emitter != nil {
		if err := p.emitter.EmitMatchesUpdated(ctx, user.ID, matches); err != nil {
			logger.WithError(err).Warn("Failed to emit matches.updated event")
		}
	}

	logger.WithFields(map[string]any{
		"candidates": len(candidateIDs),
		"matches":    len(matches),
		"pruned":     result.Pruned,
	}).Info("Matching run complete")

	return result, nil
}

func isPrerequisiteError(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrPreferenceNotSet) || errors.Is(err, ErrEmbeddingNotBuilt)
}

// cosine similarity can be negative; stored scores live in [0,1]
func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
