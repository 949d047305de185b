package champion

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"ModelGate/internal/domain/models"
	applogger "ModelGate/pkg/logger"
)

var (
	// ErrUnknownPolicy means the policy id was never registered.
	ErrUnknownPolicy = errors.New("unknown policy")
	// ErrDuplicatePolicy means the policy id is already registered.
	ErrDuplicatePolicy = errors.New("duplicate policy")
	// ErrAlreadyChampion means the evaluated policy currently holds the flag.
	ErrAlreadyChampion = errors.New("policy is already the champion")
	// ErrInsufficientSamples means a series is shorter than the minimum the
	// hypothesis test needs.
	ErrInsufficientSamples = errors.New("insufficient samples for evaluation")
)

const (
	seriesCap     = 500
	minSampleSize = 50

	// smallSampleRef anchors the p-value inflation max(1, sqrt(ref/n)).
	smallSampleRef = 50.0

	// maxTStat keeps the statistic finite when excess variance is zero with
	// positive mean; the normal upper tail already underflows to zero here.
	maxTStat = 40.0

	// degenerateSD and degenerateSDRel bound the excess stddev below which
	// the series is treated as constant.
	degenerateSD    = 1e-12
	degenerateSDRel = 1e-9

	defaultSignificance = 0.05
)

type policy struct {
	returns []float64
	perf    models.PolicyPerformance
}

// Registry owns the champion flag and the rolling return series of every
// competing policy. One writer per policy id is assumed upstream; the
// registry itself is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	significance float64
	championID   string
	policies     map[string]*policy
	l            *applogger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSignificance overrides the promotion p-value threshold.
func WithSignificance(alpha float64) Option {
	return func(r *Registry) { r.significance = alpha }
}

// NewRegistry creates a registry with championID as the incumbent.
func NewRegistry(championID string, opts ...Option) *Registry {
	r := &Registry{
		significance: defaultSignificance,
		championID:   championID,
		policies:     map[string]*policy{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.policies[championID] = &policy{
		perf: models.PolicyPerformance{PolicyID: championID, IsChampion: true},
	}
	return r
}

// SetLogger injects a structured logger.
func (r *Registry) SetLogger(l *applogger.Logger) { r.l = l }

// RegisterChallenger adds a new policy with an empty return series.
func (r *Registry) RegisterChallenger(policyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policyID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePolicy, policyID)
	}
	r.policies[policyID] = &policy{
		perf: models.PolicyPerformance{PolicyID: policyID},
	}
	return nil
}

// AddPolicyReturn appends one realized return to the policy's rolling series,
// evicting the oldest entry past the cap, and recomputes its metrics.
func (r *Registry) AddPolicyReturn(policyID string, ret float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.policies[policyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, policyID)
	}
	p.returns = append(p.returns, ret)
	if len(p.returns) > seriesCap {
		p.returns = p.returns[len(p.returns)-seriesCap:]
	}
	p.perf.SampleCount = len(p.returns)
	p.perf.Sharpe = sharpeOf(p.returns)
	p.perf.WinRate = winRateOf(p.returns)
	p.perf.MaxDrawdown = maxDrawdownOf(p.returns)
	p.perf.UpdatedAt = time.Now()
	return nil
}

// ChampionID returns the incumbent's id.
func (r *Registry) ChampionID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.championID
}

// Performance returns a snapshot for one policy.
func (r *Registry) Performance(policyID string) (models.PolicyPerformance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[policyID]
	if !ok {
		return models.PolicyPerformance{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, policyID)
	}
	return p.perf, nil
}

// Policies returns snapshots of every registered policy, champion first, the
// rest ordered by id.
func (r *Registry) Policies() []models.PolicyPerformance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.PolicyPerformance, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p.perf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsChampion != out[j].IsChampion {
			return out[i].IsChampion
		}
		return out[i].PolicyID < out[j].PolicyID
	})
	return out
}

// EvaluatePromotion runs the one-sided hypothesis test of the challenger
// against the current champion over their common trailing window. When the
// p-value clears the significance threshold the champion flag moves to the
// challenger atomically; otherwise nothing changes.
func (r *Registry) EvaluatePromotion(challengerID string) (models.EvaluationOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if challengerID == r.championID {
		return models.EvaluationOutcome{}, fmt.Errorf("%w: %s", ErrAlreadyChampion, challengerID)
	}
	ch, ok := r.policies[challengerID]
	if !ok {
		return models.EvaluationOutcome{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, challengerID)
	}
	champ := r.policies[r.championID]

	n := len(ch.returns)
	if len(champ.returns) < n {
		n = len(champ.returns)
	}
	if n < minSampleSize {
		return models.EvaluationOutcome{}, fmt.Errorf(
			"%w: challenger %s has common window %d, need %d",
			ErrInsufficientSamples, challengerID, n, minSampleSize)
	}

	// per-step excess over the common trailing window
	chTail := ch.returns[len(ch.returns)-n:]
	champTail := champ.returns[len(champ.returns)-n:]
	excess := make([]float64, n)
	for i := range excess {
		excess[i] = chTail[i] - champTail[i]
	}

	m := meanOf(excess)
	sd := stddevOf(excess, m)

	// Constant excess series accumulate rounding noise in stddevOf, so the
	// degeneracy check needs a floor rather than an exact zero compare.
	degenerate := sd <= degenerateSD || sd <= degenerateSDRel*math.Abs(m)

	var t, p float64
	switch {
	case degenerate && m > 0:
		// perfectly consistent outperformance
		t, p = maxTStat, 0
	case degenerate:
		t, p = 0, 1
	default:
		t = m * math.Sqrt(float64(n)) / sd
		if t < 0 {
			t = 0
		}
		if t > maxTStat {
			t = maxTStat
		}
		inflation := math.Max(1, math.Sqrt(smallSampleRef/float64(n)))
		p = normalUpperTail(t) * inflation
		if p > 1 {
			p = 1
		}
	}

	out := models.EvaluationOutcome{
		ChallengerID: challengerID,
		ChampionID:   r.championID,
		SampleSize:   n,
		TStat:        t,
		PValue:       p,
		Promoted:     p < r.significance,
		EvaluatedAt:  time.Now(),
	}
	ch.perf.LastTStat = t
	ch.perf.LastPValue = p

	if out.Promoted {
		champ.perf.IsChampion = false
		ch.perf.IsChampion = true
		r.championID = challengerID
		if r.l != nil {
			r.l.Info("champion replaced",
				applogger.String("old_champion", out.ChampionID),
				applogger.String("new_champion", challengerID),
				applogger.Any("p_value", p),
				applogger.Any("t_stat", t),
				applogger.Int("sample_size", n),
			)
		}
	}
	return out, nil
}
