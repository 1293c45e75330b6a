package agentmemory

import (
	"math"
	"strings"
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
)

// DecayConfig configures the Decay Engine.
type DecayConfig struct {
	HalfLifeHours        float64
	ImportanceModulation bool
	AccessModulation     bool
	MinImportance        float64
}

// DefaultDecayConfig returns the decay engine's documented defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		HalfLifeHours:        168,
		ImportanceModulation: true,
		AccessModulation:     true,
		MinImportance:        0.1,
	}
}

// DecayEngine computes exponential decay over elapsed time since last
// access, derives effective importance, and reinforces entities on
// confirmation.
type DecayEngine struct {
	cfg   DecayConfig
	clock func() time.Time
}

// NewDecayEngine constructs a DecayEngine. clock is injectable for
// deterministic tests; nil uses time.Now.
func NewDecayEngine(cfg DecayConfig, clock func() time.Time) *DecayEngine {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &DecayEngine{cfg: cfg, clock: clock}
}

// DecayFactor returns the exponential decay term f = exp(-ln(2)*Δh/H'),
// with H' the importance-modulated half-life, for an entity last
// accessed at t. A nil t (never accessed) returns 1 (no decay).
func (d *DecayEngine) DecayFactor(base float64, lastAccessed *time.Time) float64 {
	if lastAccessed == nil {
		return 1.0
	}
	halfLife := d.cfg.HalfLifeHours
	if d.cfg.ImportanceModulation {
		halfLife = halfLife * (1 + base/10)
	}
	if halfLife <= 0 {
		return 0
	}
	deltaHours := d.clock().Sub(*lastAccessed).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}
	return math.Exp(-math.Ln2 * deltaHours / halfLife)
}

// EffectiveImportance computes base x decay-factor x strength, clamped
// below by MinImportance. When lastAccessed is nil, the base importance
// (clamped to MinImportance) is returned directly.
func (d *DecayEngine) EffectiveImportance(base float64, lastAccessed *time.Time, accessCount, confirmationCount int) float64 {
	if lastAccessed == nil {
		return math.Max(base, d.cfg.MinImportance)
	}
	factor := d.DecayFactor(base, lastAccessed)
	strength := 1.0
	if d.cfg.AccessModulation {
		strength = 1 + float64(confirmationCount)*0.1 + float64(accessCount)/100
	}
	return math.Max(base*factor*strength, d.cfg.MinImportance)
}

// ReinforceDelta is the post-reinforcement state reinforce() produces.
type ReinforceDelta struct {
	LastAccessedAt    time.Time
	ConfirmationCount int
	Confidence        float64
}

// Reinforce computes the new last-accessed time, confirmation count, and
// confidence for an entity currently at confirmationCount/confidence.
// confirmationBoost defaults to 1 when <= 0.
func (d *DecayEngine) Reinforce(confirmationCount int, confidence float64, confirmationBoost int, confidenceBoost float64) ReinforceDelta {
	if confirmationBoost <= 0 {
		confirmationBoost = 1
	}
	newConfidence := confidence + confidenceBoost
	if newConfidence > 1 {
		newConfidence = 1
	}
	return ReinforceDelta{
		LastAccessedAt:    d.clock(),
		ConfirmationCount: confirmationCount + confirmationBoost,
		Confidence:        newConfidence,
	}
}

// ForgetOptions configures a forget/archive sweep.
type ForgetOptions struct {
	EffectiveImportanceThreshold float64
	OlderThanHours               float64
	ExcludeTags                  []string
	DryRun                       bool
}

// ForgetCandidate is one entity selected by a forget/archive sweep.
type ForgetCandidate struct {
	Name                string
	EffectiveImportance float64
	AgeHours            float64
}

// Forget selects entities whose effective importance falls below
// EffectiveImportanceThreshold, whose age exceeds OlderThanHours, and
// whose tags don't intersect ExcludeTags (case-insensitive). In DryRun
// mode candidates are reported only; otherwise they're removed from g
//.
func (d *DecayEngine) Forget(g *graph.Store, opts ForgetOptions) ([]ForgetCandidate, error) {
	exclude := make(map[string]bool, len(opts.ExcludeTags))
	for _, t := range opts.ExcludeTags {
		exclude[strings.ToLower(t)] = true
	}

	now := d.clock()
	var candidates []ForgetCandidate
	for _, e := range g.All() {
		if hasExcludedTag(e.Tags, exclude) {
			continue
		}
		ageHours := now.Sub(e.CreatedAt).Hours()
		if ageHours < opts.OlderThanHours {
			continue
		}
		eff := d.EffectiveImportance(e.Importance, e.LastAccessedAt, e.AccessCount, e.ConfirmationCount)
		if eff >= opts.EffectiveImportanceThreshold {
			continue
		}
		candidates = append(candidates, ForgetCandidate{Name: e.Name, EffectiveImportance: eff, AgeHours: ageHours})
	}

	if opts.DryRun {
		return candidates, nil
	}
	for _, c := range candidates {
		if _, err := g.DeleteEntity(c.Name); err != nil {
			return candidates, err
		}
	}
	return candidates, nil
}

func hasExcludedTag(tags []string, exclude map[string]bool) bool {
	for _, t := range tags {
		if exclude[strings.ToLower(t)] {
			return true
		}
	}
	return false
}
