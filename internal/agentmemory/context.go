package agentmemory

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cortexkg/cortexkg/internal/graph"
)

// ContextWindowConfig configures the Context Window Manager.
type ContextWindowConfig struct {
	DefaultMaxTokens      int
	TokenMultiplier       float64
	ReserveBuffer         int
	MaxEntitiesToConsider int
	DiversityThreshold    float64
	EnforceDiversity      bool
	PoolPercentages       map[graph.MemoryType]float64
}

// DefaultContextWindowConfig returns the context window manager's
// documented defaults.
func DefaultContextWindowConfig() ContextWindowConfig {
	return ContextWindowConfig{
		DefaultMaxTokens:      4000,
		TokenMultiplier:       1.3,
		ReserveBuffer:         100,
		MaxEntitiesToConsider: 1000,
		DiversityThreshold:    0.7,
		EnforceDiversity:      true,
		PoolPercentages: map[graph.MemoryType]float64{
			graph.MemoryTypeWorking:  0.40,
			graph.MemoryTypeEpisodic: 0.35,
			graph.MemoryTypeSemantic: 0.25,
		},
	}
}

// EstimateTokens counts whitespace-separated words across name,
// entity_type, each observation, and present metadata fields, scaled by
// multiplier and rounded up.
func EstimateTokens(e *graph.Entity, multiplier float64) int {
	words := len(strings.Fields(e.Name)) + len(strings.Fields(e.EntityType))
	for _, o := range e.Observations {
		words += len(strings.Fields(o))
	}
	for k, v := range e.Metadata {
		words += len(strings.Fields(k))
		words += len(strings.Fields(fmt.Sprintf("%v", v)))
	}
	return int(math.Ceil(float64(words) * multiplier))
}

// ExcludeReason explains why a candidate didn't make the packed result
//.
type ExcludeReason string

const (
	ReasonBudgetExceeded ExcludeReason = "budget_exceeded"
	ReasonLowSalience    ExcludeReason = "low_salience"
	ReasonNotFound       ExcludeReason = "not_found"
)

// PackedItem is one entity included in a packed result.
type PackedItem struct {
	Entity   *graph.Entity
	Salience float64
	Tokens   int
}

// ExcludedItem is one candidate left out of a packed result.
type ExcludedItem struct {
	Name     string
	Reason   ExcludeReason
	Tokens   int
	Salience float64
}

// Suggestions surfaces the top three excluded candidates by salience,
// plus a remainder count when the excluded list exceeds five.
type Suggestions struct {
	TopItems  []ExcludedItem
	Remaining int
}

// PackRequest is one call to Pack.
type PackRequest struct {
	Candidates       []*graph.Entity
	MustIncludeNames []string
	MaxTokens        int
	MinSalience      float64
	Context          SalienceContext
}

// PackResult is the full outcome of a Pack call.
type PackResult struct {
	MustInclude     []PackedItem
	Selected        []PackedItem
	Excluded        []ExcludedItem
	Warnings        []string
	TokensUsed      int
	TokenBudget     int
	BreakdownByType map[string][]PackedItem
	Suggestions     Suggestions
}

// Manager packs entities into a token budget, scoring with Engine.
type Manager struct {
	cfg      ContextWindowConfig
	salience *Engine
}

// NewManager constructs a Manager.
func NewManager(cfg ContextWindowConfig, salience *Engine) *Manager {
	return &Manager{cfg: cfg, salience: salience}
}

// Pack scores req.Candidates, always includes req.MustIncludeNames, then
// greedily packs the remainder by salience/token efficiency until the
// budget (MaxTokens - ReserveBuffer) is exhausted, applying MinSalience
// and, when enabled, diversity rejection.
func (m *Manager) Pack(req PackRequest) PackResult {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.cfg.DefaultMaxTokens
	}
	budget := maxTokens - m.cfg.ReserveBuffer
	if budget < 0 {
		budget = 0
	}

	candidates := req.Candidates
	if m.cfg.MaxEntitiesToConsider > 0 && len(candidates) > m.cfg.MaxEntitiesToConsider {
		candidates = candidates[:m.cfg.MaxEntitiesToConsider]
	}

	byName := make(map[string]*graph.Entity, len(candidates))
	for _, e := range candidates {
		byName[e.Name] = e
	}

	result := PackResult{TokenBudget: maxTokens}
	seen := make(map[string]bool)
	used := 0

	for _, name := range req.MustIncludeNames {
		if seen[name] {
			continue
		}
		seen[name] = true

		e, ok := byName[name]
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("must_include entity %q not found", name))
			result.Excluded = append(result.Excluded, ExcludedItem{Name: name, Reason: ReasonNotFound})
			continue
		}
		tokens := EstimateTokens(e, m.cfg.TokenMultiplier)
		if tokens > budget {
			result.Warnings = append(result.Warnings, fmt.Sprintf("must_include entity %q (%d tokens) exceeds budget (%d)", name, tokens, budget))
		}
		sc := m.salience.Score(e, req.Context)
		result.MustInclude = append(result.MustInclude, PackedItem{Entity: e, Salience: sc.Total, Tokens: tokens})
		used += tokens
	}

	type scored struct {
		entity *graph.Entity
		score  float64
		tokens int
	}
	var optional []scored
	for _, e := range candidates {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		sc := m.salience.Score(e, req.Context)
		optional = append(optional, scored{e, sc.Total, EstimateTokens(e, m.cfg.TokenMultiplier)})
	}
	sort.Slice(optional, func(i, j int) bool {
		effI := efficiency(optional[i].score, optional[i].tokens)
		effJ := efficiency(optional[j].score, optional[j].tokens)
		if effI != effJ {
			return effI > effJ
		}
		return optional[i].entity.Name < optional[j].entity.Name
	})

	var selected []PackedItem
	for _, c := range optional {
		if used+c.tokens > budget {
			result.Excluded = append(result.Excluded, ExcludedItem{Name: c.entity.Name, Reason: ReasonBudgetExceeded, Tokens: c.tokens, Salience: c.score})
			continue
		}
		if c.score < req.MinSalience {
			result.Excluded = append(result.Excluded, ExcludedItem{Name: c.entity.Name, Reason: ReasonLowSalience, Tokens: c.tokens, Salience: c.score})
			continue
		}
		if m.cfg.EnforceDiversity && tooSimilar(c.entity, selected, m.cfg.DiversityThreshold) {
			result.Excluded = append(result.Excluded, ExcludedItem{Name: c.entity.Name, Reason: ReasonLowSalience, Tokens: c.tokens, Salience: c.score})
			continue
		}
		selected = append(selected, PackedItem{Entity: c.entity, Salience: c.score, Tokens: c.tokens})
		used += c.tokens
	}
	result.Selected = selected
	result.TokensUsed = used

	sort.Slice(result.Excluded, func(i, j int) bool { return result.Excluded[i].Salience > result.Excluded[j].Salience })

	result.BreakdownByType = breakdownByType(result.MustInclude, result.Selected)
	result.Suggestions = buildSuggestions(result.Excluded)
	return result
}

func efficiency(score float64, tokens int) float64 {
	if tokens <= 0 {
		return score
	}
	return score / float64(tokens)
}

// tooSimilar reports whether e's observation-set Jaccard similarity to
// any already-selected entity exceeds threshold.
func tooSimilar(e *graph.Entity, selected []PackedItem, threshold float64) bool {
	es := entityTokenSet(e)
	for _, s := range selected {
		if jaccard(es, entityTokenSet(s.Entity)) > threshold {
			return true
		}
	}
	return false
}

func breakdownByType(mustInclude, selected []PackedItem) map[string][]PackedItem {
	out := map[string][]PackedItem{"must_include": mustInclude}
	for _, item := range selected {
		key := string(item.Entity.MemoryType)
		if key == "" {
			key = "unspecified"
		}
		out[key] = append(out[key], item)
	}
	return out
}

func buildSuggestions(excluded []ExcludedItem) Suggestions {
	n := 3
	if n > len(excluded) {
		n = len(excluded)
	}
	s := Suggestions{TopItems: append([]ExcludedItem(nil), excluded[:n]...)}
	if len(excluded) > 5 {
		s.Remaining = len(excluded) - n
	}
	return s
}

// Cursor is the spillover pagination marker.
type Cursor struct {
	MaxSalience float64 `json:"max_salience"`
	LastEntity  string  `json:"last_entity"`
}

// EncodeCursor base64-encodes c as JSON.
func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

// SpilloverPage returns one page of excluded (already sorted by
// salience descending), starting after cursor, plus the next page's
// cursor ("" when exhausted).
func SpilloverPage(excluded []ExcludedItem, cursor string, pageSize int) ([]ExcludedItem, string, error) {
	if pageSize <= 0 {
		pageSize = len(excluded)
	}
	start := 0
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		for i, item := range excluded {
			if item.Name == c.LastEntity && item.Salience == c.MaxSalience {
				start = i + 1
				break
			}
		}
	}
	if start >= len(excluded) {
		return nil, "", nil
	}
	end := start + pageSize
	if end > len(excluded) {
		end = len(excluded)
	}
	page := excluded[start:end]

	next := ""
	if end < len(excluded) {
		last := page[len(page)-1]
		next = EncodeCursor(Cursor{MaxSalience: last.Salience, LastEntity: last.Name})
	}
	return page, next, nil
}

// AllocateBudget splits maxTokens across memory-type pools by
// cfg.PoolPercentages, after reserving mustIncludeTokens, packing each
// pool independently.
func (m *Manager) AllocateBudget(maxTokens, mustIncludeTokens int, pools map[graph.MemoryType][]*graph.Entity, sc SalienceContext, minSalience float64) map[graph.MemoryType]PackResult {
	remaining := maxTokens - mustIncludeTokens
	if remaining < 0 {
		remaining = 0
	}
	out := make(map[graph.MemoryType]PackResult, len(pools))
	for memType, entities := range pools {
		poolBudget := int(float64(remaining) * m.cfg.PoolPercentages[memType])
		if poolBudget <= 0 {
			// Pack reads a non-positive MaxTokens as "use the default", so an
			// empty pool budget is resolved here: nothing fits.
			res := PackResult{}
			for _, e := range entities {
				res.Excluded = append(res.Excluded, ExcludedItem{Name: e.Name, Reason: ReasonBudgetExceeded, Tokens: EstimateTokens(e, m.cfg.TokenMultiplier), Salience: m.salience.Score(e, sc).Total})
			}
			out[memType] = res
			continue
		}
		out[memType] = m.Pack(PackRequest{
			Candidates:  entities,
			MaxTokens:   poolBudget,
			MinSalience: minSalience,
			Context:     sc,
		})
	}
	return out
}
