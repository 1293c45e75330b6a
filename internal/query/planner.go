package query

import "strconv"

// ExecutionStrategy controls how a Plan's sub-queries are run.
type ExecutionStrategy string

const (
	ExecIterative ExecutionStrategy = "iterative"
	ExecSequential ExecutionStrategy = "sequential"
	ExecParallel  ExecutionStrategy = "parallel"
)

// MergeStrategy controls how sub-query results are combined.
type MergeStrategy string

const (
	MergeWeighted     MergeStrategy = "weighted"
	MergeUnion        MergeStrategy = "union"
	MergeIntersection MergeStrategy = "intersection"
)

// TargetLayer names which C7 layer a sub-query should be routed to.
type TargetLayer string

const (
	LayerSemantic TargetLayer = "semantic"
	LayerLexical  TargetLayer = "lexical"
	LayerSymbolic TargetLayer = "symbolic"
	LayerHybrid   TargetLayer = "hybrid"
)

// SubQuery is one decomposed piece of an execution Plan.
type SubQuery struct {
	ID          string
	Text        string
	TargetLayer TargetLayer
	Filters     map[string]any
	DependsOn   []string
}

// Plan is the planner's output.
type Plan struct {
	OriginalQuery       string
	SubQueries          []SubQuery
	ExecutionStrategy   ExecutionStrategy
	MergeStrategy       MergeStrategy
	EstimatedComplexity int // 1..10
}

// Planner turns an Analysis into an executable Plan.
type Planner struct{}

// NewPlanner constructs a Planner. It holds no state.
func NewPlanner() *Planner { return &Planner{} }

// Plan builds an execution Plan from analysis.
func (p *Planner) Plan(analysis *Analysis) *Plan {
	plan := &Plan{OriginalQuery: analysis.RawQuery}

	subQueries := buildSubQueries(analysis)
	plan.SubQueries = subQueries

	plan.MergeStrategy = mergeStrategyFor(analysis)
	plan.ExecutionStrategy = executionStrategyFor(subQueries)
	plan.EstimatedComplexity = estimateComplexity(analysis)

	return plan
}

func buildSubQueries(analysis *Analysis) []SubQuery {
	texts := analysis.SubQueries
	if len(texts) == 0 {
		texts = []string{analysis.RawQuery}
	}

	subs := make([]SubQuery, 0, len(texts))
	for i, text := range texts {
		sub := SubQuery{
			ID:          subQueryID(i),
			Text:        text,
			TargetLayer: targetLayerFor(analysis),
			Filters:     map[string]any{},
		}
		if analysis.TemporalRange != nil {
			sub.TargetLayer = LayerSymbolic
			sub.Filters["date_range"] = analysis.TemporalRange
		}
		if i > 0 {
			sub.DependsOn = []string{subQueryID(i - 1)}
		}
		subs = append(subs, sub)
	}
	return subs
}

func subQueryID(i int) string {
	return "sq-" + strconv.Itoa(i)
}

func targetLayerFor(a *Analysis) TargetLayer {
	if a.Complexity == ComplexityHigh || a.QuestionType == QuestionComparative {
		return LayerSemantic
	}
	return LayerHybrid
}

func mergeStrategyFor(a *Analysis) MergeStrategy {
	switch a.QuestionType {
	case QuestionAggregation:
		return MergeUnion
	case QuestionComparative:
		return MergeIntersection
	default:
		return MergeWeighted
	}
}

func executionStrategyFor(subs []SubQuery) ExecutionStrategy {
	if len(subs) <= 1 {
		return ExecIterative
	}
	for _, s := range subs {
		if len(s.DependsOn) > 0 {
			return ExecSequential
		}
	}
	return ExecParallel
}

func estimateComplexity(a *Analysis) int {
	base := 3
	switch a.Complexity {
	case ComplexityMedium:
		base = 5
	case ComplexityHigh:
		base = 8
	}
	base += len(a.SubQueries)
	if base > 10 {
		base = 10
	}
	if base < 1 {
		base = 1
	}
	return base
}
