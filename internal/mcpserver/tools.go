package mcpserver

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cortexkg/cortexkg/internal/agentmemory"
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/hybrid"
	"github.com/cortexkg/cortexkg/internal/kgerr"
	"github.com/cortexkg/cortexkg/internal/query"
	"github.com/cortexkg/cortexkg/internal/txn"
)

// registerTools adds the full agent integration tool surface to s.mcp,
// prefixed "kg." so a host juggling multiple MCP servers can tell
// cortexkg's tools apart from another server's "search" or "remember".
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.search",
		Description: "Run a hybrid (semantic + lexical + symbolic) search over the knowledge graph and return fused, ranked entities.",
	}, s.handleSearch)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.ask",
		Description: "Analyze a natural-language question, decompose it into sub-queries if needed, and run hybrid search over each, merging the results.",
	}, s.handleAsk)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.add_entity",
		Description: "Create a new entity in the knowledge graph.",
	}, s.handleAddEntity)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.add_relation",
		Description: "Create a directed, typed relation between two existing entities.",
	}, s.handleAddRelation)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.remember",
		Description: "Store an agent-memory entity (working, episodic, semantic, or procedural) for later recall.",
	}, s.handleRemember)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.recall",
		Description: "Pack the most relevant agent memories for the current context into a token budget.",
	}, s.handleRecall)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.reinforce",
		Description: "Reinforce a memory entity on confirmation, boosting its confidence and resetting its decay clock.",
	}, s.handleReinforce)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.end_session",
		Description: "End a session (completed or abandoned), promoting its working memories to episodic.",
	}, s.handleEndSession)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "kg.session_chain",
		Description: "Walk a session's history: itself, its previous-session ancestors, then related sessions chained off it.",
	}, s.handleSessionChain)
}

// --- kg.search ---

// SearchArgs are the parameters of the kg.search tool.
type SearchArgs struct {
	Query             string   `json:"query"`
	Limit             int      `json:"limit,omitempty"`
	MinSimilarity     float64  `json:"min_similarity,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	EntityTypes       []string `json:"entity_types,omitempty"`
	AdequacyThreshold float64  `json:"adequacy_threshold,omitempty"`
}

// SearchResultItem is one fused match returned by kg.search.
type SearchResultItem struct {
	Name          string  `json:"name"`
	EntityType    string  `json:"entity_type"`
	CombinedScore float64 `json:"combined_score"`
	MatchedLayers []string `json:"matched_layers"`
}

// SearchOutput is the structured result of kg.search.
type SearchOutput struct {
	Results         []SearchResultItem `json:"results"`
	EarlyTerminated bool                `json:"early_terminated"`
	ExecutedLayers  []string            `json:"executed_layers"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcpsdk.CallToolRequest, args SearchArgs) (*mcpsdk.CallToolResult, SearchOutput, error) {
	start := time.Now()
	opts := hybrid.Options{
		Limit:             args.Limit,
		MinSimilarity:     args.MinSimilarity,
		AdequacyThreshold: args.AdequacyThreshold,
	}
	if len(args.Tags) > 0 || len(args.EntityTypes) > 0 {
		opts.SymbolicFilters = &hybrid.SymbolicFilters{Tags: args.Tags, EntityTypes: args.EntityTypes}
	}

	report, err := s.deps.Search.Search(ctx, args.Query, opts)
	s.recordTool(ctx, "kg.search", start, err)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		EarlyTerminated: report.EarlyTerminated,
		ExecutedLayers:  report.ExecutedLayers,
	}
	for _, r := range report.Results {
		out.Results = append(out.Results, SearchResultItem{
			Name:          r.Entity.Name,
			EntityType:    r.Entity.EntityType,
			CombinedScore: r.CombinedScore,
			MatchedLayers: r.MatchedLayers,
		})
	}
	return textResult(fmt.Sprintf("found %d results for %q", len(out.Results), args.Query)), out, nil
}

// --- kg.ask ---

// AskArgs are the parameters of the kg.ask tool.
type AskArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// AskOutput is the structured result of kg.ask: the fused search results
// alongside the query analyzer's read of the question.
type AskOutput struct {
	Results       []SearchResultItem `json:"results"`
	QuestionType  string             `json:"question_type"`
	Complexity    string             `json:"complexity"`
	Confidence    float64            `json:"confidence"`
	SubQueryCount int                `json:"sub_query_count"`
}

func (s *Server) handleAsk(ctx context.Context, _ *mcpsdk.CallToolRequest, args AskArgs) (*mcpsdk.CallToolResult, AskOutput, error) {
	start := time.Now()
	report, analysis, err := query.Execute(ctx, s.deps.Search, s.deps.Analyzer, s.deps.Planner, s.deps.Temporal, args.Query, hybrid.Options{Limit: args.Limit})
	s.recordTool(ctx, "kg.ask", start, err)
	if err != nil {
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		QuestionType:  string(analysis.QuestionType),
		Complexity:    string(analysis.Complexity),
		Confidence:    analysis.Confidence,
		SubQueryCount: len(analysis.SubQueries),
	}
	for _, r := range report.Results {
		out.Results = append(out.Results, SearchResultItem{
			Name:          r.Entity.Name,
			EntityType:    r.Entity.EntityType,
			CombinedScore: r.CombinedScore,
			MatchedLayers: r.MatchedLayers,
		})
	}
	return textResult(fmt.Sprintf("answered %q: %s/%s, %d results", args.Query, out.QuestionType, out.Complexity, len(out.Results))), out, nil
}

// --- kg.add_entity ---

// AddEntityArgs are the parameters of the kg.add_entity tool.
type AddEntityArgs struct {
	Name         string         `json:"name"`
	EntityType   string         `json:"entity_type"`
	Observations []string       `json:"observations,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Importance   float64        `json:"importance,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AddEntityOutput confirms the entity that was created.
type AddEntityOutput struct {
	Name string `json:"name"`
}

func (s *Server) handleAddEntity(ctx context.Context, _ *mcpsdk.CallToolRequest, args AddEntityArgs) (*mcpsdk.CallToolResult, AddEntityOutput, error) {
	start := time.Now()
	if args.Name == "" || args.EntityType == "" {
		err := fmt.Errorf("%w: name and entity_type are required", kgerr.ErrValidation)
		s.recordTool(ctx, "kg.add_entity", start, err)
		return nil, AddEntityOutput{}, err
	}

	now := time.Now().UTC()
	entity := &graph.Entity{
		Name:         args.Name,
		EntityType:   args.EntityType,
		Observations: args.Observations,
		Tags:         args.Tags,
		Importance:   args.Importance,
		Metadata:     args.Metadata,
		CreatedAt:    now,
		LastModified: now,
	}

	err := s.commitSingle(ctx, txn.Operation{Kind: txn.OpCreateEntity, Entity: entity})
	s.recordTool(ctx, "kg.add_entity", start, err)
	if err != nil {
		return nil, AddEntityOutput{}, err
	}
	return textResult(fmt.Sprintf("created entity %q", args.Name)), AddEntityOutput{Name: args.Name}, nil
}

// --- kg.add_relation ---

// AddRelationArgs are the parameters of the kg.add_relation tool.
type AddRelationArgs struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
}

// AddRelationOutput confirms the relation that was created.
type AddRelationOutput struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
}

func (s *Server) handleAddRelation(ctx context.Context, _ *mcpsdk.CallToolRequest, args AddRelationArgs) (*mcpsdk.CallToolResult, AddRelationOutput, error) {
	start := time.Now()
	if args.From == "" || args.To == "" || args.RelationType == "" {
		err := fmt.Errorf("%w: from, to, and relation_type are required", kgerr.ErrValidation)
		s.recordTool(ctx, "kg.add_relation", start, err)
		return nil, AddRelationOutput{}, err
	}

	now := time.Now().UTC()
	rel := &graph.Relation{From: args.From, To: args.To, RelationType: args.RelationType, CreatedAt: now, LastModified: now}

	err := s.commitSingle(ctx, txn.Operation{Kind: txn.OpCreateRelation, Relation: rel})
	s.recordTool(ctx, "kg.add_relation", start, err)
	if err != nil {
		return nil, AddRelationOutput{}, err
	}
	out := AddRelationOutput{From: args.From, To: args.To, RelationType: args.RelationType}
	return textResult(fmt.Sprintf("created relation %s -%s-> %s", args.From, args.RelationType, args.To)), out, nil
}

// --- kg.remember ---

// RememberArgs are the parameters of the kg.remember tool.
type RememberArgs struct {
	Name         string             `json:"name"`
	MemoryType   graph.MemoryType   `json:"memory_type"`
	Observations []string           `json:"observations,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	Importance   float64            `json:"importance,omitempty"`
	SessionID    string             `json:"session_id,omitempty"`
	TaskID       string             `json:"task_id,omitempty"`
	AgentID      string             `json:"agent_id,omitempty"`
	Visibility   graph.Visibility   `json:"visibility,omitempty"`
}

// RememberOutput confirms the memory that was stored.
type RememberOutput struct {
	Name string `json:"name"`
}

func (s *Server) handleRemember(ctx context.Context, _ *mcpsdk.CallToolRequest, args RememberArgs) (*mcpsdk.CallToolResult, RememberOutput, error) {
	start := time.Now()
	if args.Name == "" {
		err := fmt.Errorf("%w: name is required", kgerr.ErrValidation)
		s.recordTool(ctx, "kg.remember", start, err)
		return nil, RememberOutput{}, err
	}
	memType := args.MemoryType
	if memType == "" {
		memType = graph.MemoryTypeWorking
	}
	visibility := args.Visibility
	if visibility == "" {
		visibility = graph.VisibilityPrivate
	}

	now := time.Now().UTC()
	entity := &graph.Entity{
		Name:         args.Name,
		EntityType:   "memory",
		Observations: args.Observations,
		Tags:         args.Tags,
		Importance:   args.Importance,
		CreatedAt:    now,
		LastModified: now,
		MemoryType:   memType,
		SessionID:    args.SessionID,
		TaskID:       args.TaskID,
		AgentID:      args.AgentID,
		Visibility:   visibility,
		Confidence:   0.5,
	}

	err := s.commitSingle(ctx, txn.Operation{Kind: txn.OpCreateEntity, Entity: entity})
	s.recordTool(ctx, "kg.remember", start, err)
	if err != nil {
		return nil, RememberOutput{}, err
	}
	return textResult(fmt.Sprintf("remembered %q as %s memory", args.Name, memType)), RememberOutput{Name: args.Name}, nil
}

// --- kg.recall ---

// RecallArgs are the parameters of the kg.recall tool.
type RecallArgs struct {
	Query            string   `json:"query"`
	MustIncludeNames []string `json:"must_include_names,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	MinSalience      float64  `json:"min_salience,omitempty"`
	SessionID        string   `json:"session_id,omitempty"`
	TaskID           string   `json:"task_id,omitempty"`
}

// RecalledItem is one packed memory in a kg.recall response.
type RecalledItem struct {
	Name     string  `json:"name"`
	Salience float64 `json:"salience"`
	Tokens   int      `json:"tokens"`
}

// RecallOutput is the structured result of kg.recall.
type RecallOutput struct {
	Selected    []RecalledItem `json:"selected"`
	TokensUsed  int            `json:"tokens_used"`
	TokenBudget int            `json:"token_budget"`
	Warnings    []string       `json:"warnings,omitempty"`
}

func (s *Server) handleRecall(ctx context.Context, _ *mcpsdk.CallToolRequest, args RecallArgs) (*mcpsdk.CallToolResult, RecallOutput, error) {
	start := time.Now()
	candidates := s.deps.Graph.All()

	req := agentmemory.PackRequest{
		Candidates:       candidates,
		MustIncludeNames: args.MustIncludeNames,
		MaxTokens:        args.MaxTokens,
		MinSalience:      args.MinSalience,
		Context: agentmemory.SalienceContext{
			Query:     args.Query,
			TaskID:    args.TaskID,
			SessionID: args.SessionID,
		},
	}
	result := s.deps.Context.Pack(req)
	if s.deps.Access != nil {
		for _, item := range result.Selected {
			s.deps.Access.Record(item.Entity.Name, args.SessionID)
		}
	}
	s.recordTool(ctx, "kg.recall", start, nil)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ContextPackTokensUsed.Record(ctx, int64(result.TokensUsed))
	}

	out := RecallOutput{TokensUsed: result.TokensUsed, TokenBudget: result.TokenBudget, Warnings: result.Warnings}
	for _, item := range result.Selected {
		out.Selected = append(out.Selected, RecalledItem{Name: item.Entity.Name, Salience: item.Salience, Tokens: item.Tokens})
	}
	return textResult(fmt.Sprintf("packed %d memories (%d/%d tokens)", len(out.Selected), out.TokensUsed, out.TokenBudget)), out, nil
}

// --- kg.reinforce ---

// ReinforceArgs are the parameters of the kg.reinforce tool.
type ReinforceArgs struct {
	Name              string  `json:"name"`
	ConfirmationBoost int     `json:"confirmation_boost,omitempty"`
	ConfidenceBoost   float64 `json:"confidence_boost,omitempty"`
}

// ReinforceOutput reports the post-reinforcement state.
type ReinforceOutput struct {
	Name              string  `json:"name"`
	ConfirmationCount int     `json:"confirmation_count"`
	Confidence        float64 `json:"confidence"`
}

func (s *Server) handleReinforce(ctx context.Context, _ *mcpsdk.CallToolRequest, args ReinforceArgs) (*mcpsdk.CallToolResult, ReinforceOutput, error) {
	start := time.Now()
	entity, err := s.deps.Graph.GetByName(args.Name)
	if err != nil {
		s.recordTool(ctx, "kg.reinforce", start, err)
		return nil, ReinforceOutput{}, err
	}

	delta := s.deps.Decay.Reinforce(entity.ConfirmationCount, entity.Confidence, args.ConfirmationBoost, args.ConfidenceBoost)
	patch := map[string]any{
		"confirmation_count": delta.ConfirmationCount,
		"confidence":         delta.Confidence,
		"last_accessed_at":   delta.LastAccessedAt,
	}

	err = s.commitSingle(ctx, txn.Operation{Kind: txn.OpUpdateEntity, EntityName: args.Name, Patch: patch})
	s.recordTool(ctx, "kg.reinforce", start, err)
	if err != nil {
		return nil, ReinforceOutput{}, err
	}

	out := ReinforceOutput{Name: args.Name, ConfirmationCount: delta.ConfirmationCount, Confidence: delta.Confidence}
	return textResult(fmt.Sprintf("reinforced %q: confirmation_count=%d confidence=%.2f", args.Name, out.ConfirmationCount, out.Confidence)), out, nil
}

// --- kg.end_session ---

// EndSessionArgs are the parameters of the kg.end_session tool.
type EndSessionArgs struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"` // "completed" or "abandoned"
}

// EndSessionOutput reports which memories were promoted on session end.
type EndSessionOutput struct {
	SessionID string   `json:"session_id"`
	Status    string   `json:"status"`
	Promoted  []string `json:"promoted"`
}

func (s *Server) handleEndSession(ctx context.Context, _ *mcpsdk.CallToolRequest, args EndSessionArgs) (*mcpsdk.CallToolResult, EndSessionOutput, error) {
	start := time.Now()
	status := graph.SessionStatus(args.Status)
	if status != graph.SessionCompleted && status != graph.SessionAbandoned {
		err := fmt.Errorf("%w: status must be %q or %q", kgerr.ErrValidation, graph.SessionCompleted, graph.SessionAbandoned)
		s.recordTool(ctx, "kg.end_session", start, err)
		return nil, EndSessionOutput{}, err
	}

	result, err := agentmemory.EndSession(ctx, s.deps.Graph, s.deps.Txn, args.SessionID, status)
	s.recordTool(ctx, "kg.end_session", start, err)
	if err != nil {
		return nil, EndSessionOutput{}, err
	}

	out := EndSessionOutput{SessionID: args.SessionID, Status: string(status), Promoted: result.Promoted}
	return textResult(fmt.Sprintf("ended session %q (%s), promoted %d memories", args.SessionID, status, len(result.Promoted))), out, nil
}

// --- kg.session_chain ---

// SessionChainArgs are the parameters of the kg.session_chain tool.
type SessionChainArgs struct {
	SessionID string `json:"session_id"`
}

// SessionChainEntry is one session entity in a kg.session_chain response.
type SessionChainEntry struct {
	SessionID         string `json:"session_id"`
	Status            string `json:"status"`
	PreviousSessionID string `json:"previous_session_id,omitempty"`
}

// SessionChainOutput is the structured result of kg.session_chain.
type SessionChainOutput struct {
	Chain []SessionChainEntry `json:"chain"`
}

func (s *Server) handleSessionChain(ctx context.Context, _ *mcpsdk.CallToolRequest, args SessionChainArgs) (*mcpsdk.CallToolResult, SessionChainOutput, error) {
	start := time.Now()
	chain, err := agentmemory.SessionChain(s.deps.Graph, args.SessionID)
	s.recordTool(ctx, "kg.session_chain", start, err)
	if err != nil {
		return nil, SessionChainOutput{}, err
	}

	out := SessionChainOutput{}
	for _, e := range chain {
		out.Chain = append(out.Chain, SessionChainEntry{
			SessionID:         e.Name,
			Status:            string(e.Status),
			PreviousSessionID: e.PreviousSessionID,
		})
	}
	return textResult(fmt.Sprintf("session %q chain has %d entries", args.SessionID, len(out.Chain))), out, nil
}

// --- shared helpers ---

// commitSingle runs op through the transaction manager's begin/stage/commit
// sequence, rolling back on any staging failure.
func (s *Server) commitSingle(ctx context.Context, op txn.Operation) error {
	if err := s.deps.Txn.Begin(); err != nil {
		return err
	}
	if err := s.deps.Txn.Stage(op); err != nil {
		_ = s.deps.Txn.Rollback()
		return err
	}
	result, err := s.deps.Txn.Commit(ctx, txn.CommitOptions{})
	if err != nil {
		return err
	}
	if !result.Success {
		return result.Err
	}
	return nil
}

// recordTool emits a tool-call metric keyed by outcome, grounded on
// internal/observe.Metrics.RecordToolCall.
func (s *Server) recordTool(ctx context.Context, name string, start time.Time, err error) {
	if s.deps.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.deps.Metrics.RecordToolCall(ctx, name, status)
	s.deps.Metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
}

// textResult wraps a human-readable summary in a CallToolResult. The
// structured Out value each handler also returns is what agent clients
// should parse; this text is a fallback for clients that only render
// content blocks.
func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}
