// Package kgraph is cortexkg's public embedding API: a single-process
// knowledge graph with hybrid (semantic + lexical + symbolic) search and
// an agent-memory layer (access tracking, decay, salience, context-window
// packing), all addressable through one [Graph] value.
//
// Unlike pkg/memory's multi-backend interface set (SessionStore,
// SemanticIndex, KnowledgeGraph — built so Postgres/Redis/Neo4j
// implementations could be swapped in), cortexkg has exactly one storage
// engine: the embedded, file-persisted graph. kgraph therefore exposes a
// concrete struct rather than an interface; callers wanting a test double
// construct a real [Graph] over a temp directory instead of mocking one.
//
// Typical usage:
//
//	cfg, err := config.Load("cortexkg.yaml")
//	g, err := kgraph.Open(cfg, nil)
//	defer g.Close()
//
//	err = g.AddEntity(ctx, &graph.Entity{Name: "Alice", EntityType: "person"})
//	report, err := g.Search(ctx, "who works on the graph store", hybrid.Options{Limit: 5})
package kgraph

import (
	"context"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/cortexkg/cortexkg/internal/agentmemory"
	"github.com/cortexkg/cortexkg/internal/config"
	"github.com/cortexkg/cortexkg/internal/embedding"
	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/hybrid"
	"github.com/cortexkg/cortexkg/internal/lexindex"
	"github.com/cortexkg/cortexkg/internal/mcpserver"
	"github.com/cortexkg/cortexkg/internal/memcache"
	"github.com/cortexkg/cortexkg/internal/observe"
	"github.com/cortexkg/cortexkg/internal/query"
	"github.com/cortexkg/cortexkg/internal/resilience"
	"github.com/cortexkg/cortexkg/internal/search"
	"github.com/cortexkg/cortexkg/internal/txn"
	"github.com/cortexkg/cortexkg/internal/vectorstore"
)

// defaultQuantizeThreshold is the vector population count at which
// internal/vectorstore switches every embedding to 8-bit quantized form
//. Not user-configurable: it is an implementation detail of
// the memory/accuracy tradeoff, not a semantic knob.
const defaultQuantizeThreshold = 1000

// Graph is cortexkg's embedded knowledge-graph store. The zero value is
// not usable; construct with [Open].
type Graph struct {
	cfg    *config.Config
	logger *slog.Logger

	bus   *events.Bus
	store *graph.Store
	index *lexindex.Index
	txn   *txn.Manager

	embedder embedding.Provider
	vectors  *vectorstore.Store
	cache    *memcache.Cache[[]float32]

	orchestrator *hybrid.Orchestrator
	decay        *agentmemory.DecayEngine
	salience     *agentmemory.Engine
	context      *agentmemory.Manager
	access       *agentmemory.Tracker

	analyzer *query.Analyzer
	planner  *query.Planner
	temporal *query.TemporalParser

	metrics *observe.Metrics
}

// withEmbeddingFallbacks wraps primary in a [resilience.EmbeddingFallback]:
// each entry in cfg.Fallbacks is built through registry and added behind
// its own circuit breaker, tried in order if primary's breaker opens.
func withEmbeddingFallbacks(registry *config.Registry, primary embedding.Provider, cfg config.ProviderEntry) (embedding.Provider, error) {
	group := resilience.NewEmbeddingFallback(primary, cfg.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "embedding:" + cfg.Name},
	})
	for _, fallbackCfg := range cfg.Fallbacks {
		fallback, err := registry.Create(fallbackCfg)
		if err != nil {
			return nil, fmt.Errorf("kgraph: create fallback embedding provider %q: %w", fallbackCfg.Name, err)
		}
		group.AddFallback(fallbackCfg.Name, fallback)
	}
	return group, nil
}

// newReformulator builds an LLM-backed hybrid.Reformulator from a
// reformulation provider entry. Absent an api_key in entry, the
// underlying any-llm-go backend falls back to its usual environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, and so on).
func newReformulator(entry config.ProviderEntry) (*hybrid.LLMReformulator, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return hybrid.NewLLMReformulator(entry.Name, entry.Model, opts...)
}

// Open wires every cortexkg subsystem from cfg and loads the persisted
// graph and lexical index from disk. logger is used for the transaction
// manager and subsystem diagnostics; nil uses slog.Default().
func Open(cfg *config.Config, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bus := events.New()
	store := graph.New(cfg.Storage.GraphPath, bus)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("kgraph: load graph: %w", err)
	}

	idx, ok, err := lexindex.Load(cfg.Storage.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("kgraph: load lexical index: %w", err)
	}
	if !ok {
		idx = lexindex.New()
		idx.Rebuild(documentTexts(store))
	}
	idx.Subscribe(bus, "kgraph", func(name string) (string, bool) {
		e, err := store.GetByName(name)
		if err != nil {
			return "", false
		}
		return e.DocumentText(), true
	})

	registry := config.NewRegistry()
	embedder, err := registry.Create(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("kgraph: create embedding provider: %w", err)
	}
	if len(cfg.Embeddings.Fallbacks) > 0 {
		embedder, err = withEmbeddingFallbacks(registry, embedder, cfg.Embeddings)
		if err != nil {
			return nil, err
		}
	}

	vectors := vectorstore.New(embedder.Dimensions(), defaultQuantizeThreshold)
	cache := memcache.New[[]float32](cfg.Cache.EmbeddingCacheSize, cfg.Cache.EmbeddingCacheTTL)

	semantic := search.NewSemantic(vectors, embedder, cache)
	lexical := search.NewLexical(idx, store)
	symbolic := search.NewSymbolic()
	orchestrator := hybrid.New(store, semantic, lexical, symbolic)
	if cfg.Reformulation.Name != "" {
		reformulator, err := newReformulator(cfg.Reformulation)
		if err != nil {
			return nil, fmt.Errorf("kgraph: create reformulation provider: %w", err)
		}
		orchestrator.SetReformulator(reformulator)
	}

	txnMgr := txn.New(store, cfg.Storage.BackupDir, logger)

	decay := agentmemory.NewDecayEngine(decayConfigFrom(cfg.Decay), nil)
	salience := agentmemory.NewEngine(salienceConfigFrom(cfg.Salience), decay, idx, nil)
	contextMgr := agentmemory.NewManager(contextWindowConfigFrom(cfg.ContextWindow), salience)
	tracker := agentmemory.NewTracker(cfg.Decay.RingSize, nil)

	analyzer := query.NewAnalyzer(nil)
	planner := query.NewPlanner()
	temporal := query.NewTemporalParser(nil)

	return &Graph{
		cfg:          cfg,
		logger:       logger,
		bus:          bus,
		store:        store,
		index:        idx,
		txn:          txnMgr,
		embedder:     embedder,
		vectors:      vectors,
		cache:        cache,
		orchestrator: orchestrator,
		decay:        decay,
		salience:     salience,
		context:      contextMgr,
		access:       tracker,
		analyzer:     analyzer,
		planner:      planner,
		temporal:     temporal,
		metrics:      observe.DefaultMetrics(),
	}, nil
}

// Close persists the lexical index to Storage.IndexPath. The graph file
// itself is always up to date: every mutation commits through
// internal/txn, which persists on success.
func (g *Graph) Close() error {
	if g.cfg.Storage.IndexPath == "" {
		return nil
	}
	if err := g.index.Save(g.cfg.Storage.IndexPath); err != nil {
		return fmt.Errorf("kgraph: save lexical index: %w", err)
	}
	return nil
}

// Deps builds the dependency set cortexkg's MCP tool surface
// (internal/mcpserver) needs, so a host process can do:
//
//	g, _ := kgraph.Open(cfg, logger)
//	srv, _ := mcpserver.New(g.Deps(), cfg.MCP)
func (g *Graph) Deps() mcpserver.Deps {
	return mcpserver.Deps{
		Graph:    g.store,
		Txn:      g.txn,
		Search:   g.orchestrator,
		Decay:    g.decay,
		Salience: g.salience,
		Context:  g.context,
		Access:   g.access,
		Metrics:  g.metrics,
		Logger:   g.logger,
	}
}

// GetEntity returns the named entity, or internal/kgerr.ErrEntityNotFound
// if it does not exist.
func (g *Graph) GetEntity(name string) (*graph.Entity, error) {
	return g.store.GetByName(name)
}

// AddEntity stages and commits a create-entity transaction for e.
func (g *Graph) AddEntity(ctx context.Context, e *graph.Entity) error {
	return g.commitSingle(ctx, txn.Operation{Kind: txn.OpCreateEntity, Entity: e})
}

// UpdateEntity stages and commits a patch against the named entity and
// returns the updated entity.
func (g *Graph) UpdateEntity(ctx context.Context, name string, patch map[string]any) (*graph.Entity, error) {
	if err := g.commitSingle(ctx, txn.Operation{Kind: txn.OpUpdateEntity, EntityName: name, Patch: patch}); err != nil {
		return nil, err
	}
	return g.store.GetByName(name)
}

// DeleteEntity stages and commits a delete-entity transaction for name.
func (g *Graph) DeleteEntity(ctx context.Context, name string) error {
	return g.commitSingle(ctx, txn.Operation{Kind: txn.OpDeleteEntity, EntityName: name})
}

// AddRelation stages and commits a create-relation transaction.
func (g *Graph) AddRelation(ctx context.Context, rel *graph.Relation) error {
	return g.commitSingle(ctx, txn.Operation{Kind: txn.OpCreateRelation, Relation: rel})
}

// DeleteRelation stages and commits a delete-relation transaction.
func (g *Graph) DeleteRelation(ctx context.Context, from, to, relType string) error {
	return g.commitSingle(ctx, txn.Operation{Kind: txn.OpDeleteRelation, From: from, To: to, RelationType: relType})
}

// RelationsFrom returns every relation originating at name.
func (g *Graph) RelationsFrom(name string) []*graph.Relation { return g.store.RelationsFrom(name) }

// RelationsTo returns every relation terminating at name.
func (g *Graph) RelationsTo(name string) []*graph.Relation { return g.store.RelationsTo(name) }

// Search runs the hybrid search pipeline.
func (g *Graph) Search(ctx context.Context, q string, opts hybrid.Options) (*hybrid.SearchReport, error) {
	return g.orchestrator.Search(ctx, q, opts)
}

// Ask runs the query analyzer and planner ahead of hybrid
// search: it classifies raw, resolves any relative-temporal phrase it
// finds into a concrete date range, decomposes multi-hop questions into
// sub-queries, and executes each sub-query through Search, merging and
// re-ranking their combined results. Returns the Analysis alongside the
// report so callers can surface the detected question type/complexity.
func (g *Graph) Ask(ctx context.Context, raw string, opts hybrid.Options) (*hybrid.SearchReport, *query.Analysis, error) {
	return query.Execute(ctx, g.orchestrator, g.analyzer, g.planner, g.temporal, raw, opts)
}

// Recall packs the most relevant agent memories for req into a token
// budget, recording an access for each selected entity.
func (g *Graph) Recall(req agentmemory.PackRequest) agentmemory.PackResult {
	result := g.context.Pack(req)
	for _, item := range result.Selected {
		g.access.Record(item.Entity.Name, req.Context.SessionID)
	}
	return result
}

// Reinforce applies the decay engine's reinforcement formula to name and
// commits the resulting confirmation-count/confidence/last-accessed-at
// patch.
func (g *Graph) Reinforce(ctx context.Context, name string, confirmationBoost int, confidenceBoost float64) (agentmemory.ReinforceDelta, error) {
	e, err := g.store.GetByName(name)
	if err != nil {
		return agentmemory.ReinforceDelta{}, err
	}
	delta := g.decay.Reinforce(e.ConfirmationCount, e.Confidence, confirmationBoost, confidenceBoost)
	patch := map[string]any{
		"confirmation_count": delta.ConfirmationCount,
		"confidence":         delta.Confidence,
		"last_accessed_at":   delta.LastAccessedAt,
	}
	if err := g.commitSingle(ctx, txn.Operation{Kind: txn.OpUpdateEntity, EntityName: name, Patch: patch}); err != nil {
		return agentmemory.ReinforceDelta{}, err
	}
	return delta, nil
}

// EndSession ends the named session (completed or abandoned), promoting
// its working memories to episodic.
func (g *Graph) EndSession(ctx context.Context, sessionID string, status graph.SessionStatus) (agentmemory.EndSessionResult, error) {
	return agentmemory.EndSession(ctx, g.store, g.txn, sessionID, status)
}

// SessionChain walks the named session's history: itself, its
// previous_session_id ancestors, then related sessions chained off it.
func (g *Graph) SessionChain(sessionID string) ([]*graph.Entity, error) {
	return agentmemory.SessionChain(g.store, sessionID)
}

func (g *Graph) commitSingle(ctx context.Context, op txn.Operation) error {
	if err := g.txn.Begin(); err != nil {
		return err
	}
	if err := g.txn.Stage(op); err != nil {
		_ = g.txn.Rollback()
		return err
	}
	result, err := g.txn.Commit(ctx, txn.CommitOptions{})
	if err != nil {
		return err
	}
	if !result.Success {
		return result.Err
	}
	return nil
}

func documentTexts(store *graph.Store) map[string]string {
	entities := store.All()
	docs := make(map[string]string, len(entities))
	for _, e := range entities {
		docs[e.Name] = e.DocumentText()
	}
	return docs
}
