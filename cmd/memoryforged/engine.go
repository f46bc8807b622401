package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/memoryforge/internal/config"
	"github.com/fyrsmithlabs/memoryforge/internal/confidence"
	"github.com/fyrsmithlabs/memoryforge/internal/conflict"
	"github.com/fyrsmithlabs/memoryforge/internal/consolidation"
	"github.com/fyrsmithlabs/memoryforge/internal/embedding"
	"github.com/fyrsmithlabs/memoryforge/internal/graph"
	"github.com/fyrsmithlabs/memoryforge/internal/logging"
	"github.com/fyrsmithlabs/memoryforge/internal/manager"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/project"
	"github.com/fyrsmithlabs/memoryforge/internal/retrieval"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
	"github.com/fyrsmithlabs/memoryforge/internal/sync"
	"github.com/fyrsmithlabs/memoryforge/internal/vectorindex"
)

// Engine is the composition root's facade: it wires every component over a
// shared store and exposes the abstract tool surface of §6 as plain Go
// methods, the way an MCP or CLI adapter (out of scope here) would call
// into it.
type Engine struct {
	cfg *config.Config
	log *logging.Logger

	store *sqlite.Store
	index vectorindex.Store

	embedder embedding.Provider

	manager       *manager.Manager
	retrieval     *retrieval.Engine
	consolidation *consolidation.Consolidator
	graph         *graph.Builder
	confidence    *confidence.Scorer
	conflict      *conflict.Resolver
	sync          *sync.Engine
	project       *project.Router
}

// NewEngine wires every component together against cfg, in the order R ->
// V -> E -> M/Ret/Con/G/CS/CR/Sync/PR, matching §2's data-flow layering.
func NewEngine(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Engine, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare storage directories: %w", err)
	}

	store, err := sqlite.Open(cfg.SQLitePath(), log)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}

	index, err := vectorindex.NewQdrantStore(vectorindex.QdrantConfig{Host: "localhost", Port: 6334})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect vector index: %w", err)
	}

	embedder, err := embedding.New(embedding.Config{
		Kind:         embedding.Kind(cfg.EmbeddingProvider),
		LocalModel:   cfg.LocalEmbeddingModel,
		CacheDir:     cfg.QdrantPath(),
		RemoteModel:  cfg.RemoteEmbeddingModel,
		RemoteAPIKey: cfg.RemoteAPIKey.Value(),
	})
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	resolver := conflict.New(store)

	var syncEngine *sync.Engine
	if cfg.SyncKey.IsSet() && cfg.SyncPath != "" {
		layer, err := sync.NewEncryptionLayer(cfg.SyncKey.Value())
		if err != nil {
			return nil, fmt.Errorf("build sync encryption layer: %w", err)
		}
		syncEngine = sync.New(store, sync.NewLocalFileAdapter(cfg.SyncPath), layer, resolver)
	}

	e := &Engine{
		cfg:           cfg,
		log:           log,
		store:         store,
		index:         index,
		embedder:      embedder,
		manager:       manager.New(store, index, embedder, log),
		retrieval:     retrieval.New(store, index, embedder),
		consolidation: consolidation.New(store, index, embedder, cfg.ConsolidationThreshold, log),
		graph:         graph.New(store),
		confidence:    confidence.New(store),
		conflict:      resolver,
		sync:          syncEngine,
		project:       project.New(store, cfg),
	}
	return e, nil
}

// Close releases every resource the Engine opened.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// StoreMemory implements the `store_memory` tool (§6): create a memory
// against projectID, resolving to the active project when projectID is "".
func (e *Engine) StoreMemory(ctx context.Context, projectID, content string, typ memory.Type, source memory.Source, autoConfirm bool, metadata map[string]any) (*memory.Memory, error) {
	projectID, err := e.resolveProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.manager.CreateMemory(ctx, projectID, content, typ, source, autoConfirm, metadata)
}

// SearchMemory implements the `search_memory` tool (§6).
func (e *Engine) SearchMemory(ctx context.Context, projectID, query string, typeFilter *memory.Type, limit *int, minScore *float64, excludeStale bool) ([]retrieval.Result, error) {
	projectID, err := e.resolveProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.retrieval.Search(ctx, projectID, query, typeFilter, limit, minScore, excludeStale)
}

// ListMemory implements the `list_memory` tool (§6).
func (e *Engine) ListMemory(ctx context.Context, projectID string, opts sqlite.ListOptions) ([]*memory.Memory, error) {
	projectID, err := e.resolveProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.manager.ListMemories(ctx, projectID, opts)
}

// DeleteMemory implements the `delete_memory` tool (§6).
func (e *Engine) DeleteMemory(ctx context.Context, id string) error {
	return e.manager.DeleteMemory(ctx, id)
}

// MemoryTimeline implements the `memory_timeline` tool (§6).
func (e *Engine) MemoryTimeline(ctx context.Context, projectID string, limit int) ([]*memory.Memory, error) {
	projectID, err := e.resolveProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.retrieval.GetTimeline(ctx, projectID, limit)
}

// ListProjects implements the `list_projects` tool (§6).
func (e *Engine) ListProjects(ctx context.Context) ([]*memory.Project, error) {
	return e.project.ListProjects(ctx)
}

// SwitchProject implements the `switch_project` tool (§6).
func (e *Engine) SwitchProject(ctx context.Context, idOrName string) (*memory.Project, error) {
	return e.project.SwitchProject(ctx, idOrName)
}

// ProjectStatus implements the `project_status` tool (§6). A nil id reports
// on the active project.
func (e *Engine) ProjectStatus(ctx context.Context, id *string) (*project.Status, error) {
	return e.project.GetProjectStatus(ctx, id)
}

// resolveProject substitutes the active project when projectID is empty,
// so every tool method accepts "" to mean "whatever's active" (§4.13).
func (e *Engine) resolveProject(ctx context.Context, projectID string) (string, error) {
	if projectID != "" {
		return projectID, nil
	}
	p, err := e.project.EnsureActiveProject(ctx)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}
