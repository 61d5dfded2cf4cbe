// Package assistant provides a library-first API over the action router
// without MCP transport, for embedding in bots and other hosts.
package assistant

import (
	"context"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/database"
	"github.com/aura-assistant/aura-core/internal/interpreter"
	"github.com/aura-assistant/aura-core/internal/model"
	"github.com/aura-assistant/aura-core/internal/resolver"
	"github.com/aura-assistant/aura-core/internal/router"
)

// Re-exported result types so embedders do not import internal packages.
type (
	TurnResult          = apptype.TurnResult
	ListRecap           = apptype.ListRecap
	TaskRef             = apptype.TaskRef
	ConversationContext = apptype.ConversationContext
)

// Service wires the store, interpreter and resolver behind a small API.
type Service struct {
	store  *database.Store
	router *router.Router
}

// NewService constructs a Service with the provided config and model
// provider. Pass a nil provider to read the provider from the environment.
func NewService(cfg *Config, provider model.Provider) (*Service, error) {
	store, err := database.NewStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	if provider == nil {
		provider, err = model.NewFromEnv()
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	rt := router.New(store, interpreter.New(provider), resolver.New(store))
	return &Service{store: store, router: rt}, nil
}

// Close releases resources.
func (s *Service) Close() error { return s.store.Close() }

// HandleUtterance runs the full pipeline for one utterance, assembling the
// conversation context from stored state plus the caller's hints.
func (s *Service) HandleUtterance(ctx context.Context, owner int64, utterance string, hints ConversationContext) ([]TurnResult, error) {
	cctx, err := s.router.Context(ctx, owner)
	if err != nil {
		return nil, err
	}
	cctx.LastList = hints.LastList
	cctx.LastAction = hints.LastAction
	cctx.PendingDelete = hints.PendingDelete
	cctx.History = hints.History
	return s.router.HandleUtterance(ctx, owner, utterance, cctx)
}

// Overview returns every active list with its open tasks.
func (s *Service) Overview(ctx context.Context, owner int64) ([]ListRecap, error) {
	return s.store.Overview(ctx, owner)
}

// CompletedTasks returns done tasks with list attribution.
func (s *Service) CompletedTasks(ctx context.Context, owner int64) ([]TaskRef, error) {
	return s.store.CompletedTasks(ctx, owner)
}

// DeletedTasks returns restorable tasks.
func (s *Service) DeletedTasks(ctx context.Context, owner int64) ([]TaskRef, error) {
	return s.store.DeletedTasks(ctx, owner)
}

// SearchTasks finds active tasks by substring.
func (s *Service) SearchTasks(ctx context.Context, owner int64, pattern string) ([]TaskRef, error) {
	return s.store.SearchTasks(ctx, owner, pattern)
}
