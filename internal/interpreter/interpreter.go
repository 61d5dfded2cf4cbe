// Package interpreter turns a free-form utterance into raw action maps via
// one model call, with tolerant JSON extraction from whatever text the
// model returns.
package interpreter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/logging"
	"github.com/aura-assistant/aura-core/internal/model"
)

// Interpreter drives the model provider. It performs exactly one call per
// utterance, plus at most one retry when the failure is transient.
type Interpreter struct {
	provider model.Provider
	log      *zap.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Interpreter) { i.log = l }
}

// New builds an Interpreter over the given provider.
func New(provider model.Provider, opts ...Option) *Interpreter {
	i := &Interpreter{provider: provider, log: logging.Nop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret runs one model call for the utterance and extracts action maps
// from the response. A transient failure is retried once; a second failure,
// a timeout, or cancellation surfaces as ErrModelUnavailable. A response
// with no extractable JSON surfaces as ErrNoExtractableAction so the caller
// can degrade to a fallback reply instead of failing the turn.
func (i *Interpreter) Interpret(ctx context.Context, utterance string, cctx apptype.ConversationContext) ([]map[string]any, error) {
	system, user := BuildPrompts(utterance, cctx)

	raw, err := i.provider.Complete(ctx, system, user)
	if err != nil && model.IsTransient(err) && ctx.Err() == nil {
		i.log.Warn("model call failed, retrying once",
			zap.String("provider", i.provider.Name()), zap.Error(err))
		raw, err = i.provider.Complete(ctx, system, user)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || model.IsTransient(err) {
			return nil, fmt.Errorf("%w: %s", apptype.ErrModelUnavailable, err)
		}
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	blocks := extractJSONBlocks(raw)
	if len(blocks) == 0 {
		i.log.Debug("no extractable action in model output", zap.Int("response_len", len(raw)))
		return nil, apptype.ErrNoExtractableAction
	}
	return blocks, nil
}
