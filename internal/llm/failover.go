package llm

import (
	"context"

	"github.com/soyeahso/actionloop/internal/logging"
)

// Failover is a Gateway that tries the primary model reference first, then
// each fallback in order, moving on only for retryable errors.
type Failover struct {
	registry  *Registry
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailover creates a failover gateway over the registry.
func NewFailover(registry *Registry, primary string, fallbacks []string, log *logging.Logger) *Failover {
	return &Failover{
		registry:  registry,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// Name returns the primary model reference.
func (f *Failover) Name() string { return f.primary }

// Complete tries each model reference in turn.
func (f *Failover) Complete(ctx context.Context, req Request) (*AssistantMessage, error) {
	refs := append([]string{f.primary}, f.fallbacks...)

	var lastErr error
	for _, ref := range refs {
		g, model, err := f.registry.Resolve(ref)
		if err != nil {
			f.log.Debug().Str("model", ref).Err(err).Msg("no provider for model, skipping")
			lastErr = &ModelUnavailableError{Provider: ref, Message: err.Error(), Err: err}
			continue
		}

		attempt := req
		attempt.Model = model
		msg, err := g.Complete(ctx, attempt)
		if err == nil {
			return msg, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}

		if IsRetryable(err) {
			f.log.Warn().
				Str("model", ref).
				Str("provider", g.Name()).
				Err(err).
				Msg("retryable error, trying next provider")
			continue
		}

		return nil, err
	}

	return nil, lastErr
}
