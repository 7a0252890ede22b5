package llm

import (
	"context"
	"errors"
	"time"
)

// Router picks a Completer per request and falls back from the secondary to
// the primary provider. Policy: when the requested provider is the secondary
// and it is unconfigured or errors, the primary is retried with the same
// prompt and history. When both fail the caller receives an error and is
// expected to degrade to the tenant's templated fallback message rather than
// surface the outage to the customer.
type Router struct {
	Primary   Completer
	Secondary Completer
	Timeout   time.Duration // per attempt; zero means no extra deadline
}

// NewRouter wires the two providers. Secondary may be nil.
func NewRouter(primary, secondary Completer, timeout time.Duration) *Router {
	return &Router{Primary: primary, Secondary: secondary, Timeout: timeout}
}

// RoutedCompletion carries the completion together with which provider
// actually served it, which is what billing records.
type RoutedCompletion struct {
	Completion
	Provider string
	Model    string
}

// Complete routes one completion call. provider selects the starting
// provider by name; anything other than the secondary's name starts at the
// primary.
func (r *Router) Complete(ctx context.Context, provider, model, systemPrompt string, history []Turn) (*RoutedCompletion, error) {
	attempts := []Completer{r.Primary}
	if r.Secondary != nil && provider == r.Secondary.Name() {
		attempts = []Completer{r.Secondary, r.Primary}
	}

	var lastErr error
	for _, c := range attempts {
		if c == nil || !c.Configured() {
			lastErr = ErrUnconfigured
			continue
		}
		attemptCtx := ctx
		cancel := func() {}
		if r.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
		out, err := c.Complete(attemptCtx, model, systemPrompt, history)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		usedModel := model
		if usedModel == "" {
			if p, ok := c.(*OpenAIProvider); ok {
				usedModel = p.DefaultModel()
			}
		}
		return &RoutedCompletion{Completion: *out, Provider: c.Name(), Model: usedModel}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no completion provider available")
	}
	return nil, lastErr
}
