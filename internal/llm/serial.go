package llm

import (
	"context"
	"sync"
)

// serialProvider wraps a Provider so at most one completion is in
// flight at a time. A single memory-constrained model thrashes badly
// under concurrent requests, so all callers funnel through this gate.
type serialProvider struct {
	inner Provider
	mu    sync.Mutex
}

// Serialize wraps p so completions run one at a time. Wrapping an
// already serialized provider returns it unchanged.
func Serialize(p Provider) Provider {
	if _, ok := p.(*serialProvider); ok {
		return p
	}
	return &serialProvider{inner: p}
}

func (s *serialProvider) Name() string {
	return s.inner.Name()
}

func (s *serialProvider) IsAvailable(ctx context.Context) bool {
	return s.inner.IsAvailable(ctx)
}

func (s *serialProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.Complete(ctx, req)
}
