package tenant

import (
	"context"
	"errors"
	"sync"

	"github.com/seuros/haven/internal/metrics"
)

// ErrSuperseded is returned to a navigation whose result arrived after a newer
// navigation started. The result is discarded.
var ErrSuperseded = errors.New("navigation superseded")

// Navigator tracks the resolved organization of one live view. Starting a navigation
// cancels the one in flight, and only the latest navigation may publish its result.
type Navigator struct {
	resolver *Resolver

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current *Resolution
}

func NewNavigator(resolver *Resolver) *Navigator {
	return &Navigator{resolver: resolver}
}

// Navigate resolves req and publishes it as the current resolution unless another
// navigation started in the meantime.
func (n *Navigator) Navigate(ctx context.Context, req Request) (Resolution, error) {
	ctx, gen := n.Begin(ctx)
	res, err := n.resolver.Resolve(ctx, req)
	return n.Finish(gen, res, err)
}

// Begin starts a navigation and cancels the one in flight. The returned generation
// orders navigations by when Begin was called, so callers that resolve
// asynchronously must call Begin before handing off.
func (n *Navigator) Begin(parent context.Context) (context.Context, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
	n.gen++
	ctx, cancel := context.WithCancel(parent)
	n.cancel = cancel
	return ctx, n.gen
}

// Resolve runs the lookup for a navigation started with Begin.
func (n *Navigator) Resolve(ctx context.Context, req Request) (Resolution, error) {
	return n.resolver.Resolve(ctx, req)
}

// Finish publishes the outcome of navigation gen. It returns ErrSuperseded when a
// newer navigation began or the navigator was left since.
func (n *Navigator) Finish(gen uint64, res Resolution, err error) (Resolution, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		metrics.SupersededNavigations.Inc()
		return Resolution{}, ErrSuperseded
	}
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	if err != nil {
		return Resolution{}, err
	}
	n.current = &res
	return res, nil
}

// Current returns the last published resolution.
func (n *Navigator) Current() (Resolution, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Resolution{}, false
	}
	return *n.current, true
}

// Leave discards any pending navigation and the published state.
func (n *Navigator) Leave() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.current = nil
}
