package authgate

import "sync"

// Gate remembers the last input it evaluated and only reports a redirect when the
// input changes, so re-rendering with the same state never re-issues navigation.
type Gate struct {
	routes Routes

	mu    sync.Mutex
	last  Input
	valid bool
}

// NewGate creates a gate over routes
func NewGate(routes Routes) *Gate {
	return &Gate{routes: routes}
}

// Evaluate returns the redirect for in, or nil if in equals the previous input or
// no redirect applies.
func (g *Gate) Evaluate(in Input) *RedirectDirective {
	in.CurrentPath = normalizePath(in.CurrentPath)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.valid && g.last == in {
		return nil
	}
	g.last = in
	g.valid = true
	return g.routes.Evaluate(in)
}

// Reset forgets the previous input
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.valid = false
	g.last = Input{}
}
