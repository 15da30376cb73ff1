package notify

import "sync"

// DefaultMaxRoutes bounds the number of remembered click targets.
const DefaultMaxRoutes = 1024

// Routes remembers the click target of dispatched notifications. The oldest
// entry is evicted once max is reached.
type Routes struct {
	mu    sync.Mutex
	max   int
	order []string
	byID  map[string]string
}

// NewRoutes creates a Routes holding at most max entries.
func NewRoutes(max int) *Routes {
	if max <= 0 {
		max = DefaultMaxRoutes
	}
	return &Routes{max: max, byID: make(map[string]string)}
}

// Remember stores the route of notification id.
func (r *Routes) Remember(id, route string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byID[id] = route

	for len(r.order) > r.max {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
}

// Resolve returns the route of notification id.
func (r *Routes) Resolve(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.byID[id]
	return route, ok
}

// Len returns the number of remembered routes.
func (r *Routes) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
