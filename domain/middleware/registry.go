package middleware

// Registry manages an ordered collection of middleware.
type Registry struct {
	middlewares []Middleware
}

// NewRegistry creates an empty middleware registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Use adds middleware in execution order.
func (r *Registry) Use(ms ...Middleware) *Registry {
	r.middlewares = append(r.middlewares, ms...)
	return r
}

// Chain returns the composed middleware, or Noop when empty.
func (r *Registry) Chain() Middleware {
	if r == nil || len(r.middlewares) == 0 {
		return Noop()
	}
	return Chain(r.middlewares...)
}

// Handler returns the full chain terminated by Invoke.
func (r *Registry) Handler() Handler {
	return r.Chain()(Invoke)
}

// Len returns the number of registered middleware.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.middlewares)
}
