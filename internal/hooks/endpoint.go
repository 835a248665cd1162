package hooks

import "fmt"

// EndpointHandler serves a custom operation. The request payload and
// response are engine-level values; the HTTP layer owns (de)serialization.
type EndpointHandler func(req *EndpointRequest) (any, error)

// EndpointRequest carries what a custom operation needs from the
// transport: the principal and the decoded payload.
type EndpointRequest struct {
	Auth    map[string]any
	IsAdmin bool
	Params  map[string]any
	Body    map[string]any
}

// Endpoint exposes a non-CRUD operation through the same
// authorization context as record mutations.
type Endpoint struct {
	Method       string
	Path         string
	RequireAuth  bool
	RequireAdmin bool
	Handler      EndpointHandler
}

// RegisterEndpoint adds a custom endpoint. Method+path pairs must be
// unique; the API layer mounts them in registration order.
func (r *Registry) RegisterEndpoint(ep Endpoint) error {
	if ep.Method == "" || ep.Path == "" {
		return fmt.Errorf("endpoint requires method and path")
	}
	if ep.Handler == nil {
		return fmt.Errorf("endpoint %s %s: handler is required", ep.Method, ep.Path)
	}

	r.epMu.Lock()
	defer r.epMu.Unlock()
	key := ep.Method + " " + ep.Path
	for _, existing := range r.endpoints {
		if existing.Method+" "+existing.Path == key {
			return fmt.Errorf("endpoint %s already registered", key)
		}
	}
	r.endpoints = append(r.endpoints, ep)
	return nil
}

// Endpoints returns registered endpoints in registration order.
func (r *Registry) Endpoints() []Endpoint {
	r.epMu.RLock()
	defer r.epMu.RUnlock()
	return append([]Endpoint(nil), r.endpoints...)
}
