package handler

import (
	"strings"

	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

// Handler is the capability every request handler exposes to the Dispatcher.
type Handler interface {
	CanHandle(req *protocol.Request) bool
	Handle(req *protocol.Request) *protocol.Response
}

// ErrorHandler is implemented by handlers whose work can fail. The Dispatcher
// calls Serve instead of Handle and answers an error with a 500 page.
type ErrorHandler interface {
	Handler
	Serve(req *protocol.Request) (*protocol.Response, error)
}

// RouteFunc produces the response for one method of a Route.
type RouteFunc func(req *protocol.Request) (*protocol.Response, error)

// Route handles one exact path with a function per method. Method names
// match case-insensitively.
type Route struct {
	path    string
	methods map[string]RouteFunc
}

// NewRoute creates a route for path with no methods.
func NewRoute(path string) *Route {
	return &Route{
		path:    path,
		methods: make(map[string]RouteFunc),
	}
}

// Method registers fn for method, replacing an earlier registration.
func (r *Route) Method(method string, fn RouteFunc) *Route {
	r.methods[strings.ToUpper(method)] = fn
	return r
}

func (r *Route) Get(fn RouteFunc) *Route  { return r.Method("GET", fn) }
func (r *Route) Post(fn RouteFunc) *Route { return r.Method("POST", fn) }

// Path returns the path the route matches.
func (r *Route) Path() string { return r.path }

// CanHandle reports whether the path matches and a function exists for the method.
func (r *Route) CanHandle(req *protocol.Request) bool {
	if req.Path() != r.path {
		return false
	}
	_, ok := r.methods[strings.ToUpper(req.Method())]
	return ok
}

// Serve runs the function registered for the request method.
func (r *Route) Serve(req *protocol.Request) (*protocol.Response, error) {
	fn, ok := r.methods[strings.ToUpper(req.Method())]
	if !ok {
		return builtinPage(404), nil
	}
	return fn(req)
}

// Handle is Serve with errors answered by the built-in 500 page.
func (r *Route) Handle(req *protocol.Request) *protocol.Response {
	resp, err := r.Serve(req)
	if err != nil || resp == nil {
		return builtinPage(500)
	}
	return resp
}
