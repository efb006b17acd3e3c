// Package router assembles the gin engine and mounts the price API under
// /api/<version>.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// Router mounts route groups under the versioned API prefix
type Router struct {
	engine  *gin.Engine
	version string
	groups  []*RouteGroup
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the prefix, "v1" by default
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.version = version
	}
}

// NewRouter creates a Router over engine
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount queues groups for Setup
func (r *Router) Mount(groups ...*RouteGroup) *Router {
	r.groups = append(r.groups, groups...)
	return r
}

// BasePath returns the API prefix, e.g. /api/v1
func (r *Router) BasePath() string {
	return "/api/" + r.version
}

// Setup registers every mounted group on the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.BasePath())
	for _, g := range r.groups {
		g.mount(api)
	}
}

// Routes lists "METHOD /full/path" for every mounted route
func (r *Router) Routes() []string {
	var out []string
	for _, g := range r.groups {
		out = g.appendRoutes(out, r.BasePath())
	}
	return out
}

// RouteGroup is a set of routes sharing a prefix and middleware. Middleware
// applies to the group's own routes and its subgroups only.
type RouteGroup struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	children   []*RouteGroup
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewRouteGroup creates a group mounted at prefix
func NewRouteGroup(name, prefix string) *RouteGroup {
	return &RouteGroup{name: name, prefix: prefix}
}

func (g *RouteGroup) Name() string   { return g.name }
func (g *RouteGroup) Prefix() string { return g.prefix }

// Use adds middleware to the group
func (g *RouteGroup) Use(mw ...gin.HandlerFunc) *RouteGroup {
	g.middleware = append(g.middleware, mw...)
	return g
}

func (g *RouteGroup) GET(p string, h ...gin.HandlerFunc) *RouteGroup {
	return g.add(http.MethodGet, p, h)
}

func (g *RouteGroup) POST(p string, h ...gin.HandlerFunc) *RouteGroup {
	return g.add(http.MethodPost, p, h)
}

// Group adds a subgroup under this group's prefix
func (g *RouteGroup) Group(name, prefix string) *RouteGroup {
	child := NewRouteGroup(name, prefix)
	g.children = append(g.children, child)
	return child
}

func (g *RouteGroup) add(method, p string, h []gin.HandlerFunc) *RouteGroup {
	g.routes = append(g.routes, route{method: method, path: p, handlers: h})
	return g
}

func (g *RouteGroup) mount(parent *gin.RouterGroup) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, rt := range g.routes {
		rg.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, child := range g.children {
		child.mount(rg)
	}
}

func (g *RouteGroup) appendRoutes(out []string, base string) []string {
	base = path.Join(base, g.prefix)
	for _, rt := range g.routes {
		out = append(out, rt.method+" "+path.Join(base, rt.path))
	}
	for _, child := range g.children {
		out = child.appendRoutes(out, base)
	}
	return out
}
