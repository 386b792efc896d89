// Package router assembles the gin engine and the ledger routes.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// DefaultAPIVersion is the path segment after /api when none is configured
const DefaultAPIVersion = "v1"

// Resource is one REST resource: a path prefix, its routes and the guards
// that run before every one of them.
type Resource struct {
	name   string
	prefix string
	guards []gin.HandlerFunc
	routes []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewResource starts an empty resource mounted at prefix
func NewResource(name, prefix string) *Resource {
	return &Resource{name: name, prefix: prefix}
}

// Name identifies the resource in logs and docs
func (r *Resource) Name() string { return r.name }

// Prefix is the mount path relative to the API group
func (r *Resource) Prefix() string { return r.prefix }

// With adds guards that wrap every route of the resource
func (r *Resource) With(guards ...gin.HandlerFunc) *Resource {
	r.guards = append(r.guards, guards...)
	return r
}

// Route adds a route; path is relative to the prefix
func (r *Resource) Route(method, path string, handlers ...gin.HandlerFunc) *Resource {
	r.routes = append(r.routes, route{method: method, path: path, handlers: handlers})
	return r
}

func (r *Resource) GET(path string, h ...gin.HandlerFunc) *Resource {
	return r.Route(http.MethodGet, path, h...)
}

func (r *Resource) POST(path string, h ...gin.HandlerFunc) *Resource {
	return r.Route(http.MethodPost, path, h...)
}

func (r *Resource) PUT(path string, h ...gin.HandlerFunc) *Resource {
	return r.Route(http.MethodPut, path, h...)
}

func (r *Resource) PATCH(path string, h ...gin.HandlerFunc) *Resource {
	return r.Route(http.MethodPatch, path, h...)
}

func (r *Resource) DELETE(path string, h ...gin.HandlerFunc) *Resource {
	return r.Route(http.MethodDelete, path, h...)
}

// Mount registers the routes below rg
func (r *Resource) Mount(rg gin.IRouter) {
	group := rg.Group(r.prefix, r.guards...)
	for _, rt := range r.routes {
		group.Handle(rt.method, rt.path, rt.handlers...)
	}
}

// API collects resources under /api/<version>
type API struct {
	version   string
	resources []*Resource
}

// NewAPI creates an API; an empty version means DefaultAPIVersion
func NewAPI(version string) *API {
	if version == "" {
		version = DefaultAPIVersion
	}
	return &API{version: version}
}

// Base is the path every resource is mounted under
func (a *API) Base() string {
	return "/api/" + a.version
}

// Add appends resources in mount order
func (a *API) Add(resources ...*Resource) *API {
	a.resources = append(a.resources, resources...)
	return a
}

// Mount registers every resource on engine and returns the API group
func (a *API) Mount(engine *gin.Engine) *gin.RouterGroup {
	group := engine.Group(a.Base())
	for _, r := range a.resources {
		r.Mount(group)
	}
	return group
}

// Routes lists "METHOD /full/path" for every route, in mount order
func (a *API) Routes() []string {
	var out []string
	for _, r := range a.resources {
		for _, rt := range r.routes {
			out = append(out, rt.method+" "+joinPath(a.Base(), r.prefix, rt.path))
		}
	}
	return out
}

// joinPath mirrors how gin joins group and route paths
func joinPath(parts ...string) string {
	joined := path.Join(parts...)
	if last := parts[len(parts)-1]; last != "" && last[len(last)-1] == '/' && joined[len(joined)-1] != '/' {
		joined += "/"
	}
	return joined
}
