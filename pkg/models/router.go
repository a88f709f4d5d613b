package models

import (
	"context"
	"fmt"
	"strings"
)

// Router dispatches requests to a provider chosen by model name prefix.
type Router struct {
	routes []route
}

type route struct {
	prefixes []string
	provider Provider
}

var _ Provider = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle routes models whose name starts with any of prefixes to p.
// Earlier registrations win when prefixes overlap.
func (r *Router) Handle(p Provider, prefixes ...string) {
	r.routes = append(r.routes, route{prefixes: prefixes, provider: p})
}

func (r *Router) Name() string { return "router" }

// Resolve returns the provider that serves model.
func (r *Router) Resolve(model string) (Provider, error) {
	for _, rt := range r.routes {
		for _, prefix := range rt.prefixes {
			if strings.HasPrefix(model, prefix) {
				return rt.provider, nil
			}
		}
	}
	return nil, fmt.Errorf("model %s not supported", model)
}

func (r *Router) Stream(ctx context.Context, req Request) (ModelStream, error) {
	p, err := r.Resolve(req.Model)
	if err != nil {
		return nil, &ProviderError{Provider: r.Name(), Model: req.Model, Err: err}
	}
	return p.Stream(ctx, req)
}
