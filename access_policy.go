package account

import (
	"strings"

	"github.com/gobwas/glob"
)

// AnyMethod matches every HTTP method in a route rule
const AnyMethod = "*"

// PublicRoutes are reachable without a session
var PublicRoutes = []RouteRule{
	{Method: AnyMethod, Pattern: "/"},
	{Method: AnyMethod, Pattern: "/login"},
	{Method: AnyMethod, Pattern: "/sign-up"},
	{Method: AnyMethod, Pattern: "/check-email"},
	{Method: AnyMethod, Pattern: "/check-email-token"},
	{Method: AnyMethod, Pattern: "/email-login"},
	{Method: AnyMethod, Pattern: "/check-email-login"},
	{Method: AnyMethod, Pattern: "/login-link"},
	{Method: "GET", Pattern: "/profile/*"},
}

// RouteRule is a method plus a glob path pattern. In patterns * stays
// within one path segment and ** spans segments.
type RouteRule struct {
	Method  string
	Pattern string
}

type compiledRule struct {
	method string
	glob   glob.Glob
}

// RoutePolicy answers whether a route can be reached without a session
type RoutePolicy struct {
	rules []compiledRule
}

// NewRoutePolicy compiles rules. Invalid patterns are returned as errors.
func NewRoutePolicy(rules ...RouteRule) (*RoutePolicy, error) {
	p := &RoutePolicy{}
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, err
		}
		method := strings.ToUpper(strings.TrimSpace(r.Method))
		if method == "" {
			method = AnyMethod
		}
		p.rules = append(p.rules, compiledRule{method: method, glob: g})
	}
	return p, nil
}

// DefaultRoutePolicy returns the policy for PublicRoutes
func DefaultRoutePolicy() *RoutePolicy {
	p, err := NewRoutePolicy(PublicRoutes...)
	if err != nil {
		panic(err)
	}
	return p
}

// IsPublic reports whether method and path match a public rule
func (p *RoutePolicy) IsPublic(method, path string) bool {
	if p == nil {
		return false
	}

	method = strings.ToUpper(method)
	path = normalizePath(path)

	for _, r := range p.rules {
		if r.method != AnyMethod && r.method != method {
			continue
		}
		if r.glob.Match(path) {
			return true
		}
	}
	return false
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
