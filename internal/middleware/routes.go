package middleware

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// classifiedPaths bounds the memo of path classifications. Paths carry ids,
// so the set of distinct paths is unbounded.
const classifiedPaths = 4096

// RouteClass marks paths that skip some gates
type RouteClass string

const (
	// RoutePublic needs no authentication and skips every gate
	RoutePublic RouteClass = "public"
	// RouteTrialExempt stays reachable after the trial ends
	RouteTrialExempt RouteClass = "trial_exempt"
	// RouteLicenseExempt stays reachable without a valid license
	RouteLicenseExempt RouteClass = "license_exempt"
)

// RouteRule attaches classes to a glob. '*' matches any run of characters
// including '/', '?' matches one character.
type RouteRule struct {
	Pattern string
	Classes []RouteClass
}

type compiledRule struct {
	pattern string
	re      *regexp.Regexp
	classes map[RouteClass]struct{}
}

// RouteTable is the single classification every gate consults
type RouteTable struct {
	rules []compiledRule
	seen  *lru.Cache[string, map[RouteClass]struct{}]
}

func NewRouteTable(rules ...RouteRule) *RouteTable {
	seen, _ := lru.New[string, map[RouteClass]struct{}](classifiedPaths)
	t := &RouteTable{rules: make([]compiledRule, 0, len(rules)), seen: seen}
	for _, r := range rules {
		classes := make(map[RouteClass]struct{}, len(r.Classes))
		for _, c := range r.Classes {
			classes[c] = struct{}{}
		}
		t.rules = append(t.rules, compiledRule{
			pattern: r.Pattern,
			re:      globToRegexp(r.Pattern),
			classes: classes,
		})
	}
	return t
}

// DefaultRouteTable classifies the routes registered by the router
func DefaultRouteTable() *RouteTable {
	exempt := []RouteClass{RouteTrialExempt, RouteLicenseExempt}
	return NewRouteTable(
		RouteRule{Pattern: "/register", Classes: []RouteClass{RoutePublic}},
		RouteRule{Pattern: "/login", Classes: []RouteClass{RoutePublic}},
		RouteRule{Pattern: "/api/v1/auth/*", Classes: []RouteClass{RoutePublic}},
		RouteRule{Pattern: "/api/v1/health/*", Classes: []RouteClass{RoutePublic}},
		RouteRule{Pattern: "/api/v1/me", Classes: exempt},
		RouteRule{Pattern: "/api/v1/onboarding*", Classes: exempt},
		RouteRule{Pattern: "/api/v1/trial/*", Classes: exempt},
		RouteRule{Pattern: "/api/v1/license", Classes: exempt},
		RouteRule{Pattern: "/api/v1/license/*", Classes: exempt},
		RouteRule{Pattern: "/onboarding*", Classes: exempt},
		RouteRule{Pattern: "/license*", Classes: exempt},
	)
}

// Is reports whether path carries class. Public paths carry every class.
func (t *RouteTable) Is(path string, class RouteClass) bool {
	if t == nil {
		return false
	}
	classes := t.classify(path)
	if _, ok := classes[RoutePublic]; ok {
		return true
	}
	_, ok := classes[class]
	return ok
}

// classify unions the classes of every rule matching path
func (t *RouteTable) classify(path string) map[RouteClass]struct{} {
	if classes, ok := t.seen.Get(path); ok {
		return classes
	}
	classes := make(map[RouteClass]struct{})
	for _, r := range t.rules {
		if !r.re.MatchString(path) {
			continue
		}
		for c := range r.classes {
			classes[c] = struct{}{}
		}
	}
	t.seen.Add(path, classes)
	return classes
}

func globToRegexp(glob string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
