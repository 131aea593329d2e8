// Package replay converts a stored session into a deterministic stub plan.
//
// Interactions are grouped by method then url, preserving recorded order
// within each group. Each group is a small state machine: a cursor that
// advances when the interception layer reports a delivered response and
// saturates at the last element, so the nth request to an endpoint gets
// the nth recorded response and the final response is held steady for any
// further requests.
package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ha404/autorecord/pkg/interaction"
)

// ErrMissingStub marks a replayed request with no recorded counterpart.
// It fails the test immediately; falling back to the network would defeat
// reproducibility.
var ErrMissingStub = errors.New("no recorded interaction matches request")

// FixtureFunc resolves an externalized response body by fixture id.
type FixtureFunc func(fixtureID string) (any, error)

// Stub is a fully resolved response ready to serve.
type Stub struct {
	Status  int
	Headers map[string]string
	Body    any
}

// group serves one (method, url) sequence with a saturating cursor.
type group struct {
	interactions []*interaction.Interaction
	cursor       int
}

func (g *group) current() *interaction.Interaction {
	return g.interactions[g.cursor]
}

func (g *group) advance() {
	if g.cursor < len(g.interactions)-1 {
		g.cursor++
	}
}

// Plan is the stub plan for one test: method -> url -> ordered group.
// Method equality is case-normalized; url equality is exact string match.
type Plan struct {
	groups   map[string]map[string]*group
	fixtures FixtureFunc
}

// NewPlan groups the session's interactions, preserving recorded order
// within each (method, url) group. fixtures may be nil when the session
// holds no externalized responses.
func NewPlan(sess *interaction.Session, fixtures FixtureFunc) *Plan {
	p := &Plan{
		groups:   map[string]map[string]*group{},
		fixtures: fixtures,
	}
	if sess == nil {
		return p
	}
	for _, it := range sess.Routes {
		method := strings.ToUpper(it.Method)
		byURL, ok := p.groups[method]
		if !ok {
			byURL = map[string]*group{}
			p.groups[method] = byURL
		}
		g, ok := byURL[it.URL]
		if !ok {
			g = &group{}
			byURL[it.URL] = g
		}
		g.interactions = append(g.interactions, it)
	}
	return p
}

// Has reports whether the plan holds any interaction for (method, url).
func (p *Plan) Has(method, url string) bool {
	byURL, ok := p.groups[strings.ToUpper(method)]
	if !ok {
		return false
	}
	_, ok = byURL[url]
	return ok
}

// Next returns the response to serve for the given request. Externalized
// bodies are resolved through the fixture resolver at the point of use, so
// a missing fixture surfaces as a failure of the request that needs it.
func (p *Plan) Next(method, url string) (*Stub, error) {
	g, err := p.lookup(method, url)
	if err != nil {
		return nil, err
	}

	it := g.current()
	body := it.Response
	if it.FixtureID != "" {
		if p.fixtures == nil {
			return nil, fmt.Errorf("no fixture resolver for fixture %s", it.FixtureID)
		}
		body, err = p.fixtures(it.FixtureID)
		if err != nil {
			return nil, err
		}
	}

	return &Stub{Status: it.Status, Headers: it.Headers, Body: body}, nil
}

// Delivered advances the cursor for (method, url) after a response has
// been fully served. The cursor saturates at the last recorded element.
// Delivered for an unknown group is a no-op.
func (p *Plan) Delivered(method, url string) {
	g, err := p.lookup(method, url)
	if err != nil {
		return
	}
	g.advance()
}

func (p *Plan) lookup(method, url string) (*group, error) {
	method = strings.ToUpper(method)
	byURL, ok := p.groups[method]
	if ok {
		if g, ok := byURL[url]; ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrMissingStub, method, url)
}
