// Package interaction defines the recorded request/response data model.
//
// An Interaction is one captured request/response pair; a Session is the
// ordered interaction history for one test. Sessions are persisted in a
// per-test-file store blob, with oversized response bodies externalized
// into fixture blobs and referenced by id.
package interaction

import (
	"reflect"
	"strings"
	"time"
)

// supportedMethods is the closed set of request methods that can be
// recorded and replayed. Anything else is invisible to the engine.
var supportedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
	"HEAD":   true,
}

// IsSupportedMethod reports whether the (case-insensitive) method belongs
// to the supported set.
func IsSupportedMethod(method string) bool {
	return supportedMethods[strings.ToUpper(method)]
}

// Interaction is one recorded request/response pair. Exactly one of
// Response and FixtureID carries the response body: small bodies are stored
// inline, oversized bodies live in an external fixture blob.
type Interaction struct {
	// FixtureID references an externalized response body blob.
	FixtureID string `json:"fixtureId,omitempty"`
	// URL is the exact request url; equality on it is exact string match.
	URL string `json:"url"`
	// Method is the upper-cased request method.
	Method string `json:"method"`
	// Status is the recorded response status code.
	Status int `json:"status"`
	// Headers holds the response headers that passed the whitelist.
	Headers map[string]string `json:"headers"`
	// Body is the normalized request body.
	Body any `json:"body"`
	// Response is the normalized inline response body. Absent when the
	// body was externalized into FixtureID.
	Response any `json:"response,omitempty"`
}

// SameSignature reports whether both interactions were produced by the
// same request: same method, same url, same request body.
func (i *Interaction) SameSignature(o *Interaction) bool {
	return i.Method == o.Method && i.URL == o.URL && reflect.DeepEqual(i.Body, o.Body)
}

// Equal reports whether o is an exact duplicate: same signature and same
// response body. Two interactions with equal signatures but different
// responses are distinct on purpose, so polling endpoints replay each
// step in order.
func (i *Interaction) Equal(o *Interaction) bool {
	return i.SameSignature(o) && reflect.DeepEqual(i.Response, o.Response)
}

// Session is the full recorded history for one test.
type Session struct {
	// Timestamp is the wall-clock instant (epoch milliseconds) pinned
	// while the test recorded. Replay pins the clock back to it.
	Timestamp int64 `json:"timestamp"`
	// Routes is the ordered interaction list; order is replay order
	// within each (method, url) group.
	Routes []*Interaction `json:"routes"`
}

// Time returns the recorded instant as a time.Time.
func (s *Session) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// FixtureIDs returns the ids of every externalized response in the session.
func (s *Session) FixtureIDs() []string {
	var ids []string
	for _, r := range s.Routes {
		if r.FixtureID != "" {
			ids = append(ids, r.FixtureID)
		}
	}
	return ids
}
