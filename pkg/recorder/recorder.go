// Package recorder collects live interception events during one test and
// builds its ordered, deduplicated interaction list.
package recorder

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ha404/autorecord/internal/payload"
	"github.com/ha404/autorecord/pkg/config"
	"github.com/ha404/autorecord/pkg/interaction"
	"github.com/ha404/autorecord/pkg/logging"
)

// Event is one captured request/response observation from the
// interception layer.
type Event struct {
	URL             string
	Method          string
	Status          int
	RequestBody     []byte
	ResponseHeaders http.Header
	ResponseBody    []byte
}

// Recorder accumulates interactions for the test currently being recorded.
// Events arrive one at a time relative to request completion, so no
// locking is needed.
type Recorder struct {
	cfg  *config.Config
	log  *slog.Logger
	list []*interaction.Interaction
}

// New creates a Recorder governed by cfg's blacklist and header whitelist.
func New(cfg *config.Config, log *slog.Logger) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	return &Recorder{cfg: cfg, log: log}
}

// Observe ingests one event. Unsupported methods and blacklisted urls are
// dropped. Exact duplicates (same method, url, request body and response
// body) are ignored; a repeat of the same request whose response differs
// is appended so polling endpoints replay step by step.
func (r *Recorder) Observe(ev Event) {
	if !interaction.IsSupportedMethod(ev.Method) {
		return
	}
	if r.cfg.Blacklisted(ev.URL) {
		r.log.Debug("skipping blacklisted url", "url", ev.URL)
		return
	}

	it := &interaction.Interaction{
		URL:      ev.URL,
		Method:   strings.ToUpper(ev.Method),
		Status:   ev.Status,
		Headers:  r.filterHeaders(ev.ResponseHeaders),
		Body:     payload.Normalize(ev.RequestBody),
		Response: payload.Normalize(ev.ResponseBody),
	}

	for _, prev := range r.list {
		if prev.Equal(it) {
			r.log.Debug("dropping duplicate interaction", "method", it.Method, "url", it.URL)
			return
		}
	}

	r.list = append(r.list, it)
	r.log.Debug("recorded interaction", "method", it.Method, "url", it.URL, "status", it.Status)
}

// Interactions returns the recorded list in observation order.
func (r *Recorder) Interactions() []*interaction.Interaction {
	return r.list
}

// Len returns the number of recorded interactions.
func (r *Recorder) Len() int {
	return len(r.list)
}

// filterHeaders keeps only response headers whose name matches the
// configured whitelist. Multi-valued headers are joined the way they
// appear on the wire.
func (r *Recorder) filterHeaders(h http.Header) map[string]string {
	out := map[string]string{}
	for name, values := range h {
		if r.cfg.KeepHeader(name) {
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}
