// Package httpreplay adapts the record/replay engine to net/http.
//
// Transport is the reference interception layer: an http.RoundTripper
// bound to the active test. In record mode it forwards every request to
// the base transport and reports each completed exchange to the recorder.
// In replay mode it serves stored interactions and never touches the
// network, except for blacklisted urls, which were deliberately excluded
// from recording and therefore always pass through live.
package httpreplay

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ha404/autorecord/internal/payload"
	"github.com/ha404/autorecord/pkg/engine"
	"github.com/ha404/autorecord/pkg/interaction"
	"github.com/ha404/autorecord/pkg/recorder"
)

// Transport intercepts client traffic for one test.
type Transport struct {
	test *engine.Test
	base http.RoundTripper
}

// NewTransport binds a transport to the active test. A nil base uses
// http.DefaultTransport.
func NewTransport(test *engine.Test, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{test: test, base: base}
}

// Client returns an *http.Client whose traffic is intercepted for test.
func Client(test *engine.Test, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: NewTransport(test, base)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	method := strings.ToUpper(req.Method)

	if t.test.Config().Blacklisted(url) {
		return t.base.RoundTrip(req)
	}

	if !interaction.IsSupportedMethod(method) {
		if t.test.Mode() == engine.ModeReplay {
			return nil, fmt.Errorf("httpreplay: %s %s: method not replayable", method, url)
		}
		return t.base.RoundTrip(req)
	}

	if t.test.Mode() == engine.ModeRecord {
		return t.record(req, method, url)
	}
	return t.replay(req, method, url)
}

// record passes the request through live and reports the completed
// exchange. Request and response bodies are buffered so they can be both
// observed and handed on unchanged.
func (t *Transport) record(req *http.Request, method, url string) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		var err error
		reqBody, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("httpreplay: failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("httpreplay: failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	t.test.Observe(recorder.Event{
		URL:             url,
		Method:          method,
		Status:          resp.StatusCode,
		RequestBody:     reqBody,
		ResponseHeaders: resp.Header,
		ResponseBody:    respBody,
	})

	return resp, nil
}

// replay serves the next recorded interaction for (method, url). Missing
// stubs fail fast so a gap in the recording surfaces as a clear test
// failure instead of a silent live call. The group cursor advances as soon
// as the response is synthesized, which is the round-tripper equivalent of
// "response fully delivered".
func (t *Transport) replay(req *http.Request, method, url string) (*http.Response, error) {
	stub, err := t.test.Plan().Next(method, url)
	if err != nil {
		return nil, fmt.Errorf("httpreplay: %w", err)
	}

	body, err := payload.Denormalize(stub.Body)
	if err != nil {
		return nil, fmt.Errorf("httpreplay: %s %s: %w", method, url, err)
	}

	header := http.Header{}
	for name, value := range stub.Headers {
		header.Set(name, value)
	}

	resp := &http.Response{
		StatusCode:    stub.Status,
		Status:        fmt.Sprintf("%d %s", stub.Status, http.StatusText(stub.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}

	t.test.Plan().Delivered(method, url)
	return resp, nil
}
