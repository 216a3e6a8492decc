package soletic

import (
	"expvar"
	"net/http"
)

// metricsTransport counts upstream RPC response codes.
type metricsTransport struct {
	Base    http.RoundTripper
	Counter *expvar.Map
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		incrementResponseCount(t.Counter, codeNoUpstreamResponse)
		return nil, err
	}
	incrementResponseCount(t.Counter, resp.StatusCode)
	return resp, nil
}

// statusRecorder captures the status written by a handler for the served
// response counters.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
