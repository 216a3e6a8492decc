package soletic

import (
	"encoding/json"
	"expvar"
	"net/http"
	"strconv"
)

// NewServer exposes deployment lookups over HTTP:
//
//	GET /deployment/{address}?network=mainnet&cache=true
//	GET /debug/vars
func NewServer(analyzer *Analyzer, defaultNetwork Network, logger Logger) http.Handler {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("soletic"))
	})
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("GET /deployment/{address}", func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		network := defaultNetwork
		if value := r.URL.Query().Get("network"); value != "" {
			parsed, err := ParseNetwork(value)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, deploymentErrorResponse{Code: http.StatusBadRequest, Error: err.Error()})
				return
			}
			network = parsed
		}
		useCache := true
		if value := r.URL.Query().Get("cache"); value != "" {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, deploymentErrorResponse{Code: http.StatusBadRequest, Error: "cache must be a boolean"})
				return
			}
			useCache = parsed
		}

		result := analyzer.DeploymentTimestamp(r.Context(), address, network, useCache)
		if result.Err != nil {
			writeJSON(w, httpStatusFor(result.Err), deploymentErrorResponse{Code: result.Err.Code, Error: result.Err.Message})
			return
		}
		writeJSON(w, http.StatusOK, deploymentResponse{
			Address:   address,
			Network:   network,
			Timestamp: result.Timestamp,
			Known:     result.Timestamp != UnknownTimestamp,
		})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		incrementResponseCount(appResponseCounts, rec.status)
		logger.Debugf("%s %s status=%d", r.Method, r.URL.Path, rec.status)
	})
}

type deploymentResponse struct {
	Address   string  `json:"address"`
	Network   Network `json:"network"`
	Timestamp int64   `json:"timestamp"`
	Known     bool    `json:"known"`
}

type deploymentErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// httpStatusFor maps failures onto response codes. Upstream failures without
// a usable status become 502.
func httpStatusFor(err *Error) int {
	switch err.Kind {
	case KindInvalidSyntax, KindInvalidAddress:
		return http.StatusBadRequest
	case KindProgramStateNotSupported:
		return http.StatusUnsupportedMediaType
	default:
		if err.Code >= 400 && err.Code < 600 {
			return err.Code
		}
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
