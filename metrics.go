package soletic

import (
	"expvar"
	"runtime"
	"strconv"
)

var (
	appResponseCounts      = expvar.NewMap("app_http_responses_total")
	externalResponseCounts = expvar.NewMap("external_http_responses_total")
	rpcCallCounts          = expvar.NewMap("rpc_calls_total")
	cacheLookups           = expvar.NewMap("deployment_cache_lookups_total")
	resolvedDeployments    = expvar.NewMap("deployment_results_total")
)

func init() {
	expvar.Publish("heap_inuse_bytes", expvar.Func(func() any {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.HeapInuse
	}))
}

func incrementResponseCount(counter *expvar.Map, code int) {
	if counter == nil {
		return
	}
	counter.Add(strconv.Itoa(code), 1)
}

func incrementMethodCount(method string) {
	rpcCallCounts.Add(method, 1)
}

// recordCacheLookup counts lookups per tier outcome: "memory", "disk" or "miss".
func recordCacheLookup(outcome string) {
	cacheLookups.Add(outcome, 1)
}

func recordResult(result Result) {
	switch {
	case result.Err != nil:
		resolvedDeployments.Add(result.Err.Kind.String(), 1)
	case result.Timestamp == UnknownTimestamp:
		resolvedDeployments.Add("unknown", 1)
	default:
		resolvedDeployments.Add("resolved", 1)
	}
}
