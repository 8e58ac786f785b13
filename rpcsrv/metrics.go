package rpcsrv

import (
	"net/http"

	"github.com/btcsuite/btclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeMetrics exposes the process's prometheus collectors (control.Metrics
// among them) on addr, independent of the JSON-RPC socket. Blocks until
// the HTTP server errors or is shut down; callers run it in its own
// goroutine.
func ServeMetrics(log btclog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Infof("metrics listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
