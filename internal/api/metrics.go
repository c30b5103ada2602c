package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler serves the Prometheus exposition of the server's gatherer.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog:      promLogger{s},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger adapts the server logger to promhttp.Logger.
type promLogger struct{ s *Server }

func (l promLogger) Println(v ...any) {
	l.s.logger.Warn("metrics gathering", "error", v)
}
