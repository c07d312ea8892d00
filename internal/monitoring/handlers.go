package monitoring

import (
	"expvar"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type API struct {
	metrics http.Handler

	logger zerolog.Logger
}

func (a *API) RegisterEndpoints(router *http.ServeMux) {
	router.HandleFunc("/metrics", a.prometheusHTTP)
	router.Handle("/debug/vars", expvar.Handler())
	router.HandleFunc("/healthz", a.health)
}

func (a *API) prometheusHTTP(w http.ResponseWriter, r *http.Request) {
	a.metrics.ServeHTTP(w, r)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug().Str("src", r.RemoteAddr).Msg("health check")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func NewAPI(logger zerolog.Logger) *API {
	a := new(API)

	a.logger = logger
	a.metrics = promhttp.Handler()

	return a
}
