package frontend

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arl/statsviz"

	"github.com/glauth/iamldap/internal/monitoring"
	"github.com/glauth/iamldap/pkg/assets"
)

// NewRouter builds the HTTP endpoints of the API
func NewRouter(opts ...Option) (*http.ServeMux, error) {
	options := newOptions(opts...)
	log := options.Logger
	cfg := options.Config

	router := http.NewServeMux()

	assets.NewAPI(log, options.Status).RegisterEndpoints(router)
	monitoring.NewAPI(log).RegisterEndpoints(router)

	if cfg.Internals {
		if err := statsviz.Register(
			router,
			statsviz.Root("/internals"),
			statsviz.SendFrequency(1000*time.Millisecond),
		); err != nil {
			return nil, fmt.Errorf("unable to register internals: %w", err)
		}
	}

	return router, nil
}

// RunAPI provides a basic REST API, until the context is done
func RunAPI(opts ...Option) {
	options := newOptions(opts...)
	log := options.Logger
	cfg := options.Config

	router, err := NewRouter(opts...)
	if err != nil {
		log.Error().Err(err).Msg("error building HTTP router")
		return
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-options.Context.Done()
		srv.Close()
	}()

	if cfg.TLS {
		log.Info().Str("address", cfg.Listen).Msg("Starting HTTPS server")

		monitoring.NewCollector(fmt.Sprintf("https://%s/debug/vars", cfg.Listen))
		if err := srv.ListenAndServeTLS(cfg.Cert, cfg.Key); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("error starting HTTPS server")
		}

		return
	}

	log.Info().Str("address", cfg.Listen).Msg("Starting HTTP server")
	monitoring.NewCollector(fmt.Sprintf("http://%s/debug/vars", cfg.Listen))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("error starting HTTP server")
	}
}
