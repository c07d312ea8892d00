package assets

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog"
)

// Status is what the index page shows about the running service
type Status struct {
	Version   string
	BaseDN    string
	Group     string
	Listeners []string
	Internals bool
}

type API struct {
	index  *template.Template
	status func() Status

	logger zerolog.Logger
}

func (a *API) RegisterEndpoints(router *http.ServeMux) {
	router.HandleFunc("/", a.assets)
}

func (a *API) assets(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug().Str("path", r.URL.Path).Msg("Web")

	if r.URL.Path != "/" {
		a.logger.Debug().Str("path", r.URL.Path).Msg("Web 404")
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.index.Execute(w, a.status()); err != nil {
		a.logger.Error().Err(err).Msg("unable to render index")
	}
}

func NewAPI(logger zerolog.Logger, status func() Status) *API {
	a := new(API)

	a.logger = logger
	a.status = status
	a.index = template.Must(template.ParseFS(Content, "index.html"))
	return a
}
