package stats

import (
	"encoding/json"
	"expvar"
)

// exposed expvar variables
var (
	Frontend = expvar.NewMap("iamldap_frontend")
	Backend  = expvar.NewMap("iamldap_backend")
	General  = expvar.NewMap("iamldap")
)

// Stringer publishes a plain string as an expvar.Var, which must render as JSON.
type Stringer string

func (s Stringer) String() string {
	b, _ := json.Marshal(string(s))
	return string(b)
}
