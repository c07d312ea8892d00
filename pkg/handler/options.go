package handler

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/glauth/iamldap/internal/monitoring"
	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/iamldap/pkg/secret"
)

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	Logger          *zerolog.Logger
	Directory       config.Directory
	Secret          *secret.Secret
	Client          iam.Client
	Local           bool
	PeerCredentials PeerCredentialsFunc
	Monitor         monitoring.MonitorInterface
	Tracer          trace.Tracer
	Context         context.Context
}

// newOptions initializes the available default options.
func newOptions(opts ...Option) Options {
	opt := Options{}

	for _, o := range opts {
		o(&opt)
	}

	return opt
}

// Logger provides a function to set the logger option.
func Logger(val *zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = val
	}
}

// Directory provides a function to set the directory settings option.
func Directory(val config.Directory) Option {
	return func(o *Options) {
		o.Directory = val
	}
}

// Secret provides a function to set the root bind secret.
func Secret(val *secret.Secret) Option {
	return func(o *Options) {
		o.Secret = val
	}
}

// Client provides a function to set the IAM client option.
func Client(val iam.Client) Option {
	return func(o *Options) {
		o.Client = val
	}
}

// Local marks the handler as serving a unix socket listener
func Local(val bool) Option {
	return func(o *Options) {
		o.Local = val
	}
}

// PeerCredentialsReader overrides how peer identities are read from local connections
func PeerCredentialsReader(val PeerCredentialsFunc) Option {
	return func(o *Options) {
		o.PeerCredentials = val
	}
}

// Monitor provides a function to set the monitor option.
func Monitor(val monitoring.MonitorInterface) Option {
	return func(o *Options) {
		o.Monitor = val
	}
}

// Tracer provides a function to set the tracer option.
func Tracer(val trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = val
	}
}

// Context provides the parent context of every request. Cancelling it aborts
// membership listings in flight.
func Context(val context.Context) Option {
	return func(o *Options) {
		o.Context = val
	}
}
