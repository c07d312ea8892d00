package server

import (
	"context"
	"crypto/tls"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/glauth/iamldap/internal/monitoring"
	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/handler"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/iamldap/pkg/secret"
)

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	Logger          zerolog.Logger
	Config          *config.Config
	Secret          *secret.Secret
	Client          iam.Client
	LDAPSTLSConfig  *tls.Config
	PeerCredentials handler.PeerCredentialsFunc
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
func Logger(val zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = val
	}
}

// Config provides a function to set the config option.
func Config(val *config.Config) Option {
	return func(o *Options) {
		o.Config = val
	}
}

// Context provides a function to set the context option.
func Context(val context.Context) Option {
	return func(o *Options) {
		o.Context = val
	}
}

// Secret provides a function to set the root bind secret.
func Secret(val *secret.Secret) Option {
	return func(o *Options) {
		o.Secret = val
	}
}

// Client provides a function to set the IAM client.
func Client(val iam.Client) Option {
	return func(o *Options) {
		o.Client = val
	}
}

// LDAPSTLSConfig provides a function to set the TLS config used by the LDAPS listener.
func LDAPSTLSConfig(val *tls.Config) Option {
	return func(o *Options) {
		o.LDAPSTLSConfig = val
	}
}

// PeerCredentials overrides how local connections are identified.
func PeerCredentials(val handler.PeerCredentialsFunc) Option {
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
