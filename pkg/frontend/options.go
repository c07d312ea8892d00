package frontend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/glauth/iamldap/pkg/assets"
	"github.com/glauth/iamldap/pkg/config"
)

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	Logger  zerolog.Logger
	Config  *config.API
	Status  func() assets.Status
	Context context.Context
}

// newOptions initializes the available default options.
func newOptions(opts ...Option) Options {
	opt := Options{}

	for _, o := range opts {
		o(&opt)
	}

	if opt.Config == nil {
		opt.Config = &config.API{}
	}
	if opt.Status == nil {
		opt.Status = func() assets.Status { return assets.Status{} }
	}
	if opt.Context == nil {
		opt.Context = context.Background()
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
func Config(val *config.API) Option {
	return func(o *Options) {
		o.Config = val
	}
}

// Status provides the function rendering the index page.
func Status(val func() assets.Status) Option {
	return func(o *Options) {
		o.Status = val
	}
}

// Context provides a function to set the context option.
func Context(val context.Context) Option {
	return func(o *Options) {
		o.Context = val
	}
}
