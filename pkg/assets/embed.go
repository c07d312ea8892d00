package assets

import "embed"

// Content is the embedded assets.
//
//go:embed *.html
var Content embed.FS
