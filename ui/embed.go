// Package ui holds the html/template pages and the static assets of the web sink.
package ui

import "embed"

//go:embed "templates" "static"
var Files embed.FS
