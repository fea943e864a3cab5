// Package web holds the server-rendered HTML templates.
package web

import "embed"

// Templates contains the page templates under templates/.
//
//go:embed templates/*.html
var Templates embed.FS
