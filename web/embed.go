// Package web embeds the slider page, its HTMX partials and the stylesheet.
package web

import "embed"

// TemplatesFS holds layouts/, pages/ and partials/ under templates/.
//
//go:embed templates
var TemplatesFS embed.FS

// StaticFS holds the CSS served under /static/.
//
//go:embed static
var StaticFS embed.FS
