// Package web embeds the UI templates and static assets into the binary.
package web

import "embed"

// TemplatesFS holds the page and its htmx partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the small key-forwarding script.
//
//go:embed static/*
var StaticFS embed.FS
