// Package web embeds the page templates and stylesheet served by internal/http.
package web

import "embed"

// TemplatesFS holds layout.html and one file per page.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var StaticFS embed.FS
