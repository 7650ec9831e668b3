// Package dashboard provides the embedded presence page for StatusHub.
//
// This package uses Go's embed directive to include the page HTML, CSS,
// and JavaScript at compile time. This enables single-binary deployment
// without external asset files.
//
// The embedded assets are served by the server package at the root path ("/").
// The page subscribes to "/events" using the secret query parameter of its
// own URL, so it is opened as http://host:port/?secret=<GET secret>.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the presence page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Presence page with inline CSS and JavaScript
//
// The "{{.Title}}" marker in index.html is replaced with the configured,
// HTML-escaped title when the page is served.
//
//go:embed assets/*
var Assets embed.FS
