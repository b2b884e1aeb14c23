package web

import (
	"embed"
)

// staticFiles holds the dashboard page and its script.
//
//go:embed static/*
var staticFiles embed.FS
