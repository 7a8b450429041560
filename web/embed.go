// Package web embeds the HTML templates and stylesheet for the estaciones
// web UI.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:templates
var templatesFS embed.FS

//go:embed all:static
var staticFS embed.FS

// Templates returns the layouts, pages and partials rooted at the templates
// directory, the layout NewTemplates expects.
func Templates() fs.FS {
	return mustSub(templatesFS, "templates")
}

// Static returns the assets served under /static/.
func Static() fs.FS {
	return mustSub(staticFS, "static")
}

// mustSub only fails for an invalid path, which the embed directives rule out.
func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
