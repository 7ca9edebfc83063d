package server

import (
	"html/template"
	"net/http"

	"coliving-platform/backend/internal/server/interceptors"
)

var placeholder = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Path}}</title></head>
<body><main data-path="{{.Path}}">{{if .Email}}<p>Signed in as {{.Email}}</p>{{end}}</main></body></html>
`))

type pageData struct {
	Path  string
	Email string
}

// newPages returns the page handler: a file server over dir, or placeholder pages when dir is empty.
func newPages(dir string) http.Handler {
	if dir != "" {
		return http.FileServer(http.Dir(dir))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := pageData{Path: r.URL.Path}
		if tok, ok := interceptors.SessionFrom(r.Context()); ok {
			data.Email = tok.Email
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = placeholder.Execute(w, data)
	})
}
