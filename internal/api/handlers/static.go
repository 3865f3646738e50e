package handlers

import (
	"net/http"
	"path/filepath"
)

// Static serves the browser client from dir.
type Static struct {
	dir string
}

func NewStatic(dir string) *Static {
	return &Static{dir: dir}
}

func (s *Static) Index(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.dir, "index.html"))
}

// File returns a handler for one named asset.
func (s *Static) File(name string) http.HandlerFunc {
	path := filepath.Join(s.dir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
