package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// B2Proxy streams a stored object, fetching it from the remote bucket on a
// local cache miss.
func (a *App) B2Proxy(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	f, err := a.Files.Open(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer f.Close()
	w.Header().Set("Cache-Control", "public, max-age=3600")
	a.serveFile(w, r, f)
}

// ServeUpload serves a file from the uploads cache.
func (a *App) ServeUpload(w http.ResponseWriter, r *http.Request) {
	f, err := a.Files.Uploads().Open(chi.URLParam(r, "filename"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer f.Close()
	a.serveFile(w, r, f)
}

// ServeEnhanced serves a file from the enhanced output cache.
func (a *App) ServeEnhanced(w http.ResponseWriter, r *http.Request) {
	f, err := a.Files.Enhanced().Open(chi.URLParam(r, "filename"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer f.Close()
	a.serveFile(w, r, f)
}

func (a *App) serveFile(w http.ResponseWriter, r *http.Request, f *os.File) {
	info, err := f.Stat()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
