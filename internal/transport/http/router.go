package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter configures API routes and static serving of publicDir.
func NewRouter(handler *Handler, publicDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/youtube/info", handler.VideoInfo).Methods("POST")
	r.HandleFunc("/api/youtube/download", handler.Retrieve).Methods("POST")
	r.HandleFunc("/api/convert", handler.Convert).Methods("POST")
	r.HandleFunc("/api/directories", handler.ListDirectories).Methods("GET")
	r.HandleFunc("/api/download/{filename}", handler.DownloadArtifact).Methods("GET", "HEAD")
	r.HandleFunc("/api/formats", handler.Formats).Methods("GET")
	if publicDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(publicDir)))
	}
	return r
}
