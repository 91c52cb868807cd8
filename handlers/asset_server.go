package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PhotoServer serves stored session photographs from the photo storage
// directory. The route prefix must match subDir, e.g.
//
//	r.Get("/session_photos/*", PhotoServer(cfg.PhotoStoragePath, "session_photos"))
func PhotoServer(baseStoragePath, subDir string) http.HandlerFunc {
	photoDir := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	log.Printf("Serving photos for '/%s/*' from directory: %s", subDir, photoDir)

	if !strings.HasPrefix(photoDir, baseStoragePath) {
		log.Fatalf("FATAL: Photo subdirectory '%s' resolved outside base storage path '%s'", subDir, baseStoragePath)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		routePrefix := "/api/" + subDir + "/"
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)

		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid photo path", http.StatusBadRequest)
			return
		}

		requested := filepath.Clean(filepath.Join(photoDir, relativePath))
		if !strings.HasPrefix(requested, photoDir) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			log.Printf("SECURITY: Attempted photo access outside storage: Request='%s', Resolved='%s'", r.URL.Path, requested)
			return
		}

		if _, err := os.Stat(requested); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Printf("Error stating photo file %s: %v", requested, err)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, requested)
	}
}
