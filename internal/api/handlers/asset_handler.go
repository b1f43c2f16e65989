package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
)

// slide formats missing from the built-in mime table on minimal hosts
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
}

// AssetHandler serves stored slide images and rendered heatmaps
type AssetHandler struct {
	store providers.ImageStore
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(store providers.ImageStore) *AssetHandler {
	return &AssetHandler{store: store}
}

// GetImage handles GET /api/samples/image/{filename}
func (h *AssetHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.store.Open)
}

// GetHeatmap handles GET /api/samples/heatmap/{filename}
func (h *AssetHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.store.OpenHeatmap)
}

func (h *AssetHandler) serve(w http.ResponseWriter, r *http.Request, open func(context.Context, string) (io.ReadCloser, error)) {
	name := r.PathValue("filename")
	rc, err := open(r.Context(), name)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Failed to stream asset")
	}
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := imageTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
