package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/util"
)

func CoreRoutes(r chi.Router, d *Deps) {
	r.Get("/health", d.handleHealth)
	r.Get("/api/limits", handleLimits)
}

func (d *Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": config.Version,
		"jobs":    d.Jobs.Count(),
		"active":  d.Compressor.Active(),
		"pending": d.Compressor.Pending(),
	}
	if avail, err := util.AvailableGB(d.UploadDir); err == nil {
		resp["diskSpaceGB"] = avail
	}
	respondJSON(w, http.StatusOK, resp)
}

func handleLimits(w http.ResponseWriter, r *http.Request) {
	codecs := make(map[string]string, len(config.Codecs))
	for name, c := range config.Codecs {
		codecs[name] = c.Container
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"maxFileSize":         config.MaxUploadSize,
		"retentionMinutes":    int(config.JobRetention.Minutes()),
		"maxActiveEncodes":    config.MaxActiveEncodes,
		"modes":               config.AllowedModes,
		"presets":             config.Presets,
		"codecs":              codecs,
		"defaultTargetSizeMB": config.DefaultTargetSizeMB,
		"audioBitrateKbps":    config.AudioBitrateK,
	})
}
