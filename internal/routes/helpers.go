package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/coah80/squish/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps job errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, services.ErrAlreadyCompressing):
		respondError(w, http.StatusConflict, "Already compressing")
	case errors.Is(err, services.ErrJobCompleted):
		respondError(w, http.StatusConflict, "Job already completed. Upload the file again to compress with different settings.")
	case errors.Is(err, services.ErrInvalidOptions):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotCompleted):
		respondError(w, http.StatusBadRequest, "Compression not completed")
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// flexNumber accepts a JSON number or a numeric string; browsers post
// form-derived values as strings.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}
