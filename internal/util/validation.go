package util

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var allowedUploadExts = map[string]bool{
	".mp4": true, ".webm": true, ".mkv": true, ".mov": true, ".avi": true, ".flv": true, ".wmv": true,
	".ts": true, ".m4v": true, ".3gp": true, ".mpg": true, ".mpeg": true, ".ogv": true,
}

func IsAllowedUpload(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext != "" && allowedUploadExts[ext]
}

// ValidJobID reports whether id is a canonical UUID as issued by the registry.
func ValidJobID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == strings.ToLower(id)
}

// TargetSizeOrDefault returns mb when it is a usable positive size and
// fallback otherwise.
func TargetSizeOrDefault(mb, fallback float64) float64 {
	if math.IsNaN(mb) || math.IsInf(mb, 0) || mb <= 0 {
		return fallback
	}
	return mb
}
