package middleware

import (
	"bufio"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"
)

const corsOriginsFile = "cors-origins.txt"

var corsMethods = []string{"GET", "HEAD", "POST", "OPTIONS"}

// Content-Disposition carries the download filename to browser clients.
var corsExposed = []string{"Content-Disposition", "Content-Length"}

func LoadCORS() func(http.Handler) http.Handler {
	return corsFor(loadCORSOrigins(corsOriginsFile))
}

func corsFor(origins []string) func(http.Handler) http.Handler {
	if len(origins) > 0 {
		log.Printf("✓ Loaded %d CORS origins from %s", len(origins), corsOriginsFile)
		return cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   corsMethods,
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   corsExposed,
			AllowCredentials: true,
			MaxAge:           86400,
		})
	}

	log.Printf("[CORS] WARNING: No %s found, allowing all origins (credentials disabled). Create it to restrict.", corsOriginsFile)
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   corsMethods,
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   corsExposed,
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

func loadCORSOrigins(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var origins []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			origins = append(origins, line)
		}
	}
	return origins
}
