package services

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/util"
	"github.com/dustin/go-humanize"
)

var ErrNotCompleted = errors.New("job not complete yet")

// Download describes the finished output of a completed job.
type Download struct {
	Path     string
	Filename string
	MimeType string
	Size     int64
}

// DownloadFor resolves the output of a completed job. The returned filename
// is "<original stem>_compressed.<container>".
func DownloadFor(job Job) (Download, error) {
	if job.Status != StatusCompleted {
		return Download{}, ErrNotCompleted
	}
	info, err := os.Stat(job.OutputPath)
	if err != nil {
		return Download{}, fmt.Errorf("output file: %w", err)
	}

	codec, ok := config.Codecs[job.Codec]
	if !ok {
		codec = config.Codecs[config.DefaultCodec]
	}
	return Download{
		Path:     job.OutputPath,
		Filename: util.CompressedFilename(job.OriginalName, codec.Container),
		MimeType: codec.MimeType,
		Size:     info.Size(),
	}, nil
}

// StreamFile writes d as an attachment. The file is left in place; the
// sweeper owns deletion.
func StreamFile(w http.ResponseWriter, r *http.Request, d Download, jobID string) {
	f, err := os.Open(d.Path)
	if err != nil {
		log.Printf("[%s] Failed to open file for streaming: %v", jobID, err)
		http.Error(w, "Output file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", d.MimeType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", d.Size))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
			util.ToASCIIFilename(d.Filename), url.PathEscape(d.Filename)))

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, f)
	if err != nil {
		log.Printf("[%s] Stream error after %s: %v", jobID, humanize.IBytes(uint64(n)), err)
		return
	}
	log.Printf("[%s] Sent %s (%s)", jobID, d.Filename, humanize.IBytes(uint64(n)))
}
