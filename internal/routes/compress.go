package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coah80/squish/internal/alerts"
	"github.com/coah80/squish/internal/metrics"
	"github.com/coah80/squish/internal/services"
	"github.com/coah80/squish/internal/util"
)

// Deps carries everything the job routes need.
type Deps struct {
	Jobs           *services.Registry
	Compressor     *services.Compressor
	Prober         services.Prober
	UploadDir      string
	MaxUploadSize  int64
	DiskSpaceMinGB float64
	// LowDisk overrides the free-space check; nil uses the filesystem.
	LowDisk func(path string, minGB float64) (float64, bool)
}

func CompressRoutes(r chi.Router, d *Deps) {
	r.Post("/upload", d.handleUpload)
	r.Post("/compress/{jobId}", d.handleCompress)
	r.Get("/status/{jobId}", d.handleStatus)
	r.Get("/download/{jobId}", d.handleDownload)
	r.Head("/download/{jobId}", d.handleDownload)
}

type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

func (d *Deps) lowDisk() (float64, bool) {
	if d.DiskSpaceMinGB <= 0 {
		return -1, false
	}
	check := d.LowDisk
	if check == nil {
		check = util.LowDiskSpace
	}
	return check(d.UploadDir, d.DiskSpaceMinGB)
}

func (d *Deps) handleUpload(w http.ResponseWriter, r *http.Request) {
	path, name, size, err := d.saveUpload(w, r)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		var ue *uploadError
		if errors.As(err, &ue) {
			respondError(w, ue.status, ue.msg)
			return
		}
		log.Printf("[Upload] Failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save file")
		return
	}

	jobID := d.Jobs.Create(path, name, size)
	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytes.Add(float64(size))
	log.Printf("[Upload] %s: %s (%s)", jobID, name, humanize.IBytes(uint64(size)))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":    jobID,
		"filename": name,
		"size":     size,
	})
}

// saveUpload stores the "video" form file under UploadDir and checks that it
// holds a video stream. Nothing is left on disk when it fails.
func (d *Deps) saveUpload(w http.ResponseWriter, r *http.Request) (string, string, int64, error) {
	if avail, low := d.lowDisk(); low {
		alerts.DiskSpaceLow(avail, d.DiskSpaceMinGB)
		return "", "", 0, &uploadError{http.StatusServiceUnavailable, "Server is low on disk space. Please try again later."}
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return "", "", 0, &uploadError{http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum size is %s.", humanize.IBytes(uint64(d.MaxUploadSize)))}
		}
		return "", "", 0, &uploadError{http.StatusBadRequest, "Failed to parse upload"}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		return "", "", 0, &uploadError{http.StatusBadRequest, "No file uploaded"}
	}
	defer file.Close()

	if !util.IsAllowedUpload(header.Filename) {
		return "", "", 0, &uploadError{http.StatusBadRequest, "Unsupported file type. Please upload a video file."}
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	path := filepath.Join(d.UploadDir, uuid.New().String()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("create %s: %w", path, err)
	}
	size, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		util.RemoveFile(path)
		return "", "", 0, fmt.Errorf("write %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	info, err := d.Prober.Probe(ctx, path)
	if err != nil || !info.HasVideo {
		util.RemoveFile(path)
		if err != nil {
			log.Printf("[Upload] Probe rejected %s: %v", header.Filename, err)
		}
		return "", "", 0, &uploadError{http.StatusBadRequest, "File is not a valid video"}
	}

	return path, filepath.Base(header.Filename), size, nil
}

type compressRequest struct {
	Codec      string     `json:"codec"`
	Mode       string     `json:"mode"`
	Preset     string     `json:"preset"`
	Quality    flexNumber `json:"quality"`
	TargetSize flexNumber `json:"targetSize"`
}

func (d *Deps) handleCompress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	var body compressRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	opts := services.CompressOptions{
		Codec:        body.Codec,
		Mode:         body.Mode,
		Preset:       body.Preset,
		Quality:      int(body.Quality),
		TargetSizeMB: float64(body.TargetSize),
	}
	if err := d.Compressor.Start(jobID, opts); err != nil {
		writeServiceError(w, err)
		return
	}

	log.Printf("[Compress] %s: codec=%s mode=%s", jobID, orDefault(opts.Codec, "h264"), orDefault(opts.Mode, services.ModeQuality))
	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Compression started",
		"jobId":   jobID,
	})
}

func (d *Deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := d.Jobs.Get(jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (d *Deps) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := d.Jobs.Get(jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dl, err := services.DownloadFor(job)
	if err != nil {
		if errors.Is(err, services.ErrNotCompleted) {
			writeServiceError(w, err)
			return
		}
		log.Printf("[%s] Download unavailable: %v", jobID, err)
		respondError(w, http.StatusNotFound, "Output file not found")
		return
	}
	services.StreamFile(w, r, dl, jobID)
}

// jobIDParam rejects ids the registry could never have issued before any
// lookup happens.
func jobIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "jobId")
	if !util.ValidJobID(id) {
		writeServiceError(w, services.ErrJobNotFound)
		return "", false
	}
	return id, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
