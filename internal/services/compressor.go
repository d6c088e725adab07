package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/util"
	"github.com/dustin/go-humanize"
)

const (
	ModeQuality = "quality"
	ModeTarget  = "target"
)

// CompressOptions is what a client asks for. Zero values fall back to
// defaults: h264, quality mode, CRF 28, 10 MB target.
type CompressOptions struct {
	Codec        string  `json:"codec"`
	Mode         string  `json:"mode"`
	Preset       string  `json:"preset"`
	Quality      int     `json:"quality"`
	TargetSizeMB float64 `json:"targetSize"`
}

type plan struct {
	codec      config.Codec
	mode       string
	crf        int
	scaleWidth int
	targetMB   float64
}

func planFor(opts CompressOptions) (plan, error) {
	codecName := opts.Codec
	if codecName == "" {
		codecName = config.DefaultCodec
	}
	codec, ok := config.Codecs[codecName]
	if !ok {
		return plan{}, fmt.Errorf("%w: unknown codec %q", ErrInvalidOptions, opts.Codec)
	}

	p := plan{codec: codec, mode: opts.Mode}
	if p.mode == "" {
		p.mode = ModeQuality
	}
	if !config.Contains(config.AllowedModes, p.mode) {
		return plan{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, opts.Mode)
	}

	switch p.mode {
	case ModeQuality:
		p.crf = config.DefaultCRF
		if opts.Preset != "" {
			preset, ok := config.Presets[opts.Preset]
			if !ok {
				return plan{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidOptions, opts.Preset)
			}
			p.crf = preset.CRF
			p.scaleWidth = preset.ScaleWidth
		}
		if opts.Quality != 0 {
			if opts.Quality < 0 || opts.Quality > codec.MaxCRF {
				return plan{}, fmt.Errorf("%w: quality for %s must be between 1 and %d", ErrInvalidOptions, codec.Name, codec.MaxCRF)
			}
			p.crf = opts.Quality
		}
	case ModeTarget:
		p.targetMB = util.TargetSizeOrDefault(opts.TargetSizeMB, config.DefaultTargetSizeMB)
		p.scaleWidth = config.TargetScaleWidth
	}
	return p, nil
}

type CompressorConfig struct {
	OutputDir     string
	MaxActive     int
	EncodeTimeout time.Duration
}

type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Compressor runs one background encode per accepted job and records every
// outcome in the Registry. At most MaxActive encoders run at once; jobs over
// the cap wait in compressing at progress 0.
type Compressor struct {
	cfg      CompressorConfig
	jobs     *Registry
	prober   Prober
	encoder  Encoder
	observer Observer

	sem    chan struct{}
	active atomic.Int32
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*inflight
}

func NewCompressor(cfg CompressorConfig, jobs *Registry, prober Prober, encoder Encoder, observer Observer) *Compressor {
	if cfg.MaxActive < 1 {
		cfg.MaxActive = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Compressor{
		cfg:      cfg,
		jobs:     jobs,
		prober:   prober,
		encoder:  encoder,
		observer: observer,
		sem:      make(chan struct{}, cfg.MaxActive),
		inflight: make(map[string]*inflight),
	}
}

// Start validates opts, moves the job into compressing and launches the
// encode in the background. Validation and state conflicts are returned
// synchronously; nothing is started when Start returns an error.
func (c *Compressor) Start(jobID string, opts CompressOptions) error {
	p, err := planFor(opts)
	if err != nil {
		return err
	}
	prev, err := c.jobs.Get(jobID)
	if err != nil {
		return err
	}

	outputPath := filepath.Join(c.cfg.OutputDir, jobID+"."+p.codec.Container)
	if err := c.jobs.BeginCompress(jobID, outputPath, p.codec.Name, p.mode); err != nil {
		return err
	}
	if prev.OutputPath != "" && prev.OutputPath != outputPath {
		util.RemoveFile(prev.OutputPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &inflight{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.inflight[jobID] = f
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(f.done)
		defer c.forget(jobID, f)
		c.run(ctx, jobID, p)
	}()
	return nil
}

func (c *Compressor) forget(jobID string, f *inflight) {
	f.cancel()
	c.mu.Lock()
	if c.inflight[jobID] == f {
		delete(c.inflight, jobID)
	}
	c.mu.Unlock()
}

func (c *Compressor) run(ctx context.Context, jobID string, p plan) {
	started := time.Now()
	job, err := c.jobs.Get(jobID)
	if err != nil || job.Status != StatusCompressing {
		return
	}
	c.observer.JobStarted(job)

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		c.finish(jobID, job.OutputPath, started, ErrEncodeCancelled)
		return
	}
	defer func() { <-c.sem }()
	c.active.Add(1)
	defer c.active.Add(-1)

	if c.cfg.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.EncodeTimeout)
		defer cancel()
	}

	req, err := c.buildRequest(ctx, job, p)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			err = ErrEncodeCancelled
		}
		log.Printf("[%s] Planning failed: %v", jobID, err)
		c.finish(jobID, job.OutputPath, started, err)
		return
	}

	log.Printf("[%s] Encoding %s (%s)", jobID, humanize.IBytes(uint64(job.OriginalSize)), req)
	err = c.encoder.Encode(ctx, req, c.progressFunc(jobID))
	c.finish(jobID, req.OutputPath, started, err)
}

func (c *Compressor) buildRequest(ctx context.Context, job Job, p plan) (EncodeRequest, error) {
	req := EncodeRequest{
		InputPath:     job.InputPath,
		OutputPath:    job.OutputPath,
		Codec:         p.codec,
		AudioBitrateK: config.AudioBitrateK,
	}

	if p.mode == ModeQuality {
		req.CRF = p.crf
		req.ScaleWidth = p.scaleWidth
		return req, nil
	}

	duration, err := ProbeDuration(ctx, c.prober, job.InputPath)
	if err != nil {
		return req, err
	}
	bitrate, err := util.CalculateTargetBitrate(p.targetMB, duration, config.AudioBitrateK, config.MinVideoBitrateK)
	if err != nil {
		return req, &ProbeError{Path: job.InputPath, Err: err}
	}
	log.Printf("[%s] Target %.1f MB over %.1fs -> %d kbps", job.ID, p.targetMB, duration, bitrate)

	req.VideoBitrateK = bitrate
	req.ScaleWidth = p.scaleWidth
	req.Duration = duration
	return req, nil
}

func (c *Compressor) progressFunc(jobID string) ProgressFunc {
	lastLogged := 0
	return func(percent float64) {
		p := int(math.Round(percent))
		if !c.jobs.UpdateProgress(jobID, p) {
			return
		}
		if p-lastLogged >= 25 {
			lastLogged = p
			log.Printf("[%s] %d%%", jobID, p)
		}
	}
}

func (c *Compressor) finish(jobID, outputPath string, started time.Time, err error) {
	if err == nil {
		info, statErr := os.Stat(outputPath)
		if statErr != nil {
			err = &EncodeError{Detail: "output file missing", Err: statErr}
		} else if cerr := c.jobs.Complete(jobID, info.Size()); cerr != nil {
			log.Printf("[%s] Could not mark completed: %v", jobID, cerr)
		} else {
			log.Printf("[%s] Completed: %s in %s", jobID, humanize.IBytes(uint64(info.Size())), time.Since(started).Round(time.Second))
		}
	}

	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrEncodeCancelled) {
			msg = "cancelled"
		}
		if ferr := c.jobs.Fail(jobID, msg); ferr != nil {
			log.Printf("[%s] Could not record failure %q: %v", jobID, msg, ferr)
		} else {
			log.Printf("[%s] Error: %s", jobID, msg)
		}
	}

	if job, gerr := c.jobs.Get(jobID); gerr == nil {
		c.observer.JobFinished(job, time.Since(started))
	}
}

// Cancel stops a job's encode and waits for its goroutine to record the
// outcome. It reports whether the job had an encode in flight.
func (c *Compressor) Cancel(jobID string) bool {
	c.mu.Lock()
	f, ok := c.inflight[jobID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(30 * time.Second):
		log.Printf("[%s] Encode did not stop within 30s of cancel", jobID)
	}
	return true
}

// Active returns the number of encodes currently holding a slot.
func (c *Compressor) Active() int {
	return int(c.active.Load())
}

// Pending returns the number of accepted jobs that have not finished yet,
// including those waiting for a slot.
func (c *Compressor) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Wait blocks until every started encode has finished.
func (c *Compressor) Wait() {
	c.wg.Wait()
}

// Shutdown cancels every in-flight encode and waits for them to exit or for
// ctx to expire.
func (c *Compressor) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, f := range c.inflight {
		f.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
