package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

type fakeProber struct {
	info  MediaInfo
	err   error
	calls atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context, path string) (MediaInfo, error) {
	p.calls.Add(1)
	return p.info, p.err
}

type fakeEncoder struct {
	progress []float64
	size     int
	err      error
	// block, when set, holds every encode until it is closed or the
	// context ends.
	block   chan struct{}
	started chan string
	onEach  func(req EncodeRequest)

	mu       sync.Mutex
	requests []EncodeRequest
}

func (f *fakeEncoder) Encode(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- req.OutputPath
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ErrEncodeCancelled
		}
	}
	for _, p := range f.progress {
		onProgress(p)
		if f.onEach != nil {
			f.onEach(req)
		}
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(req.OutputPath, make([]byte, f.size), 0o644)
}

func (f *fakeEncoder) calls() []EncodeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EncodeRequest(nil), f.requests...)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []Job
	evicted  []Job
}

func (o *recordingObserver) JobStarted(Job) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *recordingObserver) JobFinished(job Job, _ time.Duration) {
	o.mu.Lock()
	o.finished = append(o.finished, job)
	o.mu.Unlock()
}

func (o *recordingObserver) JobEvicted(job Job) {
	o.mu.Lock()
	o.evicted = append(o.evicted, job)
	o.mu.Unlock()
}

func newTestCompressor(t *testing.T, prober Prober, enc Encoder, maxActive int) (*Compressor, *Registry, string) {
	t.Helper()
	dir := t.TempDir()
	jobs := NewRegistry()
	c := NewCompressor(CompressorConfig{
		OutputDir:     dir,
		MaxActive:     maxActive,
		EncodeTimeout: time.Minute,
	}, jobs, prober, enc, nil)
	return c, jobs, dir
}

func TestCompressorTargetMode(t *testing.T) {
	prober := &fakeProber{info: MediaInfo{Duration: 60, HasVideo: true}}
	enc := &fakeEncoder{progress: []float64{5, 20, 20, 55, 99}, size: 4096}
	c, jobs, dir := newTestCompressor(t, prober, enc, 2)

	id := jobs.Create("/uploads/in.mp4", "holiday.mp4", 100<<20)

	var seen []int
	enc.onEach = func(EncodeRequest) {
		job, _ := jobs.Get(id)
		seen = append(seen, job.Progress)
	}

	err := c.Start(id, CompressOptions{Codec: "h264", Mode: ModeTarget, TargetSizeMB: 50})
	be.Err(t, err, nil)
	c.Wait()

	job, err := jobs.Get(id)
	be.Err(t, err, nil)
	be.Equal(t, job.Status, StatusCompleted)
	be.Equal(t, job.Progress, 100)
	be.Equal(t, job.OutputSize, int64(4096))
	be.Equal(t, job.OutputPath, filepath.Join(dir, id+".mp4"))
	be.Equal(t, seen, []int{5, 20, 20, 55, 99})

	reqs := enc.calls()
	be.Equal(t, len(reqs), 1)
	be.Equal(t, reqs[0].VideoBitrateK, 6698)
	be.Equal(t, reqs[0].ScaleWidth, 1280)
	be.Equal(t, reqs[0].Duration, 60.0)
	be.Equal(t, reqs[0].Codec.Encoder, "libx264")
	be.Equal(t, int(prober.calls.Load()), 1)
}

func TestCompressorTargetModeDefaultSize(t *testing.T) {
	prober := &fakeProber{info: MediaInfo{Duration: 30, HasVideo: true}}
	enc := &fakeEncoder{size: 1}
	c, jobs, _ := newTestCompressor(t, prober, enc, 1)

	id := jobs.Create("/in.mp4", "in.mp4", 1)
	be.Err(t, c.Start(id, CompressOptions{Mode: ModeTarget}), nil)
	c.Wait()

	reqs := enc.calls()
	be.Equal(t, len(reqs), 1)
	be.Equal(t, reqs[0].VideoBitrateK, 2602)
}

func TestCompressorProbeFailure(t *testing.T) {
	prober := &fakeProber{err: &ProbeError{Path: "/in.mp4", Err: errors.New("Invalid data found when processing input")}}
	enc := &fakeEncoder{}
	c, jobs, _ := newTestCompressor(t, prober, enc, 1)

	id := jobs.Create("/in.mp4", "in.mp4", 1)
	be.Err(t, c.Start(id, CompressOptions{Mode: ModeTarget, TargetSizeMB: 8}), nil)
	c.Wait()

	job, _ := jobs.Get(id)
	be.Equal(t, job.Status, StatusError)
	be.Equal(t, job.Error, "failed to analyze video: Invalid data found when processing input")
	be.Equal(t, len(enc.calls()), 0)
}

func TestCompressorZeroDuration(t *testing.T) {
	prober := &fakeProber{info: MediaInfo{HasVideo: true}}
	enc := &fakeEncoder{}
	c, jobs, _ := newTestCompressor(t, prober, enc, 1)

	id := jobs.Create("/in.mp4", "in.mp4", 1)
	be.Err(t, c.Start(id, CompressOptions{Mode: ModeTarget}), nil)
	c.Wait()

	job, _ := jobs.Get(id)
	be.Equal(t, job.Status, StatusError)
	be.True(t, strings.Contains(job.Error, ErrNoDuration.Error()))
	be.Equal(t, len(enc.calls()), 0)
}

func TestCompressorQualityPresets(t *testing.T) {
	tests := []struct {
		name  string
		opts  CompressOptions
		crf   int
		width int
		ext   string
	}{
		{"defaults", CompressOptions{}, 28, 0, ".mp4"},
		{"high", CompressOptions{Mode: ModeQuality, Preset: "high"}, 23, 1920, ".mp4"},
		{"low vp9", CompressOptions{Codec: "vp9", Mode: ModeQuality, Preset: "low"}, 32, 854, ".webm"},
		{"quality overrides preset", CompressOptions{Mode: ModeQuality, Preset: "very-low", Quality: 20}, 20, 640, ".mp4"},
		{"quality without preset", CompressOptions{Mode: ModeQuality, Quality: 35}, 35, 0, ".mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{}
			enc := &fakeEncoder{size: 10}
			c, jobs, _ := newTestCompressor(t, prober, enc, 1)

			id := jobs.Create("/in.mp4", "in.mp4", 1)
			be.Err(t, c.Start(id, tt.opts), nil)
			c.Wait()

			reqs := enc.calls()
			be.Equal(t, len(reqs), 1)
			be.Equal(t, reqs[0].CRF, tt.crf)
			be.Equal(t, reqs[0].ScaleWidth, tt.width)
			be.Equal(t, reqs[0].VideoBitrateK, 0)
			be.Equal(t, filepath.Ext(reqs[0].OutputPath), tt.ext)
			be.Equal(t, int(prober.calls.Load()), 0)

			job, _ := jobs.Get(id)
			be.Equal(t, job.Status, StatusCompleted)
		})
	}
}

func TestCompressorInvalidOptions(t *testing.T) {
	tests := []CompressOptions{
		{Codec: "av1"},
		{Mode: "fastest"},
		{Mode: ModeQuality, Preset: "ultra"},
		{Mode: ModeQuality, Quality: 99},
		{Mode: ModeQuality, Quality: -1},
		{Codec: "h264", Mode: ModeQuality, Quality: 52},
		{Codec: "vp9", Mode: ModeQuality, Quality: 64},
	}
	for _, opts := range tests {
		enc := &fakeEncoder{}
		c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 1)
		id := jobs.Create("/in.mp4", "in.mp4", 1)

		err := c.Start(id, opts)
		be.Err(t, err, ErrInvalidOptions)

		job, _ := jobs.Get(id)
		be.Equal(t, job.Status, StatusUploaded)
		c.Wait()
		be.Equal(t, len(enc.calls()), 0)
	}
}

func TestPlanQualityRangePerCodec(t *testing.T) {
	p, err := planFor(CompressOptions{Codec: "h264", Quality: 51})
	be.Err(t, err, nil)
	be.Equal(t, p.crf, 51)

	_, err = planFor(CompressOptions{Codec: "h264", Quality: 60})
	be.Err(t, err, ErrInvalidOptions)

	p, err = planFor(CompressOptions{Codec: "vp9", Quality: 60})
	be.Err(t, err, nil)
	be.Equal(t, p.crf, 60)
}

func TestCompressorUnknownJob(t *testing.T) {
	c, _, _ := newTestCompressor(t, &fakeProber{}, &fakeEncoder{}, 1)
	be.Err(t, c.Start("missing", CompressOptions{}), ErrJobNotFound)
}

func TestCompressorConflict(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{}), started: make(chan string, 1), size: 1}
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 1)
	id := jobs.Create("/in.mp4", "in.mp4", 1)

	be.Err(t, c.Start(id, CompressOptions{}), nil)
	<-enc.started

	be.Err(t, c.Start(id, CompressOptions{}), ErrAlreadyCompressing)

	close(enc.block)
	c.Wait()

	be.Equal(t, len(enc.calls()), 1)
	be.Err(t, c.Start(id, CompressOptions{}), ErrJobCompleted)
}

func TestCompressorEncodeErrorRecordedVerbatim(t *testing.T) {
	encErr := &EncodeError{ExitCode: 1, Detail: "moov atom not found"}
	enc := &fakeEncoder{progress: []float64{10, 30}, err: encErr}
	obs := &recordingObserver{}
	jobs := NewRegistry()
	c := NewCompressor(CompressorConfig{OutputDir: t.TempDir(), MaxActive: 1}, jobs, &fakeProber{}, enc, obs)

	id := jobs.Create("/in.mp4", "in.mp4", 1)
	be.Err(t, c.Start(id, CompressOptions{}), nil)
	c.Wait()

	job, _ := jobs.Get(id)
	be.Equal(t, job.Status, StatusError)
	be.Equal(t, job.Error, encErr.Error())
	be.Equal(t, job.Progress, 30)

	be.Equal(t, obs.started, 1)
	be.Equal(t, len(obs.finished), 1)
	be.Equal(t, obs.finished[0].Status, StatusError)
}

func TestCompressorRetryAfterError(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("exit status 1"), size: 5}
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 1)
	id := jobs.Create("/in.mp4", "in.mp4", 1)

	be.Err(t, c.Start(id, CompressOptions{}), nil)
	c.Wait()
	job, _ := jobs.Get(id)
	be.Equal(t, job.Status, StatusError)

	enc.err = nil
	be.Err(t, c.Start(id, CompressOptions{Codec: "vp9"}), nil)
	c.Wait()

	job, _ = jobs.Get(id)
	be.Equal(t, job.Status, StatusCompleted)
	be.Equal(t, job.Attempts, 2)
	be.Equal(t, job.Error, "")
	be.Equal(t, filepath.Ext(job.OutputPath), ".webm")
}

func TestCompressorMissingOutput(t *testing.T) {
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, encoderFunc(func(context.Context, EncodeRequest, ProgressFunc) error {
		return nil
	}), 1)
	id := jobs.Create("/in.mp4", "in.mp4", 1)

	be.Err(t, c.Start(id, CompressOptions{}), nil)
	c.Wait()

	job, _ := jobs.Get(id)
	be.Equal(t, job.Status, StatusError)
	be.True(t, strings.Contains(job.Error, "output file missing"))
}

type encoderFunc func(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) error

func (f encoderFunc) Encode(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) error {
	return f(ctx, req, onProgress)
}

func TestCompressorJobsAreIsolated(t *testing.T) {
	enc := encoderFunc(func(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) error {
		onProgress(40)
		if req.InputPath == "/bad.mp4" {
			return &EncodeError{ExitCode: 1, Detail: "corrupt input"}
		}
		return os.WriteFile(req.OutputPath, []byte("ok"), 0o644)
	})
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 4)

	good := jobs.Create("/good.mp4", "good.mp4", 1)
	bad := jobs.Create("/bad.mp4", "bad.mp4", 1)
	be.Err(t, c.Start(good, CompressOptions{}), nil)
	be.Err(t, c.Start(bad, CompressOptions{}), nil)
	c.Wait()

	gj, _ := jobs.Get(good)
	bj, _ := jobs.Get(bad)
	be.Equal(t, gj.Status, StatusCompleted)
	be.Equal(t, gj.Progress, 100)
	be.Equal(t, gj.Error, "")
	be.Equal(t, bj.Status, StatusError)
	be.Equal(t, bj.Progress, 40)
	be.Equal(t, bj.OutputSize, int64(0))
}

func TestCompressorConcurrencyCap(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{}), started: make(chan string, 4), size: 1}
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 1)

	first := jobs.Create("/a.mp4", "a.mp4", 1)
	second := jobs.Create("/b.mp4", "b.mp4", 1)
	be.Err(t, c.Start(first, CompressOptions{}), nil)
	<-enc.started
	be.Err(t, c.Start(second, CompressOptions{}), nil)

	be.Equal(t, c.Active(), 1)
	be.Equal(t, c.Pending(), 2)
	waiting, _ := jobs.Get(second)
	be.Equal(t, waiting.Status, StatusCompressing)
	be.Equal(t, waiting.Progress, 0)
	be.Equal(t, len(enc.calls()), 1)

	close(enc.block)
	c.Wait()

	for _, id := range []string{first, second} {
		job, _ := jobs.Get(id)
		be.Equal(t, job.Status, StatusCompleted)
	}
	be.Equal(t, c.Active(), 0)
	be.Equal(t, c.Pending(), 0)
}

func TestCompressorCancel(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{}), started: make(chan string, 1)}
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 1)
	id := jobs.Create("/in.mp4", "in.mp4", 1)

	be.Err(t, c.Start(id, CompressOptions{}), nil)
	<-enc.started

	be.True(t, c.Cancel(id))
	job, _ := jobs.Get(id)
	be.Equal(t, job.Status, StatusError)
	be.Equal(t, job.Error, "cancelled")

	be.True(t, !c.Cancel(id))
	c.Wait()
}

func TestCompressorShutdown(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{}), started: make(chan string, 2)}
	c, jobs, _ := newTestCompressor(t, &fakeProber{}, enc, 2)
	a := jobs.Create("/a.mp4", "a.mp4", 1)
	b := jobs.Create("/b.mp4", "b.mp4", 1)
	be.Err(t, c.Start(a, CompressOptions{}), nil)
	be.Err(t, c.Start(b, CompressOptions{}), nil)
	<-enc.started
	<-enc.started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	be.Err(t, c.Shutdown(ctx), nil)

	counts := jobs.CountByStatus()
	be.Equal(t, counts[StatusError], 2)
}
