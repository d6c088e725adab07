package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

type fakeCanceller struct {
	jobs      *Registry
	cancelled []string
}

func (c *fakeCanceller) Cancel(jobID string) bool {
	c.cancelled = append(c.cancelled, jobID)
	return c.jobs.Fail(jobID, "cancelled") == nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	be.Err(t, os.WriteFile(path, []byte("data"), 0o644), nil)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type sweepFixture struct {
	jobs    *Registry
	sweeper *Sweeper
	obs     *recordingObserver
	clock   time.Time
	dir     string
}

func newSweepFixture(t *testing.T, canceller Canceller) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		jobs:  NewRegistry(),
		obs:   &recordingObserver{},
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		dir:   t.TempDir(),
	}
	f.jobs.now = func() time.Time { return f.clock }
	if fc, ok := canceller.(*fakeCanceller); ok {
		fc.jobs = f.jobs
	}
	f.sweeper = NewSweeper(SweeperConfig{Interval: time.Hour, Retention: time.Hour}, f.jobs, canceller, f.obs)
	f.sweeper.now = func() time.Time { return f.clock }
	return f
}

func TestSweepRemovesExpiredJobAndFiles(t *testing.T) {
	f := newSweepFixture(t, nil)
	in := filepath.Join(f.dir, "in.mp4")
	out := filepath.Join(f.dir, "out.mp4")
	touch(t, in)
	touch(t, out)

	id := f.jobs.Create(in, "in.mp4", 4)
	be.Err(t, f.jobs.BeginCompress(id, out, "h264", "quality"), nil)
	be.Err(t, f.jobs.Complete(id, 4), nil)

	f.clock = f.clock.Add(61 * time.Minute)
	be.Equal(t, f.sweeper.Sweep(), 1)

	_, err := f.jobs.Get(id)
	be.Err(t, err, ErrJobNotFound)
	be.True(t, !exists(in))
	be.True(t, !exists(out))
	be.Equal(t, len(f.obs.evicted), 1)
}

func TestSweepToleratesMissingFiles(t *testing.T) {
	f := newSweepFixture(t, nil)
	in := filepath.Join(f.dir, "gone.mp4")

	// output path never assigned, input already deleted
	id := f.jobs.Create(in, "gone.mp4", 4)

	f.clock = f.clock.Add(2 * time.Hour)
	be.Equal(t, f.sweeper.Sweep(), 1)

	_, err := f.jobs.Get(id)
	be.Err(t, err, ErrJobNotFound)
}

func TestSweepKeepsYoungJobs(t *testing.T) {
	f := newSweepFixture(t, nil)
	in := filepath.Join(f.dir, "in.mp4")
	touch(t, in)
	id := f.jobs.Create(in, "in.mp4", 4)

	f.clock = f.clock.Add(59 * time.Minute)
	be.Equal(t, f.sweeper.Sweep(), 0)

	_, err := f.jobs.Get(id)
	be.Err(t, err, nil)
	be.True(t, exists(in))
}

func TestSweepCancelsCompressingJob(t *testing.T) {
	canceller := &fakeCanceller{}
	f := newSweepFixture(t, canceller)
	in := filepath.Join(f.dir, "in.mp4")
	out := filepath.Join(f.dir, "partial.mp4")
	touch(t, in)
	touch(t, out)

	id := f.jobs.Create(in, "in.mp4", 4)
	be.Err(t, f.jobs.BeginCompress(id, out, "h264", "target"), nil)

	f.clock = f.clock.Add(3 * time.Hour)
	be.Equal(t, f.sweeper.Sweep(), 1)

	// once before removal, once after to catch a late start
	be.Equal(t, canceller.cancelled, []string{id, id})
	be.True(t, !exists(in))
	be.True(t, !exists(out))
	be.Equal(t, len(f.obs.evicted), 1)
	be.Equal(t, f.obs.evicted[0].Status, StatusCompressing)
}

func TestSweepWithCompressor(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{}), started: make(chan string, 1)}
	jobs := NewRegistry()
	dir := t.TempDir()
	c := NewCompressor(CompressorConfig{OutputDir: dir, MaxActive: 1}, jobs, &fakeProber{}, enc, nil)

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobs.now = func() time.Time { return clock }
	sw := NewSweeper(SweeperConfig{Interval: time.Hour, Retention: time.Hour}, jobs, c, nil)
	sw.now = func() time.Time { return clock }

	in := filepath.Join(dir, "in.mp4")
	touch(t, in)
	id := jobs.Create(in, "in.mp4", 4)
	be.Err(t, c.Start(id, CompressOptions{}), nil)
	<-enc.started

	clock = clock.Add(2 * time.Hour)
	be.Equal(t, sw.Sweep(), 1)
	c.Wait()

	be.Equal(t, jobs.Count(), 0)
	be.Equal(t, c.Pending(), 0)
	be.True(t, !exists(in))
}

// hookCanceller runs before once, on the first Cancel, then delegates.
type hookCanceller struct {
	c      *Compressor
	before func()
}

func (h *hookCanceller) Cancel(jobID string) bool {
	if h.before != nil {
		f := h.before
		h.before = nil
		f()
	}
	return h.c.Cancel(jobID)
}

func TestSweepCancelsEncodeStartedDuringSweep(t *testing.T) {
	started := make(chan string, 2)
	enc := encoderFunc(func(ctx context.Context, req EncodeRequest, _ ProgressFunc) error {
		if err := os.WriteFile(req.OutputPath, []byte("partial"), 0o644); err != nil {
			return err
		}
		started <- req.OutputPath
		<-ctx.Done()
		return ErrEncodeCancelled
	})
	jobs := NewRegistry()
	dir := t.TempDir()
	c := NewCompressor(CompressorConfig{OutputDir: dir, MaxActive: 2}, jobs, &fakeProber{}, enc, nil)

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobs.now = func() time.Time { return clock }

	inA := filepath.Join(dir, "a.mp4")
	inB := filepath.Join(dir, "b.mkv")
	touch(t, inA)
	touch(t, inB)
	a := jobs.Create(inA, "a.mp4", 4)
	clock = clock.Add(time.Second)
	b := jobs.Create(inB, "b.mkv", 4)

	be.Err(t, c.Start(a, CompressOptions{}), nil)
	outA := <-started

	// b is still uploaded in the sweep's snapshot when its encode begins
	var outB string
	hook := &hookCanceller{c: c, before: func() {
		be.Err(t, c.Start(b, CompressOptions{}), nil)
		outB = <-started
	}}
	sw := NewSweeper(SweeperConfig{Interval: time.Hour, Retention: time.Hour}, jobs, hook, nil)
	clock = clock.Add(2 * time.Hour)
	sw.now = func() time.Time { return clock }

	be.Equal(t, sw.Sweep(), 2)
	c.Wait()

	be.Equal(t, jobs.Count(), 0)
	be.Equal(t, c.Pending(), 0)
	for _, path := range []string{inA, inB, outA, outB} {
		be.True(t, !exists(path))
	}
}

func TestSweeperStartStop(t *testing.T) {
	jobs := NewRegistry()
	sw := NewSweeper(SweeperConfig{Interval: 10 * time.Millisecond, Retention: time.Millisecond}, jobs, nil, nil)
	jobs.Create("/nowhere/a.mp4", "a.mp4", 1)

	sw.Start()
	sw.Start()

	deadline := time.Now().Add(2 * time.Second)
	for jobs.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sw.Stop()
	sw.Stop()

	be.Equal(t, jobs.Count(), 0)
}
