package services

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/coah80/squish/internal/util"
)

// Canceller stops an in-flight encode and waits for it to record its outcome.
type Canceller interface {
	Cancel(jobID string) bool
}

type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// Sweeper evicts jobs older than the retention period and deletes their
// files. Jobs still compressing are cancelled and failed first so the
// encoder never loses its files mid-write.
type Sweeper struct {
	cfg       SweeperConfig
	jobs      *Registry
	canceller Canceller
	observer  Observer
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(cfg SweeperConfig, jobs *Registry, canceller Canceller, observer Observer) *Sweeper {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Sweeper{
		cfg:       cfg,
		jobs:      jobs,
		canceller: canceller,
		observer:  observer,
		now:       time.Now,
	}
}

// Start runs Sweep every Interval until Stop is called. Calling Start on a
// running sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		tm := time.NewTimer(s.cfg.Interval)
		defer tm.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tm.C:
				if n := s.Sweep(); n > 0 {
					log.Printf("[Cleanup] Removed %d expired job(s), %d remaining", n, s.jobs.Count())
				}
				tm.Reset(s.cfg.Interval)
			}
		}
	}()
}

// Stop halts the background loop and waits for an in-progress sweep to end.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep evicts every job created more than Retention ago and returns how many
// were removed.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.cfg.Retention)
	removed := 0
	for _, job := range s.jobs.CreatedBefore(cutoff) {
		if s.evict(job) {
			removed++
		}
	}
	return removed
}

func (s *Sweeper) evict(job Job) bool {
	if job.Status == StatusCompressing {
		s.stopEncode(job.ID)
		// no-op when the encode goroutine already recorded the cancel
		s.jobs.Fail(job.ID, "cancelled")
		log.Printf("[Cleanup] Cancelled in-flight job %s", job.ID)
	}

	removed, err := s.jobs.Remove(job.ID)
	if err != nil {
		return false
	}
	// The snapshot may predate a compress request. Once removed no new encode
	// can start, so cancelling again leaves nothing writing to the job's files.
	s.stopEncode(removed.ID)

	for _, path := range []string{removed.InputPath, removed.OutputPath} {
		if err := util.RemoveFile(path); err == nil && path != "" {
			log.Printf("[Cleanup] Deleted %s", filepath.Base(path))
		}
	}

	evicted := removed
	if job.Status == StatusCompressing {
		evicted = job
	}
	s.observer.JobEvicted(evicted)
	return true
}

func (s *Sweeper) stopEncode(id string) bool {
	if s.canceller == nil {
		return false
	}
	return s.canceller.Cancel(id)
}
