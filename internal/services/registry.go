package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotCompressing = errors.New("job is not compressing")

type jobRecord struct {
	mu      sync.Mutex
	job     Job
	removed bool
}

// Registry owns every job record. The map is guarded by mu; each record
// carries its own lock so state transitions on one job never wait on another.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*jobRecord
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*jobRecord),
		now:  time.Now,
	}
}

// Create registers an uploaded file and returns the new job's id.
func (r *Registry) Create(inputPath, originalName string, originalSize int64) string {
	now := r.now()
	rec := &jobRecord{job: Job{
		Status:       StatusUploaded,
		OriginalName: originalName,
		InputPath:    inputPath,
		OriginalSize: originalSize,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := uuid.New().String()
		if _, taken := r.jobs[id]; taken {
			continue
		}
		rec.job.ID = id
		r.jobs[id] = rec
		return id
	}
}

func (r *Registry) record(id string) *jobRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

func (r *Registry) Get(id string) (Job, error) {
	rec := r.record(id)
	if rec == nil {
		return Job{}, ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, nil
}

// BeginCompress moves a job into compressing. Uploaded jobs and jobs that
// ended in error may start; a job already compressing or completed is
// rejected without being modified.
func (r *Registry) BeginCompress(id, outputPath, codec, mode string) error {
	rec := r.record(id)
	if rec == nil {
		return ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return ErrJobNotFound
	}

	switch rec.job.Status {
	case StatusCompressing:
		return ErrAlreadyCompressing
	case StatusCompleted:
		return ErrJobCompleted
	}

	now := r.now()
	rec.job.Status = StatusCompressing
	rec.job.OutputPath = outputPath
	rec.job.OutputSize = 0
	rec.job.Progress = 0
	rec.job.Error = ""
	rec.job.Codec = codec
	rec.job.Mode = mode
	rec.job.Attempts++
	rec.job.StartedAt = now
	rec.job.UpdatedAt = now
	return nil
}

// UpdateProgress records encoder progress. Values are clamped to [0,99] and
// never move backwards; 100 is reserved for Complete. It reports whether the
// stored value changed.
func (r *Registry) UpdateProgress(id string, percent int) bool {
	rec := r.record(id)
	if rec == nil {
		return false
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.job.Status != StatusCompressing || percent <= rec.job.Progress {
		return false
	}
	rec.job.Progress = percent
	rec.job.UpdatedAt = r.now()
	return true
}

func (r *Registry) Complete(id string, outputSize int64) error {
	return r.finish(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.OutputSize = outputSize
	})
}

func (r *Registry) Fail(id, message string) error {
	return r.finish(id, func(j *Job) {
		j.Status = StatusError
		j.Error = message
	})
}

func (r *Registry) finish(id string, apply func(j *Job)) error {
	rec := r.record(id)
	if rec == nil {
		return ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.job.Status != StatusCompressing {
		return fmt.Errorf("%w (status %s)", ErrNotCompressing, rec.job.Status)
	}
	apply(&rec.job)
	rec.job.UpdatedAt = r.now()
	return nil
}

// Remove deletes a job and returns its final state. A BeginCompress racing
// with Remove either lands first, and the returned job is compressing, or
// fails with ErrJobNotFound.
func (r *Registry) Remove(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	delete(r.jobs, id)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.removed = true
	return rec.job, nil
}

// CreatedBefore returns snapshots of jobs created before cutoff, oldest first.
func (r *Registry) CreatedBefore(cutoff time.Time) []Job {
	var out []Job
	for _, j := range r.List() {
		if j.CreatedAt.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out
}

// List returns snapshots of all jobs, oldest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	recs := make([]*jobRecord, 0, len(r.jobs))
	for _, rec := range r.jobs {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]Job, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.job)
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) CountByStatus() map[Status]int {
	counts := map[Status]int{
		StatusUploaded:    0,
		StatusCompressing: 0,
		StatusCompleted:   0,
		StatusError:       0,
	}
	for _, j := range r.List() {
		counts[j.Status]++
	}
	return counts
}
