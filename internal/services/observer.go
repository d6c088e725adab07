package services

import "time"

// Observer receives job lifecycle events from the Compressor and Sweeper.
// Implementations must not block.
type Observer interface {
	JobStarted(job Job)
	JobFinished(job Job, elapsed time.Duration)
	JobEvicted(job Job)
}

type nopObserver struct{}

func (nopObserver) JobStarted(Job)                 {}
func (nopObserver) JobFinished(Job, time.Duration) {}
func (nopObserver) JobEvicted(Job)                 {}

type multiObserver []Observer

func (m multiObserver) JobStarted(job Job) {
	for _, o := range m {
		o.JobStarted(job)
	}
}

func (m multiObserver) JobFinished(job Job, elapsed time.Duration) {
	for _, o := range m {
		o.JobFinished(job, elapsed)
	}
}

func (m multiObserver) JobEvicted(job Job) {
	for _, o := range m {
		o.JobEvicted(job)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	if len(m) == 0 {
		return nopObserver{}
	}
	return m
}
