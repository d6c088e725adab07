package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusCompressing Status = "compressing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrAlreadyCompressing = errors.New("already compressing")
	ErrJobCompleted       = errors.New("job already completed")
	ErrInvalidOptions     = errors.New("invalid compression options")
	ErrNoDuration         = errors.New("video duration unknown")
	ErrEncodeCancelled    = errors.New("encode cancelled")
)

// Job is a point-in-time copy of a job record. Mutations go through the
// Registry; a Job value never aliases registry state.
type Job struct {
	ID           string    `json:"jobId"`
	Status       Status    `json:"status"`
	OriginalName string    `json:"originalName,omitempty"`
	InputPath    string    `json:"-"`
	OutputPath   string    `json:"-"`
	OriginalSize int64     `json:"originalSize"`
	OutputSize   int64     `json:"-"`
	Progress     int       `json:"progress"`
	Error        string    `json:"error,omitempty"`
	Codec        string    `json:"codec,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	StartedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// MarshalJSON reports compressedSize once the job has completed, including a
// zero-byte output, and omits it before then.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	out := struct {
		plain
		CompressedSize *int64 `json:"compressedSize,omitempty"`
	}{plain: plain(j)}
	if j.Status == StatusCompleted {
		size := j.OutputSize
		out.CompressedSize = &size
	}
	return json.Marshal(out)
}

// ProbeError reports a failed duration lookup.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to analyze video: %v", e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// EncodeError reports an encoder process that exited abnormally. Detail
// holds the tail of the encoder's diagnostic output.
type EncodeError struct {
	ExitCode int
	Detail   string
	Err      error
}

func (e *EncodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("encoding failed (code %d): %s", e.ExitCode, e.Detail)
	}
	return fmt.Sprintf("encoding failed (code %d): %v", e.ExitCode, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
