package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/util"
)

// EncodeRequest describes a single ffmpeg run. Exactly one of CRF or
// VideoBitrateK drives rate control; VideoBitrateK wins when both are set.
type EncodeRequest struct {
	InputPath     string
	OutputPath    string
	Codec         config.Codec
	CRF           int
	VideoBitrateK int
	ScaleWidth    int
	AudioBitrateK int
	// Duration of the input in seconds. Zero means take it from ffmpeg's
	// own stream header.
	Duration float64
}

type ProgressFunc func(percent float64)

type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) error
}

type FFmpeg struct {
	Path string
}

const stderrTailLines = 6

func (f FFmpeg) binary() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func BuildArgs(req EncodeRequest) []string {
	args := []string{"-y", "-hide_banner", "-i", req.InputPath, "-threads", "0"}
	if vf := util.ScaleFilter(req.ScaleWidth); vf != "" {
		args = append(args, "-vf", vf)
	}

	args = append(args, "-c:v", req.Codec.Encoder)
	args = append(args, req.Codec.SpeedArgs...)
	if req.VideoBitrateK > 0 {
		rate := strconv.Itoa(req.VideoBitrateK) + "k"
		args = append(args, "-b:v", rate, "-maxrate", rate, "-bufsize", strconv.Itoa(req.VideoBitrateK*2)+"k")
	} else {
		args = append(args, "-crf", strconv.Itoa(req.CRF))
		if req.Codec.ConstantQuality {
			args = append(args, "-b:v", "0")
		}
	}
	args = append(args, "-pix_fmt", "yuv420p")

	audioK := req.AudioBitrateK
	if audioK <= 0 {
		audioK = config.AudioBitrateK
	}
	args = append(args, "-c:a", req.Codec.AudioCodec, "-b:a", strconv.Itoa(audioK)+"k")
	if req.Codec.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, req.OutputPath)
}

func (f FFmpeg) Encode(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, f.binary(), BuildArgs(req)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &EncodeError{ExitCode: -1, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &EncodeError{ExitCode: -1, Err: err}
	}

	tracker := newProgressTracker(req.Duration)
	tracker.consume(stderr, onProgress)
	err = cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return ErrEncodeCancelled
		}
		return &EncodeError{ExitCode: -1, Detail: "encode timed out", Err: ctxErr}
	}
	if err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return &EncodeError{ExitCode: code, Detail: tracker.tail(), Err: err}
	}
	return nil
}

// progressTracker turns ffmpeg's stderr into percentages and keeps the last
// few diagnostic lines for error reports.
type progressTracker struct {
	duration float64
	lines    []string
}

func newProgressTracker(duration float64) *progressTracker {
	return &progressTracker{duration: duration}
}

func (t *progressTracker) consume(r io.Reader, onProgress ProgressFunc) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLinesCR)
	for sc.Scan() {
		if pct, ok := t.feed(sc.Text()); ok && onProgress != nil {
			onProgress(pct)
		}
	}
	// ffmpeg blocks on a full pipe, so keep reading past a scanner error
	if err := sc.Err(); err != nil {
		t.feed("stderr: " + err.Error())
		io.Copy(io.Discard, r)
	}
}

func (t *progressTracker) feed(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	if t.duration <= 0 {
		if d, ok := util.ParseDuration(line); ok && d > 0 {
			t.duration = d
			return 0, false
		}
	}
	if current, ok := util.ParseProgressTime(line); ok {
		if t.duration <= 0 {
			return 0, false
		}
		pct := current / t.duration * 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return pct, true
	}

	t.lines = append(t.lines, line)
	if len(t.lines) > stderrTailLines {
		t.lines = t.lines[len(t.lines)-stderrTailLines:]
	}
	return 0, false
}

func (t *progressTracker) tail() string {
	return strings.Join(t.lines, "\n")
}

// scanLinesCR splits on either \n or \r, since ffmpeg rewrites its stats
// line in place with carriage returns.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (r EncodeRequest) String() string {
	if r.VideoBitrateK > 0 {
		return fmt.Sprintf("%s %dk scale<=%d", r.Codec.Name, r.VideoBitrateK, r.ScaleWidth)
	}
	return fmt.Sprintf("%s crf %d scale<=%d", r.Codec.Name, r.CRF, r.ScaleWidth)
}
