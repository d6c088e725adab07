package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	HasVideo bool
}

type Prober interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// FFprobe inspects media files with the ffprobe binary.
type FFprobe struct {
	Path string
}

func (p FFprobe) binary() string {
	if p.Path == "" {
		return "ffprobe"
	}
	return p.Path
}

func (p FFprobe) Probe(ctx context.Context, path string) (MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.binary(),
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height:format=duration",
		"-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return MediaInfo{}, &ProbeError{Path: path, Err: err}
	}

	info, err := parseProbeOutput(out)
	if err != nil {
		return MediaInfo{}, &ProbeError{Path: path, Err: err}
	}
	return info, nil
}

func parseProbeOutput(out []byte) (MediaInfo, error) {
	var parsed struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info MediaInfo
	for _, s := range parsed.Streams {
		if s.CodecType != "video" || info.HasVideo {
			continue
		}
		info.HasVideo = true
		info.Codec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
	}

	if parsed.Format.Duration != "" && parsed.Format.Duration != "N/A" {
		dur, err := strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return MediaInfo{}, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
		}
		info.Duration = dur
	}
	return info, nil
}

// ProbeDuration returns the media duration in seconds. A missing or
// non-positive duration is a ProbeError wrapping ErrNoDuration.
func ProbeDuration(ctx context.Context, p Prober, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, &ProbeError{Path: path, Err: ErrNoDuration}
	}
	return info.Duration, nil
}
