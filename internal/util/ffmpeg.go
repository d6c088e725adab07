package util

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var ErrInvalidDuration = errors.New("duration must be greater than zero")

var (
	ffmpegTimeRegex     = regexp.MustCompile(`time=(\d+):(\d+):(\d+\.?\d*)`)
	ffmpegDurationRegex = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+\.?\d*)`)
)

// CalculateTargetBitrate returns the video bitrate in kbps that fits the
// requested output size once the audio track's share has been reserved.
// The result never drops below minBitrateK.
func CalculateTargetBitrate(targetMB, durationSec float64, audioBitrateK, minBitrateK int) (int, error) {
	if math.IsNaN(durationSec) || math.IsInf(durationSec, 0) || durationSec <= 0 {
		return 0, ErrInvalidDuration
	}
	targetKB := targetMB * 1024
	audioKB := float64(audioBitrateK) / 8 * durationSec
	videoKB := targetKB - audioKB
	videoBitrateK := int(math.Floor(videoKB * 8 / durationSec))
	if videoBitrateK < minBitrateK {
		return minBitrateK, nil
	}
	return videoBitrateK, nil
}

// ScaleFilter caps the output width without upscaling smaller sources.
func ScaleFilter(maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	return fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)
}

// ParseProgressTime extracts the encoded timestamp from an ffmpeg stats line.
func ParseProgressTime(line string) (float64, bool) {
	m := ffmpegTimeRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return hmsToSeconds(m[1], m[2], m[3]), true
}

// ParseDuration extracts the input duration from ffmpeg's stream header.
func ParseDuration(line string) (float64, bool) {
	m := ffmpegDurationRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return hmsToSeconds(m[1], m[2], m[3]), true
}

func hmsToSeconds(h, m, s string) float64 {
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	secs, _ := strconv.ParseFloat(s, 64)
	return float64(hours)*3600 + float64(mins)*60 + secs
}
