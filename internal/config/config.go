package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var Version = "dev"

var (
	Port    string
	EnvMode string

	DataDir   string
	UploadDir string
	OutputDir string

	FFmpegPath  string
	FFprobePath string

	MaxUploadSize    int64
	JobRetention     time.Duration
	CleanupInterval  time.Duration
	EncodeTimeout    time.Duration
	MaxActiveEncodes int
	DiskSpaceMinGB   float64

	RateLimitWindow time.Duration
	RateLimitMax    int

	DiscordWebhookURL string
	DiscordPingUserID string
	DiscordAlerts     bool
)

const (
	AudioBitrateK       = 128
	DefaultTargetSizeMB = 10
	MinVideoBitrateK    = 100
	TargetScaleWidth    = 1280
	DefaultCRF          = 28
)

type Preset struct {
	ScaleWidth int `json:"scaleWidth"`
	CRF        int `json:"crf"`
}

var Presets = map[string]Preset{
	"high":     {ScaleWidth: 1920, CRF: 23},
	"medium":   {ScaleWidth: 1280, CRF: 28},
	"low":      {ScaleWidth: 854, CRF: 32},
	"very-low": {ScaleWidth: 640, CRF: 35},
}

// Codec maps a client-facing codec name to the ffmpeg encoder and the
// container it is muxed into.
type Codec struct {
	Name       string   `json:"name"`
	Encoder    string   `json:"encoder"`
	Container  string   `json:"container"`
	MimeType   string   `json:"mimeType"`
	AudioCodec string   `json:"audioCodec"`
	SpeedArgs  []string `json:"-"`
	MaxCRF     int      `json:"maxCrf"`
	// ConstantQuality encoders need an explicit zero bitrate for CRF to apply.
	ConstantQuality bool `json:"-"`
	FastStart       bool `json:"-"`
}

var Codecs = map[string]Codec{
	"h264": {
		Name:       "h264",
		Encoder:    "libx264",
		Container:  "mp4",
		MimeType:   "video/mp4",
		AudioCodec: "aac",
		SpeedArgs:  []string{"-preset", "fast"},
		MaxCRF:     51,
		FastStart:  true,
	},
	"vp9": {
		Name:            "vp9",
		Encoder:         "libvpx-vp9",
		Container:       "webm",
		MimeType:        "video/webm",
		AudioCodec:      "libopus",
		SpeedArgs:       []string{"-speed", "2"},
		MaxCRF:          63,
		ConstantQuality: true,
	},
}

const DefaultCodec = "h264"

var AllowedModes = []string{"quality", "target"}

func Load() {
	Port = envOrDefault("PORT", "3000")
	EnvMode = envOrDefault("NODE_ENV", "development")

	DataDir = envOrDefault("DATA_DIR", "/var/tmp/squish")
	UploadDir = filepath.Join(DataDir, "uploads")
	OutputDir = filepath.Join(DataDir, "outputs")

	FFmpegPath = envOrDefault("FFMPEG_PATH", "ffmpeg")
	FFprobePath = envOrDefault("FFPROBE_PATH", "ffprobe")

	MaxUploadSize = int64(envInt("MAX_UPLOAD_MB", 500)) * 1024 * 1024
	JobRetention = time.Duration(envInt("JOB_RETENTION_MIN", 60)) * time.Minute
	CleanupInterval = time.Duration(envInt("CLEANUP_INTERVAL_MIN", 60)) * time.Minute
	EncodeTimeout = time.Duration(envInt("ENCODE_TIMEOUT_MIN", 120)) * time.Minute
	MaxActiveEncodes = envInt("MAX_ACTIVE_ENCODES", 2)
	DiskSpaceMinGB = float64(envInt("DISK_SPACE_MIN_GB", 2))

	RateLimitWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second
	RateLimitMax = envInt("RATE_LIMIT_MAX", 120)

	if JobRetention <= 0 {
		log.Println("[WARN] JOB_RETENTION_MIN must be positive, using 60")
		JobRetention = time.Hour
	}
	if CleanupInterval <= 0 {
		log.Println("[WARN] CLEANUP_INTERVAL_MIN must be positive, using 60")
		CleanupInterval = time.Hour
	}
	if MaxActiveEncodes < 1 {
		MaxActiveEncodes = 1
	}

	DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	DiscordPingUserID = os.Getenv("DISCORD_PING_USER_ID")
	DiscordAlerts = DiscordWebhookURL != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not a number, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func Contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
