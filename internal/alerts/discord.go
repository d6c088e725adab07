package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/services"
	"github.com/dustin/go-humanize"
)

var (
	mu                sync.Mutex
	categoryCooldowns = make(map[string]time.Time)

	client = &http.Client{Timeout: 10 * time.Second}
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorCrit   = 0xFF0000
	colorGreen  = 0x2ECC71
)

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp"`
	Footer      *footer `json:"footer,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type footer struct {
	Text string `json:"text"`
}

type payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

func send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields map[string]string) {
	if !config.DiscordAlerts || config.DiscordWebhookURL == "" {
		return
	}

	mu.Lock()
	now := time.Now()
	if cooldown > 0 {
		if last, ok := categoryCooldowns[category]; ok && now.Sub(last) < cooldown {
			mu.Unlock()
			return
		}
	}
	categoryCooldowns[category] = now
	mu.Unlock()

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var embedFields []field
	for _, k := range names {
		v := fields[k]
		if v == "" {
			continue
		}
		embedFields = append(embedFields, field{Name: k, Value: truncate(v, 1024), Inline: true})
	}

	p := payload{
		Embeds: []embed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      embedFields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &footer{Text: "squish"},
		}},
	}

	if ping && config.DiscordPingUserID != "" {
		p.Content = fmt.Sprintf("<@%s>", config.DiscordPingUserID)
	}

	body, _ := json.Marshal(p)
	url := config.DiscordWebhookURL
	go func() {
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("[Discord] send failed: %v", err)
			return
		}
		resp.Body.Close()
	}()
}

func ServerStarted() {
	send("server-start", 0, false, colorGreen, "Server Started", fmt.Sprintf("squish %s listening on :%s", config.Version, config.Port), nil)
}

func ServerStopping() {
	send("server-stop", 0, false, colorOrange, "Server Stopping", "squish is shutting down", nil)
}

func CompressionFailed(jobID, codec, mode string, err error) {
	send("compression", 5*time.Second, true, colorRed, "Compression Failed", err.Error(), map[string]string{
		"Job":   jobID,
		"Codec": codec,
		"Mode":  mode,
		"Error": truncate(err.Error(), 500),
	})
}

// JobEvicted reports a job that was still encoding when its retention ran out.
func JobEvicted(jobID string, progress int, age time.Duration) {
	send("eviction", 30*time.Second, false, colorOrange, "In-flight Job Evicted",
		"A job was still compressing when its retention expired and was cancelled.", map[string]string{
			"Job":      jobID,
			"Progress": fmt.Sprintf("%d%%", progress),
			"Age":      age.Round(time.Second).String(),
		})
}

func DiskSpaceLow(availGB, minGB float64) {
	send("disk", 10*time.Minute, true, colorCrit, "Disk Space Low",
		fmt.Sprintf("Uploads are being rejected: %.1f GB free, %.0f GB required", availGB, minGB), nil)
}

// Observer forwards job lifecycle events that need a human to the webhook.
type Observer struct{}

func (Observer) JobStarted(services.Job) {}

func (Observer) JobFinished(job services.Job, elapsed time.Duration) {
	if job.Status != services.StatusError || job.Error == "cancelled" {
		return
	}
	CompressionFailed(job.ID, job.Codec, job.Mode, fmt.Errorf("%s (after %s, input %s)",
		job.Error, elapsed.Round(time.Second), humanize.IBytes(uint64(job.OriginalSize))))
}

func (Observer) JobEvicted(job services.Job) {
	if job.Status != services.StatusCompressing {
		return
	}
	JobEvicted(job.ID, job.Progress, time.Since(job.CreatedAt))
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
