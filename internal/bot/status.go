package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	statusCheckInterval = 60 * time.Second
	statusConfigFile    = "status-config.json"
)

type statusConfig struct {
	GuildChannels map[string]string `json:"guildChannels"` // guildID -> channelID
}

type siteStatus struct {
	up      bool
	code    int
	version string
	active  int
	pending int
}

type statusMonitor struct {
	session   *discordgo.Session
	healthURL string
	config    statusConfig
	mu        sync.RWMutex
	lastUp    *bool
	client    *http.Client
	cancel    context.CancelFunc
}

func newStatusMonitor(s *discordgo.Session, healthURL string) *statusMonitor {
	m := &statusMonitor{
		session:   s,
		healthURL: healthURL,
		config:    statusConfig{GuildChannels: make(map[string]string)},
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	m.loadConfig()
	return m
}

func (m *statusMonitor) loadConfig() {
	data, err := os.ReadFile(statusConfigFile)
	if err != nil {
		return
	}
	json.Unmarshal(data, &m.config)
	if m.config.GuildChannels == nil {
		m.config.GuildChannels = make(map[string]string)
	}
}

func (m *statusMonitor) saveConfig() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.config, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(statusConfigFile, data, 0644)
}

func (m *statusMonitor) setChannel(guildID, channelID string) error {
	m.mu.Lock()
	m.config.GuildChannels[guildID] = channelID
	m.mu.Unlock()
	return m.saveConfig()
}

func (m *statusMonitor) checkHealth() siteStatus {
	resp, err := m.client.Get(m.healthURL)
	if err != nil {
		return siteStatus{}
	}
	defer resp.Body.Close()

	st := siteStatus{up: resp.StatusCode == http.StatusOK, code: resp.StatusCode}
	var body struct {
		Version string `json:"version"`
		Active  int    `json:"active"`
		Pending int    `json:"pending"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil {
		st.version = body.Version
		st.active = body.Active
		st.pending = body.Pending
	}
	return st
}

func (m *statusMonitor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go func() {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
		m.tick()

		ticker := time.NewTicker(statusCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("[Status] Monitor started, checking %s every %s", m.healthURL, statusCheckInterval)
}

func (m *statusMonitor) stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *statusMonitor) tick() {
	status := m.checkHealth()

	if m.lastUp == nil {
		m.lastUp = &status.up
		state := "UP"
		if !status.up {
			state = "DOWN"
		}
		log.Printf("[Status] Initial state: %s (HTTP %d)", state, status.code)
		return
	}

	wasUp := *m.lastUp
	if status.up == wasUp {
		return
	}

	m.lastUp = &status.up
	log.Printf("[Status] State changed: up=%v -> up=%v", wasUp, status.up)
	m.broadcast(status)
}

func (m *statusMonitor) broadcast(status siteStatus) {
	m.mu.RLock()
	channels := make(map[string]string, len(m.config.GuildChannels))
	for k, v := range m.config.GuildChannels {
		channels[k] = v
	}
	m.mu.RUnlock()

	if len(channels) == 0 {
		return
	}

	embed := statusEmbed(status)

	for guildID, channelID := range channels {
		_, err := m.session.ChannelMessageSendEmbed(channelID, embed)
		if err != nil {
			log.Printf("[Status] Failed to send to guild %s channel %s: %v", guildID, channelID, err)
		}
	}
}

func (b *Bot) handleSetStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "This command can only be used in a server.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}

	channelID := i.ChannelID
	if err := b.status.setChannel(i.GuildID, channelID); err != nil {
		log.Printf("[Status] Failed to save config: %v", err)
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "Failed to save status channel config.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Status channel set",
					Description: fmt.Sprintf("Status updates will be posted to <#%s>.\n\nYou'll be notified when the squish server goes down or comes back up.", channelID),
					Color:       colorSuccess,
					Footer:      &discordgo.MessageEmbedFooter{Text: "squish status"},
				},
			},
		},
	})
}

func statusEmbed(status siteStatus) *discordgo.MessageEmbed {
	if status.up {
		desc := "All systems operational."
		if status.version != "" {
			desc += fmt.Sprintf("\nVersion %s, %d encoding, %d queued.", status.version, status.active, status.pending)
		}
		return &discordgo.MessageEmbed{
			Title:       "squish is back online",
			Description: desc,
			Color:       colorSuccess,
			Timestamp:   time.Now().Format(time.RFC3339),
			Footer:      &discordgo.MessageEmbedFooter{Text: "squish status"},
		}
	}

	desc := "squish appears to be down."
	if status.code > 0 {
		desc += fmt.Sprintf(" (HTTP %d)", status.code)
	}

	return &discordgo.MessageEmbed{
		Title:       "squish is down",
		Description: desc,
		Color:       colorError,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "squish status"},
	}
}
