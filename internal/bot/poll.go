package bot

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord's upload cap for bots without boosts.
const maxDiscordFileSize = 10 * 1024 * 1024

const maxPollAttempts = 600

func (b *Bot) pollJob(s *discordgo.Session, i *discordgo.InteractionCreate, jobID, name string) (*jobStatusResponse, error) {
	lastProgress := -1

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		status, err := b.api.checkStatus(jobID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			return status, nil
		case "error":
			msg := status.Error
			if msg == "" {
				msg = "Compression failed"
			}
			return nil, fmt.Errorf("%s", msg)
		}

		if status.Progress != lastProgress {
			lastProgress = status.Progress
			stage := "Queued"
			if status.Status == "compressing" {
				stage = "Compressing"
			}
			editEmbed(s, i, progressEmbed(stage+"...", float64(status.Progress), name))
		}

		time.Sleep(pollDelay(attempt))
	}

	return nil, fmt.Errorf("timed out waiting for job to complete")
}

func pollDelay(attempt int) time.Duration {
	if attempt < 5 {
		return 500 * time.Millisecond
	}
	if attempt < 15 {
		return 1500 * time.Millisecond
	}
	return 3 * time.Second
}

func editEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	})
}

func editWithFile(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, filename string, data []byte) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
		Files: []*discordgo.File{
			{
				Name:   filename,
				Reader: bytes.NewReader(data),
			},
		},
	})
}
