package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

const (
	colorProgress = 0x5865F2
	colorSuccess  = 0x57F287
	colorError    = 0xED4245
)

func progressBar(percent float64) string {
	filled := int(percent / 10)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("▓", filled) + strings.Repeat("░", 10-filled)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "Unknown"
	}
	return humanize.IBytes(uint64(bytes))
}

func progressEmbed(title string, progress float64, message string) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("%s %d%%", progressBar(progress), int(progress))
	if message != "" {
		desc += "\n" + message
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       colorProgress,
		Footer:      &discordgo.MessageEmbedFooter{Text: "squish"},
	}
}

func successEmbed(title, filename string, fileSize int64, downloadURL string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{}
	if filename != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "File", Value: filename, Inline: true,
		})
	}
	if fileSize > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Size", Value: formatSize(fileSize), Inline: true,
		})
	}
	if downloadURL != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Download", Value: fmt.Sprintf("[Click here](%s)", downloadURL),
		})
	}

	return &discordgo.MessageEmbed{
		Title:  title,
		Color:  colorSuccess,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{Text: "squish"},
	}
}

func errorEmbed(title, message string) *discordgo.MessageEmbed {
	if message == "" {
		message = "Something went wrong"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       colorError,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Try a smaller target or a different codec"},
	}
}
