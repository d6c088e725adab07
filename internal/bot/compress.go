package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

const defaultTargetMB = 9

func (b *Bot) handleCompress(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	var attachmentID string
	req := compressRequest{Mode: "target", TargetSize: defaultTargetMB}

	for _, opt := range data.Options {
		switch opt.Name {
		case "file":
			if v, ok := opt.Value.(string); ok {
				attachmentID = v
			}
		case "target_mb":
			req.TargetSize = int(opt.IntValue())
		case "codec":
			req.Codec = opt.StringValue()
		case "preset":
			req.Preset = opt.StringValue()
		}
	}
	if req.Preset != "" {
		req.Mode = "quality"
		req.TargetSize = 0
	}

	attachment, ok := data.Resolved.Attachments[attachmentID]
	if !ok || attachment == nil {
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{errorEmbed("Error", "No file attached")},
			},
		})
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		log.Printf("[Bot] Failed to defer compress response: %v", err)
		return
	}

	go b.processCompress(s, i, attachment, req)
}

func (b *Bot) processCompress(s *discordgo.Session, i *discordgo.InteractionCreate, attachment *discordgo.MessageAttachment, req compressRequest) {
	editEmbed(s, i, progressEmbed("Uploading...", 0, attachment.Filename))

	up, err := b.api.uploadFromURL(attachment.URL, attachment.Filename)
	if err != nil {
		editEmbed(s, i, errorEmbed("Upload Failed", err.Error()))
		return
	}
	log.Printf("[Bot] %s: uploaded %s (%s)", up.JobID, up.Filename, formatSize(up.Size))

	if err := b.api.startCompress(up.JobID, req); err != nil {
		editEmbed(s, i, errorEmbed("Compression Failed", err.Error()))
		return
	}

	status, err := b.pollJob(s, i, up.JobID, attachment.Filename)
	if err != nil {
		editEmbed(s, i, errorEmbed("Compression Failed", err.Error()))
		return
	}

	title := "Compressed"
	if status.OriginalSize > 0 && status.CompressedSize > 0 {
		title = fmt.Sprintf("Compressed (%s → %s)", formatSize(status.OriginalSize), formatSize(status.CompressedSize))
	}

	if status.CompressedSize > 0 && status.CompressedSize <= maxDiscordFileSize {
		fileData, fileName, err := b.api.downloadFile(up.JobID)
		if err == nil {
			if fileName == "" {
				fileName = attachment.Filename
			}
			editWithFile(s, i, successEmbed(title, fileName, int64(len(fileData)), ""), fileName, fileData)
			return
		}
		log.Printf("[Bot] %s: download failed: %v", up.JobID, err)
	}

	editEmbed(s, i, successEmbed(title, attachment.Filename, status.CompressedSize, b.api.getDownloadURL(up.JobID)))
}
