package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

type Config struct {
	Token     string
	AppID     string
	APIURL    string
	PublicURL string
	HealthURL string
}

type Bot struct {
	session *discordgo.Session
	cfg     Config
	api     *apiClient
	cmdIDs  []string
	status  *statusMonitor
}

func New(cfg Config) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		session: s,
		cfg:     cfg,
		api:     newAPIClient(cfg.APIURL, cfg.PublicURL),
	}

	s.AddHandler(b.handleInteraction)
	s.Identify.Intents = discordgo.IntentsGuilds

	return b, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return err
	}

	log.Printf("Bot logged in as %s", b.session.State.User.Username)

	b.status = newStatusMonitor(b.session, b.cfg.HealthURL)
	b.status.start()

	commands := b.commandDefinitions()
	for _, cmd := range commands {
		created, err := b.session.ApplicationCommandCreate(b.cfg.AppID, "", cmd)
		if err != nil {
			log.Printf("Failed to register command %s: %v", cmd.Name, err)
			continue
		}
		b.cmdIDs = append(b.cmdIDs, created.ID)
		log.Printf("Registered command: /%s", created.Name)
	}

	return nil
}

func (b *Bot) Stop() {
	if b.status != nil {
		b.status.stop()
	}
	for _, id := range b.cmdIDs {
		b.session.ApplicationCommandDelete(b.cfg.AppID, "", id)
	}
	b.session.Close()
}

func (b *Bot) commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "set-status",
			Description:              "Set this channel as the status notification channel",
			DefaultMemberPermissions: &[]int64{discordgo.PermissionManageServer}[0],
			Options:                  []*discordgo.ApplicationCommandOption{},
		},
		{
			Name:        "compress",
			Description: "Compress a video to fit Discord's upload limit",
			IntegrationTypes: &[]discordgo.ApplicationIntegrationType{
				discordgo.ApplicationIntegrationGuildInstall,
				discordgo.ApplicationIntegrationUserInstall,
			},
			Contexts: &[]discordgo.InteractionContextType{
				discordgo.InteractionContextGuild,
				discordgo.InteractionContextBotDM,
				discordgo.InteractionContextPrivateChannel,
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "The video to compress",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "target_mb",
					Description: fmt.Sprintf("Target size in MB (default: %d)", defaultTargetMB),
					Required:    false,
					MinValue:    &[]float64{1}[0],
					MaxValue:    500,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "codec",
					Description: "Output codec",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "H.264 (MP4, plays everywhere)", Value: "h264"},
						{Name: "VP9 (WebM, smaller)", Value: "vp9"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "preset",
					Description: "Compress by quality preset instead of target size",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "High (1080p)", Value: "high"},
						{Name: "Medium (720p)", Value: "medium"},
						{Name: "Low (480p)", Value: "low"},
						{Name: "Very low (360p)", Value: "very-low"},
					},
				},
			},
		},
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()

	switch data.Name {
	case "compress":
		b.handleCompress(s, i)
	case "set-status":
		b.handleSetStatus(s, i)
	}
}
