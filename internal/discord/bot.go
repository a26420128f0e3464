package discord

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jhpark-dev/video-relay/internal/relay/domain"
	"github.com/jhpark-dev/video-relay/internal/tenant"
)

// JobSubmitter sends a new job request to the processing backend.
type JobSubmitter interface {
	Submit(ctx context.Context, req *domain.JobRequest) error
}

// QueueProvisioner makes a tenant's callback queue live while the process is
// running. Wired to the broker gateway's AddTenant in main.
type QueueProvisioner interface {
	Provision(ctx context.Context, tenantID string) error
}

// ProvisionerFunc adapts a function to the QueueProvisioner interface.
type ProvisionerFunc func(ctx context.Context, tenantID string) error

func (f ProvisionerFunc) Provision(ctx context.Context, tenantID string) error {
	return f(ctx, tenantID)
}

// Config holds bot dependencies
type Config struct {
	Session       *discordgo.Session
	Store         tenant.Store
	Submitter     JobSubmitter
	Provisioner   QueueProvisioner
	CommandPrefix string
	Logger        *slog.Logger
}

// Bot handles the chat-platform command surface: tenant provisioning via the
// setup command and video attachment intake in configured channels.
type Bot struct {
	session       *discordgo.Session
	store         tenant.Store
	submitter     JobSubmitter
	provisioner   QueueProvisioner
	commandPrefix string
	logger        *slog.Logger
}

// NewBot creates a new Bot instance
func NewBot(cfg *Config) *Bot {
	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}

	return &Bot{
		session:       cfg.Session,
		store:         cfg.Store,
		submitter:     cfg.Submitter,
		provisioner:   cfg.Provisioner,
		commandPrefix: prefix,
		logger:        cfg.Logger,
	}
}

// Start registers the message handler and opens the gateway connection.
func (b *Bot) Start() error {
	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	b.session.AddHandler(b.onMessageCreate)

	return b.session.Open()
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ctx := context.Background()

	if strings.HasPrefix(m.Content, b.commandPrefix) {
		b.handleCommand(ctx, m)
		return
	}

	b.handleAttachment(ctx, m)
}

func (b *Bot) handleCommand(ctx context.Context, m *discordgo.MessageCreate) {
	args := strings.Fields(strings.TrimPrefix(m.Content, b.commandPrefix))
	if len(args) == 0 {
		return
	}

	switch strings.ToLower(args[0]) {
	case "setup":
		b.handleSetup(ctx, m)
	}
}

// handleSetup provisions the invoking guild as a tenant with the current
// channel as destination, and binds its callback queue live.
func (b *Bot) handleSetup(ctx context.Context, m *discordgo.MessageCreate) {
	if !isAdmin(m) {
		b.reply(m, "This command requires administrator permissions.")
		return
	}

	if err := b.store.Set(ctx, m.GuildID, m.ChannelID); err != nil {
		b.logger.Error("Failed to save tenant destination",
			slog.String("tenant_id", m.GuildID),
			slog.Any("error", err),
		)
		b.reply(m, "Could not save the channel configuration. Please try again.")
		return
	}

	if err := b.provisioner.Provision(ctx, m.GuildID); err != nil {
		b.logger.Error("Failed to provision tenant queue",
			slog.String("tenant_id", m.GuildID),
			slog.Any("error", err),
		)
		b.reply(m, "Channel saved, but result delivery could not be set up. Please run setup again.")
		return
	}

	b.logger.Info("Tenant provisioned",
		slog.String("tenant_id", m.GuildID),
		slog.String("channel_id", m.ChannelID),
	)

	b.reply(m, "This channel is now the video channel for this server.")
}

// handleAttachment submits the first video attachment posted in a tenant's
// configured channel as a new processing job.
func (b *Bot) handleAttachment(ctx context.Context, m *discordgo.MessageCreate) {
	if m.GuildID == "" {
		return
	}

	configured, err := b.store.IsDestination(ctx, m.GuildID, m.ChannelID)
	if err != nil {
		b.logger.Error("Failed to resolve tenant destination",
			slog.String("tenant_id", m.GuildID),
			slog.Any("error", err),
		)
		return
	}
	if !configured {
		return
	}

	att := firstVideoAttachment(m.Attachments)
	if att == nil {
		return
	}

	req := &domain.JobRequest{
		TenantID:       m.GuildID,
		ChannelID:      m.ChannelID,
		RequesterID:    m.Author.ID,
		SourceURL:      att.URL,
		SourceFileName: att.Filename,
	}

	if err := b.submitter.Submit(ctx, req); err != nil {
		b.logger.Error("Failed to submit job",
			slog.String("tenant_id", m.GuildID),
			slog.String("source_file", att.Filename),
			slog.Any("error", err),
		)
		b.reply(m, "Could not submit your video for processing. Please try again.")
		return
	}

	b.reply(m, "Your video was queued for processing.")
}

// reply posts a message in reply to m. Failures are logged only.
func (b *Bot) reply(m *discordgo.MessageCreate, text string) {
	_, err := b.session.ChannelMessageSendReply(m.ChannelID, text, &discordgo.MessageReference{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	})
	if err != nil {
		b.logger.Error("Failed to send reply",
			slog.String("channel_id", m.ChannelID),
			slog.Any("error", err),
		)
	}
}

func isAdmin(m *discordgo.MessageCreate) bool {
	return m.Member != nil && m.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func firstVideoAttachment(attachments []*discordgo.MessageAttachment) *discordgo.MessageAttachment {
	for _, att := range attachments {
		if att != nil && strings.HasPrefix(att.ContentType, "video/") {
			return att
		}
	}
	return nil
}
