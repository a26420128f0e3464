package discord

import (
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"

	"github.com/jhpark-dev/video-relay/internal/relay/domain"
)

// Gateway delivers processed files and error notices to Discord channels.
type Gateway struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// NewGateway creates a new Gateway instance
func NewGateway(session *discordgo.Session, logger *slog.Logger) *Gateway {
	return &Gateway{
		session: session,
		logger:  logger,
	}
}

// Deliver uploads the finished artifact with its caption to the destination
// channel.
func (g *Gateway) Deliver(channelID, localPath, fileName, caption string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &domain.DeliveryError{ChannelID: channelID, Err: err}
	}
	defer f.Close()

	if _, err := g.session.ChannelFileSendWithMessage(channelID, caption, fileName, f); err != nil {
		return &domain.DeliveryError{ChannelID: channelID, Err: err}
	}

	g.logger.Info("File delivered to channel",
		slog.String("channel_id", channelID),
		slog.String("file_name", fileName),
	)

	return nil
}

// NotifyError posts a human-readable error notice to the channel. Best-effort:
// this is itself an error-reporting path, so its own failure is logged and
// swallowed.
func (g *Gateway) NotifyError(channelID, message string) {
	if _, err := g.session.ChannelMessageSend(channelID, message); err != nil {
		g.logger.Error("Failed to post error notice",
			slog.String("channel_id", channelID),
			slog.Any("error", err),
		)
	}
}
