package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jhpark-dev/video-relay/internal/relay/domain"
	"github.com/jhpark-dev/video-relay/internal/transfer"
)

// FileTransfer is the download/validate/cleanup pipeline for processed files.
type FileTransfer interface {
	Download(ctx context.Context, sourceURL string) (string, error)
	Validate(localPath string) (int64, error)
	SafeName(sourceURL string) string
	Cleanup(localPath string)
}

// OutputGateway delivers artifacts and error notices to destination channels.
// NotifyError is best-effort: implementations log their own failures and never
// return them.
type OutputGateway interface {
	Deliver(channelID, localPath, fileName, caption string) error
	NotifyError(channelID, message string)
}

// Orchestrator is the per-message consumer callback: it decodes a completion
// event, drives the file transfer and delivery, and always acknowledges.
type Orchestrator struct {
	transfer FileTransfer
	output   OutputGateway
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(transfer FileTransfer, output OutputGateway, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		transfer: transfer,
		output:   output,
		logger:   logger,
	}
}

// HandleDelivery processes one broker delivery. The message is acknowledged
// unconditionally as the final step: a result that cannot be decoded or
// relayed can never be reprocessed into a good one, so requeueing it would
// only create a poison-message loop.
func (o *Orchestrator) HandleDelivery(ctx context.Context, delivery amqp.Delivery) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			o.logger.Error("Failed to ACK message",
				slog.Uint64("delivery_tag", delivery.DeliveryTag),
				slog.Any("error", err),
			)
		}
	}()

	var result domain.JobResult
	if err := json.Unmarshal(delivery.Body, &result); err != nil {
		o.logger.Error("Failed to decode job result",
			slog.String("body", string(delivery.Body)),
			slog.Any("error", err),
		)
		return
	}

	if err := result.Validate(); err != nil {
		o.logger.Error("Dropping invalid job result",
			slog.String("tenant_id", result.TenantID),
			slog.String("job_id", result.JobID),
			slog.Any("error", err),
		)
		return
	}

	o.Process(ctx, &result)
}

// Process relays one validated completion event. Every failure degrades to a
// best-effort notification at the destination channel; nothing is retried.
func (o *Orchestrator) Process(ctx context.Context, result *domain.JobResult) {
	log := o.logger.With(
		slog.String("tenant_id", result.TenantID),
		slog.String("job_id", result.JobID),
	)

	if !result.Success {
		log.Info("Job failed upstream",
			slog.String("error_message", result.ErrorMessage),
		)
		o.output.NotifyError(result.ChannelID, fmt.Sprintf("Video processing failed: %s", result.ErrorMessage))
		return
	}

	localPath, err := o.transfer.Download(ctx, result.ProcessedFileURL)
	if err != nil {
		log.Error("Failed to download processed file",
			slog.String("url", result.ProcessedFileURL),
			slog.Any("error", err),
		)
		o.output.NotifyError(result.ChannelID, "Could not fetch the processed video. Please try again.")
		return
	}
	defer o.transfer.Cleanup(localPath)

	size, err := o.transfer.Validate(localPath)
	if err != nil {
		log.Error("Processed file failed validation",
			slog.Any("error", err),
		)
		o.output.NotifyError(result.ChannelID, validationMessage(err))
		return
	}

	caption := result.Caption
	if caption == "" {
		caption = "Your processed video is ready."
	}

	fileName := o.transfer.SafeName(result.ProcessedFileURL)

	if err := o.output.Deliver(result.ChannelID, localPath, fileName, caption); err != nil {
		// The destination channel is the failing collaborator here, so the
		// failure is logged, not reported.
		log.Error("Failed to deliver processed file",
			slog.String("channel_id", result.ChannelID),
			slog.Any("error", err),
		)
		return
	}

	log.Info("Processed file delivered",
		slog.String("channel_id", result.ChannelID),
		slog.String("file_name", fileName),
		slog.Int64("size_bytes", size),
	)
}

// validationMessage maps a validation failure to the user-facing notice.
func validationMessage(err error) string {
	switch {
	case errors.Is(err, transfer.ErrFileTooLarge):
		return "The processed video exceeds the upload size limit."
	case errors.Is(err, transfer.ErrEmptyFile):
		return "The processed video came back empty. Please try again."
	default:
		return "The processed video could not be validated. Please try again."
	}
}
