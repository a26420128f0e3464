package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jhpark-dev/video-relay/internal/relay/domain"
	"github.com/jhpark-dev/video-relay/shared/rabbitmq"
)

// Submitter sends new job requests to the processing backend over HTTP. It
// computes the tenant's callback queue name with the same formula the broker
// gateway uses for queue provisioning.
type Submitter struct {
	baseURL     string
	queuePrefix string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewSubmitter creates a new Submitter instance
func NewSubmitter(baseURL, queuePrefix string, timeout time.Duration, logger *slog.Logger) *Submitter {
	return &Submitter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		queuePrefix: queuePrefix,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Submit posts the job request to the backend. Any transport error, timeout or
// non-2xx response yields a SubmissionError; retrying is left to the caller.
func (s *Submitter) Submit(ctx context.Context, req *domain.JobRequest) error {
	req.CallbackQueue = rabbitmq.QueueName(s.queuePrefix, req.TenantID)

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/video", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build job request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return &domain.SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &domain.SubmissionError{StatusCode: resp.StatusCode}
	}

	s.logger.Info("Job submitted to backend",
		slog.String("tenant_id", req.TenantID),
		slog.String("callback_queue", req.CallbackQueue),
		slog.String("source_file", req.SourceFileName),
	)

	return nil
}
