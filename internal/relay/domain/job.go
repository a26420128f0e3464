package domain

import "fmt"

// JobRequest is the payload submitted to the processing backend for one video
// attachment. Constructed per attachment and not retained after submission.
type JobRequest struct {
	TenantID       string `json:"tenantId"`
	ChannelID      string `json:"destinationChannelId"`
	RequesterID    string `json:"requesterId"`
	SourceURL      string `json:"sourceUrl"`
	SourceFileName string `json:"sourceFileName"`
	CallbackQueue  string `json:"callbackQueue"`
}

// JobResult is the completion event the backend publishes onto the tenant's
// callback queue.
type JobResult struct {
	TenantID         string `json:"tenantId"`
	ChannelID        string `json:"destinationChannelId"`
	JobID            string `json:"jobId"`
	Success          bool   `json:"success"`
	ProcessedFileURL string `json:"processedFileUrl,omitempty"`
	Caption          string `json:"caption,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
}

// Validate checks structural requirements: a destination channel is always
// required, a successful result must carry the processed file URL and a failed
// one must carry an error message.
func (r *JobResult) Validate() error {
	if r.ChannelID == "" {
		return fmt.Errorf("%w: missing destinationChannelId", ErrMalformedResult)
	}
	if r.Success && r.ProcessedFileURL == "" {
		return fmt.Errorf("%w: missing processedFileUrl on successful result", ErrMalformedResult)
	}
	if !r.Success && r.ErrorMessage == "" {
		return fmt.Errorf("%w: missing errorMessage on failed result", ErrMalformedResult)
	}
	return nil
}
