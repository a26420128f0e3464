package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhpark-dev/video-relay/internal/relay/domain"
)

func TestSubmit(t *testing.T) {
	var gotPath string
	var gotBody domain.JobRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := NewSubmitter(server.URL, "video.result", 10*time.Second, slog.Default())

	req := &domain.JobRequest{
		TenantID:       "42",
		ChannelID:      "chan-1",
		RequesterID:    "user-7",
		SourceURL:      "http://x/video.mp4",
		SourceFileName: "video.mp4",
	}

	require.NoError(t, s.Submit(context.Background(), req))

	assert.Equal(t, "/video", gotPath)
	assert.Equal(t, "42", gotBody.TenantID)
	assert.Equal(t, "chan-1", gotBody.ChannelID)
	assert.Equal(t, "user-7", gotBody.RequesterID)
	assert.Equal(t, "http://x/video.mp4", gotBody.SourceURL)
	assert.Equal(t, "video.result.42.queue", gotBody.CallbackQueue,
		"callback queue must match the broker gateway's naming formula")
}

func TestSubmit_BackendRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewSubmitter(server.URL, "video.result", 10*time.Second, slog.Default())

	err := s.Submit(context.Background(), &domain.JobRequest{TenantID: "42"})
	require.Error(t, err)

	var submissionErr *domain.SubmissionError
	require.ErrorAs(t, err, &submissionErr)
	assert.Equal(t, http.StatusInternalServerError, submissionErr.StatusCode)
}

func TestSubmit_BackendUnreachable(t *testing.T) {
	s := NewSubmitter("http://127.0.0.1:1", "video.result", time.Second, slog.Default())

	err := s.Submit(context.Background(), &domain.JobRequest{TenantID: "42"})
	require.Error(t, err)

	var submissionErr *domain.SubmissionError
	assert.ErrorAs(t, err, &submissionErr)
}

func TestSubmit_Timeout(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise server.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	s := NewSubmitter(server.URL, "video.result", 100*time.Millisecond, slog.Default())

	err := s.Submit(context.Background(), &domain.JobRequest{TenantID: "42"})
	require.Error(t, err)
	<-started

	var submissionErr *domain.SubmissionError
	assert.ErrorAs(t, err, &submissionErr)
}
