package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	// DefaultMaxFileSize matches the destination platform's upload ceiling.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultDownloadTimeout bounds one streaming download end to end.
	DefaultDownloadTimeout = 30 * time.Second
)

// Manager streams processed files to local temp storage, validates them and
// guarantees cleanup of every temp file it creates.
type Manager struct {
	httpClient *http.Client
	maxBytes   int64
	tempDir    string
	logger     *slog.Logger
}

// NewManager creates a new Manager instance. A zero maxBytes or timeout falls
// back to the defaults; an empty tempDir uses the system temp directory.
func NewManager(maxBytes int64, timeout time.Duration, tempDir string, logger *slog.Logger) *Manager {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Manager{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// Download streams the source URL into a fresh temp file and returns its path.
// The caller owns the file and must release it through Cleanup on every exit
// path. The stream is capped one byte past the size ceiling so an oversized
// source cannot fill the disk; Validate reports the actual violation.
func (m *Manager) Download(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", &DownloadError{URL: sourceURL, Err: err}
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &DownloadError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &DownloadError{URL: sourceURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	f, err := os.CreateTemp(m.tempDir, "relay-*.tmp")
	if err != nil {
		return "", &DownloadError{URL: sourceURL, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}

	written, err := io.Copy(f, io.LimitReader(resp.Body, m.maxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		m.Cleanup(f.Name())
		return "", &DownloadError{URL: sourceURL, Err: err}
	}

	m.logger.Debug("Downloaded file",
		slog.String("url", sourceURL),
		slog.String("path", f.Name()),
		slog.Int64("bytes", written),
	)

	return f.Name(), nil
}

// Validate checks the downloaded file against the size constraints and
// returns its size in bytes.
func (m *Manager) Validate(localPath string) (int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat downloaded file: %w", err)
	}

	size := info.Size()
	if size == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyFile, localPath)
	}
	if size > m.maxBytes {
		return size, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, m.maxBytes)
	}

	return size, nil
}

// SafeName derives an upload file name from the source URL path, restricted
// to a safe character set, with a timestamp fallback when the URL yields no
// usable name. The .mp4 suffix is always appended for the destination player.
func (m *Manager) SafeName(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return fallbackName()
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return fallbackName()
	}

	sanitized := sanitize(base)
	if strings.Trim(sanitized, "._-") == "" {
		return fallbackName()
	}

	return sanitized + ".mp4"
}

// Cleanup removes the temp file. Its failure is logged and never propagated:
// cleanup must not mask the error that led here.
func (m *Manager) Cleanup(localPath string) {
	if localPath == "" {
		return
	}

	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove temp file",
			slog.String("path", localPath),
			slog.Any("error", err),
		)
		return
	}

	m.logger.Debug("Temp file removed",
		slog.String("path", localPath),
	)
}

func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func fallbackName() string {
	return fmt.Sprintf("video_%d.mp4", time.Now().UnixMilli())
}
