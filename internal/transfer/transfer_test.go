package transfer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, maxBytes int64) *Manager {
	t.Helper()
	return NewManager(maxBytes, 5*time.Second, t.TempDir(), slog.Default())
}

func TestDownload(t *testing.T) {
	content := strings.Repeat("x", 500000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer server.Close()

	m := newTestManager(t, DefaultMaxFileSize)

	path, err := m.Download(context.Background(), server.URL+"/out.mp4")
	require.NoError(t, err)
	defer m.Cleanup(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 500000)
}

func TestDownload_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := newTestManager(t, DefaultMaxFileSize)

	_, err := m.Download(context.Background(), server.URL+"/missing.mp4")
	require.Error(t, err)

	var downloadErr *DownloadError
	require.ErrorAs(t, err, &downloadErr)
	assert.Contains(t, downloadErr.Error(), "unexpected status 404")
}

func TestDownload_Unreachable(t *testing.T) {
	m := newTestManager(t, DefaultMaxFileSize)

	_, err := m.Download(context.Background(), "http://127.0.0.1:1/out.mp4")
	require.Error(t, err)

	var downloadErr *DownloadError
	assert.ErrorAs(t, err, &downloadErr)
}

func TestValidate(t *testing.T) {
	m := newTestManager(t, 1024)

	tests := []struct {
		name     string
		content  []byte
		wantErr  error
		wantSize int64
	}{
		{
			name:     "file within limit",
			content:  []byte(strings.Repeat("a", 512)),
			wantSize: 512,
		},
		{
			name:    "empty file",
			content: []byte{},
			wantErr: ErrEmptyFile,
		},
		{
			name:    "file over limit",
			content: []byte(strings.Repeat("a", 2048)),
			wantErr: ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := os.CreateTemp(t.TempDir(), "validate-*.tmp")
			require.NoError(t, err)
			_, err = f.Write(tt.content)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			size, err := m.Validate(f.Name())

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSize, size)
			}
		})
	}
}

func TestValidate_MissingFile(t *testing.T) {
	m := newTestManager(t, 1024)

	_, err := m.Validate("/nonexistent/file.tmp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}

func TestSafeName(t *testing.T) {
	m := newTestManager(t, 1024)

	tests := []struct {
		name      string
		sourceURL string
		want      string
	}{
		{
			name:      "plain file name",
			sourceURL: "http://x/out.mp4",
			want:      "out.mp4.mp4",
		},
		{
			name:      "query string ignored",
			sourceURL: "https://cdn.example.com/videos/clip.webm?token=abc&ex=123",
			want:      "clip.webm.mp4",
		},
		{
			name:      "unsafe characters replaced",
			sourceURL: "http://x/my%20clip%20(1).mp4",
			want:      "my_clip__1_.mp4.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.SafeName(tt.sourceURL))
		})
	}
}

func TestSafeName_Fallback(t *testing.T) {
	m := newTestManager(t, 1024)

	for _, sourceURL := range []string{"http://x/", "http://x", "://bad-url"} {
		name := m.SafeName(sourceURL)
		assert.True(t, strings.HasPrefix(name, "video_"), "got %q for %q", name, sourceURL)
		assert.True(t, strings.HasSuffix(name, ".mp4"))
	}
}

func TestCleanup(t *testing.T) {
	m := newTestManager(t, 1024)

	f, err := os.CreateTemp(t.TempDir(), "cleanup-*.tmp")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m.Cleanup(f.Name())

	_, err = os.Stat(f.Name())
	assert.True(t, os.IsNotExist(err))

	// Cleaning an already-removed file must not panic or error out.
	m.Cleanup(f.Name())
	m.Cleanup("")
}
