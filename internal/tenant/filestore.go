package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// FileStore persists the tenant → channel mapping as a single JSON document,
// rewritten in full on every mutation. In-memory and persisted state are
// identical immediately after any successful Set returns.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	tenants map[string]string
}

// NewFileStore loads the store from path. A missing or corrupt document is
// not fatal: the store starts empty (accepting the data-loss risk on
// corruption) and a missing artifact is replaced with a fresh empty one.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		logger:  logger,
		tenants: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("No tenant config found, creating a fresh one",
			slog.String("path", path),
		)
		if err := s.persistLocked(); err != nil {
			return nil, fmt.Errorf("failed to create tenant config: %w", err)
		}
		return s, nil

	case err != nil:
		s.logger.Error("Failed to read tenant config, starting empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return s, nil
	}

	if err := json.Unmarshal(data, &s.tenants); err != nil {
		s.logger.Error("Tenant config is corrupt, starting empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
		s.tenants = make(map[string]string)
		return s, nil
	}

	s.logger.Info("Tenant config loaded",
		slog.String("path", path),
		slog.Int("tenants", len(s.tenants)),
	)

	return s, nil
}

// Get returns the destination channel for a tenant, if provisioned.
func (s *FileStore) Get(ctx context.Context, tenantID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channelID, ok := s.tenants[tenantID]
	return channelID, ok, nil
}

// Set records the tenant's destination channel and rewrites the document. On
// a failed write the in-memory entry is rolled back so memory and disk never
// diverge.
func (s *FileStore) Set(ctx context.Context, tenantID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, had := s.tenants[tenantID]
	s.tenants[tenantID] = channelID

	if err := s.persistLocked(); err != nil {
		if had {
			s.tenants[tenantID] = previous
		} else {
			delete(s.tenants, tenantID)
		}
		return fmt.Errorf("failed to persist tenant config: %w", err)
	}

	s.logger.Info("Tenant destination set",
		slog.String("tenant_id", tenantID),
		slog.String("channel_id", channelID),
	)

	return nil
}

// IsDestination reports whether channelID is the tenant's configured channel.
func (s *FileStore) IsDestination(ctx context.Context, tenantID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configured, ok := s.tenants[tenantID]
	return ok && configured == channelID, nil
}

// ListTenantIDs returns all provisioned tenant ids in lexicographic order.
func (s *FileStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tenants))
	for tenantID := range s.tenants {
		ids = append(ids, tenantID)
	}
	sort.Strings(ids)

	return ids, nil
}

func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(s.tenants, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tenant config: %w", err)
	}

	return nil
}
