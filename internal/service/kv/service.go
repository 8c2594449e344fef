package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

const maxKeyLength = 128

var (
	// ErrNotFound is returned when the key does not exist for the player.
	ErrNotFound = errors.New("kv: key not found")
	// ErrVersionMismatch is returned when an expected version precondition fails.
	ErrVersionMismatch = errors.New("kv: version mismatch")
	// ErrInvalidKey is returned for empty or oversized keys.
	ErrInvalidKey = errors.New("kv: invalid key")
	// ErrValueRequired is returned when a write carries no value.
	ErrValueRequired = errors.New("kv: value is required")
)

// Service manages per-player key-value storage with optimistic versioning.
type Service struct {
	repo   repository.KVRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(repo repository.KVRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, logger: logger.With("component", "kv")}
}

// Get returns the stored entry for key.
func (s Service) Get(ctx context.Context, userID, key string) (*domain.KVEntry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	entry, err := s.repo.GetKV(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

// Put stores value under key. When expected is non-nil the key must exist at
// that version.
func (s Service) Put(ctx context.Context, userID, key string, value json.RawMessage, expected *int64) (*domain.KVEntry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, ErrValueRequired
	}
	entry := &domain.KVEntry{UserID: userID, Key: key, Value: value}

	if expected == nil {
		if err := s.repo.UpsertKV(ctx, entry); err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		s.logger.Debug("kv set", "user_id", userID, "key", key, "version", entry.Version)
		return entry, nil
	}

	current, err := s.repo.GetKV(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: key does not exist, cannot match expected_version", ErrVersionMismatch)
		}
		return nil, err
	}
	if current.Version != *expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, *expected, current.Version)
	}
	if err := s.repo.UpdateKVIfVersion(ctx, entry, *expected); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: concurrent update", ErrVersionMismatch)
		}
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	s.logger.Debug("kv set", "user_id", userID, "key", key, "version", entry.Version)
	return entry, nil
}

// Delete removes key. When expected is non-nil the stored version must match.
func (s Service) Delete(ctx context.Context, userID, key string, expected *int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.repo.DeleteKV(ctx, userID, key, expected)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: expected %d", ErrVersionMismatch, *expected)
	case err != nil:
		return err
	}
	s.logger.Debug("kv delete", "user_id", userID, "key", key)
	return nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || len(key) > maxKeyLength {
		return ErrInvalidKey
	}
	return nil
}
