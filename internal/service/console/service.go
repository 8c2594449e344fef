// Package console serves the admin dashboard's browse and delete operations
// over players, stored values and leaderboards.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var (
	// ErrUserNotFound is returned when the player does not exist.
	ErrUserNotFound = errors.New("console: user not found")
	// ErrKVNotFound is returned when the player holds no such key.
	ErrKVNotFound = errors.New("console: kv entry not found")
	// ErrScoreNotFound is returned when the board has no entry with that id.
	ErrScoreNotFound = errors.New("console: score entry not found")
	// ErrInvalidBoard is returned for blank board names.
	ErrInvalidBoard = errors.New("console: board is required")
)

// Store is the persistence the console reads and prunes.
type Store interface {
	repository.ConsoleRepository
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// Listing is one page of a larger result.
type Listing[T any] struct {
	Items []T
	Total int64
	Page  repository.Page
}

// UserDetail is a player with everything they own.
type UserDetail struct {
	User   *domain.User
	KV     []domain.KVEntry
	Scores []domain.ScoreEntry
}

// Service implements the console operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New constructs a Service.
func New(store Store, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{store: store, logger: logger.With("component", "console")}
}

// ClampPage applies DefaultPageSize to non-positive limits, caps limits at
// MaxPageSize and floors offsets at zero.
func ClampPage(limit, offset int) repository.Page {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return repository.Page{Limit: limit, Offset: max(offset, 0)}
}

// Users lists players whose id or email contains search.
func (s Service) Users(ctx context.Context, search string, limit, offset int) (Listing[domain.User], error) {
	page := ClampPage(limit, offset)
	users, total, err := s.store.ListUsers(ctx, strings.TrimSpace(search), page)
	if err != nil {
		return Listing[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	return Listing[domain.User]{Items: users, Total: total, Page: page}, nil
}

// User loads a player with their values and scores.
func (s Service) User(ctx context.Context, id string) (*UserDetail, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	detail := &UserDetail{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.store.UserKV(gctx, id)
		if err != nil {
			return fmt.Errorf("load user kv: %w", err)
		}
		detail.KV = entries
		return nil
	})
	g.Go(func() error {
		scores, err := s.store.UserScores(gctx, id)
		if err != nil {
			return fmt.Errorf("load user scores: %w", err)
		}
		detail.Scores = scores
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// DeleteUser removes a player and everything they own.
func (s Service) DeleteUser(ctx context.Context, id, actor string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("user deleted", "user_id", id, "admin", actor)
	return nil
}

// KV lists stored values, optionally for one player.
func (s Service) KV(ctx context.Context, userID string, limit, offset int) (Listing[domain.KVEntry], error) {
	page := ClampPage(limit, offset)
	entries, total, err := s.store.ListKV(ctx, strings.TrimSpace(userID), page)
	if err != nil {
		return Listing[domain.KVEntry]{}, fmt.Errorf("list kv: %w", err)
	}
	return Listing[domain.KVEntry]{Items: entries, Total: total, Page: page}, nil
}

// DeleteKV removes one stored value regardless of its version.
func (s Service) DeleteKV(ctx context.Context, userID, key, actor string) error {
	if err := s.store.DeleteKV(ctx, userID, key, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrKVNotFound
		}
		return fmt.Errorf("delete kv: %w", err)
	}
	s.logger.Info("kv entry deleted", "user_id", userID, "key", key, "admin", actor)
	return nil
}

// Boards summarises every leaderboard.
func (s Service) Boards(ctx context.Context) ([]domain.BoardSummary, error) {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return boards, nil
}

// Board lists one leaderboard's entries by rank.
func (s Service) Board(ctx context.Context, board string, limit, offset int) (Listing[domain.ScoreEntry], error) {
	if strings.TrimSpace(board) == "" {
		return Listing[domain.ScoreEntry]{}, ErrInvalidBoard
	}
	page := ClampPage(limit, offset)
	entries, total, err := s.store.BoardEntries(ctx, board, page)
	if err != nil {
		return Listing[domain.ScoreEntry]{}, fmt.Errorf("list board %s: %w", board, err)
	}
	return Listing[domain.ScoreEntry]{Items: entries, Total: total, Page: page}, nil
}

// ClearBoard removes every entry on board and reports how many were removed.
// Clearing an empty or unknown board removes nothing and is not an error.
func (s Service) ClearBoard(ctx context.Context, board, actor string) (int64, error) {
	if strings.TrimSpace(board) == "" {
		return 0, ErrInvalidBoard
	}
	n, err := s.store.ClearBoard(ctx, board)
	if err != nil {
		return 0, fmt.Errorf("clear board %s: %w", board, err)
	}
	s.logger.Info("leaderboard cleared", "board", board, "deleted", n, "admin", actor)
	return n, nil
}

// DeleteScore removes a single entry from board.
func (s Service) DeleteScore(ctx context.Context, board string, id int64, actor string) error {
	if err := s.store.DeleteScore(ctx, board, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScoreNotFound
		}
		return fmt.Errorf("delete score: %w", err)
	}
	s.logger.Info("score deleted", "board", board, "score_id", id, "admin", actor)
	return nil
}
