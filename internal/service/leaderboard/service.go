package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	// ErrNotFound is returned when the player has no score on the board.
	ErrNotFound = errors.New("leaderboard: no score for player")
	// ErrInvalidScore is returned for NaN or infinite scores.
	ErrInvalidScore = errors.New("leaderboard: score must be a number")
	// ErrInvalidBoard is returned for empty board names.
	ErrInvalidBoard = errors.New("leaderboard: board is required")
)

// Service ranks player scores per board.
type Service struct {
	repo   repository.LeaderboardRepository
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(repo repository.LeaderboardRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, logger: logger.With("component", "leaderboard"), now: time.Now}
}

// Submit records score for the player, keeping their best, and returns the
// resulting best entry with its rank.
func (s Service) Submit(ctx context.Context, board, userID string, score float64) (*domain.ScoreEntry, error) {
	if strings.TrimSpace(board) == "" {
		return nil, ErrInvalidBoard
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, ErrInvalidScore
	}
	if err := s.repo.SubmitScore(ctx, board, userID, score, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("submit score: %w", err)
	}
	entry, err := s.repo.GetRank(ctx, board, userID)
	if err != nil {
		return nil, fmt.Errorf("rank after submit: %w", err)
	}
	s.logger.Debug("score submitted", "board", board, "user_id", userID, "score", score, "rank", entry.Rank)
	return entry, nil
}

// Top returns the leading entries on board. limit is clamped to [1, MaxLimit]
// with DefaultLimit for non-positive values.
func (s Service) Top(ctx context.Context, board string, limit int) ([]domain.ScoreEntry, error) {
	if strings.TrimSpace(board) == "" {
		return nil, ErrInvalidBoard
	}
	return s.repo.TopScores(ctx, board, ClampLimit(limit))
}

// Me returns the player's best score and rank on board.
func (s Service) Me(ctx context.Context, board, userID string) (*domain.ScoreEntry, error) {
	entry, err := s.repo.GetRank(ctx, board, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ClampLimit normalises a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
