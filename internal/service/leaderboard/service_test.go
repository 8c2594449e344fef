package leaderboard

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

type stubLeaderboardRepo struct {
	scores    map[string]map[string]float64
	lastLimit int
}

func newStubLeaderboardRepo() *stubLeaderboardRepo {
	return &stubLeaderboardRepo{scores: make(map[string]map[string]float64)}
}

func (s *stubLeaderboardRepo) SubmitScore(_ context.Context, board, userID string, score float64, _ time.Time) error {
	if s.scores[board] == nil {
		s.scores[board] = make(map[string]float64)
	}
	if current, ok := s.scores[board][userID]; !ok || score > current {
		s.scores[board][userID] = score
	}
	return nil
}

func (s *stubLeaderboardRepo) ranked(board string) []domain.ScoreEntry {
	var entries []domain.ScoreEntry
	for user, score := range s.scores[board] {
		entries = append(entries, domain.ScoreEntry{Board: board, UserID: user, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	for i := range entries {
		entries[i].Rank = int64(i + 1)
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		}
	}
	return entries
}

func (s *stubLeaderboardRepo) GetRank(_ context.Context, board, userID string) (*domain.ScoreEntry, error) {
	for _, e := range s.ranked(board) {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubLeaderboardRepo) TopScores(_ context.Context, board string, limit int) ([]domain.ScoreEntry, error) {
	s.lastLimit = limit
	entries := s.ranked(board)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func TestSubmitKeepsBestScore(t *testing.T) {
	repo := newStubLeaderboardRepo()
	svc := New(repo, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "arena", "user_a", 50); err != nil {
		t.Fatalf("submit: %v", err)
	}
	entry, err := svc.Submit(ctx, "arena", "user_b", 80)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entry.Rank != 1 {
		t.Fatalf("expected user_b to rank first, got %d", entry.Rank)
	}

	entry, err = svc.Submit(ctx, "arena", "user_a", 10)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entry.Score != 50 || entry.Rank != 2 {
		t.Fatalf("expected best 50 at rank 2, got %+v", entry)
	}

	if _, err := svc.Submit(ctx, "arena", "user_a", math.NaN()); !errors.Is(err, ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
	if _, err := svc.Submit(ctx, "", "user_a", 1); !errors.Is(err, ErrInvalidBoard) {
		t.Fatalf("expected ErrInvalidBoard, got %v", err)
	}
}

func TestTopClampsLimit(t *testing.T) {
	repo := newStubLeaderboardRepo()
	svc := New(repo, nil)
	ctx := context.Background()

	if _, err := svc.Top(ctx, "arena", 0); err != nil {
		t.Fatalf("top: %v", err)
	}
	if repo.lastLimit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", repo.lastLimit)
	}
	if _, err := svc.Top(ctx, "arena", 500); err != nil {
		t.Fatalf("top: %v", err)
	}
	if repo.lastLimit != MaxLimit {
		t.Fatalf("expected max limit, got %d", repo.lastLimit)
	}
}

func TestMeWithoutScore(t *testing.T) {
	svc := New(newStubLeaderboardRepo(), nil)
	if _, err := svc.Me(context.Background(), "arena", "user_a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
