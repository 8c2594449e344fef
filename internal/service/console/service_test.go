package console

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

type stubStore struct {
	users  []domain.User
	kv     []domain.KVEntry
	scores []domain.ScoreEntry

	failScores error
	lastPage   repository.Page
	lastSearch string
}

func (s *stubStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubStore) ListUsers(_ context.Context, search string, page repository.Page) ([]domain.User, int64, error) {
	s.lastSearch, s.lastPage = search, page
	var out []domain.User
	for _, u := range s.users {
		if strings.Contains(u.ID, search) {
			out = append(out, u)
		}
	}
	return paginate(out, page), int64(len(out)), nil
}

func (s *stubStore) DeleteUser(_ context.Context, id string) error {
	for i := range s.users {
		if s.users[i].ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *stubStore) ListKV(_ context.Context, userID string, page repository.Page) ([]domain.KVEntry, int64, error) {
	s.lastPage = page
	var out []domain.KVEntry
	for _, e := range s.kv {
		if userID == "" || e.UserID == userID {
			out = append(out, e)
		}
	}
	return paginate(out, page), int64(len(out)), nil
}

func (s *stubStore) UserKV(ctx context.Context, userID string) ([]domain.KVEntry, error) {
	out, _, err := s.ListKV(ctx, userID, repository.Page{Limit: len(s.kv) + 1})
	return out, err
}

func (s *stubStore) UserScores(_ context.Context, userID string) ([]domain.ScoreEntry, error) {
	if s.failScores != nil {
		return nil, s.failScores
	}
	var out []domain.ScoreEntry
	for _, e := range s.scores {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubStore) ListBoards(context.Context) ([]domain.BoardSummary, error) {
	byBoard := map[string]*domain.BoardSummary{}
	var order []string
	for _, e := range s.scores {
		b, ok := byBoard[e.Board]
		if !ok {
			b = &domain.BoardSummary{Board: e.Board, TopScore: e.Score, MinScore: e.Score}
			byBoard[e.Board] = b
			order = append(order, e.Board)
		}
		b.Entries++
		b.TopScore = max(b.TopScore, e.Score)
		b.MinScore = min(b.MinScore, e.Score)
	}
	out := make([]domain.BoardSummary, 0, len(order))
	for _, name := range order {
		out = append(out, *byBoard[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Entries > out[j].Entries })
	return out, nil
}

func (s *stubStore) BoardEntries(_ context.Context, board string, page repository.Page) ([]domain.ScoreEntry, int64, error) {
	s.lastPage = page
	var out []domain.ScoreEntry
	for _, e := range s.scores {
		if e.Board == board {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = int64(i + 1)
	}
	return paginate(out, page), int64(len(out)), nil
}

func (s *stubStore) ClearBoard(_ context.Context, board string) (int64, error) {
	kept := s.scores[:0]
	var n int64
	for _, e := range s.scores {
		if e.Board == board {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.scores = kept
	return n, nil
}

func (s *stubStore) DeleteScore(_ context.Context, board string, id int64) error {
	for i, e := range s.scores {
		if e.Board == board && e.ID == id {
			s.scores = append(s.scores[:i], s.scores[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *stubStore) DeleteKV(_ context.Context, userID, key string, expected *int64) error {
	for i, e := range s.kv {
		if e.UserID == userID && e.Key == key {
			if expected != nil && *expected != e.Version {
				return repository.ErrConflict
			}
			s.kv = append(s.kv[:i], s.kv[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func paginate[T any](items []T, page repository.Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	end := min(page.Offset+page.Limit, len(items))
	return items[page.Offset:end]
}

func seededStore() *stubStore {
	at := time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)
	return &stubStore{
		users: []domain.User{
			{ID: "guest_a", Type: domain.UserTypeGuest, CreatedAt: at},
			{ID: "user_b", Type: domain.UserTypeRegistered, CreatedAt: at},
		},
		kv: []domain.KVEntry{
			{UserID: "guest_a", Key: "save", Value: []byte(`{"level":3}`), Version: 2, UpdatedAt: at},
			{UserID: "user_b", Key: "save", Value: []byte(`1`), Version: 1, UpdatedAt: at},
		},
		scores: []domain.ScoreEntry{
			{ID: 1, Board: "arena", UserID: "guest_a", Score: 40, SubmittedAt: at},
			{ID: 2, Board: "arena", UserID: "user_b", Score: 90, SubmittedAt: at},
			{ID: 3, Board: "race", UserID: "guest_a", Score: 12, SubmittedAt: at},
		},
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		limit, offset int
		want          repository.Page
	}{
		{0, 0, repository.Page{Limit: DefaultPageSize}},
		{-3, -10, repository.Page{Limit: DefaultPageSize}},
		{20, 40, repository.Page{Limit: 20, Offset: 40}},
		{MaxPageSize + 1, 5, repository.Page{Limit: MaxPageSize, Offset: 5}},
	}
	for _, tc := range cases {
		if got := ClampPage(tc.limit, tc.offset); got != tc.want {
			t.Fatalf("ClampPage(%d, %d) = %+v, want %+v", tc.limit, tc.offset, got, tc.want)
		}
	}
}

func TestUsersPassesClampedPageAndTrimmedSearch(t *testing.T) {
	store := seededStore()
	svc := New(store, nil)

	list, err := svc.Users(context.Background(), "  guest ", 9000, -1)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if store.lastSearch != "guest" {
		t.Fatalf("expected trimmed search, got %q", store.lastSearch)
	}
	if list.Page != (repository.Page{Limit: MaxPageSize}) || store.lastPage != list.Page {
		t.Fatalf("unexpected page %+v (store saw %+v)", list.Page, store.lastPage)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != "guest_a" {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestUserDetail(t *testing.T) {
	svc := New(seededStore(), nil)
	detail, err := svc.User(context.Background(), "guest_a")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if detail.User.ID != "guest_a" || len(detail.KV) != 1 || len(detail.Scores) != 2 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	if _, err := svc.User(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserDetailPropagatesStoreFailure(t *testing.T) {
	store := seededStore()
	store.failScores = errors.New("connection refused")
	svc := New(store, nil)
	if _, err := svc.User(context.Background(), "guest_a"); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected the store error, got %v", err)
	}
}

func TestDeletesMapNotFound(t *testing.T) {
	ctx := context.Background()
	svc := New(seededStore(), nil)

	if err := svc.DeleteUser(ctx, "nobody", "admin"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := svc.DeleteKV(ctx, "guest_a", "nope", "admin"); !errors.Is(err, ErrKVNotFound) {
		t.Fatalf("expected ErrKVNotFound, got %v", err)
	}
	if err := svc.DeleteScore(ctx, "race", 1, "admin"); !errors.Is(err, ErrScoreNotFound) {
		t.Fatalf("expected ErrScoreNotFound for an id on another board, got %v", err)
	}
	if err := svc.DeleteKV(ctx, "guest_a", "save", "admin"); err != nil {
		t.Fatalf("delete kv: %v", err)
	}
	if err := svc.DeleteScore(ctx, "arena", 1, "admin"); err != nil {
		t.Fatalf("delete score: %v", err)
	}
}

func TestBoards(t *testing.T) {
	ctx := context.Background()
	svc := New(seededStore(), nil)

	boards, err := svc.Boards(ctx)
	if err != nil {
		t.Fatalf("boards: %v", err)
	}
	if len(boards) != 2 || boards[0].Board != "arena" || boards[0].Entries != 2 || boards[0].TopScore != 90 || boards[0].MinScore != 40 {
		t.Fatalf("unexpected summaries %+v", boards)
	}

	page, err := svc.Board(ctx, "arena", 1, 1)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Items[0].UserID != "guest_a" || page.Items[0].Rank != 2 {
		t.Fatalf("expected second place on the second page, got %+v", page)
	}
	if _, err := svc.Board(ctx, " ", 0, 0); !errors.Is(err, ErrInvalidBoard) {
		t.Fatalf("expected ErrInvalidBoard, got %v", err)
	}

	n, err := svc.ClearBoard(ctx, "arena", "admin")
	if err != nil || n != 2 {
		t.Fatalf("expected two entries cleared, got %d, %v", n, err)
	}
	if n, err := svc.ClearBoard(ctx, "arena", "admin"); err != nil || n != 0 {
		t.Fatalf("expected clearing an empty board to succeed with 0, got %d, %v", n, err)
	}
}
