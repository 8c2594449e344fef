package repository

import (
	"context"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
)

// UserRepository persists players.
type UserRepository interface {
	// CreateUser returns ErrConflict when the email is already registered.
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	SetUserBanned(ctx context.Context, id string, banned bool) error
}

// AdminRepository persists dashboard operators.
type AdminRepository interface {
	CountAdmins(ctx context.Context) (int64, error)
	CreateAdmin(ctx context.Context, admin *domain.Admin) error
	GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error)
	GetAdminByID(ctx context.Context, id int64) (*domain.Admin, error)
	TouchAdminLogin(ctx context.Context, id int64, at time.Time) error
}

// KVRepository persists per-player versioned values.
type KVRepository interface {
	GetKV(ctx context.Context, userID, key string) (*domain.KVEntry, error)
	// UpsertKV writes entry unconditionally, bumping the stored version. The
	// resulting version and timestamp are written back to entry.
	UpsertKV(ctx context.Context, entry *domain.KVEntry) error
	// UpdateKVIfVersion writes entry only when the stored version equals
	// expected, returning ErrConflict otherwise.
	UpdateKVIfVersion(ctx context.Context, entry *domain.KVEntry, expected int64) error
	// DeleteKV removes a key. When expected is non-nil the stored version must
	// match or ErrConflict is returned.
	DeleteKV(ctx context.Context, userID, key string, expected *int64) error
}

// LeaderboardRepository persists best scores per board.
type LeaderboardRepository interface {
	// SubmitScore keeps the higher of the stored and submitted score.
	SubmitScore(ctx context.Context, board, userID string, score float64, at time.Time) error
	GetRank(ctx context.Context, board, userID string) (*domain.ScoreEntry, error)
	TopScores(ctx context.Context, board string, limit int) ([]domain.ScoreEntry, error)
}

// StatsRepository reports aggregate counts for the admin dashboard.
type StatsRepository interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

// ConsoleRepository backs the admin console's browse and delete operations.
// Listing methods return the matching rows for the page and the total number
// of rows matching the same filter.
type ConsoleRepository interface {
	// ListUsers matches search as a case-insensitive substring of id or email.
	ListUsers(ctx context.Context, search string, page Page) ([]domain.User, int64, error)
	// DeleteUser removes a player together with their values and scores.
	DeleteUser(ctx context.Context, id string) error
	// ListKV lists values newest first, restricted to userID when it is non-empty.
	ListKV(ctx context.Context, userID string, page Page) ([]domain.KVEntry, int64, error)
	UserKV(ctx context.Context, userID string) ([]domain.KVEntry, error)
	// UserScores lists a player's entries on every board with their rank.
	UserScores(ctx context.Context, userID string) ([]domain.ScoreEntry, error)
	ListBoards(ctx context.Context) ([]domain.BoardSummary, error)
	// BoardEntries lists a board by score with positions counted from the top.
	BoardEntries(ctx context.Context, board string, page Page) ([]domain.ScoreEntry, int64, error)
	ClearBoard(ctx context.Context, board string) (int64, error)
	DeleteScore(ctx context.Context, board string, id int64) error
	DeleteKV(ctx context.Context, userID, key string, expected *int64) error
}
