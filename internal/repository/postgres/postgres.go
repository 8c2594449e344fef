package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository        = (*Repository)(nil)
	_ repository.AdminRepository       = (*Repository)(nil)
	_ repository.KVRepository          = (*Repository)(nil)
	_ repository.LeaderboardRepository = (*Repository)(nil)
	_ repository.StatsRepository       = (*Repository)(nil)
	_ repository.ConsoleRepository     = (*Repository)(nil)
)

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, type, banned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.Type, user.Banned, user.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, type, banned, created_at FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, type, banned, created_at FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// SetUserBanned updates a user's ban flag.
func (r *Repository) SetUserBanned(ctx context.Context, id string, banned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET banned = $2 WHERE id = $1`, id, banned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Type, &u.Banned, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CountAdmins returns the number of dashboard operators.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM admin_users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateAdmin inserts an operator and assigns its identifier.
func (r *Repository) CreateAdmin(ctx context.Context, admin *domain.Admin) error {
	const query = `INSERT INTO admin_users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.pool.QueryRow(ctx, query, admin.Username, admin.PasswordHash, admin.Role, admin.CreatedAt).Scan(&admin.ID)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetAdminByUsername fetches an operator by username.
func (r *Repository) GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	const query = `SELECT id, username, password_hash, role, created_at, last_login FROM admin_users WHERE username = $1`
	return scanAdmin(r.pool.QueryRow(ctx, query, username))
}

// GetAdminByID fetches an operator by identifier.
func (r *Repository) GetAdminByID(ctx context.Context, id int64) (*domain.Admin, error) {
	const query = `SELECT id, username, password_hash, role, created_at, last_login FROM admin_users WHERE id = $1`
	return scanAdmin(r.pool.QueryRow(ctx, query, id))
}

// TouchAdminLogin records a successful login.
func (r *Repository) TouchAdminLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admin_users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var a domain.Admin
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt, &a.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetKV fetches a stored value.
func (r *Repository) GetKV(ctx context.Context, userID, key string) (*domain.KVEntry, error) {
	const query = `SELECT user_id, key, value, version, updated_at FROM kv_store WHERE user_id = $1 AND key = $2`
	var e domain.KVEntry
	if err := r.pool.QueryRow(ctx, query, userID, key).Scan(&e.UserID, &e.Key, &e.Value, &e.Version, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// UpsertKV writes a value, starting at version 1 or bumping the stored version.
func (r *Repository) UpsertKV(ctx context.Context, entry *domain.KVEntry) error {
	const query = `INSERT INTO kv_store (user_id, key, value, version, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (user_id, key) DO UPDATE
			SET value = EXCLUDED.value, version = kv_store.version + 1, updated_at = NOW()
		RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query, entry.UserID, entry.Key, entry.Value).Scan(&entry.Version, &entry.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("kv owner %s: %w", entry.UserID, repository.ErrNotFound)
	}
	return err
}

// UpdateKVIfVersion writes a value only when the stored version matches expected.
func (r *Repository) UpdateKVIfVersion(ctx context.Context, entry *domain.KVEntry, expected int64) error {
	const query = `UPDATE kv_store SET value = $3, version = version + 1, updated_at = NOW()
		WHERE user_id = $1 AND key = $2 AND version = $4
		RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query, entry.UserID, entry.Key, entry.Value, expected).Scan(&entry.Version, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrConflict
	}
	return err
}

// DeleteKV removes a value, optionally guarded by a version precondition.
func (r *Repository) DeleteKV(ctx context.Context, userID, key string, expected *int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var version int64
	err = tx.QueryRow(ctx, `SELECT version FROM kv_store WHERE user_id = $1 AND key = $2 FOR UPDATE`, userID, key).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	if expected != nil && *expected != version {
		return repository.ErrConflict
	}
	if _, err := tx.Exec(ctx, `DELETE FROM kv_store WHERE user_id = $1 AND key = $2`, userID, key); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SubmitScore stores score when it beats the player's current best on board.
func (r *Repository) SubmitScore(ctx context.Context, board, userID string, score float64, at time.Time) error {
	const query = `INSERT INTO leaderboards (board, user_id, score, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (board, user_id) DO UPDATE
			SET score = EXCLUDED.score, submitted_at = EXCLUDED.submitted_at
			WHERE leaderboards.score < EXCLUDED.score`
	_, err := r.pool.Exec(ctx, query, board, userID, score, at)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("score owner %s: %w", userID, repository.ErrNotFound)
	}
	return err
}

// GetRank returns a player's best score and rank on board.
func (r *Repository) GetRank(ctx context.Context, board, userID string) (*domain.ScoreEntry, error) {
	const query = `SELECT board, user_id, score, submitted_at, rank FROM (
			SELECT board, user_id, score, submitted_at, RANK() OVER (ORDER BY score DESC) AS rank
			FROM leaderboards WHERE board = $1
		) ranked WHERE user_id = $2`
	var e domain.ScoreEntry
	if err := r.pool.QueryRow(ctx, query, board, userID).Scan(&e.Board, &e.UserID, &e.Score, &e.SubmittedAt, &e.Rank); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// TopScores lists the best scores on board in rank order.
func (r *Repository) TopScores(ctx context.Context, board string, limit int) ([]domain.ScoreEntry, error) {
	const query = `SELECT board, user_id, score, submitted_at, RANK() OVER (ORDER BY score DESC) AS rank
		FROM leaderboards WHERE board = $1
		ORDER BY score DESC, submitted_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, board, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ScoreEntry, 0, limit)
	for rows.Next() {
		var e domain.ScoreEntry
		if err := rows.Scan(&e.Board, &e.UserID, &e.Score, &e.SubmittedAt, &e.Rank); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates counts for the admin dashboard.
func (r *Repository) Stats(ctx context.Context) (domain.Stats, error) {
	const query = `SELECT
		(SELECT COUNT(1) FROM users),
		(SELECT COUNT(1) FROM users WHERE type = 'guest'),
		(SELECT COUNT(1) FROM users WHERE type = 'registered'),
		(SELECT COUNT(1) FROM users WHERE banned),
		(SELECT COUNT(1) FROM kv_store),
		(SELECT COUNT(DISTINCT board) FROM leaderboards),
		(SELECT COUNT(1) FROM leaderboards)`
	var s domain.Stats
	err := r.pool.QueryRow(ctx, query).Scan(&s.Users, &s.Guests, &s.Registered, &s.Banned, &s.KVEntries, &s.Leaderboards, &s.LeaderboardScores)
	return s, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListUsers pages through players, newest first.
func (r *Repository) ListUsers(ctx context.Context, search string, page repository.Page) ([]domain.User, int64, error) {
	pattern := "%" + likeEscaper.Replace(search) + "%"
	const filter = ` WHERE id ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\'`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM users`+filter, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, email, password_hash, type, banned, created_at FROM users`+filter+
		` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, pattern, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Type, &u.Banned, &u.CreatedAt)
		return u, err
	})
	return users, total, err
}

// DeleteUser removes a player. Values and scores go with it through the
// ON DELETE CASCADE foreign keys.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListKV pages through stored values, most recently updated first.
func (r *Repository) ListKV(ctx context.Context, userID string, page repository.Page) ([]domain.KVEntry, int64, error) {
	const filter = ` WHERE $1 = '' OR user_id = $1`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM kv_store`+filter, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT user_id, key, value, version, updated_at FROM kv_store`+filter+
		` ORDER BY updated_at DESC, user_id, key LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(rows, scanKVRow)
	return entries, total, err
}

// UserKV lists every value a player holds, most recently updated first.
func (r *Repository) UserKV(ctx context.Context, userID string) ([]domain.KVEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, key, value, version, updated_at FROM kv_store
		WHERE user_id = $1 ORDER BY updated_at DESC, key`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanKVRow)
}

func scanKVRow(row pgx.CollectableRow) (domain.KVEntry, error) {
	var e domain.KVEntry
	err := row.Scan(&e.UserID, &e.Key, &e.Value, &e.Version, &e.UpdatedAt)
	return e, err
}

// UserScores lists a player's entries across boards, latest submission first.
// Rank counts strictly higher scores on the same board plus one.
func (r *Repository) UserScores(ctx context.Context, userID string) ([]domain.ScoreEntry, error) {
	const query = `SELECT id, board, user_id, score, submitted_at, rank FROM (
			SELECT id, board, user_id, score, submitted_at,
				RANK() OVER (PARTITION BY board ORDER BY score DESC) AS rank
			FROM leaderboards
			WHERE board IN (SELECT board FROM leaderboards WHERE user_id = $1)
		) ranked WHERE user_id = $1
		ORDER BY submitted_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanScoreRow)
}

// ListBoards summarises every board, largest first.
func (r *Repository) ListBoards(ctx context.Context) ([]domain.BoardSummary, error) {
	const query = `SELECT board, COUNT(1) AS entries, MAX(score), MIN(score)
		FROM leaderboards GROUP BY board ORDER BY entries DESC, board`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BoardSummary, error) {
		var b domain.BoardSummary
		err := row.Scan(&b.Board, &b.Entries, &b.TopScore, &b.MinScore)
		return b, err
	})
}

// BoardEntries pages through a board by descending score. Rank is the row
// position on the whole board, so it keeps counting across pages.
func (r *Repository) BoardEntries(ctx context.Context, board string, page repository.Page) ([]domain.ScoreEntry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM leaderboards WHERE board = $1`, board).Scan(&total); err != nil {
		return nil, 0, err
	}
	const query = `SELECT id, board, user_id, score, submitted_at,
			ROW_NUMBER() OVER (ORDER BY score DESC, submitted_at ASC, id ASC) AS rank
		FROM leaderboards WHERE board = $1
		ORDER BY rank LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, board, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(rows, scanScoreRow)
	return entries, total, err
}

func scanScoreRow(row pgx.CollectableRow) (domain.ScoreEntry, error) {
	var e domain.ScoreEntry
	err := row.Scan(&e.ID, &e.Board, &e.UserID, &e.Score, &e.SubmittedAt, &e.Rank)
	return e, err
}

// ClearBoard removes every entry on board and reports how many went.
func (r *Repository) ClearBoard(ctx context.Context, board string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leaderboards WHERE board = $1`, board)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteScore removes one entry from board.
func (r *Repository) DeleteScore(ctx context.Context, board string, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leaderboards WHERE board = $1 AND id = $2`, board, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
