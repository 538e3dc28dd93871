package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/observer/gigline/internal/domain"
)

const userColumns = `id, username, email, display_name, avatar_url, role, show_online_status, last_seen_at, created_at, updated_at`

// UserRepository handles user data access
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email,
		&user.DisplayName, &user.AvatarURL, &user.Role,
		&user.ShowOnlineStatus, &user.LastSeenAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID finds a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail finds a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetPasswordHash retrieves the password hash for a user
func (r *UserRepository) GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error) {
	var hash string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT password_hash FROM credentials WHERE user_id = $1
	`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrUserNotFound
	}
	return hash, err
}

// GetPrivacyPreference reports whether the user shares presence with others
func (r *UserRepository) GetPrivacyPreference(ctx context.Context, userID uuid.UUID) (domain.PrivacyPreference, error) {
	pref := domain.PrivacyPreference{UserID: userID}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT show_online_status FROM users WHERE id = $1
	`, userID).Scan(&pref.ShowPresence)
	if errors.Is(err, pgx.ErrNoRows) {
		return pref, domain.ErrUserNotFound
	}
	return pref, err
}

// UpdateLastSeen records when the user's last session ended
func (r *UserRepository) UpdateLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET last_seen_at = $2 WHERE id = $1
	`, userID, at)
	return err
}
