package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord is the stored credential row. PasswordHash never leaves the
// process: responses are built field by field and this struct carries no
// JSON tags.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines persistence operations for user credentials.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, username, passwordHash string) (*UserRecord, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	const q = `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username=$1`
	var u UserRecord
	if err := r.db.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const q = `SELECT 1 FROM users WHERE username=$1`
	var one int
	if err := r.db.QueryRow(ctx, q, username).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create inserts a new credential row. Uniqueness is enforced by the database
// constraint, so two concurrent registrations for the same username cannot
// both succeed.
func (r *PgUserRepository) Create(ctx context.Context, username, passwordHash string) (*UserRecord, error) {
	const q = `INSERT INTO users (username, password_hash) VALUES ($1,$2) RETURNING id, username, password_hash, created_at, updated_at`
	var u UserRecord
	if err := r.db.QueryRow(ctx, q, username, passwordHash).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const q = `UPDATE users SET password_hash=$1, updated_at=now() WHERE id=$2`
	tag, err := r.db.Exec(ctx, q, passwordHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
