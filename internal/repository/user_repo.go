package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-api/internal/domain"
)

// ErrDuplicateEmail indica violación de la restricción de unicidad de email.
var ErrDuplicateEmail = errors.New("duplicate email")

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateVerifyOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id string) error
	UpdateResetOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, name, email, password_hash, is_verified,
	verify_otp, verify_otp_expires_at,
	reset_otp, reset_otp_expires_at,
	created_at, updated_at
`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, name, email, password_hash, is_verified, verify_otp, reset_otp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', '', $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

// UpdateVerifyOTP fija código y expiración del canal de verificación juntos.
// Un código pendiente anterior queda sobrescrito.
func (r *PgUserRepository) UpdateVerifyOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET verify_otp = $2, verify_otp_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, code, expiresAt)
}

// MarkVerified marca la cuenta como verificada y limpia el canal de
// verificación en la misma sentencia.
func (r *PgUserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET is_verified = TRUE, verify_otp = '', verify_otp_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

func (r *PgUserRepository) UpdateResetOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_otp = $2, reset_otp_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, code, expiresAt)
}

// UpdatePassword reemplaza el hash y limpia el canal de reseteo.
func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $2, reset_otp = '', reset_otp_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, passwordHash)
}

func (r *PgUserRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) scanOne(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.IsVerified,
		&u.VerifyOtp,
		&u.VerifyOtpExpiresAt,
		&u.ResetOtp,
		&u.ResetOtpExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
