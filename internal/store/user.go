package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rollcall/apiserver/types"
)

const userColumns = `u.id, u.username, u.email, u.first_name, u.last_name, u.date_of_birth,
		u.role, u.password_hash, u.locked, u.enabled, u.created_at, u.updated_at`

// UserRepository handles persistence for users and their verification tokens.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (types.User, error) {
	var user types.User
	var dob sql.NullTime
	dest := []any{
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&dob,
		&user.Role,
		&user.PasswordHash,
		&user.Locked,
		&user.Enabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if dob.Valid {
		t := dob.Time
		user.DateOfBirth = &t
	}
	return user, nil
}

func nullableDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// GetByVerificationToken resolves a verification token hash to its user.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (types.User, types.VerificationToken, error) {
	const query = `
		SELECT ` + userColumns + `, v.id, v.user_id, v.token_hash, v.created_at, v.redeemed_at
		FROM verification_tokens v
		JOIN users u ON u.id = v.user_id
		WHERE v.token_hash = $1`

	var token types.VerificationToken
	var redeemedAt sql.NullTime
	user, err := scanUser(
		r.db.QueryRowContext(ctx, query, tokenHash),
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&redeemedAt,
	)
	if err != nil {
		return types.User{}, types.VerificationToken{}, err
	}
	if redeemedAt.Valid {
		t := redeemedAt.Time
		token.RedeemedAt = &t
	}
	return user, token, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := insertUser(ctx, r.db, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// CreateWithVerification stores user and its verification token atomically.
// Username or email collisions return ErrDuplicate and store nothing.
func (r *UserRepository) CreateWithVerification(ctx context.Context, user types.User, token types.VerificationToken) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, &user); err != nil {
			return err
		}

		const query = `
			INSERT INTO verification_tokens (user_id, token_hash, created_at)
			VALUES ($1, $2, $3)
			RETURNING id`
		token.UserID = user.ID
		token.CreatedAt = now
		if err := tx.QueryRowContext(ctx, query, token.UserID, token.TokenHash, token.CreatedAt).Scan(&token.ID); err != nil {
			return mapWriteError(err)
		}
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertUser(ctx context.Context, q queryRower, user *types.User) error {
	const query = `
		INSERT INTO users (username, email, first_name, last_name, date_of_birth, role,
			password_hash, locked, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := q.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		nullableDate(user.DateOfBirth),
		user.Role,
		user.PasswordHash,
		user.Locked,
		user.Enabled,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	return mapWriteError(err)
}

// CompleteVerification redeems token and persists user's unlocked state in
// one transaction. It returns ErrConflict if the token was already redeemed.
func (r *UserRepository) CompleteVerification(ctx context.Context, user types.User, token types.VerificationToken) error {
	if token.RedeemedAt == nil {
		return errors.New("verification token has no redemption time")
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		const redeem = `
			UPDATE verification_tokens
			SET redeemed_at = $1
			WHERE id = $2 AND redeemed_at IS NULL`
		result, err := tx.ExecContext(ctx, redeem, *token.RedeemedAt, token.ID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}

		const unlock = `
			UPDATE users
			SET locked = $1,
				updated_at = $2
			WHERE id = $3`
		result, err = tx.ExecContext(ctx, unlock, user.Locked, *token.RedeemedAt, user.ID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			first_name = $3,
			last_name = $4,
			date_of_birth = $5,
			role = $6,
			password_hash = $7,
			locked = $8,
			enabled = $9,
			updated_at = $10
		WHERE id = $11`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		nullableDate(user.DateOfBirth),
		user.Role,
		user.PasswordHash,
		user.Locked,
		user.Enabled,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

