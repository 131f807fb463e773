package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tkivite/knowledgestore-api/internal/domain"
	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/database"
)

const userColumns = `id, email, name, password_hash, is_verified, external_id, picture,
	verification_token, verification_expires, reset_password_token, reset_password_expires,
	created_at, updated_at`

// UserRepository implements repository.UserRepository on PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository returns a repository backed by db.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	const query = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "users.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID, u.Email, u.Name, u.PasswordHash, u.IsVerified, u.ExternalID, u.Picture,
		u.VerificationToken, u.VerificationExpires, u.ResetToken, u.ResetExpires,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns the user with id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "users.get_by_id",
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetVerifiedByID returns the user with id if verified.
func (r *UserRepository) GetVerifiedByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "users.get_verified_by_id",
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND is_verified = TRUE`, id)
}

// GetByEmail returns the user with email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "users.get_by_email",
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// GetByVerificationToken returns the holder of an unexpired verification token.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	return r.getOne(ctx, "users.get_by_verification_token",
		`SELECT `+userColumns+` FROM users WHERE verification_token = $1 AND verification_expires > $2`,
		token, now)
}

// GetByResetToken returns the holder of an unexpired password reset token.
func (r *UserRepository) GetByResetToken(ctx context.Context, token string, now time.Time) (*domain.User, error) {
	return r.getOne(ctx, "users.get_by_reset_token",
		`SELECT `+userColumns+` FROM users WHERE reset_password_token = $1 AND reset_password_expires > $2`,
		token, now)
}

// Update applies patch and returns the updated row.
func (r *UserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) (_ *domain.User, err error) {
	query, args := buildUserUpdate(id, patch, time.Now().UTC())

	ctx, end := database.TraceQuery(ctx, "users.update", query)
	defer func() { end(spanError(err)) }()

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id)
		}
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict("user update conflicts with an existing user")
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// buildUserUpdate renders an UPDATE ... RETURNING statement for the non-nil
// fields of patch. updated_at is always set.
func buildUserUpdate(id string, p domain.UserPatch, now time.Time) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.IsVerified != nil {
		set("is_verified", *p.IsVerified)
	}
	if p.ExternalID != nil {
		set("external_id", *p.ExternalID)
	}
	if p.Picture != nil {
		set("picture", *p.Picture)
	}
	if p.Verification != nil {
		tok, exp := tokenValues(p.Verification)
		set("verification_token", tok)
		set("verification_expires", exp)
	}
	if p.Reset != nil {
		tok, exp := tokenValues(p.Reset)
		set("reset_password_token", tok)
		set("reset_password_expires", exp)
	}
	set("updated_at", now)

	args = append(args, id)
	where := "id = $" + strconv.Itoa(len(args))
	if p.RequireVerificationToken != "" {
		args = append(args, p.RequireVerificationToken)
		where += " AND verification_token = $" + strconv.Itoa(len(args))
	}
	if p.RequireResetToken != "" {
		args = append(args, p.RequireResetToken)
		where += " AND reset_password_token = $" + strconv.Itoa(len(args))
	}

	query := "UPDATE users SET " + strings.Join(sets, ", ") +
		" WHERE " + where + " RETURNING " + userColumns
	return query, args
}

// tokenValues maps a zero OneTimeToken to SQL NULLs.
func tokenValues(t *domain.OneTimeToken) (*string, *time.Time) {
	if t.Token == "" {
		return nil, nil
	}
	tok, exp := t.Token, t.ExpiresAt
	return &tok, &exp
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(spanError(err)) }()

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundMessage("user not found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsVerified, &u.ExternalID, &u.Picture,
		&u.VerificationToken, &u.VerificationExpires, &u.ResetToken, &u.ResetExpires,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// spanError keeps expected misses out of span error status.
func spanError(err error) error {
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
