package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	uniqueViolationCode = "23505"

	emailConstraint = "users_email_unique"
	codeConstraint  = "users_referral_code_unique"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
	q  dbtx
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Transactor = (*PostgresRepository)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	userColumns = `id, first_name, last_name, email, created_at, referral_code, referred_by, given_referrals`

	listUsersQuery = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at, id
	`
	listEmailsQuery = `
		SELECT email
		FROM users
		ORDER BY created_at DESC, id DESC
	`
	listReferrersQuery = `
		SELECT ` + userColumns + `
		FROM users
		WHERE cardinality(given_referrals) > 0
	`
	codeExistsQuery  = `SELECT EXISTS (SELECT 1 FROM users WHERE referral_code = $1)`
	emailExistsQuery = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`

	appendReferralQuery = `
		UPDATE users
		SET given_referrals = array_append(given_referrals, $2)
		WHERE referral_code = $1
	`
	insertUserQuery = `
		INSERT INTO users (first_name, last_name, email, created_at, referral_code, referred_by, given_referrals)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, q: db}
}

func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	return r.queryUsers(ctx, listUsersQuery)
}

func (r *PostgresRepository) ListReferrers(ctx context.Context) ([]User, error) {
	return r.queryUsers(ctx, listReferrersQuery)
}

func (r *PostgresRepository) ListEmails(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, listEmailsQuery)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (r *PostgresRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, codeExistsQuery, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("code exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, emailExistsQuery, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("email exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) AppendReferral(ctx context.Context, code, email string) error {
	result, err := r.q.ExecContext(ctx, appendReferralQuery, code, email)
	if err != nil {
		return fmt.Errorf("append referral: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append referral: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, u User) (User, error) {
	referredBy := sql.NullString{}
	if u.ReferredBy != nil {
		referredBy = sql.NullString{String: *u.ReferredBy, Valid: true}
	}
	given := pq.StringArray(u.GivenReferrals)
	if given == nil {
		given = pq.StringArray{}
	}

	var id string
	err := r.q.QueryRowContext(ctx,
		insertUserQuery,
		u.FirstName,
		u.LastName,
		u.Email,
		u.CreatedAt,
		u.ReferralCode,
		referredBy,
		given,
	).Scan(&id)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return User{}, mapped
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	u.ID = id
	u.GivenReferrals = []string(given)
	return u, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

// WithinTx runs fn against a repository bound to a single transaction. The
// transaction is rolled back when fn returns an error.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(repo Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&PostgresRepository{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) queryUsers(ctx context.Context, query string) ([]User, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(scanner rowScanner) (User, error) {
	u := User{}
	var referredBy sql.NullString
	var given pq.StringArray

	if err := scanner.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.CreatedAt,
		&u.ReferralCode,
		&referredBy,
		&given,
	); err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}

	if referredBy.Valid {
		ref := referredBy.String
		u.ReferredBy = &ref
	}
	u.GivenReferrals = []string(given)
	if u.GivenReferrals == nil {
		u.GivenReferrals = []string{}
	}
	return u, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}
	switch pgErr.ConstraintName {
	case emailConstraint:
		return ErrEmailExists
	case codeConstraint:
		return ErrCodeExists
	default:
		return nil
	}
}
