package devbackend

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    role TEXT NOT NULL,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const accountColumns = `id, role, username, email, password_hash, created_at`

// PostgresAccountRepository is the PostgreSQL implementation of AccountRepository.
type PostgresAccountRepository struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepository(db *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

// EnsureSchema creates the accounts table if it does not exist.
func (r *PostgresAccountRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, accountsSchema); err != nil {
		return fmt.Errorf("failed to ensure accounts table: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *Account) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
        INSERT INTO accounts (role, username, email, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, string(account.Role), account.Username, account.Email, account.PasswordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAccountExists
		}
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}
	return id, nil
}

func (r *PostgresAccountRepository) FindByUsername(ctx context.Context, role domain.Role, username string) (*Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE role = $1 AND lower(username) = lower($2)`, string(role), username)
}

func (r *PostgresAccountRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id int64, hash []byte) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) SearchPatients(ctx context.Context, searchBy, query string) ([]*Account, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if searchBy == "id" {
		id, convErr := strconv.ParseInt(query, 10, 64)
		if convErr != nil {
			return nil, nil
		}
		rows, err = r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE role = 'patient' AND id = $1`, id)
	} else {
		rows, err = r.db.Query(ctx, `
            SELECT `+accountColumns+` FROM accounts
            WHERE role = 'patient' AND (username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
            ORDER BY id
        `, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}

	accounts, err := pgx.CollectRows(rows, scanAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read patients: %w", err)
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) queryOne(ctx context.Context, query string, args ...any) (*Account, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	account, err := pgx.CollectOneRow(rows, scanAccount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.CollectableRow) (*Account, error) {
	var (
		account Account
		role    string
	)
	if err := row.Scan(&account.ID, &role, &account.Username, &account.Email, &account.PasswordHash, &account.CreatedAt); err != nil {
		return nil, err
	}
	account.Role = domain.Role(role)
	return &account, nil
}
