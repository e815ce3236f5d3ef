package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bonuspilot/loyalty-engine/pkg/model"
)

// Store manages the enrolled loyalty accounts in Postgres.
type Store interface {
	ListAccounts(ctx context.Context, kind model.Kind) ([]model.Credential, error)
	ListAllAccounts(ctx context.Context) ([]model.Credential, error)
	UpsertAccount(ctx context.Context, cred model.Credential) error
	DeleteAccount(ctx context.Context, kind model.Kind, identifier string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type pgStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to Postgres and returns the account store.
func New(ctx context.Context, pgURL string, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connCtx, pgURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &pgStore{pool: pool, logger: logger}, nil
}

// ListAccounts returns the enrolled accounts for one provider.
func (s *pgStore) ListAccounts(ctx context.Context, kind model.Kind) ([]model.Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider, identifier, secret, birth_date, postal_code
		FROM loyalty.account
		WHERE provider = $1
		ORDER BY created_at;
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// ListAllAccounts returns every enrolled account across providers.
func (s *pgStore) ListAllAccounts(ctx context.Context) ([]model.Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider, identifier, secret, birth_date, postal_code
		FROM loyalty.account
		ORDER BY provider, created_at;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredentials(rows)
}

func scanCredentials(rows pgx.Rows) ([]model.Credential, error) {
	var creds []model.Credential
	for rows.Next() {
		var (
			c          model.Credential
			secret     sql.NullString
			birthDate  sql.NullString
			postalCode sql.NullString
		)
		if err := rows.Scan(&c.Kind, &c.Identifier, &secret, &birthDate, &postalCode); err != nil {
			return nil, err
		}
		c.Secret = secret.String
		c.BirthDate = birthDate.String
		c.PostalCode = postalCode.String
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// UpsertAccount enrolls an account or replaces its credential fields.
func (s *pgStore) UpsertAccount(ctx context.Context, cred model.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO loyalty.account (provider, identifier, secret, birth_date, postal_code, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider, identifier)
		DO UPDATE SET
			secret = EXCLUDED.secret,
			birth_date = EXCLUDED.birth_date,
			postal_code = EXCLUDED.postal_code;
	`, string(cred.Kind), cred.Identifier, cred.Secret, cred.BirthDate, cred.PostalCode)
	if err != nil {
		s.logger.Error("accounts.pg.upsert_failed",
			zap.String("account", cred.Redacted()),
			zap.Error(err))
	}
	return err
}

// DeleteAccount removes an enrolled account. Deleting an unknown account is
// an error so the API can answer 404.
func (s *pgStore) DeleteAccount(ctx context.Context, kind model.Kind, identifier string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM loyalty.account
		WHERE provider = $1 AND identifier = $2;
	`, string(kind), identifier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

func (s *pgStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
