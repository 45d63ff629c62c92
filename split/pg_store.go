package split

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore persists splits in PostgreSQL
type PgStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPgStore creates the store and its schema
func NewPgStore(ctx context.Context, pool *pgxpool.Pool) (*PgStore, error) {
	s := &PgStore{pool: pool, q: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("split schema: %w", err)
	}
	return s, nil
}

func (s *PgStore) initSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS split_masters (
			id             TEXT PRIMARY KEY,
			payment_id     TEXT NOT NULL,
			transaction_id TEXT NOT NULL UNIQUE,
			provider       TEXT NOT NULL,
			total_amount   BIGINT NOT NULL CHECK (total_amount > 0),
			currency       TEXT NOT NULL,
			mode           TEXT NOT NULL,
			status         TEXT NOT NULL,
			retry_count    INT NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_split_masters_status ON split_masters (status);

		CREATE TABLE IF NOT EXISTS split_distributions (
			id             TEXT PRIMARY KEY,
			master_id      TEXT NOT NULL REFERENCES split_masters (id),
			recipient_id   TEXT NOT NULL,
			recipient_name TEXT NOT NULL DEFAULT '',
			holder_id      TEXT NOT NULL DEFAULT '',
			holder_name    TEXT NOT NULL DEFAULT '',
			bank_code      TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			account_type   TEXT NOT NULL DEFAULT '',
			amount         BIGINT NOT NULL CHECK (amount >= 0),
			is_main        BOOLEAN NOT NULL DEFAULT FALSE,
			status         TEXT NOT NULL,
			transfer_id    TEXT NOT NULL DEFAULT '',
			error_message  TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (master_id, recipient_id)
		);
		CREATE INDEX IF NOT EXISTS idx_split_distributions_master ON split_distributions (master_id);
	`)
	return err
}

func (s *PgStore) CreateMaster(ctx context.Context, m *Master) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO split_masters (id, payment_id, transaction_id, provider, total_amount,
			currency, mode, status, retry_count, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.PaymentID, m.TransactionID, m.Provider, m.TotalAmount,
		m.Currency, m.Mode, m.Status, m.RetryCount, m.CreatedAt, m.UpdatedAt, m.CompletedAt)
	return err
}

func (s *PgStore) GetMaster(ctx context.Context, id string) (*Master, error) {
	var m Master
	err := s.q.QueryRow(ctx, `
		SELECT id, payment_id, transaction_id, provider, total_amount,
			currency, mode, status, retry_count, created_at, updated_at, completed_at
		FROM split_masters WHERE id = $1`, id).
		Scan(&m.ID, &m.PaymentID, &m.TransactionID, &m.Provider, &m.TotalAmount,
			&m.Currency, &m.Mode, &m.Status, &m.RetryCount, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &SplitNotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PgStore) GetMasterByPaymentID(ctx context.Context, paymentID string) (*Master, error) {
	var m Master
	err := s.q.QueryRow(ctx, `
		SELECT id, payment_id, transaction_id, provider, total_amount,
			currency, mode, status, retry_count, created_at, updated_at, completed_at
		FROM split_masters WHERE payment_id = $1`, paymentID).
		Scan(&m.ID, &m.PaymentID, &m.TransactionID, &m.Provider, &m.TotalAmount,
			&m.Currency, &m.Mode, &m.Status, &m.RetryCount, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &SplitNotFoundError{ID: paymentID}
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PgStore) UpdateMaster(ctx context.Context, m *Master) error {
	m.UpdatedAt = time.Now()
	tag, err := s.q.Exec(ctx, `
		UPDATE split_masters SET status = $2, retry_count = $3, updated_at = $4, completed_at = $5
		WHERE id = $1`,
		m.ID, m.Status, m.RetryCount, m.UpdatedAt, m.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &SplitNotFoundError{ID: m.ID}
	}
	return nil
}

func (s *PgStore) CreateDistribution(ctx context.Context, d *Distribution) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO split_distributions (id, master_id, recipient_id, recipient_name,
			holder_id, holder_name, bank_code, account_number, account_type,
			amount, is_main, status, transfer_id, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.MasterID, d.RecipientID, d.RecipientName,
		d.BankAccount.HolderID, d.BankAccount.HolderName, d.BankAccount.BankCode, d.BankAccount.AccountNumber, d.BankAccount.AccountType,
		d.Amount, d.IsMain, d.Status, d.TransferID, d.ErrorMessage, d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *PgStore) UpdateDistribution(ctx context.Context, d *Distribution) error {
	d.UpdatedAt = time.Now()
	tag, err := s.q.Exec(ctx, `
		UPDATE split_distributions SET status = $2, transfer_id = $3, error_message = $4, updated_at = $5
		WHERE id = $1`,
		d.ID, d.Status, d.TransferID, d.ErrorMessage, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distribution %s not found", d.ID)
	}
	return nil
}

func (s *PgStore) DistributionsForMaster(ctx context.Context, masterID string) ([]Distribution, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, master_id, recipient_id, recipient_name,
			holder_id, holder_name, bank_code, account_number, account_type,
			amount, is_main, status, transfer_id, error_message, created_at, updated_at
		FROM split_distributions WHERE master_id = $1 ORDER BY created_at ASC, id ASC`, masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Distribution
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.ID, &d.MasterID, &d.RecipientID, &d.RecipientName,
			&d.BankAccount.HolderID, &d.BankAccount.HolderName, &d.BankAccount.BankCode, &d.BankAccount.AccountNumber, &d.BankAccount.AccountType,
			&d.Amount, &d.IsMain, &d.Status, &d.TransferID, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// WithTx runs fn against a transaction-scoped store
func (s *PgStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, nested := s.q.(pgx.Tx); nested {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgStore{pool: s.pool, q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
