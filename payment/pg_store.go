package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the store needs,
// so one implementation serves both plain and transactional use
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore persists payments and refunds in PostgreSQL
type PgStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPgStore creates the store and its schema
func NewPgStore(ctx context.Context, pool *pgxpool.Pool) (*PgStore, error) {
	s := &PgStore{pool: pool, q: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("payment schema: %w", err)
	}
	return s, nil
}

func (s *PgStore) initSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id                      TEXT PRIMARY KEY,
			transaction_id          TEXT NOT NULL UNIQUE,
			provider_transaction_id TEXT NOT NULL DEFAULT '',
			provider                TEXT NOT NULL,
			status                  TEXT NOT NULL,
			amount                  BIGINT NOT NULL CHECK (amount > 0),
			currency                TEXT NOT NULL,
			community_id            TEXT NOT NULL DEFAULT '',
			user_id                 TEXT NOT NULL DEFAULT '',
			description             TEXT NOT NULL DEFAULT '',
			metadata                JSONB NOT NULL DEFAULT '{}',
			authorization_code      TEXT NOT NULL DEFAULT '',
			error_code              TEXT NOT NULL DEFAULT '',
			error_message           TEXT NOT NULL DEFAULT '',
			created_at              TIMESTAMPTZ NOT NULL,
			updated_at              TIMESTAMPTZ NOT NULL,
			processed_at            TIMESTAMPTZ,
			failed_at               TIMESTAMPTZ,
			refunded_at             TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status);
		CREATE INDEX IF NOT EXISTS idx_payments_provider ON payments (provider);
		CREATE INDEX IF NOT EXISTS idx_payments_community ON payments (community_id) WHERE community_id <> '';
		CREATE INDEX IF NOT EXISTS idx_payments_unsettled ON payments (created_at)
			WHERE status IN ('PENDING', 'PROCESSING');

		CREATE TABLE IF NOT EXISTS refunds (
			id                    TEXT PRIMARY KEY,
			payment_id            TEXT NOT NULL REFERENCES payments (id),
			refund_transaction_id TEXT NOT NULL UNIQUE,
			provider_refund_id    TEXT NOT NULL DEFAULT '',
			amount                BIGINT NOT NULL CHECK (amount > 0),
			reason                TEXT NOT NULL DEFAULT '',
			status                TEXT NOT NULL,
			created_at            TIMESTAMPTZ NOT NULL,
			processed_at          TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_refunds_payment ON refunds (payment_id);
	`)
	return err
}

const paymentColumns = `id, transaction_id, provider_transaction_id, provider, status,
	amount, currency, community_id, user_id, description, metadata,
	authorization_code, error_code, error_message,
	created_at, updated_at, processed_at, failed_at, refunded_at`

func (s *PgStore) CreatePayment(ctx context.Context, p *Payment) error {
	metadata, err := json.Marshal(orEmpty(p.Metadata))
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.TransactionID, p.ProviderTransactionID, p.Provider, p.Status,
		p.Amount, p.Currency, p.CommunityID, p.UserID, p.Description, metadata,
		p.AuthorizationCode, p.ErrorCode, p.ErrorMessage,
		p.CreatedAt, p.UpdatedAt, p.ProcessedAt, p.FailedAt, p.RefundedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateTransactionID
	}
	return err
}

func (s *PgStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	return p, err
}

func (s *PgStore) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: transactionID}
	}
	return p, err
}

func (s *PgStore) UpdatePayment(ctx context.Context, p *Payment) error {
	metadata, err := json.Marshal(orEmpty(p.Metadata))
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now()
	tag, err := s.q.Exec(ctx, `
		UPDATE payments SET
			provider_transaction_id = $2, status = $3, metadata = $4,
			authorization_code = $5, error_code = $6, error_message = $7,
			updated_at = $8, processed_at = $9, failed_at = $10, refunded_at = $11
		WHERE id = $1`,
		p.ID, p.ProviderTransactionID, p.Status, metadata,
		p.AuthorizationCode, p.ErrorCode, p.ErrorMessage,
		p.UpdatedAt, p.ProcessedAt, p.FailedAt, p.RefundedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: p.ID}
	}
	return nil
}

func (s *PgStore) ListPayments(ctx context.Context, filter Filter) ([]Payment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Provider != "" {
		add("provider = $%d", filter.Provider)
	}
	if filter.CommunityID != "" {
		add("community_id = $%d", filter.CommunityID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (s *PgStore) ListUnsettled(ctx context.Context, cutoff time.Time) ([]Payment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status IN ('PENDING', 'PROCESSING') AND created_at < $1
		ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (s *PgStore) CreateRefund(ctx context.Context, r *Refund) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO refunds (id, payment_id, refund_transaction_id, provider_refund_id,
			amount, reason, status, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.PaymentID, r.RefundTransactionID, r.ProviderRefundID,
		r.Amount, r.Reason, r.Status, r.CreatedAt, r.ProcessedAt)
	return err
}

func (s *PgStore) RefundsForPayment(ctx context.Context, paymentID string) ([]Refund, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, payment_id, refund_transaction_id, provider_refund_id,
			amount, reason, status, created_at, processed_at
		FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []Refund
	for rows.Next() {
		var r Refund
		if err := rows.Scan(&r.ID, &r.PaymentID, &r.RefundTransactionID, &r.ProviderRefundID,
			&r.Amount, &r.Reason, &r.Status, &r.CreatedAt, &r.ProcessedAt); err != nil {
			return nil, err
		}
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

// WithTx runs fn against a transaction-scoped store. Nested calls
// reuse the same transaction.
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

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p        Payment
		metadata []byte
	)
	err := row.Scan(&p.ID, &p.TransactionID, &p.ProviderTransactionID, &p.Provider, &p.Status,
		&p.Amount, &p.Currency, &p.CommunityID, &p.UserID, &p.Description, &metadata,
		&p.AuthorizationCode, &p.ErrorCode, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt, &p.FailedAt, &p.RefundedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, err
		}
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
