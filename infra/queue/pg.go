package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgQueue is a Postgres-backed Queue. Claimed messages stay in the
// table with claimed_at set, so a crashed consumer's messages become
// visible again once the claim expires.
type PgQueue struct {
	db         *pgxpool.Pool
	claimGrace time.Duration
}

// NewPgQueue creates a Postgres-backed queue and ensures its schema
func NewPgQueue(ctx context.Context, db *pgxpool.Pool) (*PgQueue, error) {
	q := &PgQueue{
		db:         db,
		claimGrace: 2 * time.Minute,
	}

	if err := q.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to init webhook queue schema: %w", err)
	}

	return q, nil
}

func (q *PgQueue) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS webhook_queue (
		id          TEXT PRIMARY KEY,
		provider    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		payment_id  TEXT NOT NULL DEFAULT '',
		payload     BYTEA NOT NULL,
		attempts    INT NOT NULL DEFAULT 0,
		received_at TIMESTAMPTZ NOT NULL,
		claimed_at  TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_webhook_queue_ready
		ON webhook_queue (received_at) WHERE claimed_at IS NULL;

	CREATE TABLE IF NOT EXISTS webhook_dlq (
		id          TEXT PRIMARY KEY,
		provider    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		payment_id  TEXT NOT NULL DEFAULT '',
		payload     BYTEA NOT NULL,
		attempts    INT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		reason      TEXT NOT NULL,
		dead_at     TIMESTAMPTZ NOT NULL
	);`

	_, err := q.db.Exec(ctx, schema)
	return err
}

// Enqueue stores a message for later consumption
func (q *PgQueue) Enqueue(ctx context.Context, msg Message) error {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	_, err := q.db.Exec(ctx,
		`INSERT INTO webhook_queue (id, provider, event_type, payment_id, payload, attempts, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.Provider, msg.EventType, msg.PaymentID, msg.Payload, msg.Attempts, msg.ReceivedAt)
	return err
}

// Dequeue claims the oldest ready message, or ErrEmpty
func (q *PgQueue) Dequeue(ctx context.Context) (*Message, error) {
	var msg Message
	err := q.db.QueryRow(ctx,
		`UPDATE webhook_queue SET claimed_at = now()
		 WHERE id = (
			SELECT id FROM webhook_queue
			WHERE claimed_at IS NULL OR claimed_at < now() - $1::interval
			ORDER BY received_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, provider, event_type, payment_id, payload, attempts, received_at`,
		q.claimGrace.String()).
		Scan(&msg.ID, &msg.Provider, &msg.EventType, &msg.PaymentID, &msg.Payload, &msg.Attempts, &msg.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, err
	}

	return &msg, nil
}

// Ack removes a claimed message permanently
func (q *PgQueue) Ack(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, "DELETE FROM webhook_queue WHERE id = $1", id)
	return err
}

// Nack returns a claimed message to the queue with attempts incremented
func (q *PgQueue) Nack(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx,
		"UPDATE webhook_queue SET claimed_at = NULL, attempts = attempts + 1 WHERE id = $1", id)
	return err
}

// MoveToDLQ removes a claimed message and records it as dead
func (q *PgQueue) MoveToDLQ(ctx context.Context, id, reason string) error {
	tx, err := q.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO webhook_dlq (id, provider, event_type, payment_id, payload, attempts, received_at, reason, dead_at)
		 SELECT id, provider, event_type, payment_id, payload, attempts, received_at, $2, now()
		 FROM webhook_queue WHERE id = $1`,
		id, reason)
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, "DELETE FROM webhook_queue WHERE id = $1", id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Depth returns the number of messages waiting
func (q *PgQueue) Depth(ctx context.Context) (int, error) {
	var depth int
	err := q.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM webhook_queue WHERE claimed_at IS NULL").Scan(&depth)
	return depth, err
}

// DeadLetters returns the dead letter entries, newest first
func (q *PgQueue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, provider, event_type, payment_id, payload, attempts, received_at, reason, dead_at
		 FROM webhook_dlq ORDER BY dead_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dead []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.ID, &d.Provider, &d.EventType, &d.PaymentID, &d.Payload,
			&d.Attempts, &d.ReceivedAt, &d.Reason, &d.DeadAt); err != nil {
			return nil, err
		}
		dead = append(dead, d)
	}

	return dead, rows.Err()
}
