package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Storage handles all database operations
type Storage struct {
	db  *sql.DB
	hub changeHub
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			scope INTEGER NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope, key)
		)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			amount INTEGER NOT NULL,
			address TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			verified_at INTEGER,
			tx_hash TEXT UNIQUE,
			used INTEGER NOT NULL DEFAULT 0,
			claim_token TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_pending_amount
			ON payments(amount) WHERE verified_at IS NULL`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	// ledgers created before claim tokens existed
	_, err := s.db.Exec(`ALTER TABLE payments ADD COLUMN claim_token TEXT NOT NULL DEFAULT ''`)
	if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
		return err
	}

	return nil
}

// --- Key-value ---

func (s *Storage) Get(ctx context.Context, scope Scope, key string, v any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE scope = ? AND key = ?",
		scope, key,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Set(ctx context.Context, scope Scope, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var old []byte
	err = tx.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE scope = ? AND key = ?",
		scope, key,
	).Scan(&old)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if scope == Synced {
		var others sql.NullInt64
		err = tx.QueryRowContext(ctx,
			"SELECT SUM(LENGTH(key) + LENGTH(value)) FROM kv WHERE scope = ? AND key != ?",
			scope, key,
		).Scan(&others)
		if err != nil {
			return err
		}
		if err := checkQuota(scope, key, data, int(others.Int64)); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		scope, key, data, time.Now().UnixMilli(),
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if old != nil && bytes.Equal(old, data) {
		return nil
	}

	s.hub.publish(Change{
		Scope:    scope,
		Key:      key,
		OldValue: old,
		NewValue: data,
		Writer:   WriterFrom(ctx),
	})
	return nil
}

func (s *Storage) Remove(ctx context.Context, scope Scope, keys ...string) error {
	var changes []Change

	for _, key := range keys {
		var old []byte
		err := s.db.QueryRowContext(ctx,
			"DELETE FROM kv WHERE scope = ? AND key = ? RETURNING value",
			scope, key,
		).Scan(&old)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}

		changes = append(changes, Change{
			Scope:    scope,
			Key:      key,
			OldValue: old,
			Writer:   WriterFrom(ctx),
		})
	}

	for _, c := range changes {
		s.hub.publish(c)
	}
	return nil
}

func (s *Storage) OnChange(key string, fn ChangeFunc) func() {
	return s.hub.subscribe(key, fn)
}

// --- Payments ---

// CreatePayment inserts a pending payment. Returns ErrAlreadyExists when
// another pending payment already expects the same amount.
func (s *Storage) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, amount, address, created_at, claim_token) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Amount, p.Address, p.CreatedAt.UnixMilli(), p.ClaimToken,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetPayment returns a payment by ID
func (s *Storage) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	var createdAt int64
	var verifiedAt sql.NullInt64
	var txHash sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, amount, address, created_at, verified_at, tx_hash, used, claim_token
		 FROM payments WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Amount, &p.Address, &createdAt, &verifiedAt, &txHash, &p.Used, &p.ClaimToken)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt = time.UnixMilli(createdAt)
	if verifiedAt.Valid {
		t := time.UnixMilli(verifiedAt.Int64)
		p.VerifiedAt = &t
	}
	p.TxHash = txHash.String

	return &p, nil
}

// MarkPaymentVerified records the transaction that paid a pending payment.
// Returns ErrAlreadyExists if txHash already verified another payment.
func (s *Storage) MarkPaymentVerified(ctx context.Context, id, txHash string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments SET verified_at = ?, tx_hash = ?
		 WHERE id = ? AND verified_at IS NULL`,
		at.UnixMilli(), txHash, id,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumePayment flags a verified payment as used and reports whether the
// caller is granted it. The first caller is. A caller presenting the claim
// token issued with the payment is granted it again, so the initiator can
// retry after losing a response.
func (s *Storage) ConsumePayment(ctx context.Context, id, claimToken string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments SET used = 1
		 WHERE id = ? AND verified_at IS NOT NULL
		   AND (used = 0 OR (? != '' AND claim_token = ?))`,
		id, claimToken, claimToken,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// SweepPendingPayments removes unverified payments created before cutoff
func (s *Storage) SweepPendingPayments(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM payments WHERE verified_at IS NULL AND created_at < ?",
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
