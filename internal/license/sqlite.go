package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const licenseSchemaSQL = `
CREATE TABLE IF NOT EXISTS licenses (
	key                TEXT PRIMARY KEY,
	email              TEXT NOT NULL,
	stripe_session_id  TEXT NOT NULL DEFAULT '',
	stripe_customer_id TEXT NOT NULL DEFAULT '',
	product_name       TEXT NOT NULL DEFAULT '',
	price              INTEGER NOT NULL DEFAULT 0,
	currency           TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	active             INTEGER NOT NULL DEFAULT 1,
	activations        INTEGER NOT NULL DEFAULT 0,
	max_activations    INTEGER NOT NULL DEFAULT 3
);

CREATE INDEX IF NOT EXISTS idx_licenses_session ON licenses(stripe_session_id);
`

// SQLiteStore keeps licenses in a SQLite database.
type SQLiteStore struct {
	conn *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the license database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("license: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("license: ping: %w", err)
	}
	if _, err := conn.Exec(licenseSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("license: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.conn.Close() }

// Put inserts l or refreshes the purchase fields of an existing key. The
// activation count and active flag of an existing key are kept.
func (s *SQLiteStore) Put(ctx context.Context, l License) error {
	if l.MaxActivations == 0 {
		l.MaxActivations = DefaultMaxActivations
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO licenses (key, email, stripe_session_id, stripe_customer_id, product_name,
			price, currency, created_at, active, activations, max_activations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			email = excluded.email,
			stripe_session_id = excluded.stripe_session_id,
			stripe_customer_id = excluded.stripe_customer_id,
			product_name = excluded.product_name,
			price = excluded.price,
			currency = excluded.currency`,
		l.Key, l.Email, l.StripeSessionID, l.StripeCustomerID, l.ProductName,
		l.Price, l.Currency, l.CreatedAt.UTC(), l.Active, l.Activations, l.MaxActivations)
	if err != nil {
		return fmt.Errorf("license: put %s: %w", l.Key, err)
	}
	return nil
}

const licenseColumns = `key, email, stripe_session_id, stripe_customer_id, product_name,
	price, currency, created_at, active, activations, max_activations`

func scanLicense(row *sql.Row) (License, error) {
	var l License
	err := row.Scan(&l.Key, &l.Email, &l.StripeSessionID, &l.StripeCustomerID, &l.ProductName,
		&l.Price, &l.Currency, &l.CreatedAt, &l.Active, &l.Activations, &l.MaxActivations)
	if errors.Is(err, sql.ErrNoRows) {
		return License{}, ErrLicenseNotFound
	}
	return l, err
}

// Get returns the license for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (License, error) {
	l, err := scanLicense(s.conn.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE key = ?`, key))
	if err != nil && !isNotFound(err) {
		return l, fmt.Errorf("license: get %s: %w", key, err)
	}
	return l, err
}

// GetBySession returns the license issued for a checkout session.
func (s *SQLiteStore) GetBySession(ctx context.Context, sessionID string) (License, error) {
	l, err := scanLicense(s.conn.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE stripe_session_id = ? LIMIT 1`, sessionID))
	if err != nil && !isNotFound(err) {
		return l, fmt.Errorf("license: get by session: %w", err)
	}
	return l, err
}

// IncrementActivation bumps the activation count with a single guarded
// UPDATE.
func (s *SQLiteStore) IncrementActivation(ctx context.Context, key string) (int, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE licenses SET activations = activations + 1
		WHERE key = ? AND active = 1 AND activations < max_activations`, key)
	if err != nil {
		return 0, fmt.Errorf("license: increment %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("license: increment %s: %w", key, err)
	}
	l, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if !l.Active {
			return l.Activations, ErrInactive
		}
		return l.Activations, ErrActivationLimit
	}
	return l.Activations, nil
}

// Deactivate marks key inactive.
func (s *SQLiteStore) Deactivate(ctx context.Context, key string) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE licenses SET active = 0 WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("license: deactivate %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// Stats aggregates the whole table.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN active = 1 THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(activations), 0)
		FROM licenses`).Scan(&st.Total, &st.Active, &st.Inactive, &st.TotalActivations)
	if err != nil {
		return Stats{}, fmt.Errorf("license: stats: %w", err)
	}
	return st, nil
}
