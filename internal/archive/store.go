// Package archive keeps a queryable history of committed redemptions in
// PostgreSQL, fed from the redemption event stream.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/0gfoundation/0g-emissions/internal/address"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultLimit caps ListByBeneficiary when no limit is given.
const DefaultLimit = 100

// Redemption is one archived row.
type Redemption struct {
	Beneficiary address.Address `json:"beneficiary"`
	Nonce       uint64          `json:"nonce"`
	Amount      uint64          `json:"amount"`
	RedeemedAt  int64           `json:"redeemed_at"`
	BatchID     string          `json:"batch_id"`
}

// Store is the PostgreSQL-backed archive.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL, configures the pool and applies pending
// migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert archives r. It reports false if the (beneficiary, nonce) row was
// already present, so replayed events are harmless.
func (s *Store) Insert(ctx context.Context, r Redemption) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO redemptions (beneficiary, nonce, amount, redeemed_at, batch_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (beneficiary, nonce) DO NOTHING`,
		r.Beneficiary.Hex(),
		strconv.FormatUint(r.Nonce, 10),
		strconv.FormatUint(r.Amount, 10),
		r.RedeemedAt,
		r.BatchID,
	)
	if err != nil {
		return false, fmt.Errorf("insert redemption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert redemption: %w", err)
	}
	return n == 1, nil
}

// ListByBeneficiary returns the newest redemptions first.
func (s *Store) ListByBeneficiary(ctx context.Context, beneficiary address.Address, limit int) ([]Redemption, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT beneficiary, nonce, amount, redeemed_at, batch_id
		 FROM redemptions
		 WHERE beneficiary = $1
		 ORDER BY redeemed_at DESC, nonce DESC
		 LIMIT $2`,
		beneficiary.Hex(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var out []Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	return out, nil
}

// LastNonce returns the highest archived nonce for beneficiary, or 0.
func (s *Store) LastNonce(ctx context.Context, beneficiary address.Address) (uint64, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(nonce)::TEXT FROM redemptions WHERE beneficiary = $1`,
		beneficiary.Hex(),
	).Scan(&raw)
	if err != nil {
		return 0, fmt.Errorf("last nonce: %w", err)
	}
	if !raw.Valid {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw.String, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("last nonce: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRedemption(row scanner) (Redemption, error) {
	var (
		r                   Redemption
		beneficiary         string
		nonceRaw, amountRaw string
	)
	if err := row.Scan(&beneficiary, &nonceRaw, &amountRaw, &r.RedeemedAt, &r.BatchID); err != nil {
		return r, fmt.Errorf("scan redemption: %w", err)
	}
	var err error
	if r.Beneficiary, err = address.ParseHex(beneficiary); err != nil {
		return r, fmt.Errorf("scan redemption: %w", err)
	}
	if r.Nonce, err = strconv.ParseUint(nonceRaw, 10, 64); err != nil {
		return r, fmt.Errorf("scan redemption nonce: %w", err)
	}
	if r.Amount, err = strconv.ParseUint(amountRaw, 10, 64); err != nil {
		return r, fmt.Errorf("scan redemption amount: %w", err)
	}
	return r, nil
}
