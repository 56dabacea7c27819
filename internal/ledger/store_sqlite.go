package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/nadsniper/internal/domain"
)

// SQLiteStore keeps the records in a single table; every Save rewrites it in
// one transaction.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS holdings (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  contract_address TEXT NOT NULL,
  wallet_address TEXT NOT NULL,
  bought_at INTEGER NOT NULL,
  bought_at_price TEXT NOT NULL,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  UNIQUE(contract_address, wallet_address)
);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load() ([]domain.HoldingRecord, error) {
	rows, err := s.db.Query(`SELECT contract_address, wallet_address, bought_at, bought_at_price, symbol, name FROM holdings ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var out []domain.HoldingRecord
	for rows.Next() {
		var r domain.HoldingRecord
		if err := rows.Scan(&r.ContractAddress, &r.WalletAddress, &r.BoughtAt, &r.BoughtAtPrice, &r.Symbol, &r.Name); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(records []domain.HoldingRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings`); err != nil {
		return fmt.Errorf("clear holdings: %w", err)
	}
	for _, r := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO holdings (contract_address, wallet_address, bought_at, bought_at_price, symbol, name) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ContractAddress, r.WalletAddress, r.BoughtAt, r.BoughtAtPrice, r.Symbol, r.Name,
		); err != nil {
			return fmt.Errorf("insert holding %s: %w", r.ContractAddress, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
