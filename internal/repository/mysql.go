package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/pkg/uid"
)

// MySQLStore implements Store using MySQL. Used for depot-hosted installs
// where several handhelds run against one depot database instead of a local
// file.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a MySQL-backed store on an existing connection.
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	log.Printf("[MySQLStore] Initialized")
	return &MySQLStore{db: db}, nil
}

func createMySQLTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pending_sales (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			local_id VARCHAR(64) NOT NULL UNIQUE,
			vendor_id VARCHAR(64) NOT NULL,
			payload MEDIUMTEXT NOT NULL,
			attempt_count INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			INDEX idx_sales_vendor (vendor_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_actions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			local_id VARCHAR(64) NOT NULL UNIQUE,
			vendor_id VARCHAR(64) NOT NULL,
			payload MEDIUMTEXT NOT NULL,
			attempt_count INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			INDEX idx_actions_vendor (vendor_id)
		)`,
		`CREATE TABLE IF NOT EXISTS shift_snapshots (
			vendor_id VARCHAR(64) PRIMARY KEY,
			day VARCHAR(10) NOT NULL,
			opened_at DATETIME NOT NULL,
			status VARCHAR(16) NOT NULL,
			written_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_meta (
			meta_key VARCHAR(64) PRIMARY KEY,
			meta_value VARCHAR(255) NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueSale appends a sale to the pending queue.
func (s *MySQLStore) EnqueueSale(ctx context.Context, sale *model.PendingSale) error {
	payload, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("failed to encode sale: %w", err)
	}

	query := `INSERT INTO pending_sales (local_id, vendor_id, payload, attempt_count, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, sale.LocalID, sale.VendorID, string(payload), sale.AttemptCount, sale.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to enqueue sale: %w", err)
	}
	return nil
}

// EnqueueAction appends an order action to the pending queue.
func (s *MySQLStore) EnqueueAction(ctx context.Context, action *model.PendingAction) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	query := `INSERT INTO pending_actions (local_id, vendor_id, payload, attempt_count, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, action.LocalID, action.VendorID, string(payload), action.AttemptCount, action.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to enqueue action: %w", err)
	}
	return nil
}

// ListPendingSales returns the vendor's queued sales in insertion order.
func (s *MySQLStore) ListPendingSales(ctx context.Context, vendorID string) ([]model.PendingSale, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, attempt_count FROM pending_sales WHERE vendor_id = ? ORDER BY id ASC`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sales: %w", err)
	}
	defer rows.Close()

	var sales []model.PendingSale
	for rows.Next() {
		var payload string
		var attempts int
		if err := rows.Scan(&payload, &attempts); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		var sale model.PendingSale
		if err := json.Unmarshal([]byte(payload), &sale); err != nil {
			return nil, fmt.Errorf("failed to decode sale: %w", err)
		}
		sale.AttemptCount = attempts
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// ListPendingActions returns the vendor's queued actions in insertion order.
func (s *MySQLStore) ListPendingActions(ctx context.Context, vendorID string) ([]model.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, attempt_count FROM pending_actions WHERE vendor_id = ? ORDER BY id ASC`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var payload string
		var attempts int
		if err := rows.Scan(&payload, &attempts); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		var action model.PendingAction
		if err := json.Unmarshal([]byte(payload), &action); err != nil {
			return nil, fmt.Errorf("failed to decode action: %w", err)
		}
		action.AttemptCount = attempts
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// RemoveSale deletes a confirmed sale.
func (s *MySQLStore) RemoveSale(ctx context.Context, localID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_sales WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to remove sale: %w", err)
	}
	return nil
}

// RemoveAction deletes a confirmed action.
func (s *MySQLStore) RemoveAction(ctx context.Context, localID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to remove action: %w", err)
	}
	return nil
}

// MarkSaleAttempt increments the sale's attempt counter.
func (s *MySQLStore) MarkSaleAttempt(ctx context.Context, localID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_sales SET attempt_count = attempt_count + 1 WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to mark sale attempt: %w", err)
	}
	return nil
}

// MarkActionAttempt increments the action's attempt counter.
func (s *MySQLStore) MarkActionAttempt(ctx context.Context, localID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET attempt_count = attempt_count + 1 WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to mark action attempt: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued sales plus actions for a vendor.
func (s *MySQLStore) PendingCount(ctx context.Context, vendorID string) (int, error) {
	var sales, actions int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_sales WHERE vendor_id = ?`, vendorID).Scan(&sales); err != nil {
		return 0, fmt.Errorf("failed to count pending sales: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE vendor_id = ?`, vendorID).Scan(&actions); err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return sales + actions, nil
}

// VendorsWithPending returns the vendors that currently have queued work.
func (s *MySQLStore) VendorsWithPending(ctx context.Context) ([]string, error) {
	query := `SELECT vendor_id FROM pending_sales UNION SELECT vendor_id FROM pending_actions`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors with pending work: %w", err)
	}
	defer rows.Close()

	var vendors []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// SaveSnapshot persists the vendor's shift snapshot, stamping WrittenAt.
func (s *MySQLStore) SaveSnapshot(ctx context.Context, snap *model.ShiftSnapshot) error {
	snap.WrittenAt = time.Now().UTC()
	query := `
		INSERT INTO shift_snapshots (vendor_id, day, opened_at, status, written_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			day = VALUES(day),
			opened_at = VALUES(opened_at),
			status = VALUES(status),
			written_at = VALUES(written_at)`
	_, err := s.db.ExecContext(ctx, query, snap.VendorID, snap.Day, snap.OpenedAt, string(snap.Status), snap.WrittenAt)
	if err != nil {
		return fmt.Errorf("failed to save shift snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the vendor's persisted snapshot, or nil if none exists.
func (s *MySQLStore) Snapshot(ctx context.Context, vendorID string) (*model.ShiftSnapshot, error) {
	query := `SELECT day, opened_at, status, written_at FROM shift_snapshots WHERE vendor_id = ?`

	snap := model.ShiftSnapshot{VendorID: vendorID}
	var status string
	err := s.db.QueryRowContext(ctx, query, vendorID).Scan(&snap.Day, &snap.OpenedAt, &status, &snap.WrittenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shift snapshot: %w", err)
	}
	snap.Status = model.ShiftStatus(status)
	return &snap, nil
}

// ClearSnapshot removes the vendor's persisted snapshot.
func (s *MySQLStore) ClearSnapshot(ctx context.Context, vendorID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shift_snapshots WHERE vendor_id = ?`, vendorID)
	if err != nil {
		return fmt.Errorf("failed to clear shift snapshot: %w", err)
	}
	return nil
}

// DeviceID returns the stable per-installation identity, generating one on
// first use.
func (s *MySQLStore) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM agent_meta WHERE meta_key = 'device_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = uid.New()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_meta (meta_key, meta_value) VALUES ('device_id', ?)`, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	log.Printf("[MySQLStore] Generated device id %s", id)
	return id, nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Ensure MySQLStore implements Store
var _ Store = (*MySQLStore)(nil)
