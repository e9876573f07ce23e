package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"ruteo-sync-agent/internal/model"
	"ruteo-sync-agent/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite. This is the default backend: a
// single database file on the device, WAL mode so badge reads never block a
// queue write.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS pending_sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		local_id TEXT NOT NULL UNIQUE,
		vendor_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sales_vendor ON pending_sales(vendor_id);
	CREATE TABLE IF NOT EXISTS pending_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		local_id TEXT NOT NULL UNIQUE,
		vendor_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_vendor ON pending_actions(vendor_id);
	CREATE TABLE IF NOT EXISTS shift_snapshots (
		vendor_id TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		opened_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		written_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS agent_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(query)
	return err
}

// EnqueueSale appends a sale to the pending queue.
func (s *SQLiteStore) EnqueueSale(ctx context.Context, sale *model.PendingSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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
func (s *SQLiteStore) EnqueueAction(ctx context.Context, action *model.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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
func (s *SQLiteStore) ListPendingSales(ctx context.Context, vendorID string) ([]model.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT payload, attempt_count FROM pending_sales WHERE vendor_id = ? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, vendorID)
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
func (s *SQLiteStore) ListPendingActions(ctx context.Context, vendorID string) ([]model.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT payload, attempt_count FROM pending_actions WHERE vendor_id = ? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, vendorID)
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
func (s *SQLiteStore) RemoveSale(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_sales WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to remove sale: %w", err)
	}
	return nil
}

// RemoveAction deletes a confirmed action.
func (s *SQLiteStore) RemoveAction(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to remove action: %w", err)
	}
	return nil
}

// MarkSaleAttempt increments the sale's attempt counter.
func (s *SQLiteStore) MarkSaleAttempt(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE pending_sales SET attempt_count = attempt_count + 1 WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to mark sale attempt: %w", err)
	}
	return nil
}

// MarkActionAttempt increments the action's attempt counter.
func (s *SQLiteStore) MarkActionAttempt(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE pending_actions SET attempt_count = attempt_count + 1 WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to mark action attempt: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued sales plus actions for a vendor.
func (s *SQLiteStore) PendingCount(ctx context.Context, vendorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sales, actions int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_sales WHERE vendor_id = ?`, vendorID).Scan(&sales); err != nil {
		return 0, fmt.Errorf("failed to count pending sales: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions WHERE vendor_id = ?`, vendorID).Scan(&actions); err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return sales + actions, nil
}

// VendorsWithPending returns the vendors that currently have queued work.
func (s *SQLiteStore) VendorsWithPending(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.ShiftSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.WrittenAt = time.Now().UTC()
	query := `
		INSERT INTO shift_snapshots (vendor_id, day, opened_at, status, written_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vendor_id) DO UPDATE SET
			day = excluded.day,
			opened_at = excluded.opened_at,
			status = excluded.status,
			written_at = excluded.written_at`
	_, err := s.db.ExecContext(ctx, query, snap.VendorID, snap.Day, snap.OpenedAt, string(snap.Status), snap.WrittenAt)
	if err != nil {
		return fmt.Errorf("failed to save shift snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the vendor's persisted snapshot, or nil if none exists.
func (s *SQLiteStore) Snapshot(ctx context.Context, vendorID string) (*model.ShiftSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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
func (s *SQLiteStore) ClearSnapshot(ctx context.Context, vendorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM shift_snapshots WHERE vendor_id = ?`, vendorID)
	if err != nil {
		return fmt.Errorf("failed to clear shift snapshot: %w", err)
	}
	return nil
}

// DeviceID returns the stable per-installation identity, generating one on
// first use.
func (s *SQLiteStore) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM agent_meta WHERE key = 'device_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = uid.New()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO agent_meta (key, value) VALUES ('device_id', ?)`, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	log.Printf("[SQLiteStore] Generated device id %s", id)
	return id, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
