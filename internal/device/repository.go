package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for registry persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a record by its unique identifier.
	// Returns ErrDeviceNotFound if the record does not exist.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves all records ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Create inserts a new record.
	// Returns ErrDeviceExists if the ID or name is already taken.
	Create(ctx context.Context, rec *Record) error

	// Rename changes a record's name.
	// Returns ErrDeviceNotFound or ErrDeviceExists.
	Rename(ctx context.Context, id, name string) error

	// Delete removes a record by ID.
	// Returns ErrDeviceNotFound if the record does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT id, name, device_type, ip, token, handle, methods, created_at, updated_at
		FROM miio_devices`

// GetByID retrieves a record by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return rec, nil
}

// List retrieves all records ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// Create inserts a new record. Timestamps are set if zero.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.Session == nil {
		return errors.New("creating device: record has no session")
	}

	methodsJSON, err := json.Marshal(rec.Session.methods)
	if err != nil {
		return fmt.Errorf("marshalling methods: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO miio_devices (
			id, name, device_type, ip, token, handle, methods, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Session.deviceType,
		rec.Session.ip,
		rec.Session.token,
		append([]byte{}, rec.Session.handle...),
		string(methodsJSON),
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Rename changes a record's name.
func (r *SQLiteRepository) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE miio_devices SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("renaming device: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes a record by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM miio_devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return expectOneRow(result)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                  Record
		deviceType, ip, tok  string
		handle               []byte
		methodsJSON          string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &deviceType, &ip, &tok, &handle, &methodsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var methods map[string]string
	if err := json.Unmarshal([]byte(methodsJSON), &methods); err != nil {
		return nil, fmt.Errorf("unmarshalling methods: %w", err)
	}
	rec.Session = newSession(deviceType, ip, tok, handle, methods)

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
