package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabtriage/tabtriage/internal/types"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// URLRecord is the persisted classification history for one address.
type URLRecord struct {
	ID              int64
	Address         string
	Title           string
	Domain          string
	Category        types.Category
	Provenance      types.Provenance
	Saved           bool
	FirstSeen       time.Time
	LastCategorized *time.Time
}

// URLEvent is one open or close observation for an address.
type URLEvent struct {
	ID         int64
	EventType  string
	InstanceID int
	CreatedAt  time.Time
}

// Event types recorded in url_events.
const (
	EventOpen  = "open"
	EventClose = "close"
)

const recordColumns = "id, address, title, domain, category, provenance, saved, first_seen, last_categorized"

func scanRecord(row interface{ Scan(...any) error }) (URLRecord, error) {
	var r URLRecord
	var lastCategorized sql.NullTime
	err := row.Scan(&r.ID, &r.Address, &r.Title, &r.Domain, &r.Category, &r.Provenance,
		&r.Saved, &r.FirstSeen, &lastCategorized)
	if err != nil {
		return URLRecord{}, err
	}
	if lastCategorized.Valid {
		r.LastCategorized = &lastCategorized.Time
	}
	return r, nil
}

// GetRecord loads the record for an address. Returns ErrNotFound when
// the address has never been recorded.
func GetRecord(db *sql.DB, address string) (*URLRecord, error) {
	row := db.QueryRow("SELECT "+recordColumns+" FROM url_records WHERE address = ?", address)
	r, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
		}
		return nil, fmt.Errorf("query record: %w", err)
	}
	return &r, nil
}

// GetRecords loads the records for a set of addresses, keyed by address.
// Addresses with no record are simply absent from the result.
func GetRecords(db *sql.DB, addresses []string) (map[string]URLRecord, error) {
	if len(addresses) == 0 {
		return map[string]URLRecord{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(addresses)), ",")
	args := make([]any, len(addresses))
	for i, a := range addresses {
		args[i] = a
	}
	rows, err := db.Query(
		"SELECT "+recordColumns+" FROM url_records WHERE address IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	result := make(map[string]URLRecord)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result[r.Address] = r
	}
	return result, rows.Err()
}

// UpsertRecord inserts or updates the classification for an address.
// A stored user correction is never overwritten by an automatic
// assignment: the conflict update only applies when the existing
// provenance is not user_correction, or the new one is.
func UpsertRecord(db *sql.DB, rec URLRecord) error {
	_, err := db.Exec(
		`INSERT INTO url_records (address, title, domain, category, provenance, last_categorized)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(address) DO UPDATE SET
		     title            = excluded.title,
		     domain           = excluded.domain,
		     category         = excluded.category,
		     provenance       = excluded.provenance,
		     last_categorized = excluded.last_categorized
		 WHERE url_records.provenance != ? OR excluded.provenance = ?`,
		rec.Address, rec.Title, rec.Domain, int(rec.Category), string(rec.Provenance),
		string(types.ProvenanceCorrection), string(types.ProvenanceCorrection),
	)
	if err != nil {
		return fmt.Errorf("upsert record %q: %w", rec.Address, err)
	}
	return nil
}

// UpdateRecordTitle updates only the stored title for an address.
// Missing records are not an error: titles arrive for addresses that
// may never have been classified.
func UpdateRecordTitle(db *sql.DB, address, title string) error {
	_, err := db.Exec("UPDATE url_records SET title = ? WHERE address = ?", title, address)
	if err != nil {
		return fmt.Errorf("update title for %q: %w", address, err)
	}
	return nil
}

// SetSaved marks or unmarks an address as saved for later. The record
// is created if it does not exist yet.
func SetSaved(db *sql.DB, address string, saved bool) error {
	res, err := db.Exec("UPDATE url_records SET saved = ? WHERE address = ?", saved, address)
	if err != nil {
		return fmt.Errorf("set saved for %q: %w", address, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if !saved {
			return fmt.Errorf("record %q not found", address)
		}
		_, err := db.Exec(
			"INSERT INTO url_records (address, saved) VALUES (?, 1)", address)
		if err != nil {
			return fmt.Errorf("insert saved record %q: %w", address, err)
		}
	}
	return nil
}

// SavedAddresses returns the set of addresses marked saved.
func SavedAddresses(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT address FROM url_records WHERE saved = 1")
	if err != nil {
		return nil, fmt.Errorf("query saved addresses: %w", err)
	}
	defer rows.Close()

	saved := make(map[string]bool)
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		saved[address] = true
	}
	return saved, rows.Err()
}

// ListRecords returns records ordered by most recently categorized
// first. If onlySaved is true, only saved addresses are returned.
func ListRecords(db *sql.DB, onlySaved bool) ([]URLRecord, error) {
	query := "SELECT " + recordColumns + " FROM url_records"
	if onlySaved {
		query += " WHERE saved = 1"
	}
	query += " ORDER BY last_categorized DESC, id DESC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []URLRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ListCategorized returns all records with a tier assignment. Used to
// train the learned model from history.
func ListCategorized(db *sql.DB) ([]URLRecord, error) {
	rows, err := db.Query(
		"SELECT " + recordColumns + " FROM url_records WHERE category > 0")
	if err != nil {
		return nil, fmt.Errorf("query categorized records: %w", err)
	}
	defer rows.Close()

	var result []URLRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// DeleteRecord removes an address and its events.
func DeleteRecord(db *sql.DB, address string) error {
	res, err := db.Exec("DELETE FROM url_records WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("delete record %q: %w", address, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record %q not found", address)
	}
	return nil
}

// AppendEvent records an open or close observation for an address,
// creating a bare record row first when the address is new.
func AppendEvent(db *sql.DB, address, eventType string, instanceID int) error {
	if _, err := db.Exec(
		"INSERT OR IGNORE INTO url_records (address) VALUES (?)", address); err != nil {
		return fmt.Errorf("ensure record %q: %w", address, err)
	}
	_, err := db.Exec(
		`INSERT INTO url_events (record_id, event_type, instance_id)
		 SELECT id, ?, ? FROM url_records WHERE address = ?`,
		eventType, instanceID, address,
	)
	if err != nil {
		return fmt.Errorf("append %s event for %q: %w", eventType, address, err)
	}
	return nil
}

// ListEvents returns the events for an address, oldest first.
func ListEvents(db *sql.DB, address string) ([]URLEvent, error) {
	rows, err := db.Query(
		`SELECT e.id, e.event_type, e.instance_id, e.created_at
		 FROM url_events e JOIN url_records r ON r.id = e.record_id
		 WHERE r.address = ? ORDER BY e.created_at, e.id`,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []URLEvent
	for rows.Next() {
		var e URLEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.InstanceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
