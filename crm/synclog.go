// ABOUTME: Write-audit log for the reference CRM store
// ABOUTME: Records every mutating operation with a monotonic ULID key
package crm

import (
	"database/sql"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newLogID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// LogWrite records one mutating operation. Operators use this log to
// diagnose sync problems, so failures here are returned rather than
// swallowed, but callers treat them as non-fatal.
func LogWrite(db *sql.DB, op, objectName string, objectID int) error {
	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO sync_log (id, op, object_name, object_id, logged_at)
		VALUES (?, ?, ?, ?, ?)
	`, newLogID(now), op, objectName, objectID, now)
	return err
}

// SyncLogEntry is one row of the write-audit log.
type SyncLogEntry struct {
	ID         string
	Op         string
	ObjectName string
	ObjectID   int
	LoggedAt   time.Time
}

func GetSyncLog(db *sql.DB, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, op, object_name, object_id, logged_at
		FROM sync_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SyncLogEntry
	for rows.Next() {
		var entry SyncLogEntry
		if err := rows.Scan(&entry.ID, &entry.Op, &entry.ObjectName, &entry.ObjectID, &entry.LoggedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
