package sqlite

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based update store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	stmt := `
	CREATE TABLE IF NOT EXISTS canvas_updates (
		id TEXT PRIMARY KEY,
		canvas_id TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_canvas_updates_canvas ON canvas_updates (canvas_id, created_at);`
	if _, err = db.Exec(stmt); err != nil {
		log.Fatalf("failed to create canvas_updates table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) ListUpdates(ctx context.Context, canvasID string) ([][]byte, error) {
	log := logrus.WithField("canvas_id", canvasID)

	// ULID ids break created_at ties in insertion order.
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM canvas_updates WHERE canvas_id = ? ORDER BY created_at ASC, id ASC", canvasID)
	if err != nil {
		log.WithError(err).Error("Failed to query canvas updates")
		return nil, err
	}
	defer rows.Close()

	var history [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		history = append(history, data)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.WithField("update_count", len(history)).Debug("Listed canvas updates")
	return history, nil
}

func (s *sqliteStore) AppendUpdate(ctx context.Context, canvasID string, update []byte) error {
	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{
		"canvas_id":   canvasID,
		"update_id":   id,
		"data_length": len(update),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO canvas_updates (id, canvas_id, data, created_at) VALUES (?, ?, ?, ?)",
		id, canvasID, update, time.Now())
	if err != nil {
		log.WithError(err).Error("Failed to append update")
		return err
	}

	log.Debug("Update appended")
	return nil
}
