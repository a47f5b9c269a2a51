// Package store persists schedule snapshots and recipient subscriptions
// in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/svitlobot/svitlo/core/model"
	corestore "github.com/svitlobot/svitlo/core/store"
)

// DefaultMaxSubscriptions caps how many groups one recipient may follow.
const DefaultMaxSubscriptions = 6

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    source_id         TEXT NOT NULL,
    group_id          TEXT NOT NULL,
    today             TEXT NOT NULL DEFAULT '',
    tomorrow          TEXT NOT NULL DEFAULT '',
    previous_today    TEXT NOT NULL DEFAULT '',
    previous_tomorrow TEXT NOT NULL DEFAULT '',
    content_hash      TEXT NOT NULL DEFAULT '',
    updated_at        INTEGER NOT NULL,
    PRIMARY KEY (source_id, group_id)
);
CREATE TABLE IF NOT EXISTS subscriptions (
    recipient_id TEXT NOT NULL,
    source_id    TEXT NOT NULL,
    group_id     TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    PRIMARY KEY (recipient_id, source_id, group_id)
);
`

// SQLiteStore implements both the snapshot store and the recipient
// directory on one database file.
type SQLiteStore struct {
	db      *sql.DB
	maxSubs int
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db, maxSubs: DefaultMaxSubscriptions}, nil
}

// Get returns the snapshot for (sourceID, groupID), or nil when the group
// was never observed.
func (s *SQLiteStore) Get(ctx context.Context, sourceID, groupID string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT today, tomorrow, previous_today, previous_tomorrow, content_hash, updated_at
         FROM snapshots WHERE source_id = ? AND group_id = ?`, sourceID, groupID)
	snap := model.Snapshot{SourceID: sourceID, GroupID: groupID}
	var updatedAt int64
	err := row.Scan(&snap.Today, &snap.Tomorrow, &snap.PreviousToday,
		&snap.PreviousTomorrow, &snap.ContentHash, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.UpdatedAt = time.Unix(updatedAt, 0)
	return &snap, nil
}

// Upsert stores the freshly parsed texts for a group. The stored current
// texts rotate into the previous slots inside the same statement, on every
// call, whether or not the content hash changed.
func (s *SQLiteStore) Upsert(ctx context.Context, sourceID, groupID, today, tomorrow, contentHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (source_id, group_id, today, tomorrow, previous_today, previous_tomorrow, content_hash, updated_at)
         VALUES (?, ?, ?, ?, '', '', ?, ?)
         ON CONFLICT(source_id, group_id) DO UPDATE SET
             previous_today    = snapshots.today,
             previous_tomorrow = snapshots.tomorrow,
             today             = excluded.today,
             tomorrow          = excluded.tomorrow,
             content_hash      = excluded.content_hash,
             updated_at        = excluded.updated_at`,
		sourceID, groupID, today, tomorrow, contentHash, time.Now().Unix())
	return err
}

// Hash returns the stored content hash for a group, or "" when absent.
func (s *SQLiteStore) Hash(ctx context.Context, sourceID, groupID string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM snapshots WHERE source_id = ? AND group_id = ?`, sourceID, groupID)
	var hash string
	err := row.Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Subscribe adds one (recipient, source, group) subscription, enforcing
// the per-recipient cap.
func (s *SQLiteStore) Subscribe(ctx context.Context, recipientID, sourceID, groupID string) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE recipient_id = ?`, recipientID)
	var count int
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count >= s.maxSubs {
		return corestore.ErrSubscriptionLimit
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (recipient_id, source_id, group_id, created_at)
         VALUES (?, ?, ?, ?)`, recipientID, sourceID, groupID, time.Now().Unix())
	return err
}

// Unsubscribe removes one subscription.
func (s *SQLiteStore) Unsubscribe(ctx context.Context, recipientID, sourceID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE recipient_id = ? AND source_id = ? AND group_id = ?`,
		recipientID, sourceID, groupID)
	return err
}

// ListRecipients returns the recipients subscribed to a group, ordered by
// recipient ID for deterministic fan-out.
func (s *SQLiteStore) ListRecipients(ctx context.Context, sourceID, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient_id FROM subscriptions
         WHERE source_id = ? AND group_id = ? ORDER BY recipient_id`, sourceID, groupID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// AllRecipients returns every distinct recipient across subscriptions.
func (s *SQLiteStore) AllRecipients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT recipient_id FROM subscriptions ORDER BY recipient_id`)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
