package store

import (
	"fmt"
	"time"

	"github.com/casalink/inboxd/internal/model"
)

// ReplaceAll swaps the cached connection directory for the given set in one
// transaction. The remote directory is authoritative, so connections absent
// from the new set are dropped rather than kept around.
func (db *DB) ReplaceAll(conns []model.Connection) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM connections`); err != nil {
		return fmt.Errorf("clear connections: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range conns {
		if _, err := tx.Exec(`
			INSERT INTO connections (id, initiator_id, peer_user_id, display_name, avatar_url, role, is_online, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.InitiatorID, c.Peer.UserID, c.Peer.DisplayName, c.Peer.AvatarURL,
			string(c.Peer.Role), c.Peer.IsOnline, c.CreatedAt, now); err != nil {
			return fmt.Errorf("insert connection %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListConnections returns the cached directory, newest relationship first.
func (db *DB) ListConnections() ([]model.Connection, error) {
	rows, err := db.Query(`
		SELECT id, initiator_id, peer_user_id, display_name, avatar_url, role, is_online, created_at
		FROM connections
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var conns []model.Connection
	for rows.Next() {
		var c model.Connection
		var role string
		if err := rows.Scan(&c.ID, &c.InitiatorID, &c.Peer.UserID, &c.Peer.DisplayName,
			&c.Peer.AvatarURL, &role, &c.Peer.IsOnline, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Peer.Role = model.Role(role)
		conns = append(conns, c)
	}
	return conns, rows.Err()
}
