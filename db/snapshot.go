package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"game-companion/model"
)

// SaveSnapshot replaces the stored snapshot and refreshes the message index
// in a single transaction.
func (db *DB) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	order, err := json.Marshal(snap.Order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setSetting(ctx, tx, KeyConversations, string(records)); err != nil {
		return err
	}
	if err := setSetting(ctx, tx, KeyOrder, string(order)); err != nil {
		return err
	}
	if err := setSetting(ctx, tx, KeyActiveID, snap.ActiveID); err != nil {
		return err
	}
	if err := reindex(ctx, tx, snap.Records); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func reindex(ctx context.Context, tx *sql.Tx, records []model.Record) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear message index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (conversation_id, message_id, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message index: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		for _, msg := range rec.Messages {
			if msg.Text == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, rec.ID, msg.ID, string(msg.Role), msg.Text); err != nil {
				return fmt.Errorf("failed to index message %s: %w", msg.ID, err)
			}
		}
	}
	return nil
}

// LoadSnapshot returns the stored snapshot, or nil when none was saved
func (db *DB) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	raw, ok, err := db.GetSetting(ctx, KeyConversations)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	snap := &model.Snapshot{}
	if err := json.Unmarshal([]byte(raw), &snap.Records); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	order, ok, err := db.GetSetting(ctx, KeyOrder)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := json.Unmarshal([]byte(order), &snap.Order); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
	}

	snap.ActiveID, _, err = db.GetSetting(ctx, KeyActiveID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SaveInsightBackup stores the insights of one thread
func (db *DB) SaveInsightBackup(ctx context.Context, conversationID string, insights []model.Insight) error {
	data, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO insight_backups (conversation_id, insights, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET insights = excluded.insights, updated_at = excluded.updated_at`,
		conversationID, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save insight backup for %s: %w", conversationID, err)
	}
	return nil
}

// LoadInsightBackups returns every stored insight backup keyed by thread id
func (db *DB) LoadInsightBackups(ctx context.Context) (map[string][]model.Insight, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT conversation_id, insights FROM insight_backups")
	if err != nil {
		return nil, fmt.Errorf("failed to load insight backups: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Insight)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan insight backup: %w", err)
		}
		var insights []model.Insight
		if err := json.Unmarshal([]byte(data), &insights); err != nil {
			return nil, fmt.Errorf("failed to decode insight backup for %s: %w", id, err)
		}
		out[id] = insights
	}
	return out, rows.Err()
}

// DeleteConversation drops the backup and indexed messages of a thread. The
// snapshot itself is rewritten by the next save.
func (db *DB) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM insight_backups WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete insight backup: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete indexed messages: %w", err)
	}
	return nil
}
