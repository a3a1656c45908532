package db

import (
	"context"
	"fmt"
)

// GetThreadStats counts indexed messages per thread, busiest first
func (db *DB) GetThreadStats(ctx context.Context) ([]*ThreadStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			conversation_id,
			COUNT(*) as messages,
			SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END) as user_messages,
			SUM(CASE WHEN role = 'model' THEN 1 ELSE 0 END) as model_messages
		FROM messages
		GROUP BY conversation_id
		ORDER BY messages DESC, conversation_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread stats: %w", err)
	}
	defer rows.Close()

	var stats []*ThreadStats
	for rows.Next() {
		var s ThreadStats
		if err := rows.Scan(&s.ConversationID, &s.Messages, &s.UserMessages, &s.ModelMessages); err != nil {
			return nil, fmt.Errorf("failed to scan thread stats: %w", err)
		}
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}
