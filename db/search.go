package db

import (
	"context"
	"fmt"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchMessages performs full-text search on the indexed messages
func (db *DB) SearchMessages(ctx context.Context, query string, limit int) ([]*SearchResult, error) {
	return db.SearchMessagesWithFilters(ctx, query, "", "", limit)
}

// SearchMessagesWithFilters performs full-text search restricted to a thread
// and/or a role; empty filters match everything.
func (db *DB) SearchMessagesWithFilters(ctx context.Context, query, conversationID, role string, limit int) ([]*SearchResult, error) {
	sqlQuery := `
		SELECT m.conversation_id, m.message_id, m.role,
		       snippet(messages_fts, 0, '**', '**', '...', 16) as snippet
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		WHERE messages_fts MATCH ?`
	args := []interface{}{query}
	order := " ORDER BY rank LIMIT ?"

	if !db.fts {
		sqlQuery = `
		SELECT m.conversation_id, m.message_id, m.role, substr(m.content, 1, 120) as snippet
		FROM messages m
		WHERE m.content LIKE ? ESCAPE '\'`
		args = []interface{}{"%" + likeEscaper.Replace(query) + "%"}
		order = " ORDER BY m.id LIMIT ?"
	}

	if conversationID != "" {
		sqlQuery += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	if role != "" {
		sqlQuery += " AND m.role = ?"
		args = append(args, role)
	}

	sqlQuery += order
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ConversationID, &r.MessageID, &r.Role, &r.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, &r)
	}

	return results, rows.Err()
}
